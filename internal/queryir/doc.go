// Package queryir is the backend-neutral description of what a controller
// asks the record store to do.
//
// Controllers never build SQL strings. They build a Query (Select, Count,
// Insert, Update, Delete, Upsert) whose Filter is a tree of Predicates, and
// hand it to a compiler (see internal/querysql).
//
//	[controller] → [queryir] → [querysql] → database/sql
//
// Query and Predicate are sealed with marker methods; only this package
// defines node types. Both value and pointer forms of every node are
// accepted by Validate and by the SQL compiler.
//
// Ordering: Select carries an explicit Key (the record type's primary key).
// Compilers append it as the final ORDER BY term, so every result set has a
// deterministic order even when the caller's Order leaves ties.
package queryir
