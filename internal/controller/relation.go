package controller

import (
	"context"
	"fmt"

	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
	"github.com/roach88/cogd/internal/store"
)

// RelationRef asks for a local relation column to point at a target row,
// connecting to the row matching Where if it exists and creating it
// otherwise.
type RelationRef struct {
	Field string
	// Where selects the target row by its lookup columns.
	Where ir.IRObject
	// Create holds extra column values used only when the row is created.
	Create ir.IRObject

	key      ir.IRValue
	resolved bool
}

// ConnectOrCreate builds a reference that connects field to the target row
// matching where, creating it from where if absent.
//
//	ctrl.Create(ctx, data, controller.ConnectOrCreate("guild_id", ir.Obj(ir.O("guild_id", ir.IRInt(id)))))
func ConnectOrCreate(field string, where ir.IRObject) RelationRef {
	return RelationRef{Field: field, Where: where}
}

// WithCreate returns a copy with extra create-only values.
func (r RelationRef) WithCreate(values ir.IRObject) RelationRef {
	r.Create = values
	return r
}

// Key returns the resolved target key and whether resolution happened.
func (r RelationRef) Key() (ir.IRValue, bool) {
	return r.key, r.resolved
}

// resolveRef connects or creates the target row with one upsert statement
// and returns the reference bound to the target key. Concurrent calls with
// the same lookup converge on a single row.
func resolveRef(ctx context.Context, client *store.Client, s *Schema, ref RelationRef) (RelationRef, error) {
	const op = "resolve_relation"

	if ref.resolved {
		return ref, nil
	}
	rel, ok := s.Relation(ref.Field)
	if !ok {
		return ref, newError(CodeInvalidArgument, op, s.Name, "%q is not a relation", ref.Field)
	}
	if len(ref.Where) == 0 {
		return ref, newError(CodeInvalidArgument, op, s.Name, "relation %q has an empty lookup", ref.Field)
	}
	lookup := rel.lookup()
	if !sameSet(ref.Where.SortedKeys(), lookup) {
		return ref, newError(CodeInvalidArgument, op, s.Name,
			"relation %q must be looked up by %v, got %v", ref.Field, lookup, ref.Where.SortedKeys())
	}
	for k, v := range ref.Where {
		if ir.IsNull(v) {
			return ref, newError(CodeInvalidArgument, op, s.Name, "relation %q lookup %q is null", ref.Field, k)
		}
	}

	values := ref.Create.Merge(ref.Where)
	row, ok, err := client.QueryOne(ctx, queryir.Upsert{
		Into:       rel.Target,
		Values:     values,
		ConflictOn: lookup,
		Returning:  []string{rel.TargetKey},
	})
	if err != nil {
		if store.IsConflict(err) {
			return ref, &Error{Code: CodeRelationConflict, Op: op, RecordType: s.Name,
				Message: fmt.Sprintf("relation %q: target row conflicts on another unique key", ref.Field), Err: err}
		}
		return ref, wrapStore(op, s.Name, err)
	}
	if !ok {
		return ref, newError(CodeRelationConflict, op, s.Name, "relation %q: upsert returned no row", ref.Field)
	}
	key, ok := row.Get(rel.TargetKey)
	if !ok || ir.IsNull(key) {
		return ref, newError(CodeRelationConflict, op, s.Name, "relation %q: target key %q is null", ref.Field, rel.TargetKey)
	}

	ref.key = key
	ref.resolved = true
	return ref, nil
}
