// Package controller is the generic data-access layer.
//
// One Controller[T, P] is bound per record type. It provides lookups by
// unique key, ordered list queries, counts, single and bulk writes,
// upserts, transactions and connect-or-create relation resolution, all
// written once against a record type's Schema. Type-specific controllers
// embed a Controller and add convenience methods only.
//
// Records travel as ir.IRObject. A column that holds NULL reads back as
// ir.IRNull; SafeGetAttr turns absence and null into a caller default.
//
// Errors are *Error values carrying a Code; use errors.Is with ErrNotFound,
// ErrInvalidArgument, ErrStoreUnavailable, ErrRelationConflict or
// ErrAlreadyExists.
package controller
