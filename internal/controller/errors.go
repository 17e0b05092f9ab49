package controller

import (
	"errors"
	"fmt"

	"github.com/roach88/cogd/internal/store"
)

// Code identifies a data-access error category.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeRelationConflict Code = "RELATION_CONFLICT"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Code.
var (
	ErrNotFound         = errors.New("record not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRelationConflict = errors.New("relation conflict")
	ErrAlreadyExists    = errors.New("record already exists")
)

var sentinels = map[Code]error{
	CodeNotFound:         ErrNotFound,
	CodeInvalidArgument:  ErrInvalidArgument,
	CodeStoreUnavailable: ErrStoreUnavailable,
	CodeRelationConflict: ErrRelationConflict,
	CodeAlreadyExists:    ErrAlreadyExists,
}

// Error is a data-access failure with the operation and record type that
// produced it.
type Error struct {
	Code       Code
	Op         string
	RecordType string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Code].Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.RecordType, e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.RecordType, e.Op, msg)
}

// Is matches the sentinel for e.Code.
func (e *Error) Is(target error) bool {
	return sentinels[e.Code] == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code as a string for transport layers.
func (e *Error) ErrorCode() string {
	return string(e.Code)
}

func newError(code Code, op, recordType, format string, args ...any) *Error {
	return &Error{
		Code:       code,
		Op:         op,
		RecordType: recordType,
		Message:    fmt.Sprintf(format, args...),
	}
}

// wrapStore converts a store failure into an *Error. Errors that are
// already *Error pass through unchanged, as do errors the store did not
// classify (work-function errors surfacing through a transaction).
func wrapStore(op, recordType string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	switch {
	case store.IsUnavailable(err), store.IsBusy(err):
		return &Error{Code: CodeStoreUnavailable, Op: op, RecordType: recordType, Err: err}
	case store.IsConflict(err):
		return &Error{Code: CodeAlreadyExists, Op: op, RecordType: recordType, Err: err}
	case errors.Is(err, store.ErrConstraint):
		return &Error{Code: CodeInvalidArgument, Op: op, RecordType: recordType, Err: err}
	}
	return err
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidArgument reports whether err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsStoreUnavailable reports whether err means the store could not be used.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
