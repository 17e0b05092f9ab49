package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUnavailable means the store could not be reached or used.
	ErrUnavailable = errors.New("store unavailable")
	// ErrBusy means the database was locked by another writer.
	ErrBusy = errors.New("store busy")
	// ErrConflict means a uniqueness or primary key constraint rejected a write.
	ErrConflict = errors.New("constraint conflict")
	// ErrConstraint means any other constraint (NOT NULL, CHECK, FOREIGN KEY) failed.
	ErrConstraint = errors.New("constraint violation")
)

// classifiedError pairs a sentinel with the driver error that produced it.
type classifiedError struct {
	kind  error
	cause error
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *classifiedError) Is(target error) bool {
	return target == e.kind
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// classify maps driver errors onto the package sentinels. Errors that are
// already classified, nil, sql.ErrNoRows and context errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return &classifiedError{kind: ErrBusy, cause: err}
		case sqlite3.ErrConstraint:
			switch se.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return &classifiedError{kind: ErrConflict, cause: err}
			}
			return &classifiedError{kind: ErrConstraint, cause: err}
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrNotADB,
			sqlite3.ErrFull, sqlite3.ErrReadonly, sqlite3.ErrPerm, sqlite3.ErrAuth:
			return &classifiedError{kind: ErrUnavailable, cause: err}
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		strings.Contains(err.Error(), "database is closed") {
		return &classifiedError{kind: ErrUnavailable, cause: err}
	}
	return err
}

// IsBusy reports whether err is a lock contention error.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnavailable reports whether err means the store could not be used.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
