package module

import (
	"errors"
	"fmt"
)

// Code identifies a lifecycle error category.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeMissingEntryPoint Code = "MISSING_ENTRY_POINT"
	CodeModuleLoadFailure Code = "MODULE_LOAD_FAILURE"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidManifest   Code = "INVALID_MANIFEST"
)

var (
	// ErrNotFound means no module is tracked under the ID.
	ErrNotFound = errors.New("module not found")
	// ErrMissingEntryPoint means the manifest names no entry point, or one
	// the catalog does not know.
	ErrMissingEntryPoint = errors.New("module has no entry point")
	// ErrModuleLoadFailure means setup failed or panicked.
	ErrModuleLoadFailure = errors.New("module load failed")
	// ErrInvalidTransition means the operation is not allowed from the
	// module's current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrInvalidManifest means the manifest could not be compiled.
	ErrInvalidManifest = errors.New("invalid module manifest")
)

var sentinels = map[Code]error{
	CodeNotFound:          ErrNotFound,
	CodeMissingEntryPoint: ErrMissingEntryPoint,
	CodeModuleLoadFailure: ErrModuleLoadFailure,
	CodeInvalidTransition: ErrInvalidTransition,
	CodeInvalidManifest:   ErrInvalidManifest,
}

// Error is a lifecycle failure for one module.
type Error struct {
	Code     Code
	Op       string
	ModuleID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Code].Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("module %s: %s: %s: %v", e.ModuleID, e.Op, msg, e.Err)
	}
	return fmt.Sprintf("module %s: %s: %s", e.ModuleID, e.Op, msg)
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

func newError(code Code, op, id, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, ModuleID: id, Message: fmt.Sprintf(format, args...)}
}

// RootCause returns the innermost error in err's chain.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// ErrorDetail is the structured form of a lifecycle error for the admin
// surface.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// Detail converts err. Errors carrying no code report MODULE_LOAD_FAILURE.
func Detail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	d := &ErrorDetail{Code: string(CodeModuleLoadFailure), Message: err.Error()}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		d.Code = coded.ErrorCode()
	}
	if root := RootCause(err); root != nil && root != err {
		d.Cause = root.Error()
	}
	return d
}
