package model

import (
	"fmt"

	"github.com/roach88/cogd/internal/ir"
)

func intColumn(row ir.IRObject, col string) (int64, error) {
	v, ok := row.Get(col)
	if !ok {
		return 0, fmt.Errorf("column %q missing", col)
	}
	n, ok := v.(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("column %q: want int, got %T", col, v)
	}
	return int64(n), nil
}

func stringColumn(row ir.IRObject, col string) (string, error) {
	v, ok := row.Get(col)
	if !ok {
		return "", fmt.Errorf("column %q missing", col)
	}
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("column %q: want string, got %T", col, v)
	}
	return string(s), nil
}

// nullableString reads a TEXT column that may be NULL. NULL reads as "".
func nullableString(row ir.IRObject, col string) (string, error) {
	v, ok := row.Get(col)
	if !ok || ir.IsNull(v) {
		return "", nil
	}
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("column %q: want string, got %T", col, v)
	}
	return string(s), nil
}

// orNull maps "" to the null marker.
func orNull(s string) ir.IRValue {
	if s == "" {
		return ir.IRNull{}
	}
	return ir.IRString(s)
}

// keyOrNull maps an unassigned generated key to the null marker.
func keyOrNull(id int64) ir.IRValue {
	if id == 0 {
		return ir.IRNull{}
	}
	return ir.IRInt(id)
}
