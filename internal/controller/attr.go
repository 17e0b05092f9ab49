package controller

import (
	"reflect"

	"github.com/roach88/cogd/internal/ir"
)

// SafeGetAttr returns rec's value for attr, or def when rec is nil, the
// attribute is absent, or its value is the IRNull marker. It never fails.
func SafeGetAttr(rec Record, attr string, def ir.IRValue) ir.IRValue {
	if isNilRecord(rec) {
		return def
	}
	v, ok := rec.Fields().Get(attr)
	if !ok || ir.IsNull(v) {
		return def
	}
	return v
}

// AttrString is SafeGetAttr for string attributes.
func AttrString(rec Record, attr, def string) string {
	if s, ok := SafeGetAttr(rec, attr, nil).(ir.IRString); ok {
		return string(s)
	}
	return def
}

// AttrInt is SafeGetAttr for integer attributes.
func AttrInt(rec Record, attr string, def int64) int64 {
	if n, ok := SafeGetAttr(rec, attr, nil).(ir.IRInt); ok {
		return int64(n)
	}
	return def
}

func isNilRecord(rec Record) bool {
	if rec == nil {
		return true
	}
	v := reflect.ValueOf(rec)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
