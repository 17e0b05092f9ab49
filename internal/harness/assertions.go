package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	// Keys is the full trace, included in the message for trace assertions.
	Keys []string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Keys) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, k := range e.Keys {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, k)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	keys := r.Keys()
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(keys, a)
		case AssertTraceOrder:
			err = assertTraceOrder(keys, a)
		case AssertTraceCount:
			err = assertTraceCount(keys, a)
		case AssertFinalState:
			err = assertFinalState(r, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertTraceContains(keys []string, a Assertion) error {
	if slices.Contains(keys, a.Event) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: a.Event,
		Actual:   "not found in trace",
		Keys:     keys,
	}
}

// assertTraceOrder checks the events appear in order. Other events may sit
// between them; each expected event must come after the previous match.
func assertTraceOrder(keys []string, a Assertion) error {
	pos := 0
	for i, want := range a.Events {
		idx := slices.Index(keys[pos:], want)
		if idx < 0 {
			actual := fmt.Sprintf("%q not found", want)
			if i > 0 {
				actual = fmt.Sprintf("%q not found after %q", want, a.Events[i-1])
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %q", a.Events),
				Actual:   actual,
				Keys:     keys,
			}
		}
		pos += idx + 1
	}
	return nil
}

func assertTraceCount(keys []string, a Assertion) error {
	n := 0
	for _, k := range keys {
		if k == a.Event {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d occurrences of %q", a.Count, a.Event),
		Actual:   fmt.Sprintf("%d occurrences", n),
		Keys:     keys,
	}
}

func assertFinalState(r *Result, a Assertion) error {
	snap, ok := r.Modules[a.Module]
	state := StateAbsent
	if ok {
		state = string(snap.State)
	}
	if state != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("module %s %s", a.Module, a.State),
			Actual:   state,
		}
	}
	if a.Handlers != nil && !slices.Equal(snap.Handlers, a.Handlers) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("module %s handlers %q", a.Module, a.Handlers),
			Actual:   fmt.Sprintf("%q", snap.Handlers),
		}
	}
	return nil
}
