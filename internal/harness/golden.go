package harness

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cogd/internal/ir"
)

// canonical converts an event to an IR object, leaving out fields that do
// not apply to its type so golden files stay small.
func (e TraceEvent) canonical() ir.IRObject {
	obj := ir.IRObject{
		"seq":  ir.IRInt(e.Seq),
		"type": ir.IRString(e.Type),
	}
	set := func(key, val string) {
		if val != "" {
			obj[key] = ir.IRString(val)
		}
	}
	switch e.Type {
	case EventStep:
		obj["ok"] = ir.IRBool(e.OK)
		set("op", e.Op)
		set("module", e.Module)
		set("path", e.Path)
		set("event", e.Event)
		set("state", e.State)
		set("code", e.Code)
	case EventTransition:
		set("module", e.Module)
		set("from", e.From)
		set("to", e.To)
	case EventReply:
		set("channel", e.Channel)
		set("text", e.Text)
	}
	return obj
}

// MarshalTrace renders a trace as canonical JSON lines: a header naming the
// scenario, then one line per event.
func MarshalTrace(name string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	header, err := ir.MarshalCanonical(ir.IRObject{"scenario": ir.IRString(name)})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')
	for _, ev := range trace {
		line, err := ir.MarshalCanonical(ev.canonical())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs the scenario, fails the test on any expectation or
// assertion error, and compares the trace with
// testdata/golden/<scenario name>.golden.
//
// To regenerate golden files:
//
//	go test ./... -run <Test> -update
func RunWithGolden(t *testing.T, s *Scenario, opts Options) *Result {
	t.Helper()
	result, err := Run(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", s.Name, msg)
	}
	AssertGolden(t, s.Name, result)
	return result
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	data, err := MarshalTrace(name, result.Trace)
	if err != nil {
		t.Fatalf("marshal trace: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
