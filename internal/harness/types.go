package harness

import (
	"fmt"

	"github.com/roach88/cogd/internal/module"
)

// Trace event types.
const (
	EventStep       = "step"
	EventTransition = "transition"
	EventReply      = "reply"
)

// TraceEvent is one entry in a scenario trace: a step the harness ran, a
// lifecycle transition the manager reported, or a message a handler sent.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Step fields.
	Op    string `json:"op,omitempty"`
	Path  string `json:"path,omitempty"`
	OK    bool   `json:"ok,omitempty"`
	Code  string `json:"code,omitempty"`
	State string `json:"state,omitempty"`

	// Module is set on steps that target a module and on transitions.
	Module string `json:"module,omitempty"`
	// Event is the event name an event step delivered.
	Event string `json:"event,omitempty"`

	// Transition fields.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Reply fields.
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Key is the string assertions match against:
//
//	step:       "load ping", "load_all", "write ping.cue", "event ping"
//	transition: "ping: unloaded -> loading"
//	reply:      "reply c1: pong"
func (e TraceEvent) Key() string {
	switch e.Type {
	case EventTransition:
		return fmt.Sprintf("%s: %s -> %s", e.Module, e.From, e.To)
	case EventReply:
		return fmt.Sprintf("reply %s: %s", e.Channel, e.Text)
	}
	target := e.Module
	if target == "" {
		target = e.Path
	}
	if target == "" {
		target = e.Event
	}
	if target == "" {
		return e.Op
	}
	return e.Op + " " + target
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Modules holds the final snapshot of every tracked module by ID.
	Modules map[string]module.Snapshot `json:"modules,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Modules: make(map[string]module.Snapshot),
	}
}

// AddError records a failed expectation and marks the result failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Keys returns the trace keys in order.
func (r *Result) Keys() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Key()
	}
	return out
}
