package harness

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a real module manager: manifests to
// start from, steps to perform and assertions on the resulting trace and
// final module states.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Manifests are written under a fresh module root before the first
	// step. Keys are slash-separated paths relative to the root.
	Manifests map[string]string `yaml:"manifests"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpLoadAll = "load_all"
	OpLoad    = "load"
	OpUnload  = "unload"
	OpReload  = "reload"
	OpForget  = "forget"
	// OpWrite replaces a manifest on disk without telling the manager.
	OpWrite = "write"
	// OpRemove deletes a manifest on disk without telling the manager.
	OpRemove = "remove"
	// OpSync hands a path to the manager the way the file watcher does.
	OpSync = "sync"
	// OpEvent delivers an event and waits for every handler's reply.
	OpEvent = "event"
)

// Step is one action in a scenario.
type Step struct {
	Op string `yaml:"op"`

	// Module is the target of load, unload, reload and forget.
	Module string `yaml:"module,omitempty"`

	// Path and Content are used by write, remove and sync.
	Path    string `yaml:"path,omitempty"`
	Content string `yaml:"content,omitempty"`

	// Event fields.
	Event   string   `yaml:"event,omitempty"`
	Guild   int64    `yaml:"guild,omitempty"`
	Channel string   `yaml:"channel,omitempty"`
	Author  string   `yaml:"author,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a single step. Unset fields are not
// checked.
type Expect struct {
	// OK is whether the operation returned no error.
	OK *bool `yaml:"ok,omitempty"`
	// Code is the lifecycle error code, e.g. INVALID_TRANSITION.
	Code string `yaml:"code,omitempty"`
	// State is the module's state after the step; "absent" when it is no
	// longer tracked.
	State string `yaml:"state,omitempty"`
	// Reply must equal one of the replies an event step received.
	Reply string `yaml:"reply,omitempty"`
	// NoReply means the event reached no handler.
	NoReply bool `yaml:"no_reply,omitempty"`
}

// Assertion checks the whole run.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count or
	// final_state.
	Type string `yaml:"type"`

	// Event is a trace key (see TraceEvent.Key) for trace_contains and
	// trace_count.
	Event string `yaml:"event,omitempty"`
	// Count is the exact number of occurrences for trace_count.
	Count int `yaml:"count,omitempty"`
	// Events are trace keys that must appear in this order, not
	// necessarily adjacent, for trace_order.
	Events []string `yaml:"events,omitempty"`

	// Module, State and Handlers are used by final_state. State "absent"
	// means the module is not tracked. Handlers, when set, must equal the
	// module's registered event names.
	Module   string   `yaml:"module,omitempty"`
	State    string   `yaml:"state,omitempty"`
	Handlers []string `yaml:"handlers,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// StateAbsent stands for "not tracked" in expectations.
const StateAbsent = "absent"

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so a misspelt key fails loudly.
func LoadScenario(file string) (*Scenario, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario for YAML already in memory.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks required fields and that every path stays inside the
// module root.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for p := range s.Manifests {
		if err := checkPath(p); err != nil {
			return fmt.Errorf("manifests: %w", err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Op {
	case OpLoadAll:
	case OpLoad, OpUnload, OpReload, OpForget:
		if s.Module == "" {
			return fmt.Errorf("module is required for %s", s.Op)
		}
	case OpWrite, OpRemove, OpSync:
		if err := checkPath(s.Path); err != nil {
			return err
		}
	case OpEvent:
		if s.Event == "" {
			return fmt.Errorf("event is required for %s", s.Op)
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	if e := s.Expect; e != nil && s.Op != OpEvent && (e.Reply != "" || e.NoReply) {
		return fmt.Errorf("reply expectations only apply to %s steps", OpEvent)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("event is required for %s", a.Type)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("event is required for %s", a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for %s", a.Type)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("events list is required for %s", a.Type)
		}
	case AssertFinalState:
		if a.Module == "" || a.State == "" {
			return fmt.Errorf("module and state are required for %s", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func checkPath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("path is required")
	case path.IsAbs(p), strings.Contains(p, `\`):
		return fmt.Errorf("path %q must be relative and slash-separated", p)
	case path.Clean(p) != p, p == "..", strings.HasPrefix(p, "../"):
		return fmt.Errorf("path %q must be clean and stay inside the module root", p)
	}
	return nil
}
