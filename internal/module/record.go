package module

import (
	"sync"
	"time"

	"github.com/roach88/cogd/internal/compiler"
)

// historyLimit bounds the transitions kept per module.
const historyLimit = 32

// Transition is one recorded state change.
type Transition struct {
	ModuleID string    `json:"module_id"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// Record tracks one discovered module.
type Record struct {
	// op serializes lifecycle operations on this module.
	op sync.Mutex

	id   string
	path string
	// seq is the record's position in the latest discovery pass. Guarded
	// by the manager's mutex.
	seq uint64

	mu       sync.RWMutex
	state    State
	lastErr  error
	manifest *compiler.Manifest
	handlers []string
	loads    int
	failures int
	history  []Transition
	loadedAt time.Time

	// manifestErr is set when the manifest could not be used; loading
	// fails with it until the manifest is re-read.
	manifestErr error

	instance Module
	host     *host
}

func newRecord(id, path string) *Record {
	return &Record{id: id, path: path, state: StateUnloaded}
}

// ID returns the module ID.
func (r *Record) ID() string { return r.id }

// Path returns the manifest path.
func (r *Record) Path() string { return r.path }

// State returns the current state.
func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error recorded by the last failure, if any.
func (r *Record) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Manifest returns the compiled manifest, or nil if it failed to compile.
func (r *Record) Manifest() *compiler.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifest
}

func (r *Record) manifestError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifestErr
}

// setManifest replaces the manifest after a re-read.
func (r *Record) setManifest(m *compiler.Manifest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest = m
	r.manifestErr = err
}

// setState moves the record to next and returns the transition. Callers
// hold r.op.
func (r *Record) setState(next State, err error) Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := Transition{ModuleID: r.id, From: r.state, To: next, At: time.Now().UTC()}
	if err != nil {
		t.Error = err.Error()
	}
	r.state = next
	switch next {
	case StateFailed:
		r.lastErr = err
		r.failures++
	case StateLoaded:
		r.lastErr = nil
		r.loads++
		r.loadedAt = t.At
	case StateUnloaded:
		r.loadedAt = time.Time{}
	}
	r.history = append(r.history, t)
	if len(r.history) > historyLimit {
		r.history = r.history[len(r.history)-historyLimit:]
	}
	return t
}

// Snapshot is a point-in-time copy of a Record for reporting.
type Snapshot struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	State       State        `json:"state"`
	Entry       string       `json:"entry,omitempty"`
	Description string       `json:"description,omitempty"`
	Enabled     bool         `json:"enabled"`
	Hash        string       `json:"hash,omitempty"`
	Handlers    []string     `json:"handlers"`
	Loads       int          `json:"loads"`
	Failures    int          `json:"failures"`
	LoadedAt    *time.Time   `json:"loaded_at,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
	History     []Transition `json:"history,omitempty"`
}

// Snapshot copies the record.
func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		ID:       r.id,
		Path:     r.path,
		State:    r.state,
		Handlers: append([]string{}, r.handlers...),
		Loads:    r.loads,
		Failures: r.failures,
		Error:    Detail(r.lastErr),
		History:  append([]Transition(nil), r.history...),
	}
	if m := r.manifest; m != nil {
		s.Entry = m.Entry
		s.Description = m.Description
		s.Enabled = m.Enabled
		s.Hash = m.Hash
	}
	if !r.loadedAt.IsZero() {
		at := r.loadedAt
		s.LoadedAt = &at
	}
	return s
}
