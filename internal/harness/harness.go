package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/model"
	"github.com/roach88/cogd/internal/module"
	"github.com/roach88/cogd/internal/store"
	"github.com/roach88/cogd/internal/testutil"
)

const (
	defaultReplyTimeout = 5 * time.Second
	defaultChannel      = "harness"
)

// Options configures a run.
type Options struct {
	// Catalog supplies the entry points manifests may name. Required.
	Catalog *module.Catalog
	Logger  *logging.Logger
	// ReplyTimeout bounds the wait for handler replies in event steps.
	ReplyTimeout time.Duration
}

// Harness drives one scenario. Each run gets its own module root, database,
// dispatcher and manager.
type Harness struct {
	root         string
	dispatcher   *dispatch.Dispatcher
	outbound     *dispatch.RecordingOutbound
	manager      *module.Manager
	logger       *logging.Logger
	replyTimeout time.Duration

	mu        sync.Mutex
	result    *Result
	recording bool
}

// Run executes the scenario and returns its result. The returned error is
// for problems running the scenario at all (temp dirs, database, manifest
// writes); failed expectations and assertions land in Result.Errors.
func Run(ctx context.Context, s *Scenario, opts Options) (*Result, error) {
	if opts.Catalog == nil {
		return nil, errors.New("harness needs a catalog")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}

	dir, err := os.MkdirTemp("", "cogd-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)
	root, err := filepath.Abs(filepath.Join(dir, "modules"))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create module root: %w", err)
	}
	for p, src := range s.Manifests {
		if err := writeManifest(root, p, src); err != nil {
			return nil, err
		}
	}

	fsys, migrations := model.Migrations()
	client, err := store.Open(ctx, filepath.Join(dir, "cogd.db"), store.Options{
		Migrations:     fsys,
		MigrationsRoot: migrations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	registry := controller.NewRegistry(client, opts.Logger)
	defer registry.Close()

	ids := testutil.NewSequentialIDs(s.Name)
	h := &Harness{
		root:         root,
		outbound:     dispatch.NewRecordingOutbound(),
		dispatcher:   dispatch.New(dispatch.WithLogger(opts.Logger), dispatch.WithIDFunc(ids.Next)),
		logger:       opts.Logger.Named("harness").With(zap.String("scenario", s.Name)),
		replyTimeout: opts.ReplyTimeout,
		result:       NewResult(),
		recording:    true,
	}
	h.manager, err = module.NewManager(module.Options{
		Root:     root,
		Catalog:  opts.Catalog,
		Router:   h.dispatcher,
		Registry: registry,
		Outbound: h.outbound,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	h.manager.OnTransition(h.onTransition)

	runDone := make(chan error, 1)
	go func() { runDone <- h.dispatcher.Run(context.WithoutCancel(ctx)) }()
	defer h.shutdown(ctx, runDone)

	for i, step := range s.Steps {
		if err := h.step(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	h.mu.Lock()
	h.recording = false
	result := h.result
	h.mu.Unlock()

	for _, snap := range h.manager.Records() {
		result.Modules[snap.ID] = snap
	}
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError("%s", msg)
	}
	h.logger.Debug(ctx, "scenario finished", zap.Bool("pass", result.Pass), zap.Int("trace", len(result.Trace)))
	return result, nil
}

func (h *Harness) shutdown(ctx context.Context, runDone <-chan error) {
	ctx = context.WithoutCancel(ctx)
	if err := h.manager.UnloadAll(ctx); err != nil {
		h.logger.Warn(ctx, "unload after scenario failed", zap.Error(err))
	}
	h.dispatcher.Stop()
	<-runDone
	h.dispatcher.Wait()
}

func (h *Harness) onTransition(t module.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.recording {
		return
	}
	h.result.add(TraceEvent{
		Type:   EventTransition,
		Module: t.ModuleID,
		From:   string(t.From),
		To:     string(t.To),
	})
}

func (h *Harness) record(ev TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(ev)
}

// step runs one step, records it and checks its expectation. Only failures
// to touch the filesystem are returned.
func (h *Harness) step(ctx context.Context, i int, s Step) error {
	ev := TraceEvent{Type: EventStep, Op: s.Op, Module: s.Module}

	var (
		err     error
		replies []dispatch.Message
	)
	switch s.Op {
	case OpLoadAll:
		err = h.manager.LoadAll(ctx).Err()
	case OpLoad:
		err = h.manager.Load(ctx, s.Module)
	case OpUnload:
		err = h.manager.Unload(ctx, s.Module)
	case OpReload:
		err = h.manager.Reload(ctx, s.Module)
	case OpForget:
		err = h.manager.Forget(ctx, s.Module)
	case OpWrite:
		ev.Path = s.Path
		if err := writeManifest(h.root, s.Path, s.Content); err != nil {
			return err
		}
	case OpRemove:
		ev.Path = s.Path
		if err := os.Remove(h.abs(s.Path)); err != nil {
			return fmt.Errorf("failed to remove manifest: %w", err)
		}
	case OpSync:
		ev.Path = s.Path
		if id, idErr := module.ModuleID(h.root, h.abs(s.Path)); idErr == nil {
			ev.Module = id
		}
		err = h.manager.SyncPath(ctx, h.abs(s.Path))
	case OpEvent:
		ev.Event = s.Event
		replies, err = h.deliver(ctx, s)
	}

	ev.OK = err == nil
	var me *module.Error
	if errors.As(err, &me) {
		ev.Code = string(me.Code)
	}
	if ev.Module != "" {
		ev.State = StateAbsent
		if snap, ok := h.manager.Get(ev.Module); ok {
			ev.State = string(snap.State)
		}
	}

	h.record(ev)
	for _, msg := range replies {
		h.record(TraceEvent{Type: EventReply, Channel: msg.ChannelID, Text: msg.Text})
	}
	h.logger.Debug(ctx, "scenario step",
		zap.Int("step", i), zap.String("key", ev.Key()), zap.Bool("ok", ev.OK), zap.Error(err))

	if s.Op == OpEvent && err != nil {
		h.mu.Lock()
		h.result.AddError("steps[%d] %s: %v", i, ev.Key(), err)
		h.mu.Unlock()
	}
	if s.Expect != nil {
		h.check(i, ev, s.Expect, replies, err)
	}
	return nil
}

func (h *Harness) check(i int, ev TraceEvent, e *Expect, replies []dispatch.Message, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	label := fmt.Sprintf("steps[%d] %s", i, ev.Key())

	if e.OK != nil && *e.OK != ev.OK {
		h.result.AddError("%s: ok = %t, want %t (error: %v)", label, ev.OK, *e.OK, err)
	}
	if e.Code != "" && e.Code != ev.Code {
		h.result.AddError("%s: code = %q, want %q", label, ev.Code, e.Code)
	}
	if e.State != "" && e.State != ev.State {
		h.result.AddError("%s: state = %q, want %q", label, ev.State, e.State)
	}

	texts := make([]string, len(replies))
	for j, m := range replies {
		texts[j] = m.Text
	}
	if e.Reply != "" && !slices.Contains(texts, e.Reply) {
		h.result.AddError("%s: no reply %q, got %q", label, e.Reply, texts)
	}
	if e.NoReply && len(texts) > 0 {
		h.result.AddError("%s: expected no reply, got %q", label, texts)
	}
}

// deliver sends the step's event and waits for one reply per registered
// handler. Replies are sorted so concurrent handlers trace deterministically.
func (h *Harness) deliver(ctx context.Context, s Step) ([]dispatch.Message, error) {
	channel := s.Channel
	if channel == "" {
		channel = defaultChannel
	}
	want := h.dispatcher.Handlers(s.Event)
	before := len(h.outbound.Messages())

	ok := h.dispatcher.Deliver(dispatch.Event{
		Name:      s.Event,
		GuildID:   s.Guild,
		ChannelID: channel,
		AuthorID:  s.Author,
		Args:      s.Args,
	})
	if !ok {
		return nil, errors.New("dispatcher refused the event")
	}
	if want == 0 {
		return nil, nil
	}

	deadline := time.NewTimer(h.replyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		if msgs := h.outbound.Messages(); len(msgs) >= before+want {
			got := msgs[before : before+want]
			sort.SliceStable(got, func(a, b int) bool {
				if got[a].ChannelID != got[b].ChannelID {
					return got[a].ChannelID < got[b].ChannelID
				}
				return got[a].Text < got[b].Text
			})
			return got, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			n := len(h.outbound.Messages()) - before
			return nil, fmt.Errorf("got %d of %d replies to %s within %s", n, want, s.Event, h.replyTimeout)
		case <-tick.C:
		}
	}
}

func (h *Harness) abs(rel string) string {
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

func writeManifest(root, rel, src string) error {
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest dir: %w", err)
	}
	if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
