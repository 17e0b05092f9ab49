package module

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a manifest must be quiet before it is synced.
const DefaultDebounce = 250 * time.Millisecond

// ErrWatcherFailed means the filesystem watcher could not be created.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher keeps a Manager in sync with manifest edits under its root.
// Every directory under the root is watched; a manifest that changes is
// passed to Manager.SyncPath once writes to it settle.
type Watcher struct {
	mgr      *Manager
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSync
	stop    chan struct{}
	// wg covers the event loop and every scheduled sync until it either
	// finishes or is cancelled.
	wg sync.WaitGroup
}

type pendingSync struct {
	timer *time.Timer
}

// NewWatcher creates a watcher for mgr. A debounce of zero uses
// DefaultDebounce.
func NewWatcher(mgr *Manager, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		mgr:      mgr,
		watcher:  fw,
		debounce: debounce,
		pending:  make(map[string]*pendingSync),
		stop:     make(chan struct{}),
	}, nil
}

// Start adds watches for the root tree and processes events in the
// background until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.mgr.Root()); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher, cancels syncs that have not started and waits
// for those already running.
func (w *Watcher) Stop() {
	w.mu.Lock()
	select {
	case <-w.stop:
		w.mu.Unlock()
		return
	default:
		close(w.stop)
	}
	for path, p := range w.pending {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.mgr.logger.Warn(ctx, "module watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.mgr.logger.Warn(ctx, "watching new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			w.syncTree(ev.Name)
			return
		}
	}
	if filepath.Ext(ev.Name) != ManifestExt {
		return
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	w.schedule(ev.Name)
}

// syncTree schedules every manifest already present in a directory that
// appeared after its parent was watched.
func (w *Watcher) syncTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && filepath.Ext(path) == ManifestExt {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stop:
		return
	default:
	}

	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.debounce)
		return
	}

	p := &pendingSync{}
	w.pending[path] = p
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.debounce, func() { w.sync(p, path) })
}

func (w *Watcher) sync(p *pendingSync, path string) {
	defer w.wg.Done()

	w.mu.Lock()
	if w.pending[path] == p {
		delete(w.pending, path)
	}
	stopped := false
	select {
	case <-w.stop:
		stopped = true
	default:
	}
	w.mu.Unlock()
	if stopped {
		return
	}

	ctx := context.Background()
	if err := w.mgr.SyncPath(ctx, path); err != nil {
		w.mgr.logger.Warn(ctx, "module sync failed", zap.String("path", path), zap.Error(err))
	}
}
