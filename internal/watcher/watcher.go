// Package watcher delivers file changes under a source tree to a single
// handler, one event at a time.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

type Op int

const (
	Add Op = iota + 1
	Change
	Remove
)

func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Change:
		return "change"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

type Event struct {
	Path string
	Op   Op
}

type State int32

const (
	Idle State = iota
	Watching
	Reloading
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Reloading:
		return "reloading"
	default:
		return "idle"
	}
}

// Handler runs one reload cycle. Calls never overlap.
type Handler func(ctx context.Context, ev Event)

var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrStopped        = errors.New("watcher stopped")
)

type Watcher struct {
	root   string
	ignore map[string]bool
	log    *slog.Logger

	state atomic.Int32

	mu      sync.Mutex
	started bool
	stopped bool
	fw      *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// New watches root recursively, skipping directories named in ignore.
func New(root string, ignore []string, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	m := make(map[string]bool, len(ignore))
	for _, n := range ignore {
		m[n] = true
	}
	return &Watcher{root: root, ignore: m, log: log, done: make(chan struct{})}
}

func (w *Watcher) State() State { return State(w.state.Load()) }

// Done is closed after the dispatch loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Start registers the watch and begins dispatching. Files that already
// exist produce no events. A watcher runs at most once: Start after Stop
// returns ErrStopped.
func (w *Watcher) Start(ctx context.Context, onChange Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.stopped:
		return ErrStopped
	case w.started:
		return ErrAlreadyStarted
	}
	w.started = true
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw
	if err := w.addTree(w.root); err != nil {
		_ = fw.Close()
		w.fw = nil
		return err
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.state.Store(int32(Watching))
	go w.loop(ctx, fw, onChange)
	return nil
}

// Stop releases the watch. It is safe to call more than once and from any
// goroutine, including the handler itself.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	if w.fw != nil {
		// the loop closes done once it sees the closed channels
		_ = w.fw.Close()
		return
	}
	close(w.done)
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, onChange Handler) {
	defer func() {
		w.state.Store(int32(Idle))
		close(w.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watch error", "error", err)
		case fe, ok := <-fw.Events:
			if !ok {
				return
			}
			ev, ok := w.translate(fe)
			if !ok {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.state.Store(int32(Reloading))
			onChange(ctx, ev)
			w.state.Store(int32(Watching))
		}
	}
}

func (w *Watcher) translate(fe fsnotify.Event) (Event, bool) {
	if w.ignored(fe.Name) {
		return Event{}, false
	}
	switch {
	case fe.Has(fsnotify.Create):
		if st, err := os.Stat(fe.Name); err == nil && st.IsDir() {
			if err := w.addTree(fe.Name); err != nil {
				w.log.Warn("watch new directory", "path", fe.Name, "error", err)
			}
		}
		return Event{Path: fe.Name, Op: Add}, true
	case fe.Has(fsnotify.Write):
		return Event{Path: fe.Name, Op: Change}, true
	case fe.Has(fsnotify.Remove), fe.Has(fsnotify.Rename):
		return Event{Path: fe.Name, Op: Remove}, true
	default:
		// chmod only
		return Event{}, false
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignore[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.ignore[d.Name()] {
			return filepath.SkipDir
		}
		return w.fw.Add(p)
	})
}
