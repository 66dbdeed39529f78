// Package watcher reports file changes under a set of roots. Events are
// hints: consumers must not rely on them for correctness.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultDebounce is how long a path must stay quiet before its event fires.
const DefaultDebounce = 300 * time.Millisecond

const defaultBuffer = 256

// EventKind says what happened to a path.
type EventKind int

const (
	Changed EventKind = iota
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one coalesced notification for an absolute path.
type Event struct {
	Path string
	Kind EventKind
}

// Options configures a Watcher.
type Options struct {
	Debounce       time.Duration
	IgnorePatterns []string
	// Buffer is the capacity of the Events channel.
	Buffer int
}

type pending struct {
	kind EventKind
	last time.Time
}

// Watcher turns fsnotify activity into debounced, per-path events.
type Watcher struct {
	roots    []string
	watcher  *fsnotify.Watcher
	ignore   *gitignore.GitIgnore
	debounce time.Duration
	events   chan Event

	mu      sync.Mutex
	pending map[string]pending
	dropped int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a watcher for roots. Call Start to begin delivering events.
func New(roots []string, opts Options) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, errors.New("watcher needs at least one root")
	}

	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", r, err)
		}
		abs = append(abs, a)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		roots:    abs,
		watcher:  fw,
		ignore:   newIgnoreMatcher(abs, opts.IgnorePatterns),
		debounce: opts.Debounce,
		events:   make(chan Event, opts.Buffer),
		pending:  make(map[string]pending),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Events is closed after Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds every non-ignored directory under the roots and begins
// processing.
func (w *Watcher) Start() error {
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop ends processing and closes Events. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.events)
	})
	return err
}

// Dropped reports how many events were discarded because the consumer lagged.
func (w *Watcher) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("⚠️  Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// ignored reports whether path matches an ignore pattern relative to the
// root containing it, or is a hidden file or directory.
func (w *Watcher) ignored(path string) bool {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if w.ignore.MatchesPath(filepath.ToSlash(rel)) {
			return true
		}
		for dir := rel; dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
			if base := filepath.Base(dir); len(base) > 1 && base[0] == '.' {
				return true
			}
		}
		return false
	}
	return false
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				log.Printf("⚠️  Failed to watch new directory %s: %v", ev.Name, err)
			}
			return
		}
	}

	var kind EventKind
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		kind = Deleted
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		kind = Changed
	default:
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = pending{kind: kind, last: time.Now()}
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

// flush emits every path that has been quiet for the debounce window.
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var ready []Event
	for path, p := range w.pending {
		if now.Sub(p.last) < w.debounce {
			continue
		}
		ready = append(ready, Event{Path: path, Kind: p.kind})
		delete(w.pending, path)
	}
	w.mu.Unlock()

	for _, ev := range ready {
		select {
		case w.events <- ev:
		default:
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
			log.Printf("⚠️  Dropped %s event for %s: consumer is behind", ev.Kind, ev.Path)
		}
	}
}
