// Package cache answers repeated file reads for coding agents. The first read
// of a path by a session returns the whole file; an unchanged re-read returns
// a one-line confirmation; a changed re-read returns a unified diff against
// the version that session last saw.
package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glommer/cachebro/internal/diff"
	"github.com/glommer/cachebro/internal/engine"
	"github.com/glommer/cachebro/internal/store"
)

// FileReader fetches the current bytes of a file.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

type osReader struct{}

func (osReader) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// Options configures a Cache.
type Options struct {
	// SessionID scopes "last seen" state. A random UUID is used when empty.
	SessionID string
	// DiffContext is the number of context lines per hunk (0 = default).
	DiffContext int
	// FS reads files. Defaults to the local filesystem.
	FS FileReader
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Cache is the read orchestrator for one session. Sessions created with
// WithSession share the database, the init gate and the per-key locks.
type Cache struct {
	s         *shared
	sessionID string
}

type shared struct {
	dbPath   string
	fs       FileReader
	diffOpts diff.Options
	now      func() time.Time
	locks    keyLocks

	// mu is held shared for the whole of every operation and exclusively
	// while opening or closing, so Close waits for in-flight calls.
	mu     sync.RWMutex
	db     *store.DB
	ownsDB bool
	ready  bool
	closed bool
}

// New returns a cache backed by the database at dbPath. Nothing is opened
// until Init or the first operation.
func New(dbPath string, opts Options) *Cache {
	return &Cache{s: newShared(dbPath, opts), sessionID: sessionOrNew(opts.SessionID)}
}

// NewWithDB returns a cache over an already open database. Close does not
// close db.
func NewWithDB(db *store.DB, opts Options) *Cache {
	s := newShared("", opts)
	s.db = db
	s.ready = true
	return &Cache{s: s, sessionID: sessionOrNew(opts.SessionID)}
}

func newShared(dbPath string, opts Options) *shared {
	s := &shared{
		dbPath:   dbPath,
		fs:       opts.FS,
		diffOpts: diff.Options{Context: opts.DiffContext},
		now:      opts.Now,
		ownsDB:   true,
	}
	if s.fs == nil {
		s.fs = osReader{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func sessionOrNew(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// WithSession returns a cache for another session over the same store.
func (c *Cache) WithSession(sessionID string) *Cache {
	return &Cache{s: c.s, sessionID: sessionOrNew(sessionID)}
}

// SessionID returns the session this cache reads on behalf of.
func (c *Cache) SessionID() string {
	return c.sessionID
}

// Init opens the database and creates the schema. It is idempotent, and
// every other operation runs it implicitly. A failed Init is retried by the
// next call; a successful one is never repeated.
func (c *Cache) Init(ctx context.Context) error {
	_, release, err := c.s.acquire(ctx)
	if err != nil {
		return err
	}
	release()
	return nil
}

// acquire passes the init gate and returns the database with mu held
// shared. The caller must call release when the operation is done.
func (s *shared) acquire(ctx context.Context) (*store.DB, func(), error) {
	for {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return nil, nil, ErrClosed
		}
		if s.ready {
			return s.db, s.mu.RUnlock, nil
		}
		s.mu.RUnlock()

		if err := s.open(ctx); err != nil {
			return nil, nil, err
		}
	}
}

func (s *shared) open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.ready {
		return nil
	}

	db, err := store.Open(ctx, s.dbPath)
	if err != nil {
		return storageError("init", s.dbPath, err)
	}
	s.db = db
	s.ready = true
	return nil
}

// Close releases the database if this cache opened it. It waits for calls
// already in progress. Safe to call more than once, and on a cache that was
// never initialized. Closing one session closes all sessions made with
// WithSession.
func (c *Cache) Close() error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadFile reads path on behalf of the session.
func (c *Cache) ReadFile(ctx context.Context, path string) (*ReadResult, error) {
	return c.read(ctx, readRequest{path: path})
}

// ReadFileRange reads lines [offset, offset+limit) of path. offset is 1-based;
// limit < 1 reads to the end. The whole file is still versioned and tracked.
func (c *Cache) ReadFileRange(ctx context.Context, path string, offset, limit int) (*ReadResult, error) {
	return c.read(ctx, readRequest{path: path, offset: offset, limit: limit, ranged: true})
}

// ReadFileFull always returns the full content and moves the session's
// pointer to it. No savings are recorded.
func (c *Cache) ReadFileFull(ctx context.Context, path string) (*ReadResult, error) {
	return c.read(ctx, readRequest{path: path, force: true})
}

// ReadFiles reads each path independently. Failures are reported per entry.
func (c *Cache) ReadFiles(ctx context.Context, paths []string) []BatchResult {
	results := make([]BatchResult, 0, len(paths))
	for _, p := range paths {
		res, err := c.ReadFile(ctx, p)
		results = append(results, BatchResult{Path: p, Result: res, Err: err})
	}
	return results
}

type readRequest struct {
	path   string
	offset int
	limit  int
	ranged bool
	force  bool
}

// readState carries one read through the decision in decide.
type readState struct {
	path    string
	label   string
	content string
	hash    string
	lines   int
	win     *window
	force   bool
}

func (c *Cache) read(ctx context.Context, req readRequest) (*ReadResult, error) {
	db, release, err := c.s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	abs, err := filepath.Abs(req.path)
	if err != nil {
		return nil, classifyReadError(req.path, err)
	}

	data, err := c.s.fs.ReadFile(abs)
	if err != nil {
		return nil, classifyReadError(abs, err)
	}

	content := string(data)
	st := readState{
		path:    abs,
		label:   diffLabel(req.path),
		content: content,
		hash:    HashContent(content),
		lines:   diff.CountLines(content),
		force:   req.force,
	}
	if req.ranged {
		st.win = newWindow(diff.SplitLines(content), req.offset, req.limit)
	}

	unlock := c.s.locks.lock(c.sessionID, abs)
	defer unlock()

	var res *ReadResult
	err = db.WithTx(ctx, func(q *store.Queries) error {
		r, err := c.decide(ctx, q, st)
		res = r
		return err
	})
	if err != nil {
		return nil, storageError("read", abs, err)
	}
	return res, nil
}

// decide runs the lookup and writes for one read. It is called inside a
// transaction while holding the (session, path) lock.
//
// The session pointer only moves when the caller ends up holding the whole
// new version: full content, or a diff against a version it already holds.
// A window alone never moves it, so later reads cannot summarize or credit
// lines that were never delivered.
func (c *Cache) decide(ctx context.Context, q *store.Queries, st readState) (*ReadResult, error) {
	now := c.s.now()

	lastHash, seen, err := q.LastSeen(ctx, c.sessionID, st.path)
	if err != nil {
		return nil, err
	}

	if seen && !st.force && lastHash == st.hash {
		return c.unchanged(ctx, q, st, now)
	}

	if err := q.PutVersion(ctx, st.path, st.hash, st.content, st.lines); err != nil {
		return nil, err
	}

	if !seen || st.force {
		return c.deliverFull(ctx, q, st, now)
	}

	old, err := q.GetVersion(ctx, st.path, lastHash)
	if errors.Is(err, store.ErrNotFound) {
		// The old version was purged underneath the pointer.
		return c.deliverFull(ctx, q, st, now)
	}
	if err != nil {
		return nil, err
	}

	d := diff.ComputeWithOptions(old, st.content, st.label, c.s.diffOpts)
	if !d.HasChanges {
		// Hashes differ but lines don't; send the file rather than guess.
		return c.deliverFull(ctx, q, st, now)
	}

	if st.win != nil && !st.win.touchedBy(d.ChangedLines) {
		// The window is current but the caller has not seen the change
		// elsewhere; the pointer stays on the old version.
		saved := engine.EstimateTokens(st.win.text)
		if err := q.AddTokensSaved(ctx, c.sessionID, saved); err != nil {
			return nil, err
		}
		return &ReadResult{
			Path:         st.path,
			Cached:       true,
			Content:      changedElsewhereSummary(st.win, d.LinesChanged, saved),
			LinesChanged: d.LinesChanged,
			TotalLines:   st.lines,
			Hash:         st.hash,
			TokensSaved:  saved,
		}, nil
	}

	if err := q.RecordSeen(ctx, c.sessionID, st.path, st.hash, now); err != nil {
		return nil, err
	}
	full := st.content
	if st.win != nil {
		full = st.win.text
	}
	saved := engine.TokensSaved(full, d.Text)
	if err := q.AddTokensSaved(ctx, c.sessionID, saved); err != nil {
		return nil, err
	}
	return &ReadResult{
		Path:         st.path,
		Cached:       true,
		Content:      d.Text,
		Diff:         d.Text,
		LinesChanged: d.LinesChanged,
		TotalLines:   st.lines,
		Hash:         st.hash,
		TokensSaved:  saved,
	}, nil
}

// deliverFull answers without savings. The whole file moves the pointer; a
// window leaves it where it was.
func (c *Cache) deliverFull(ctx context.Context, q *store.Queries, st readState, now time.Time) (*ReadResult, error) {
	if st.win == nil {
		if err := q.RecordSeen(ctx, c.sessionID, st.path, st.hash, now); err != nil {
			return nil, err
		}
	}
	return fullResult(st), nil
}

func (c *Cache) unchanged(ctx context.Context, q *store.Queries, st readState, now time.Time) (*ReadResult, error) {
	var saved int
	var summary string
	if st.win != nil {
		saved = engine.EstimateTokens(st.win.text)
		summary = unchangedWindowSummary(st.win, st.lines, saved)
	} else {
		saved = engine.EstimateTokens(st.content)
		summary = unchangedSummary(st.lines, saved)
	}

	if err := q.AddTokensSaved(ctx, c.sessionID, saved); err != nil {
		return nil, err
	}
	if err := q.RecordSeen(ctx, c.sessionID, st.path, st.hash, now); err != nil {
		return nil, err
	}

	return &ReadResult{
		Path:        st.path,
		Cached:      true,
		Content:     summary,
		TotalLines:  st.lines,
		Hash:        st.hash,
		TokensSaved: saved,
	}, nil
}

func fullResult(st readState) *ReadResult {
	content := st.content
	if st.win != nil {
		content = st.win.text
	}
	return &ReadResult{
		Path:       st.path,
		Cached:     false,
		Content:    content,
		TotalLines: st.lines,
		Hash:       st.hash,
	}
}

// diffLabel turns the caller's path into a diff header label.
func diffLabel(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
}

// OnPathChanged is the advisory hook for change notifications. Reads compare
// hashes on every call, so there is nothing to invalidate.
func (c *Cache) OnPathChanged(ctx context.Context, path string) error {
	return c.Init(ctx)
}

// OnPathDeleted forgets every version of path and every session's pointer to
// it. The next read of path is a cold start for all sessions.
func (c *Cache) OnPathDeleted(ctx context.Context, path string) error {
	db, release, err := c.s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	abs, err := filepath.Abs(path)
	if err != nil {
		return classifyReadError(path, err)
	}
	return storageError("purge", abs, db.PurgePath(ctx, abs))
}

// Stats reports savings for this cache's session.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	return c.StatsFor(ctx, c.sessionID)
}

// StatsFor reports savings for sessionID.
func (c *Cache) StatsFor(ctx context.Context, sessionID string) (Stats, error) {
	db, release, err := c.s.acquire(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer release()

	stats := Stats{SessionID: sessionID}
	err = db.WithTx(ctx, func(q *store.Queries) error {
		n, err := q.CountPaths(ctx)
		if err != nil {
			return err
		}
		totals, err := q.Stats(ctx, sessionID)
		if err != nil {
			return err
		}
		stats.FilesTracked = n
		stats.TokensSaved = totals.Global
		stats.SessionTokensSaved = totals.Session
		return nil
	})
	if err != nil {
		return Stats{}, storageError("stats", "", err)
	}
	return stats, nil
}

// PathStatus reports the retained versions of path, newest first, and which
// of them this session last received.
func (c *Cache) PathStatus(ctx context.Context, path string) (PathStatus, error) {
	db, release, err := c.s.acquire(ctx)
	if err != nil {
		return PathStatus{}, err
	}
	defer release()

	abs, err := filepath.Abs(path)
	if err != nil {
		return PathStatus{}, classifyReadError(path, err)
	}

	status := PathStatus{Path: abs, Versions: []VersionInfo{}}
	err = db.WithTx(ctx, func(q *store.Queries) error {
		versions, err := q.ListVersions(ctx, abs)
		if err != nil {
			return err
		}
		for _, v := range versions {
			status.Versions = append(status.Versions, VersionInfo{Hash: v.Hash, Lines: v.Lines, CreatedAt: v.CreatedAt})
		}

		p, err := q.GetPointer(ctx, c.sessionID, abs)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		status.SeenHash = p.Hash
		status.SeenAt = &p.ReadAt
		return nil
	})
	if err != nil {
		return PathStatus{}, storageError("status", abs, err)
	}
	return status, nil
}

// Clear wipes every version, pointer and counter.
func (c *Cache) Clear(ctx context.Context) error {
	db, release, err := c.s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return storageError("clear", "", db.ResetAll(ctx))
}
