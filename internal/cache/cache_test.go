package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glommer/cachebro/internal/diff"
	"github.com/glommer/cachebro/internal/engine"
	"github.com/glommer/cachebro/internal/store"
	"github.com/glommer/cachebro/internal/watcher"
)

// memFS is an in-memory FileReader. Paths must be absolute.
type memFS struct {
	mu    sync.Mutex
	files map[string]string
	errs  map[string]error
	reads int
}

func newMemFS() *memFS {
	return &memFS{files: map[string]string{}, errs: map[string]error{}}
}

func (m *memFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err, ok := m.errs[name]; ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	content, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return []byte(content), nil
}

func (m *memFS) set(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	c := New(filepath.Join(t.TempDir(), "cache.db"), opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const (
	c1 = "alpha\nbeta\ngamma\n"
	c2 = "alpha\nbeta\ngamma\ndelta\n"
	c3 = "one\ntwo\n"
)

func TestReadScenarios(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := filepath.Join(dir, "p.txt")
	writeFile(t, p, c1)

	s1 := newTestCache(t, Options{SessionID: "s1"})
	s2 := s1.WithSession("s2")

	// 1. cold start
	res, err := s1.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 3, res.TotalLines)
	assert.Equal(t, c1, res.Content)
	assert.Equal(t, HashContent(c1), res.Hash)
	assert.Zero(t, res.TokensSaved)

	// 2. unchanged re-read
	res, err = s1.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Zero(t, res.LinesChanged)
	assert.Empty(t, res.Diff)
	saved := engine.EstimateTokens(c1)
	assert.Equal(t, saved, res.TokensSaved)
	assert.Equal(t, fmt.Sprintf("[cachebro: unchanged, 3 lines, %d tokens saved]", saved), res.Content)

	stats, err := s1.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(saved), stats.SessionTokensSaved)
	assert.Equal(t, int64(saved), stats.TokensSaved)
	assert.Equal(t, 1, stats.FilesTracked)

	// 3. modified
	writeFile(t, p, c2)
	res, err = s1.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, res.LinesChanged)
	assert.Equal(t, 4, res.TotalLines)
	want := diff.Compute(c1, c2, strings.TrimPrefix(filepath.ToSlash(p), "/"))
	assert.Equal(t, want.Text, res.Diff)
	assert.Equal(t, res.Diff, res.Content)
	assert.Contains(t, res.Diff, "+delta\n")

	// 4. another session starts cold
	res, err = s2.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, c2, res.Content)

	// 5. purge then read new content
	require.NoError(t, s1.OnPathDeleted(ctx, p))
	writeFile(t, p, c3)
	res, err = s1.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, c3, res.Content)

	// 6. clear wipes everything
	require.NoError(t, s1.Clear(ctx))
	for _, sid := range []string{"s1", "s2", "nobody"} {
		stats, err := s1.StatsFor(ctx, sid)
		require.NoError(t, err)
		assert.Zero(t, stats.FilesTracked)
		assert.Zero(t, stats.TokensSaved)
		assert.Zero(t, stats.SessionTokensSaved)
	}
}

func TestUnchangedReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "f.go")
	writeFile(t, p, "package f\n")
	c := newTestCache(t, Options{SessionID: "s"})

	_, err := c.ReadFile(ctx, p)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		res, err := c.ReadFile(ctx, p)
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Zero(t, res.LinesChanged)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3*engine.EstimateTokens("package f\n")), stats.SessionTokensSaved)
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "shared.txt")
	writeFile(t, p, c1)
	a := newTestCache(t, Options{SessionID: "a"})
	b := a.WithSession("b")

	_, err := a.ReadFile(ctx, p)
	require.NoError(t, err)
	_, err = a.ReadFile(ctx, p)
	require.NoError(t, err)

	res, err := b.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	statsA, err := a.Stats(ctx)
	require.NoError(t, err)
	statsB, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, statsA.SessionTokensSaved)
	assert.Zero(t, statsB.SessionTokensSaved)
	assert.Equal(t, statsA.TokensSaved, statsB.TokensSaved)
}

func TestRevertToEarlierVersionDiffsAgainstLastSeen(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "r.txt")
	c := newTestCache(t, Options{SessionID: "s"})

	writeFile(t, p, c1)
	_, err := c.ReadFile(ctx, p)
	require.NoError(t, err)
	writeFile(t, p, c2)
	_, err = c.ReadFile(ctx, p)
	require.NoError(t, err)
	writeFile(t, p, c1)

	res, err := c.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, res.LinesChanged)
	assert.Contains(t, res.Diff, "-delta\n")

	status, err := c.PathStatus(ctx, p)
	require.NoError(t, err)
	assert.Len(t, status.Versions, 2)
	assert.Equal(t, HashContent(c1), status.SeenHash)
	require.NotNil(t, status.SeenAt)
}

func TestReadErrorsLeaveStoreUntouched(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	mfs.errs["/repo/secret"] = fs.ErrPermission
	c := newTestCache(t, Options{SessionID: "s", FS: mfs})

	_, err := c.ReadFile(ctx, "/repo/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "/repo/missing", pe.Path)

	_, err = c.ReadFile(ctx, "/repo/secret")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NotErrorIs(t, err, ErrNotFound)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesTracked)
}

func TestMissingFileOnDisk(t *testing.T) {
	c := newTestCache(t, Options{})
	_, err := c.ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgedOldVersionFallsBackToFullContent(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	c := New(dbPath, Options{SessionID: "s", FS: mfs})
	defer c.Close()

	mfs.set("/repo/a", c1)
	_, err := c.ReadFile(ctx, "/repo/a")
	require.NoError(t, err)

	// Drop the version behind the session's back.
	db, err := store.Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, db.PurgeVersions(ctx, "/repo/a"))
	require.NoError(t, db.Close())

	mfs.set("/repo/a", c2)
	res, err := c.ReadFile(ctx, "/repo/a")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, c2, res.Content)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.SessionTokensSaved)
}

func TestReadFileFull(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	mfs.set("/repo/a", c1)
	c := newTestCache(t, Options{SessionID: "s", FS: mfs})

	_, err := c.ReadFile(ctx, "/repo/a")
	require.NoError(t, err)

	res, err := c.ReadFileFull(ctx, "/repo/a")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, c1, res.Content)

	mfs.set("/repo/a", c2)
	res, err = c.ReadFileFull(ctx, "/repo/a")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, c2, res.Content)

	// The pointer moved to c2.
	res, err = c.ReadFile(ctx, "/repo/a")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Zero(t, res.LinesChanged)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(engine.EstimateTokens(c2)), stats.SessionTokensSaved)
}

func TestReadFileRange(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	var lines []string
	for i := 1; i <= 40; i++ {
		lines = append(lines, fmt.Sprintf("line %d\n", i))
	}
	original := strings.Join(lines, "")
	mfs.set("/repo/big", original)
	c := newTestCache(t, Options{SessionID: "s", FS: mfs})
	window := "line 5\nline 6\nline 7\n"

	res, err := c.ReadFileRange(ctx, "/repo/big", 5, 3)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, window, res.Content)
	assert.Equal(t, 40, res.TotalLines)

	// The session holds the whole file only after a full read.
	res, err = c.ReadFile(ctx, "/repo/big")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, original, res.Content)

	res, err = c.ReadFileRange(ctx, "/repo/big", 5, 3)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	winSaved := engine.EstimateTokens(window)
	assert.Equal(t, winSaved, res.TokensSaved)
	assert.Equal(t, fmt.Sprintf("[cachebro: unchanged, lines 5-7 of 40, %d tokens saved]", winSaved), res.Content)

	// Change far away from the window.
	edited := append([]string(nil), lines...)
	edited[34] = "line 35 edited\n"
	mfs.set("/repo/big", strings.Join(edited, ""))

	for i := 0; i < 2; i++ {
		res, err = c.ReadFileRange(ctx, "/repo/big", 5, 3)
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.Empty(t, res.Diff)
		assert.Equal(t, 2, res.LinesChanged)
		assert.Equal(t, fmt.Sprintf("[cachebro: lines 5-7 unchanged, 2 lines changed elsewhere, %d tokens saved]", winSaved), res.Content)
	}

	// The change elsewhere was never delivered, so a full read still diffs.
	res, err = c.ReadFile(ctx, "/repo/big")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Contains(t, res.Diff, "+line 35 edited\n")

	// Change inside the window.
	edited[5] = "line 6 edited\n"
	mfs.set("/repo/big", strings.Join(edited, ""))

	res, err = c.ReadFileRange(ctx, "/repo/big", 5, 3)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Contains(t, res.Diff, "+line 6 edited\n")
	assert.NotContains(t, res.Diff, "line 35")
	assert.Equal(t, res.Diff, res.Content)

	// The diff covered the whole file, so the session is current again.
	res, err = c.ReadFile(ctx, "/repo/big")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Zero(t, res.LinesChanged)
}

func TestRangeThenFullReadDeliversEverything(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	content := "l1\nl2\nl3\nl4\nl5\nl6\n"
	mfs.set("/repo/six", content)
	c := newTestCache(t, Options{SessionID: "s", FS: mfs})

	res, err := c.ReadFileRange(ctx, "/repo/six", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "l1\nl2\n", res.Content)

	res, err = c.ReadFile(ctx, "/repo/six")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, content, res.Content)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.SessionTokensSaved)
}

func TestDifferentWindowsAreEachDelivered(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	mfs.set("/repo/six", "l1\nl2\nl3\nl4\nl5\nl6\n")
	c := newTestCache(t, Options{SessionID: "s2", FS: mfs})

	res, err := c.ReadFileRange(ctx, "/repo/six", 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "l1\nl2\n", res.Content)

	res, err = c.ReadFileRange(ctx, "/repo/six", 5, 2)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "l5\nl6\n", res.Content)

	status, err := c.PathStatus(ctx, "/repo/six")
	require.NoError(t, err)
	assert.Len(t, status.Versions, 1)
	assert.Empty(t, status.SeenHash)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.SessionTokensSaved)
}

func TestReadFileRangePastEnd(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	mfs.set("/repo/short", "a\nb\n")
	c := newTestCache(t, Options{SessionID: "s", FS: mfs})

	res, err := c.ReadFileRange(ctx, "/repo/short", 10, 5)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Empty(t, res.Content)
	assert.Equal(t, 2, res.TotalLines)

	_, err = c.ReadFile(ctx, "/repo/short")
	require.NoError(t, err)

	res, err = c.ReadFileRange(ctx, "/repo/short", 10, 0)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "[cachebro: unchanged, lines 10+ (past end of file) of 2, 0 tokens saved]", res.Content)
}

func TestReadFiles(t *testing.T) {
	ctx := context.Background()
	mfs := newMemFS()
	mfs.set("/repo/a", c1)
	mfs.set("/repo/b", c3)
	c := newTestCache(t, Options{SessionID: "s", FS: mfs})

	results := c.ReadFiles(ctx, []string{"/repo/a", "/repo/missing", "/repo/b"})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, c1, results[0].Result.Content)
	assert.ErrorIs(t, results[1].Err, ErrNotFound)
	assert.Nil(t, results[1].Result)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "/repo/b", results[2].Path)
}

func TestConcurrentReadsOfSameKey(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "hot.txt")
	writeFile(t, p, c1)
	c := newTestCache(t, Options{SessionID: "s"})

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	cold := 0
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.ReadFile(ctx, p)
			if err != nil {
				errs <- err
				return
			}
			if !res.Cached {
				mu.Lock()
				cold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, cold, "exactly one read should be a cold start")
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64((n-1)*engine.EstimateTokens(c1)), stats.SessionTokensSaved)
}

func TestConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "multi.txt")
	writeFile(t, p, c1)
	base := newTestCache(t, Options{})

	const sessions = 6
	var wg sync.WaitGroup
	errs := make(chan error, sessions*2)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s := base.WithSession(fmt.Sprintf("session-%d", id))
			for j := 0; j < 2; j++ {
				if _, err := s.ReadFile(ctx, p); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := base.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(sessions*engine.EstimateTokens(c1)), stats.TokensSaved)
	assert.Zero(t, stats.SessionTokensSaved)
}

func TestInitGate(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "file")
	writeFile(t, blocker, "x")

	// The database directory cannot be created under a regular file.
	c := New(filepath.Join(blocker, "sub", "cache.db"), Options{})
	err := c.Init(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)

	// A later call retries and fails the same way.
	_, err = c.Stats(ctx)
	assert.ErrorIs(t, err, ErrStorage)

	ok := newTestCache(t, Options{})
	require.NoError(t, ok.Init(ctx))
	require.NoError(t, ok.Init(ctx))
}

func TestClosedCacheRejectsCalls(t *testing.T) {
	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), "cache.db"), Options{})
	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.ReadFile(ctx, "/etc/hostname")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Stats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Clear(ctx), ErrClosed)
	assert.ErrorIs(t, c.Init(ctx), ErrClosed)
	assert.ErrorIs(t, c.WithSession("other").OnPathDeleted(ctx, "/x"), ErrClosed)
}

func TestCloseWaitsForInFlightCalls(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := filepath.Join(dir, "busy.txt")
	writeFile(t, p, c1)
	c := New(filepath.Join(dir, "cache.db"), Options{SessionID: "s"})
	require.NoError(t, c.Init(ctx))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*20)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s := c.WithSession(fmt.Sprintf("w%d", id))
			for j := 0; j < 20; j++ {
				var err error
				if j%5 == 4 {
					err = s.OnPathDeleted(ctx, p)
				} else {
					_, err = s.ReadFile(ctx, p)
				}
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.Close())
	wg.Wait()
	close(errs)

	// Calls either finished before Close or were turned away by the gate.
	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestNeverInitializedCloseIsSafe(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "cache.db"), Options{})
	assert.NoError(t, c.Close())
}

func TestNewWithDBDoesNotCloseSharedDB(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	mfs := newMemFS()
	mfs.set("/repo/a", c1)
	c := NewWithDB(db, Options{SessionID: "s", FS: mfs})
	_, err = c.ReadFile(ctx, "/repo/a")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	n, err := db.CountPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGeneratedSessionID(t *testing.T) {
	a := New(store.MemoryPath, Options{})
	b := New(store.MemoryPath, Options{})
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.Equal(t, "x", a.WithSession("x").SessionID())
}

func TestRelativePathsShareIdentity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rel.txt"), c1)
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	c := newTestCache(t, Options{SessionID: "s"})
	_, err := c.ReadFile(ctx, "rel.txt")
	require.NoError(t, err)

	res, err := c.ReadFile(ctx, filepath.Join(dir, "rel.txt"))
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestConsumeAppliesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	gonePath := filepath.Join(dir, "gone.txt")
	backPath := filepath.Join(dir, "back.txt")
	writeFile(t, gonePath, c1)
	writeFile(t, backPath, c1)

	c := newTestCache(t, Options{SessionID: "s"})
	for _, p := range []string{gonePath, backPath} {
		_, err := c.ReadFile(ctx, p)
		require.NoError(t, err)
	}
	require.NoError(t, os.Remove(gonePath))

	events := make(chan watcher.Event, 3)
	events <- watcher.Event{Path: gonePath, Kind: watcher.Deleted}
	// Still on disk, so the delete is treated as a change.
	events <- watcher.Event{Path: backPath, Kind: watcher.Deleted}
	events <- watcher.Event{Path: backPath, Kind: watcher.Changed}
	close(events)

	done := make(chan struct{})
	go func() {
		c.Consume(ctx, events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consume did not return after channel close")
	}

	status, err := c.PathStatus(ctx, gonePath)
	require.NoError(t, err)
	assert.Empty(t, status.Versions)
	assert.Empty(t, status.SeenHash)

	res, err := c.ReadFile(ctx, backPath)
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestConsumeStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCache(t, Options{})
	done := make(chan struct{})
	go func() {
		c.Consume(ctx, make(chan watcher.Event))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consume ignored cancellation")
	}
}

func TestStorageErrorWrapping(t *testing.T) {
	base := errors.New("disk on fire")
	err := storageError("read", "/x", base)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "/x")

	assert.Nil(t, storageError("read", "", nil))
	assert.Same(t, ErrClosed, storageError("read", "", ErrClosed))
}
