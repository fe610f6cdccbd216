package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexq/internal/content"
	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/queue"
	"github.com/Aman-CERP/indexq/internal/store"
)

type fixture struct {
	root   string
	q      *queue.Queue
	repo   *content.Repository
	engine store.Engine
	state  *store.StateStore
	w      *Worker
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newFixture(t *testing.T, engine store.Engine, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main/Dev/Install.md", "# Install\n\nrun the installer")
	writeFile(t, root, "main/Dev/Install.de.md", "# Installation\n\ninstaller starten")
	writeFile(t, root, "main/Dev/Install/notes.txt", "installer checksum")
	writeFile(t, root, "main/Blog/Release.md", "# Release\n\nfaster installer")

	q, err := queue.New(100, time.Second)
	require.NoError(t, err)
	repo, err := content.NewRepository(root, 16)
	require.NoError(t, err)
	if engine == nil {
		engine, err = store.NewEngine("", store.BackendSQLite)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	state, err := store.OpenState(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })

	return &fixture{
		root:   root,
		q:      q,
		repo:   repo,
		engine: engine,
		state:  state,
		w:      New(q, repo, engine, state, opts...),
	}
}

func (f *fixture) search(t *testing.T, query string) []string {
	t.Helper()
	hits, err := f.engine.Search(context.Background(), query, 50)
	require.NoError(t, err)
	refs := make([]string, len(hits))
	for i, h := range hits {
		refs[i] = h.Ref
	}
	return refs
}

func drain(t *testing.T, f *fixture) []*job.Job {
	t.Helper()
	var out []*job.Job
	for {
		j, err := f.q.Remove()
		if errors.Is(err, queue.ErrEmpty) {
			return out
		}
		require.NoError(t, err)
		out = append(out, j)
	}
}

func fastRetry(n int) ixerrors.RetryConfig {
	return ixerrors.RetryConfig{
		MaxRetries:   n,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
		ShouldRetry:  ixerrors.IsRetryable,
	}
}

func TestWorker_IndexSkipsUnchanged(t *testing.T) {
	// Given a document on disk
	f := newFixture(t, nil)
	ctx := context.Background()
	id := job.DocID("main", "Dev", "Install")

	// When it is processed twice
	first := f.w.Process(ctx, job.NewIndex(id))
	second := f.w.Process(ctx, job.NewIndex(id))

	// Then it is indexed once and skipped the second time
	assert.Equal(t, ResultIndexed, first)
	assert.Equal(t, ResultSkipped, second)
	assert.Equal(t, []string{"main:Dev.Install"}, f.search(t, "run"))

	hash, ok, err := f.state.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, hash)

	// When the document changes it is indexed again
	time.Sleep(10 * time.Millisecond)
	writeFile(t, f.root, "main/Dev/Install.md", "# Install\n\nuse the package manager")
	assert.Equal(t, ResultIndexed, f.w.Process(ctx, job.NewIndex(id)))
	assert.Empty(t, f.search(t, "run"))
	assert.Equal(t, []string{"main:Dev.Install"}, f.search(t, "package manager"))
}

func TestWorker_MissingContentIsDeleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := job.DocID("main", "Blog", "Release")
	require.Equal(t, ResultIndexed, f.w.Process(ctx, job.NewIndex(id)))

	require.NoError(t, os.Remove(filepath.Join(f.root, "main/Blog/Release.md")))
	result := f.w.Process(ctx, job.NewIndex(id))

	assert.Equal(t, ResultDeleted, result)
	assert.Empty(t, f.search(t, "faster"))
	_, ok, err := f.state.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorker_DeleteDocumentTakesTranslationsAndAttachments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc := job.DocID("main", "Dev", "Install")
	for _, id := range []job.ID{doc, doc.WithLang("de"), job.AttachmentID("main", "Dev", "Install", "notes.txt"), job.DocID("main", "Blog", "Release")} {
		require.Equal(t, ResultIndexed, f.w.Process(ctx, job.NewIndex(id)))
	}
	require.Len(t, f.search(t, "installer"), 4)

	assert.Equal(t, ResultDeleted, f.w.Process(ctx, job.NewDelete(doc)))

	assert.Equal(t, []string{"main:Blog.Release"}, f.search(t, "installer"))
	n, err := f.state.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorker_DeleteAttachmentOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	att := job.AttachmentID("main", "Dev", "Install", "notes.txt")
	require.Equal(t, ResultIndexed, f.w.Process(ctx, job.NewIndex(att)))
	require.Equal(t, ResultIndexed, f.w.Process(ctx, job.NewIndex(job.DocID("main", "Dev", "Install"))))

	assert.Equal(t, ResultDeleted, f.w.Process(ctx, job.NewDelete(att)))

	assert.Equal(t, []string{"main:Dev.Install"}, f.search(t, "installer"))
}

func TestWorker_ExpandScope(t *testing.T) {
	// Given a wiki on disk and a stale record for a page that was removed
	f := newFixture(t, nil)
	ctx := context.Background()
	gone := job.DocID("main", "Dev", "Removed")
	require.NoError(t, f.state.Put(gone, "old"))

	// When the wiki is processed at low priority
	result := f.w.Process(ctx, job.NewIndex(job.WikiID("main")).WithPriority(job.Low))

	// Then every leaf is queued at that priority, plus a delete for the stale page
	assert.Equal(t, ResultExpanded, result)
	jobs := drain(t, f)
	var indexed []string
	var deleted []string
	for _, j := range jobs {
		assert.Equal(t, job.Low, j.Priority)
		if j.IsDelete() {
			deleted = append(deleted, j.ID.String())
		} else {
			indexed = append(indexed, j.ID.String())
		}
	}
	assert.ElementsMatch(t, []string{
		"main:Blog.Release",
		"main:Dev.Install",
		"main:Dev.Install@de",
		"main:Dev.Install/notes.txt",
	}, indexed)
	assert.Equal(t, []string{"main:Dev.Removed"}, deleted)
}

func TestWorker_ExpandMissingScopeDeletes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.Equal(t, ResultIndexed, f.w.Process(ctx, job.NewIndex(job.DocID("main", "Blog", "Release"))))
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "main/Blog")))

	result := f.w.Process(ctx, job.NewIndex(job.SpaceID("main", "Blog")))

	assert.Equal(t, ResultDeleted, result)
	assert.Empty(t, f.search(t, "faster"))
	assert.True(t, f.q.IsEmpty())
}

func TestWorker_StartProcessesQueueUntilStopped(t *testing.T) {
	// Given a running worker
	var observed atomic.Int64
	f := newFixture(t, nil, WithObserver(func(*job.Job, Result, time.Duration) {
		observed.Add(1)
	}))
	ctx := context.Background()
	f.w.Start(ctx)
	f.w.Start(ctx)
	assert.True(t, f.w.IsRunning())

	// When a wiki is queued
	require.NoError(t, f.q.Put(ctx, job.NewIndex(job.WikiID("main"))))

	// Then it is expanded and every leaf ends up indexed
	require.Eventually(t, func() bool {
		n, err := f.engine.Count()
		return err == nil && n == 4 && f.q.IsEmpty()
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.q.AwaitEmpty(ctx))

	f.w.Stop()
	f.w.Stop()
	assert.False(t, f.w.IsRunning())

	snap := f.w.Progress().Snapshot()
	assert.Equal(t, string(StatusStopped), snap.Status)
	assert.Equal(t, uint64(1), snap.Expanded)
	assert.Equal(t, uint64(4), snap.Indexed)
	assert.Equal(t, int64(5), observed.Load())
}

func TestWorker_StopBeforeStart(t *testing.T) {
	f := newFixture(t, nil)
	f.w.Stop()
	assert.False(t, f.w.IsRunning())
}

// flakyEngine fails Index calls while fail returns an error.
type flakyEngine struct {
	store.Engine
	mu    sync.Mutex
	calls int
	fail  func(call int, doc *store.Document) error
}

func (e *flakyEngine) Index(ctx context.Context, docs ...*store.Document) error {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()
	if err := e.fail(call, docs[0]); err != nil {
		return err
	}
	return e.Engine.Index(ctx, docs...)
}

func (e *flakyEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newFlaky(t *testing.T, fail func(int, *store.Document) error) *flakyEngine {
	t.Helper()
	inner, err := store.NewEngine("", store.BackendSQLite)
	require.NoError(t, err)
	return &flakyEngine{Engine: inner, fail: fail}
}

func TestWorker_RetriesRetryableWrites(t *testing.T) {
	// Given an engine that is busy for the first two attempts
	engine := newFlaky(t, func(call int, _ *store.Document) error {
		if call <= 2 {
			return ixerrors.New(ixerrors.ErrCodeEngineBusy, "database is locked", nil)
		}
		return nil
	})
	f := newFixture(t, engine, WithRetry(fastRetry(3)))

	// When a document is processed
	result := f.w.Process(context.Background(), job.NewIndex(job.DocID("main", "Blog", "Release")))

	// Then the write succeeds on the third attempt
	assert.Equal(t, ResultIndexed, result)
	assert.Equal(t, 3, engine.Calls())
}

func TestWorker_FailureDoesNotStopLoop(t *testing.T) {
	// Given an engine that rejects one document permanently
	engine := newFlaky(t, func(_ int, doc *store.Document) error {
		if doc.ID.Doc == "Release" {
			return ixerrors.ValidationError("document rejected", nil)
		}
		return nil
	})
	f := newFixture(t, engine, WithRetry(fastRetry(3)))
	ctx := context.Background()
	f.w.Start(ctx)
	defer f.w.Stop()

	// When the bad document is queued ahead of a good one
	require.NoError(t, f.q.Put(ctx, job.NewIndex(job.DocID("main", "Blog", "Release")).WithPriority(job.High)))
	require.NoError(t, f.q.Put(ctx, job.NewIndex(job.DocID("main", "Dev", "Install"))))

	// Then the failure is recorded without retries and the next job still runs
	require.Eventually(t, func() bool {
		snap := f.w.Progress().Snapshot()
		return snap.Failed == 1 && snap.Indexed == 1
	}, 5*time.Second, 10*time.Millisecond)
	snap := f.w.Progress().Snapshot()
	assert.Equal(t, "index main:Blog.Release (high)", snap.LastErrorJob)
	assert.Contains(t, snap.LastError, "document rejected")
	assert.Equal(t, 2, engine.Calls())
}

func TestWorker_CircuitBreakerStopsHammering(t *testing.T) {
	// Given an engine that is down and a breaker opening after two failures
	engine := newFlaky(t, func(int, *store.Document) error {
		return ixerrors.EngineError("connection refused", nil)
	})
	cb := ixerrors.NewCircuitBreaker("engine",
		ixerrors.WithMaxFailures(2),
		ixerrors.WithResetTimeout(time.Hour))
	f := newFixture(t, engine, WithRetry(fastRetry(0)), WithCircuitBreaker(cb))
	ctx := context.Background()

	// When three documents are processed
	for _, doc := range []string{"Install", "Upgrade", "Other"} {
		writeFile(t, f.root, "main/Dev/"+doc+".md", "# "+doc)
		assert.Equal(t, ResultFailed, f.w.Process(ctx, job.NewIndex(job.DocID("main", "Dev", doc))))
	}

	// Then the third never reaches the engine
	assert.Equal(t, 2, engine.Calls())
	assert.Equal(t, ixerrors.StateOpen, cb.State())
	assert.Equal(t, ixerrors.ErrCircuitOpen.Error(), f.w.Progress().Snapshot().LastError)
}
