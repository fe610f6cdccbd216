// Package indexer runs the consumer side of the indexing queue: a worker that
// takes jobs in priority order and applies them to the search engine.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/indexq/internal/content"
	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/store"
)

// Queue is the part of the indexing queue the worker consumes. Add is used to
// re-enqueue the leaves of a scope without blocking on the worker's own queue.
type Queue interface {
	Take(ctx context.Context) (*job.Job, error)
	Add(j *job.Job) error
}

// Content loads and enumerates repository content.
type Content interface {
	Load(ctx context.Context, id job.ID) (*content.Document, error)
	Walk(ctx context.Context, scope job.ID, fn func(job.ID) error) error
}

// State records the hash each document was indexed with.
type State interface {
	Get(id job.ID) (string, bool, error)
	Put(id job.ID, hash string) error
	Delete(id job.ID) error
	DeletePrefix(scope job.ID) error
	Scan(scope job.ID, fn func(id job.ID, hash string) error) error
}

// Observer is told about every processed job.
type Observer func(j *job.Job, result Result, elapsed time.Duration)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetry sets how engine writes are retried.
func WithRetry(cfg ixerrors.RetryConfig) Option {
	return func(w *Worker) {
		w.retry = cfg
	}
}

// WithCircuitBreaker guards engine writes with cb.
func WithCircuitBreaker(cb *ixerrors.CircuitBreaker) Option {
	return func(w *Worker) {
		if cb != nil {
			w.breaker = cb
		}
	}
}

// WithObserver registers fn to be called after each job.
func WithObserver(fn Observer) Option {
	return func(w *Worker) {
		w.observe = fn
	}
}

// Worker takes jobs from the queue one at a time and applies them.
//
// A job failure is logged and counted but never stops the loop. Stop lets the
// job in progress finish before returning.
type Worker struct {
	queue   Queue
	content Content
	engine  store.Engine
	state   State
	logger  *slog.Logger
	retry   ixerrors.RetryConfig
	breaker *ixerrors.CircuitBreaker
	observe Observer

	progress *Progress

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	started bool
}

// New creates a worker. It does nothing until Start is called.
func New(q Queue, c Content, engine store.Engine, state State, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		content:  c,
		engine:   engine,
		state:    state,
		logger:   slog.Default(),
		retry:    ixerrors.DefaultRetryConfig(),
		breaker:  ixerrors.NewCircuitBreaker("engine"),
		progress: NewProgress(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Progress returns the progress tracker for this worker.
func (w *Worker) Progress() *Progress {
	return w.progress
}

// IsRunning returns true if the worker loop is running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start begins consuming in a background goroutine. It is non-blocking and
// a worker can only be started once.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.running = true
	w.mu.Unlock()

	w.progress.SetStatus(StatusIdle)
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.progress.SetStatus(StatusStopped)
	}()

	// Only waiting for a job is interrupted by Stop; processing runs on a
	// context that outlives it so the job in hand is not torn half way.
	takeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-takeCtx.Done():
		}
	}()
	workCtx := context.WithoutCancel(ctx)

	w.logger.Info("indexer_started")
	for {
		j, err := w.queue.Take(takeCtx)
		if err != nil {
			if takeCtx.Err() != nil {
				w.logger.Info("indexer_stopped")
				return
			}
			w.logger.Error("indexer_take_failed", slog.String("error", err.Error()))
			continue
		}
		w.Process(workCtx, j)
	}
}

// Stop signals the worker to stop and waits for the loop to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.mu.Unlock()

	<-w.doneCh
}

// Wait blocks until the worker loop exits.
func (w *Worker) Wait() {
	<-w.doneCh
}

// Process applies a single job and records its outcome.
func (w *Worker) Process(ctx context.Context, j *job.Job) Result {
	start := time.Now()
	w.progress.Begin(j)

	result, err := w.handle(ctx, j)
	if err != nil {
		result = ResultFailed
	}
	elapsed := time.Since(start)
	w.progress.Finish(j, result, err)
	if w.observe != nil {
		w.observe(j, result, elapsed)
	}

	if err != nil {
		attrs := append([]any{
			slog.String("job", j.ID.String()),
			slog.String("action", j.Action.String()),
			slog.String("priority", j.Priority.String()),
		}, ixerrors.LogAttrs(err)...)
		w.logger.Error("job_failed", attrs...)
	} else {
		w.logger.Debug("job_done",
			slog.String("job", j.ID.String()),
			slog.String("result", string(result)),
			slog.Duration("elapsed", elapsed))
	}
	return result
}

func (w *Worker) handle(ctx context.Context, j *job.Job) (Result, error) {
	switch {
	case j.IsDelete():
		return ResultDeleted, w.remove(ctx, j.ID)
	case j.ID.IsScope():
		return w.expand(ctx, j)
	default:
		return w.index(ctx, j)
	}
}

// index writes one document or attachment, skipping it when the content hash
// matches what was last indexed. Missing content is removed instead.
func (w *Worker) index(ctx context.Context, j *job.Job) (Result, error) {
	doc, err := w.content.Load(ctx, j.ID)
	if errors.Is(err, content.ErrNotFound) {
		return ResultDeleted, w.remove(ctx, j.ID)
	}
	if err != nil {
		return ResultFailed, ixerrors.New(ixerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to load %s", j.ID), err)
	}

	prev, ok, err := w.state.Get(j.ID)
	if err != nil {
		return ResultFailed, err
	}
	if ok && prev == doc.Hash {
		return ResultSkipped, nil
	}

	err = w.write(ctx, func() error {
		return w.engine.Index(ctx, &store.Document{ID: doc.ID, Title: doc.Title, Body: doc.Body})
	})
	if err != nil {
		return ResultFailed, err
	}
	if err := w.state.Put(j.ID, doc.Hash); err != nil {
		return ResultFailed, err
	}
	return ResultIndexed, nil
}

// remove deletes id from the engine and the state store. Deleting a document
// also deletes its translations and attachments.
func (w *Worker) remove(ctx context.Context, id job.ID) error {
	if id.Kind() == job.KindAttachment {
		if err := w.write(ctx, func() error { return w.engine.Delete(ctx, id) }); err != nil {
			return err
		}
		return w.state.Delete(id)
	}

	if err := w.write(ctx, func() error { return w.engine.DeleteScope(ctx, id) }); err != nil {
		return err
	}
	return w.state.DeletePrefix(id)
}

// expand turns a wiki or space job into one job per leaf, at the scope's
// priority. Indexed leaves that no longer exist get delete jobs. A scope that
// is gone altogether is deleted.
func (w *Worker) expand(ctx context.Context, j *job.Job) (Result, error) {
	seen := make(map[job.ID]struct{})
	err := w.content.Walk(ctx, j.ID, func(id job.ID) error {
		seen[id] = struct{}{}
		return w.queue.Add(job.NewIndex(id).WithPriority(j.Priority))
	})
	if errors.Is(err, content.ErrNotFound) {
		return ResultDeleted, w.remove(ctx, j.ID)
	}
	if err != nil {
		return ResultFailed, err
	}

	var stale []job.ID
	err = w.state.Scan(j.ID, func(id job.ID, _ string) error {
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
		return nil
	})
	if err != nil {
		return ResultFailed, err
	}
	for _, id := range stale {
		if err := w.queue.Add(job.NewDelete(id).WithPriority(j.Priority)); err != nil {
			return ResultFailed, err
		}
	}

	w.logger.Info("scope_expanded",
		slog.String("scope", j.ID.String()),
		slog.Int("leaves", len(seen)),
		slog.Int("stale", len(stale)))
	return ResultExpanded, nil
}

// write runs an engine mutation through the circuit breaker with retries.
func (w *Worker) write(ctx context.Context, fn func() error) error {
	return ixerrors.Retry(ctx, w.retry, func() error {
		return w.breaker.Execute(fn)
	})
}
