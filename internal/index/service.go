// Package index is the producer side of indexing: the service that turns
// requests into queued jobs, and the listener that does the same for file
// changes.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/indexer"
	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/queue"
	"github.com/Aman-CERP/indexq/internal/store"
)

// Wikis lists the wikis a full rebuild covers.
type Wikis interface {
	Wikis() ([]job.ID, error)
}

// Service is the entry point for indexing requests.
type Service struct {
	queue    *queue.Queue
	engine   store.Engine
	wikis    Wikis
	progress *indexer.Progress
	logger   *slog.Logger
	started  time.Time
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Queue    *queue.Queue
	Engine   store.Engine
	Wikis    Wikis
	Progress *indexer.Progress
	Logger   *slog.Logger
}

// NewService creates a service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := cfg.Progress
	if progress == nil {
		progress = indexer.NewProgress()
	}
	return &Service{
		queue:    cfg.Queue,
		engine:   cfg.Engine,
		wikis:    cfg.Wikis,
		progress: progress,
		logger:   logger,
		started:  time.Now(),
	}
}

// QueueOption adjusts a queued job.
type QueueOption func(*queueOptions)

type queueOptions struct {
	priority *job.Priority
}

// WithPriority sets the job priority explicitly.
func WithPriority(p job.Priority) QueueOption {
	return func(o *queueOptions) {
		o.priority = &p
	}
}

func (s *Service) submit(ctx context.Context, j *job.Job, fallback job.Priority, opts []QueueOption) error {
	var o queueOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.priority != nil {
		j.Priority = *o.priority
	} else if p, ok := job.PriorityFromContext(ctx); ok {
		j.Priority = p
	} else {
		j.Priority = fallback
	}

	if err := s.queue.Put(ctx, j); err != nil {
		return err
	}
	s.logger.Debug("job_queued",
		slog.String("job", j.ID.String()),
		slog.String("action", j.Action.String()),
		slog.String("priority", j.Priority.String()))
	return nil
}

// Queue requests that id be indexed. The priority is the WithPriority option,
// else the priority carried by ctx, else Default. It blocks while the queue
// is full.
func (s *Service) Queue(ctx context.Context, id job.ID, opts ...QueueOption) error {
	return s.submit(ctx, job.NewIndex(id), job.Default, opts)
}

// QueueDelete requests that id be removed from the index. Priority resolves
// as for Queue.
func (s *Service) QueueDelete(ctx context.Context, id job.ID, opts ...QueueOption) error {
	return s.submit(ctx, job.NewDelete(id), job.Default, opts)
}

// Rebuild re-indexes scope, or every wiki when scope is zero. It is queued at
// Low priority unless overridden, so interactive changes overtake it.
func (s *Service) Rebuild(ctx context.Context, scope job.ID, opts ...QueueOption) ([]job.ID, error) {
	scopes := []job.ID{scope}
	if scope.IsZero() {
		wikis, err := s.wikis.Wikis()
		if err != nil {
			return nil, ixerrors.New(ixerrors.ErrCodeContentNotFound, "failed to list wikis", err)
		}
		scopes = wikis
	}

	for _, sc := range scopes {
		if err := s.submit(ctx, job.NewIndex(sc), job.Low, opts); err != nil {
			return nil, err
		}
	}
	s.logger.Info("rebuild_queued", slog.Int("scopes", len(scopes)))
	return scopes, nil
}

// Search queries the engine.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*store.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ixerrors.New(ixerrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("Pass at least one search term")
	}
	return s.engine.Search(ctx, query, limit)
}

// AwaitEmpty blocks until the queue is drained.
func (s *Service) AwaitEmpty(ctx context.Context) error {
	return s.queue.AwaitEmpty(ctx)
}

// Status is a point-in-time report of the service.
type Status struct {
	Queue         queue.Stats              `json:"queue"`
	Worker        indexer.ProgressSnapshot `json:"worker"`
	Backend       string                   `json:"backend"`
	Documents     int                      `json:"documents"`
	UptimeSeconds int                      `json:"uptime_seconds"`
}

// Status reports queue, worker and engine state.
func (s *Service) Status() Status {
	st := Status{
		Queue:         s.queue.Stats(),
		Worker:        s.progress.Snapshot(),
		Backend:       string(s.engine.Backend()),
		UptimeSeconds: int(time.Since(s.started).Seconds()),
	}
	if n, err := s.engine.Count(); err == nil {
		st.Documents = n
	} else {
		s.logger.Warn("document_count_failed", slog.String("error", err.Error()))
	}
	return st
}

// ParseRef parses a reference and checks it names something indexable.
func ParseRef(ref string) (job.ID, error) {
	id, err := job.ParseID(ref)
	if err == nil {
		err = id.Validate()
	}
	if err != nil {
		return job.ID{}, ixerrors.New(ixerrors.ErrCodeInvalidReference, fmt.Sprintf("invalid reference %q", ref), err).
			WithSuggestion("Use wiki, wiki:space, wiki:space.doc, wiki:space.doc@lang or wiki:space.doc/file")
	}
	return id, nil
}
