package index

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/indexq/internal/job"
	"github.com/Aman-CERP/indexq/internal/watcher"
)

// Adder is the non-blocking side of the queue.
type Adder interface {
	Add(j *job.Job) error
}

// Resolver maps repository paths to IDs.
type Resolver interface {
	Resolve(path string) (job.ID, error)
}

// Listener turns watcher batches into jobs. It runs on the watcher's
// goroutine, so it uses Add and never blocks on a full queue.
type Listener struct {
	queue    Adder
	resolver Resolver
	priority job.Priority
	logger   *slog.Logger
}

// NewListener creates a listener queueing jobs at priority.
func NewListener(q Adder, r Resolver, priority job.Priority, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{queue: q, resolver: r, priority: priority, logger: logger}
}

// Run handles batches until events is closed or ctx is done.
func (l *Listener) Run(ctx context.Context, events <-chan []watcher.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			l.HandleEvents(batch)
		}
	}
}

// HandleEvents queues one job per relevant event and returns how many were
// queued. Paths outside the repository layout are ignored.
func (l *Listener) HandleEvents(events []watcher.FileEvent) int {
	queued := 0
	for _, event := range events {
		switch event.Operation {
		case watcher.OpCreate:
			queued += l.enqueue(event.Path, job.ActionIndex)
		case watcher.OpModify:
			// A directory's own modification says nothing about its content.
			if !event.IsDir {
				queued += l.enqueue(event.Path, job.ActionIndex)
			}
		case watcher.OpDelete:
			queued += l.enqueue(event.Path, job.ActionDelete)
		case watcher.OpRename:
			if event.OldPath != "" {
				queued += l.enqueue(event.OldPath, job.ActionDelete)
				queued += l.enqueue(event.Path, job.ActionIndex)
			} else {
				queued += l.enqueue(event.Path, job.ActionDelete)
			}
		}
	}
	return queued
}

func (l *Listener) enqueue(path string, action job.Action) int {
	id, err := l.resolver.Resolve(path)
	if err != nil {
		l.logger.Debug("change_ignored", slog.String("path", path), slog.String("reason", err.Error()))
		return 0
	}

	j := &job.Job{ID: id, Action: action, Priority: l.priority}
	if err := l.queue.Add(j); err != nil {
		l.logger.Warn("change_not_queued",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return 0
	}
	return 1
}
