// Package queue implements the bounded priority indexing queue.
//
// Jobs are ranked by priority (highest first) and, within a priority, by the
// order their key was first enqueued. A key is queued at most once: submitting
// it again replaces the pending payload but keeps its place. Put applies
// back-pressure once the queue holds capacity jobs, except for jobs that
// outrank everything already queued.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
)

// ErrEmpty is returned by Remove when no job is pending.
var ErrEmpty = errors.New("queue is empty")

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for queue diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// Queue is a bounded, de-duplicating priority queue of jobs. It is safe for
// concurrent use by any number of producers and consumers.
type Queue struct {
	capacity int
	maxWait  time.Duration
	logger   *slog.Logger

	lock    scopedLock
	ranking ranking
	jobs    map[job.ID]*job.Job
	elems   map[job.ID]*element
	seq     atomic.Uint64

	notEmpty waitCond
	empty    waitCond
	notFull  priorityConds

	added     uint64
	coalesced uint64
	removed   uint64
}

// New creates a queue holding up to capacity jobs before Put blocks. maxWait
// bounds every single blocking attempt, after which the wait condition is
// re-checked. Both must be positive.
func New(capacity int, maxWait time.Duration, opts ...Option) (*Queue, error) {
	if capacity <= 0 {
		return nil, ixerrors.ConfigError(fmt.Sprintf("queue capacity must be positive, got %d", capacity), nil).
			WithSuggestion("Set queue.capacity in .indexq.yaml to a value greater than 0")
	}
	if maxWait <= 0 {
		return nil, ixerrors.ConfigError(fmt.Sprintf("queue max wait must be positive, got %s", maxWait), nil).
			WithSuggestion("Set queue.max_wait in .indexq.yaml, e.g. 10s")
	}

	q := &Queue{
		capacity: capacity,
		maxWait:  maxWait,
		logger:   slog.Default(),
		jobs:     make(map[job.ID]*job.Job),
		elems:    make(map[job.ID]*element),
		notFull:  newPriorityConds(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Capacity returns the configured capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Size returns the number of pending jobs.
func (q *Queue) Size() int {
	release := q.lock.open()
	defer release()
	return len(q.ranking)
}

// IsEmpty reports whether no job is pending.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Contains reports whether a job for id is pending.
func (q *Queue) Contains(id job.ID) bool {
	release := q.lock.open()
	defer release()
	_, ok := q.jobs[id]
	return ok
}

// Add enqueues j without blocking, ignoring capacity. If a job with the same
// key is pending its payload is replaced and its position kept.
//
// Add is for producers that must never block. It can push the queue past its
// capacity.
func (q *Queue) Add(j *job.Job) error {
	if err := validate(j); err != nil {
		return err
	}

	release := q.lock.open()
	defer release()

	if q.replaceLocked(j) {
		return nil
	}
	q.insertLocked(j)
	return nil
}

// Put enqueues j, blocking while the queue is full and j does not outrank
// the current head. A job with a strictly higher priority than the head is
// admitted immediately even at capacity.
//
// If ctx is cancelled while waiting, Put returns ctx.Err() and nothing is
// enqueued.
func (q *Queue) Put(ctx context.Context, j *job.Job) error {
	if err := validate(j); err != nil {
		return err
	}

	release := q.lock.open()
	defer release()

	for {
		if q.replaceLocked(j) {
			// A producer blocked behind us may be admissible now that we
			// did not take the slot we were woken for.
			if len(q.ranking) < q.capacity {
				q.notFull.signalHighest()
			}
			return nil
		}
		if !q.fullForLocked(j.Priority) {
			break
		}

		q.logger.Debug("queue full, producer waiting",
			slog.String("job", j.ID.String()),
			slog.String("priority", j.Priority.String()),
			slog.Int("size", len(q.ranking)))

		if err := q.notFull.await(ctx, &q.lock, j.Priority, q.maxWait); err != nil {
			return err
		}
	}

	q.insertLocked(j)
	return nil
}

// Remove dequeues the highest ranked job without blocking. It returns
// ErrEmpty when nothing is pending.
func (q *Queue) Remove() (*job.Job, error) {
	release := q.lock.open()
	defer release()

	if len(q.ranking) == 0 {
		return nil, ErrEmpty
	}
	return q.removeLocked(), nil
}

// Take dequeues the highest ranked job, waiting until one is available. If
// ctx is cancelled first, Take returns ctx.Err() and removes nothing.
func (q *Queue) Take(ctx context.Context) (*job.Job, error) {
	release := q.lock.open()
	defer release()

	for len(q.ranking) == 0 {
		signaled, err := q.notEmpty.wait(ctx, &q.lock, q.maxWait)
		if err != nil {
			if signaled {
				q.notEmpty.signal()
			}
			return nil, err
		}
	}
	return q.removeLocked(), nil
}

// AwaitEmpty blocks until the queue has been drained. It returns immediately
// if the queue is already empty.
func (q *Queue) AwaitEmpty(ctx context.Context) error {
	release := q.lock.open()
	defer release()

	for len(q.ranking) > 0 {
		if _, err := q.empty.wait(ctx, &q.lock, q.maxWait); err != nil {
			return err
		}
	}
	return nil
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Size             int                  `json:"size"`
	Capacity         int                  `json:"capacity"`
	Pending          map[job.Priority]int `json:"pending"`
	WaitingProducers map[job.Priority]int `json:"waiting_producers"`
	WaitingConsumers int                  `json:"waiting_consumers"`
	Added            uint64               `json:"added"`
	Coalesced        uint64               `json:"coalesced"`
	Removed          uint64               `json:"removed"`
}

// Stats returns a snapshot of queue occupancy and counters.
func (q *Queue) Stats() Stats {
	release := q.lock.open()
	defer release()

	pending := make(map[job.Priority]int)
	for _, e := range q.ranking {
		pending[e.priority]++
	}
	return Stats{
		Size:             len(q.ranking),
		Capacity:         q.capacity,
		Pending:          pending,
		WaitingProducers: q.notFull.waiting(),
		WaitingConsumers: q.notEmpty.len(),
		Added:            q.added,
		Coalesced:        q.coalesced,
		Removed:          q.removed,
	}
}

// fullForLocked reports whether a new job at priority p must wait.
func (q *Queue) fullForLocked(p job.Priority) bool {
	if len(q.ranking) < q.capacity {
		return false
	}
	head := q.ranking.head()
	return head != nil && p <= head.priority
}

// replaceLocked overwrites the payload of a pending key. The stored job keeps
// the priority it is ranked at.
func (q *Queue) replaceLocked(j *job.Job) bool {
	e, ok := q.elems[j.ID]
	if !ok {
		return false
	}
	stored := j.Clone()
	stored.Priority = e.priority
	q.jobs[j.ID] = stored
	q.coalesced++

	q.logger.Debug("job coalesced with pending entry",
		slog.String("job", j.ID.String()),
		slog.String("action", j.Action.String()))
	return true
}

func (q *Queue) insertLocked(j *job.Job) {
	e := &element{
		id:       j.ID,
		priority: j.Priority,
		seq:      q.seq.Add(1),
	}
	heap.Push(&q.ranking, e)
	q.elems[j.ID] = e
	q.jobs[j.ID] = j.Clone()
	q.added++

	q.notEmpty.signal()
}

func (q *Queue) removeLocked() *job.Job {
	e := heap.Pop(&q.ranking).(*element)
	j := q.jobs[e.id]
	delete(q.jobs, e.id)
	delete(q.elems, e.id)
	q.removed++

	head := q.ranking.head()
	if len(q.ranking) < q.capacity || (head != nil && head.priority != e.priority) {
		q.notFull.signalHighest()
	}
	if len(q.ranking) == 0 {
		q.empty.broadcast()
	}
	return j
}

func validate(j *job.Job) error {
	if err := j.Validate(); err != nil {
		return ixerrors.New(ixerrors.ErrCodeInvalidJob, "invalid job", err)
	}
	return nil
}
