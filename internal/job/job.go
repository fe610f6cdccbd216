// Package job defines the units of work handled by the indexing queue:
// content identities, priorities and index/delete jobs.
package job

import (
	"context"
	"errors"
	"fmt"
)

// ErrNilJob is returned when a nil job is submitted.
var ErrNilJob = errors.New("job is nil")

// Action is what the consumer does with a job.
type Action int

const (
	// ActionIndex (re)indexes the content named by the job.
	ActionIndex Action = iota
	// ActionDelete removes the content named by the job from the index.
	ActionDelete
)

// String returns "index" or "delete".
func (a Action) String() string {
	if a == ActionDelete {
		return "delete"
	}
	return "index"
}

// Job is a pending index or delete request for one content unit.
type Job struct {
	ID       ID       `json:"id"`
	Action   Action   `json:"action"`
	Priority Priority `json:"priority"`

	// Content optionally carries the payload to index. When nil the consumer
	// loads it from the content repository.
	Content []byte `json:"content,omitempty"`
}

// NewIndex creates an index job at the default priority.
func NewIndex(id ID) *Job {
	return &Job{ID: id, Action: ActionIndex, Priority: Default}
}

// NewDelete creates a delete tombstone at the default priority.
func NewDelete(id ID) *Job {
	return &Job{ID: id, Action: ActionDelete, Priority: Default}
}

// WithPriority sets the priority and returns the job for chaining.
func (j *Job) WithPriority(p Priority) *Job {
	j.Priority = p
	return j
}

// IsDelete reports whether the job is a tombstone.
func (j *Job) IsDelete() bool {
	return j.Action == ActionDelete
}

// Validate rejects nil jobs and jobs without a usable key.
func (j *Job) Validate() error {
	if j == nil {
		return ErrNilJob
	}
	return j.ID.Validate()
}

// Clone returns a copy that shares nothing mutable with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Content != nil {
		c.Content = append([]byte(nil), j.Content...)
	}
	return &c
}

// String is used in log lines.
func (j *Job) String() string {
	if j == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s (%s)", j.Action, j.ID, j.Priority)
}

type priorityKey struct{}

// WithPriority scopes a priority to ctx. Producers that are not given an
// explicit priority pick this one up before falling back to Default.
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFromContext returns the priority scoped to ctx, if any.
func PriorityFromContext(ctx context.Context) (Priority, bool) {
	if ctx == nil {
		return Default, false
	}
	p, ok := ctx.Value(priorityKey{}).(Priority)
	return p, ok
}

// ResolvePriority picks explicit if set, then the context priority, then Default.
func ResolvePriority(ctx context.Context, explicit *Priority) Priority {
	if explicit != nil {
		return *explicit
	}
	if p, ok := PriorityFromContext(ctx); ok {
		return p
	}
	return Default
}
