package indexer

import (
	"sync"
	"time"

	"github.com/Aman-CERP/indexq/internal/job"
)

// Status is the worker's lifecycle state.
type Status string

const (
	// StatusIdle means the worker is waiting for jobs.
	StatusIdle Status = "idle"
	// StatusIndexing means a job is being processed.
	StatusIndexing Status = "indexing"
	// StatusStopped means the worker is not running.
	StatusStopped Status = "stopped"
)

// Result is the outcome of processing one job.
type Result string

const (
	ResultIndexed  Result = "indexed"
	ResultDeleted  Result = "deleted"
	ResultSkipped  Result = "skipped"
	ResultExpanded Result = "expanded"
	ResultFailed   Result = "failed"
)

// ProgressSnapshot is an immutable view of worker progress.
type ProgressSnapshot struct {
	Status         string `json:"status"`
	CurrentJob     string `json:"current_job,omitempty"`
	Processed      uint64 `json:"processed"`
	Indexed        uint64 `json:"indexed"`
	Deleted        uint64 `json:"deleted"`
	Skipped        uint64 `json:"skipped"`
	Expanded       uint64 `json:"expanded"`
	Failed         uint64 `json:"failed"`
	LastError      string `json:"last_error,omitempty"`
	LastErrorJob   string `json:"last_error_job,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
}

// Progress provides thread-safe tracking of worker progress.
type Progress struct {
	mu sync.RWMutex

	status       Status
	current      string
	counts       map[Result]uint64
	lastError    string
	lastErrorJob string
	startTime    time.Time
}

// NewProgress creates a progress tracker for a stopped worker.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusStopped,
		counts:    make(map[Result]uint64),
		startTime: time.Now(),
	}
}

// SetStatus updates the lifecycle state.
func (p *Progress) SetStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = s
	if s != StatusIndexing {
		p.current = ""
	}
}

// Begin marks j as the job in progress.
func (p *Progress) Begin(j *job.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.current = j.String()
}

// Finish records the outcome of the job in progress.
func (p *Progress) Finish(j *job.Job, result Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIdle
	p.current = ""
	p.counts[result]++
	if err != nil {
		p.lastError = err.Error()
		p.lastErrorJob = j.String()
	}
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var processed uint64
	for _, n := range p.counts {
		processed += n
	}
	return ProgressSnapshot{
		Status:         string(p.status),
		CurrentJob:     p.current,
		Processed:      processed,
		Indexed:        p.counts[ResultIndexed],
		Deleted:        p.counts[ResultDeleted],
		Skipped:        p.counts[ResultSkipped],
		Expanded:       p.counts[ResultExpanded],
		Failed:         p.counts[ResultFailed],
		LastError:      p.lastError,
		LastErrorJob:   p.lastErrorJob,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
	}
}
