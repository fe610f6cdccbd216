package ui

import (
	"sync"
	"time"
)

// speedInterval is the minimum gap between throughput samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker accumulates drain observations. The total amount of work
// is unknown up front because scope jobs expand while draining, so progress
// is processed / (processed + remaining) at each observation.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu  sync.Mutex
	now func() time.Time

	stage      Stage
	processed  int
	remaining  int
	failed     int
	currentJob string
	startTime  time.Time
	errors     []ErrorEvent
	warnings   []ErrorEvent

	lastProcessed int
	lastSample    time.Time
	currentSpeed  float64
	avgSpeed      float64
	peakSpeed     float64
	samples       int
	sparkline     *Sparkline
}

// SpeedStats are jobs per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage      Stage
	Processed  int
	Remaining  int
	Failed     int
	Progress   float64
	ETA        time.Duration
	Elapsed    time.Duration
	CurrentJob string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewProgressTracker creates a tracker starting now.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	start := now()
	return &ProgressTracker{
		now:        now,
		stage:      StageSubmitting,
		startTime:  start,
		lastSample: start,
		sparkline:  NewSparkline(60),
	}
}

// Update records an observation.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = event.Stage
	p.processed = event.Processed
	p.remaining = event.Remaining
	p.failed = event.Failed
	if event.CurrentJob != "" {
		p.currentJob = event.CurrentJob
	}

	now := p.now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedInterval {
		return
	}
	if delta := p.processed - p.lastProcessed; delta >= 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed
		p.samples++
		if p.samples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
		p.peakSpeed = max(p.peakSpeed, speed)
		p.sparkline.Add(speed)
	}
	p.lastProcessed = p.processed
	p.lastSample = now
}

// AddError records a failure or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:      p.stage,
		Processed:  p.processed,
		Remaining:  p.remaining,
		Failed:     p.failed,
		Progress:   p.progressLocked(),
		ETA:        p.etaLocked(),
		Elapsed:    p.now().Sub(p.startTime),
		CurrentJob: p.currentJob,
		ErrorCount: len(p.errors),
		WarnCount:  len(p.warnings),
		Speed: SpeedStats{
			Current: p.currentSpeed,
			Avg:     p.avgSpeed,
			Peak:    p.peakSpeed,
		},
	}
}

func (p *ProgressTracker) progressLocked() float64 {
	if p.stage == StageComplete {
		return 1
	}
	total := p.processed + p.remaining
	if total == 0 {
		return 0
	}
	return float64(p.processed) / float64(total)
}

func (p *ProgressTracker) etaLocked() time.Duration {
	if p.remaining == 0 || p.avgSpeed <= 0 {
		return 0
	}
	return time.Duration(float64(p.remaining) / p.avgSpeed * float64(time.Second))
}

// Errors returns the recorded failures.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// RenderSparkline draws recent throughput.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}
