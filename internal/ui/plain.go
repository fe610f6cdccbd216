package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer writes one line per change (for CI and pipes).
type PlainRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last ProgressEvent
	seen bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Repeated identical observations are
// not printed, so polling an idle queue stays quiet.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen && event == r.last {
		return
	}
	r.last, r.seen = event, true

	switch {
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	case event.Stage == StageDraining:
		line := fmt.Sprintf("[%s] %d processed, %d queued", event.Stage.Icon(), event.Processed, event.Remaining)
		if event.Failed > 0 {
			line += fmt.Sprintf(", %d failed", event.Failed)
		}
		if event.CurrentJob != "" {
			line += " - " + event.CurrentJob
		}
		_, _ = fmt.Fprintln(r.out, line)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Job != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Job, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d jobs in %s (%d indexed, %d deleted, %d unchanged)",
		stats.Processed, stats.Duration.Round(100*time.Millisecond), stats.Indexed, stats.Deleted, stats.Skipped)
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d failed", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)
	if len(stats.Scopes) > 0 {
		_, _ = fmt.Fprintf(r.out, "Scopes: %s\n", strings.Join(stats.Scopes, ", "))
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
