// Package ui renders reindex drain progress and service status for the
// terminal. Interactive terminals get a bubbletea view; pipes, CI and
// --plain get line-oriented text.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of a reindex as seen from the CLI.
type Stage int

const (
	// StageSubmitting is sending the rebuild request.
	StageSubmitting Stage = iota
	// StageDraining is waiting for the service queue to empty.
	StageDraining
	// StageComplete means the queue drained.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageSubmitting:
		return "Submitting"
	case StageDraining:
		return "Draining"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageSubmitting:
		return "SUBMIT"
	case StageDraining:
		return "DRAIN"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one observation of the draining queue. Processed counts
// jobs finished since the reindex started; Remaining is the queue size.
type ProgressEvent struct {
	Stage      Stage
	Processed  int
	Remaining  int
	Failed     int
	CurrentJob string
	Message    string
}

// ErrorEvent is a job failure reported by the service.
type ErrorEvent struct {
	Job    string
	Err    error
	IsWarn bool
}

// CompletionStats summarises a finished reindex.
type CompletionStats struct {
	Scopes    []string
	Processed int
	Indexed   int
	Deleted   int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// Renderer displays reindex progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the TUI header, e.g. the rebuilt scope.
	Title string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the TUI header.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a Config for output. NO_COLOR is honoured by default.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:  output,
		NoColor: DetectNoColor(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks the TUI for interactive terminals and plain text for
// CI, pipes or when forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
