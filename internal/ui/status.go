package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
)

// StatusInfo is what `indexq status` reports.
type StatusInfo struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Uptime  string `json:"uptime,omitempty"`

	Backend   string `json:"backend,omitempty"`
	Documents int    `json:"documents"`

	QueueSize        int            `json:"queue_size"`
	QueueCapacity    int            `json:"queue_capacity"`
	Pending          map[string]int `json:"pending,omitempty"`
	WaitingProducers map[string]int `json:"waiting_producers,omitempty"`

	WorkerStatus string `json:"worker_status,omitempty"`
	CurrentJob   string `json:"current_job,omitempty"`
	Processed    uint64 `json:"processed"`
	Indexed      uint64 `json:"indexed"`
	Deleted      uint64 `json:"deleted"`
	Skipped      uint64 `json:"skipped"`
	Failed       uint64 `json:"failed"`
	LastError    string `json:"last_error,omitempty"`
	LastErrorJob string `json:"last_error_job,omitempty"`
}

// priorityOrder lists named levels most urgent first. Other keys follow in
// lexical order.
var priorityOrder = []string{"highest", "high", "default", "low", "lowest"}

// StatusRenderer prints service status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render prints a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	if !info.Running {
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Header.Render("indexq:"), r.styles.Warning.Render("not running"))
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "%s %s (pid %d, up %s)\n\n",
		r.styles.Header.Render("indexq:"), r.styles.Success.Render("running"), info.PID, info.Uptime)

	_, _ = fmt.Fprintln(r.out, "  Index:")
	_, _ = fmt.Fprintf(r.out, "    Backend:   %s\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "    Documents: %d\n", info.Documents)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Queue:")
	_, _ = fmt.Fprintf(r.out, "    Size:      %d / %d\n", info.QueueSize, info.QueueCapacity)
	if line := formatCounts(info.Pending); line != "" {
		_, _ = fmt.Fprintf(r.out, "    Pending:   %s\n", line)
	}
	if line := formatCounts(info.WaitingProducers); line != "" {
		_, _ = fmt.Fprintf(r.out, "    Waiting:   %s\n", r.styles.Warning.Render(line))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Worker:")
	_, _ = fmt.Fprintf(r.out, "    Status:    %s\n", r.renderStatus(info.WorkerStatus))
	if info.CurrentJob != "" {
		_, _ = fmt.Fprintf(r.out, "    Current:   %s\n", info.CurrentJob)
	}
	_, _ = fmt.Fprintf(r.out, "    Processed: %d (%d indexed, %d deleted, %d unchanged)\n",
		info.Processed, info.Indexed, info.Deleted, info.Skipped)
	if info.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, "    Failed:    %s\n", r.styles.Error.Render(fmt.Sprintf("%d", info.Failed)))
	}
	if info.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "    Last error: %s: %s\n", info.LastErrorJob, r.styles.Error.Render(info.LastError))
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "indexing":
		return r.styles.Active.Render(status)
	case "idle":
		return r.styles.Success.Render(status)
	case "stopped":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// formatCounts renders non-zero counts as "high=2 low=10".
func formatCounts(counts map[string]int) string {
	var parts []string
	seen := make(map[string]bool, len(counts))
	for _, name := range priorityOrder {
		seen[name] = true
		if n := counts[name]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, n))
		}
	}
	var rest []string
	for name, n := range counts {
		if !seen[name] && n > 0 {
			rest = append(rest, fmt.Sprintf("%s=%d", name, n))
		}
	}
	slices.Sort(rest)
	return strings.Join(append(parts, rest...), " ")
}
