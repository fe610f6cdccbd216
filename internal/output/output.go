// Package output formats one-shot CLI command output.
package output

import (
	"fmt"
	"io"

	"github.com/Aman-CERP/indexq/internal/ui"
)

// Writer prints status lines and search results.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Color follows NO_COLOR.
func New(out io.Writer) *Writer {
	return NewWithColor(out, !ui.DetectNoColor())
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{
		out:    out,
		styles: ui.GetStyles(!color),
	}
}

// Status prints a message behind an icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// KeyValue prints an indented, aligned label.
func (w *Writer) KeyValue(label string, value any) {
	_, _ = fmt.Fprintf(w.out, "   %s %v\n", w.styles.Label.Render(fmt.Sprintf("%-10s", label+":")), value)
}

// Hit prints one ranked search result.
func (w *Writer) Hit(rank int, ref, title string, score float64) {
	_, _ = fmt.Fprintf(w.out, "%3d. %s  %s %s\n",
		rank,
		w.styles.Active.Render(ref),
		title,
		w.styles.Dim.Render(fmt.Sprintf("(%.2f)", score)))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
