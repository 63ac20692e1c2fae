package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
)

var (
	stageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true) // cyan
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))            // green
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)  // red
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))             // gray
	labelStyle = lipgloss.NewStyle().Bold(true)
)

// TextReporter writes operator-facing progress lines.
type TextReporter struct {
	w     io.Writer
	color bool
}

// NewTextReporter creates a text reporter.
// If w is nil, defaults to os.Stderr so the runtime keeps stdout to itself.
// color enables styling.
func NewTextReporter(w io.Writer, color bool) *TextReporter {
	if w == nil {
		w = os.Stderr
	}
	return &TextReporter{w: w, color: color}
}

// Stage announces a pipeline stage.
func (r *TextReporter) Stage(format string, args ...any) {
	fmt.Fprintf(r.w, "%s %s\n", r.style(stageStyle, "==>"), fmt.Sprintf(format, args...))
}

// Done reports a completed step.
func (r *TextReporter) Done(format string, args ...any) {
	fmt.Fprintf(r.w, "%s %s\n", r.style(doneStyle, "✓"), fmt.Sprintf(format, args...))
}

// Warn reports something the operator should notice but that does not stop
// the pipeline.
func (r *TextReporter) Warn(format string, args ...any) {
	fmt.Fprintln(r.w, r.style(warnStyle, "! "+fmt.Sprintf(format, args...)))
}

// Failure reports the error that ended the pipeline. Multi-line errors
// (compiler output) keep their first line highlighted and the rest dimmed.
func (r *TextReporter) Failure(err error) {
	head, rest, _ := strings.Cut(err.Error(), "\n")
	fmt.Fprintln(r.w, r.style(errStyle, "✗ "+head))
	if rest != "" {
		fmt.Fprintln(r.w, r.style(dimStyle, rest))
	}
}

// Decision reports what happens to the runtime.
func (r *TextReporter) Decision(d cache.Decision) {
	switch d.Action {
	case cache.Reuse:
		r.Done("runtime up to date")
	default:
		r.Stage("Building Pumpkin runtime (%s)", d.Reason)
	}
}

// ServerStarting is printed right before the runtime takes over the terminal.
func (r *TextReporter) ServerStarting() {
	fmt.Fprintln(r.w, r.style(doneStyle.Bold(true), "Server is starting... (Press Ctrl+C to stop)"))
}

// ServerStopped reports how the runtime exited.
func (r *TextReporter) ServerStopped(code int) {
	if code == 0 {
		fmt.Fprintln(r.w, r.style(doneStyle, "Server stopped successfully"))
		return
	}
	fmt.Fprintln(r.w, r.style(errStyle, fmt.Sprintf("Server stopped with exit code %d", code)))
}

// PrintStatus writes the status of a project's run directory.
func (r *TextReporter) PrintStatus(s *Status) {
	r.field("project", fmt.Sprintf("%s (%s)", s.Project, s.Manifest))
	r.field("run dir", s.RunDir)
	r.field("runtime", s.Key)
	r.field("source", s.SourceDir)

	switch {
	case s.Runtime.Valid && s.Runtime.Action == cache.Reuse.String():
		r.field("cache", r.style(doneStyle, "valid"))
	case s.Runtime.Valid:
		r.field("cache", r.style(warnStyle, "stale: "+s.Runtime.Reason))
	default:
		r.field("cache", r.style(warnStyle, "invalid: "+s.Runtime.Reason))
	}
	if s.Runtime.Commit != "" {
		r.field("commit", s.Runtime.Commit)
	}
	if s.Runtime.Digest != "" {
		r.field("digest", s.Runtime.Digest)
	}
	if !s.Runtime.BuiltAt.IsZero() {
		r.field("built", s.Runtime.BuiltAt.Local().Format(time.DateTime))
	}

	if s.PluginArtifact != "" {
		r.field("plugin", s.PluginArtifact)
	} else {
		r.field("plugin", r.style(dimStyle, "not built"))
	}

	if s.Lock != nil {
		r.field("locked", fmt.Sprintf("pid %d (%s) since %s",
			s.Lock.PID, s.Lock.Command, s.Lock.StartedAt.Local().Format(time.DateTime)))
	}
}

func (r *TextReporter) field(label, value string) {
	fmt.Fprintf(r.w, "%s %s\n", r.style(labelStyle, fmt.Sprintf("%-8s", label)), value)
}

func (r *TextReporter) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}
