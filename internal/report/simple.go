package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/veilrpc/veilrpc/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// verbose enables the full alert history instead of the summary.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with the full alert history.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.ThreatReport) (int, error) {
	var sb strings.Builder

	sb.WriteString("VeilRPC Threat Report\n")
	sb.WriteString("=====================\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	if !report.HasFindings() {
		sb.WriteString("No alerts or reported domains on record.\n")
		return io.WriteString(w.output, sb.String())
	}

	sb.WriteString("Alerts by type:\n")
	counts := report.CountByType()
	if len(counts) == 0 {
		sb.WriteString("  (none)\n")
	}
	for typ, count := range counts {
		fmt.Fprintf(&sb, "  %-20s %d\n", typeLabel(typ), count)
	}
	if n := report.UrgentCount(); n > 0 {
		fmt.Fprintf(&sb, "  %d urgent alert(s)\n", n)
	}
	sb.WriteString("\n")

	if w.verbose && len(report.Alerts) > 0 {
		sb.WriteString("Alert history (newest first):\n")
		for _, a := range report.Alerts {
			fmt.Fprintf(&sb, "  [%s] %-8s %s: %s\n",
				a.CreatedAt.Format("2006-01-02 15:04"), a.Severity, a.Title, a.Message)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Reported phishing domains (%d):\n", len(report.ReportedDomains))
	for _, d := range report.ReportedDomains {
		fmt.Fprintf(&sb, "  %s\n", d)
	}
	if len(report.ReportedDomains) == 0 {
		sb.WriteString("  (none)\n")
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Trusted domains (%d):\n", len(report.TrustedDomains))
	for _, d := range report.TrustedDomains {
		fmt.Fprintf(&sb, "  %s\n", d)
	}
	if len(report.TrustedDomains) == 0 {
		sb.WriteString("  (none)\n")
	}

	return io.WriteString(w.output, sb.String())
}
