package report

import (
	"context"
	"io"
	"time"

	"github.com/veilrpc/veilrpc/internal/database"
	"github.com/veilrpc/veilrpc/internal/model"
)

// Writer defines the interface for report output.
// Implementations write threat reports in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.ThreatReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.ThreatReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Collect assembles a threat report from the database. A non-positive
// limit includes the full alert history.
func Collect(ctx context.Context, db *database.ThreatDB, limit int) (*model.ThreatReport, error) {
	history, err := db.AlertHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	reported, err := db.ReportedDomains(ctx)
	if err != nil {
		return nil, err
	}
	trusted, err := db.TrustedDomains(ctx)
	if err != nil {
		return nil, err
	}

	rep := &model.ThreatReport{
		GeneratedAt:     time.Now(),
		Alerts:          make([]model.ReportAlert, 0, len(history)),
		ReportedDomains: reported,
		TrustedDomains:  trusted,
	}
	for _, rec := range history {
		rep.Alerts = append(rep.Alerts, model.ReportAlert{
			Type:      rec.Type,
			Title:     rec.Title,
			Message:   rec.Message,
			Priority:  rec.Priority,
			Severity:  rec.Priority.String(),
			CreatedAt: rec.CreatedAt,
		})
	}
	return rep, nil
}
