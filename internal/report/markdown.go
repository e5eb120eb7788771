package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/veilrpc/veilrpc/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

var typeCaser = cases.Title(language.English)

// typeLabel renders a notification type as a readable heading cell.
func typeLabel(t model.NotificationType) string {
	return typeCaser.String(strings.ReplaceAll(strings.ToLower(string(t)), "_", " "))
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ThreatReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeAlerts(md, report)
	w.writeDomains(md, report)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ThreatReport) {
	md.H1("VeilRPC Threat Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Alerts", strconv.Itoa(len(report.Alerts))},
			{"Reported Domains", strconv.Itoa(len(report.ReportedDomains))},
			{"Trusted Domains", strconv.Itoa(len(report.TrustedDomains))},
		},
	})
	md.PlainText("")
}

// writeSummary writes the per-type alert summary and a severity banner.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ThreatReport) {
	md.H2("Alert Summary")
	md.PlainText("")

	if len(report.Alerts) == 0 {
		md.Note("No alerts were delivered in the reporting period.")
		md.PlainText("")
		return
	}

	counts := report.CountByType()
	rows := make([][]string, 0, len(counts))
	for _, typ := range []model.NotificationType{
		model.NotifyPhishingDetected,
		model.NotifyDrainerDetected,
		model.NotifySuspiciousRPC,
		model.NotifyRPCBlocked,
		model.NotifyProxyError,
		model.NotifyRPCFailover,
		model.NotifyRPCAllFailed,
		model.NotifyTransportStatus,
	} {
		if counts[typ] == 0 {
			continue
		}
		rows = append(rows, []string{typeLabel(typ), strconv.Itoa(counts[typ])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Alert Type", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if n := report.UrgentCount(); n > 0 {
		md.Warningf("This report contains %d urgent alert(s). Review the history below.", n)
		md.PlainText("")
	}
}

// writeAlerts writes the alert history table.
func (w *MarkdownWriter) writeAlerts(md *markdown.Markdown, report *model.ThreatReport) {
	if len(report.Alerts) == 0 {
		return
	}

	md.H2("Alert History")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		rows = append(rows, []string{
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			typeLabel(a.Type),
			a.Severity,
			a.Message,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Time", "Type", "Priority", "Message"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDomains writes the domain list sections.
func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, report *model.ThreatReport) {
	md.H2("Reported Phishing Domains")
	md.PlainText("")
	if len(report.ReportedDomains) == 0 {
		md.PlainText("None.")
	} else {
		items := make([]string, 0, len(report.ReportedDomains))
		for _, d := range report.ReportedDomains {
			items = append(items, "`"+d+"`")
		}
		md.BulletList(items...)
	}
	md.PlainText("")

	md.H2("Trusted Domains")
	md.PlainText("")
	if len(report.TrustedDomains) == 0 {
		md.PlainText("None.")
	} else {
		items := make([]string, 0, len(report.TrustedDomains))
		for _, d := range report.TrustedDomains {
			items = append(items, "`"+d+"`")
		}
		md.BulletList(items...)
	}
	md.PlainText("")
}
