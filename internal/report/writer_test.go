package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veilrpc/veilrpc/internal/database"
	"github.com/veilrpc/veilrpc/internal/model"
)

// sampleReport builds a report with one of everything.
func sampleReport() *model.ThreatReport {
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	return &model.ThreatReport{
		GeneratedAt: at,
		Alerts: []model.ReportAlert{
			{
				Type:      model.NotifyDrainerDetected,
				Title:     "Drainer Detected",
				Message:   "full sequence in one session",
				Priority:  model.PriorityUrgent,
				Severity:  "URGENT",
				CreatedAt: at.Add(-time.Hour),
			},
			{
				Type:      model.NotifyRPCFailover,
				Title:     "RPC Failover",
				Message:   "primary unreachable",
				Priority:  model.PriorityNormal,
				Severity:  "NORMAL",
				CreatedAt: at.Add(-2 * time.Hour),
			},
		},
		ReportedDomains: []string{"phantom-wallet.xyz"},
		TrustedDomains:  []string{"my-dapp.example"},
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("summary output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(sampleReport())
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		out := buf.String()
		for _, want := range []string{
			"VeilRPC Threat Report",
			"Drainer Detected",
			"phantom-wallet.xyz",
			"my-dapp.example",
			"1 urgent alert",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("verbose includes history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(sampleReport()); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !strings.Contains(buf.String(), "primary unreachable") {
			t.Errorf("verbose output missing alert message:\n%s", buf.String())
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		rep := &model.ThreatReport{GeneratedAt: time.Now()}
		if _, err := NewSimpleWriter(&buf).Write(rep); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !strings.Contains(buf.String(), "No alerts or reported domains") {
			t.Errorf("empty report output:\n%s", buf.String())
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact round trip", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(sampleReport()); err != nil {
			t.Fatalf("Write: %v", err)
		}

		var parsed model.ThreatReport
		if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(parsed.Alerts) != 2 {
			t.Errorf("alerts = %d, want 2", len(parsed.Alerts))
		}
		if parsed.Alerts[0].Severity != "URGENT" {
			t.Errorf("severity = %q", parsed.Alerts[0].Severity)
		}
	})

	t.Run("pretty print indents", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(sampleReport()); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  ") {
			t.Error("pretty output should be indented")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(sampleReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# VeilRPC Threat Report",
		"## Alert Summary",
		"## Alert History",
		"Drainer Detected",
		"`phantom-wallet.xyz`",
		"`my-dapp.example`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

// errWriter always fails.
type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) { return 0, errors.New("sink closed") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))
		if _, err := mw.Write(sampleReport()); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if a.Len() == 0 || b.Len() == 0 {
			t.Error("both writers should receive output")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		mw := NewMultiWriter(NewJSONWriter(errWriter{}), NewSimpleWriter(&after))
		if _, err := mw.Write(sampleReport()); err == nil {
			t.Fatal("expected error from failing writer")
		}
		if after.Len() != 0 {
			t.Error("writers after the failure must not run")
		}
	})
}

func TestCollect(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.AddReported("evil.example"); err != nil {
		t.Fatalf("AddReported: %v", err)
	}
	if err := db.AddTrusted("good.example"); err != nil {
		t.Fatalf("AddTrusted: %v", err)
	}
	if err := db.RecordAlert(model.Notification{
		Type:     model.NotifyPhishingDetected,
		Title:    "Phishing Detected",
		Message:  "evil.example",
		Priority: model.PriorityUrgent,
	}); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}

	rep, err := Collect(ctx, db, 0)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rep.Alerts) != 1 || rep.Alerts[0].Type != model.NotifyPhishingDetected {
		t.Errorf("alerts = %+v", rep.Alerts)
	}
	if rep.Alerts[0].Severity != "URGENT" {
		t.Errorf("severity = %q, want URGENT", rep.Alerts[0].Severity)
	}
	if len(rep.ReportedDomains) != 1 || rep.ReportedDomains[0] != "evil.example" {
		t.Errorf("reported = %v", rep.ReportedDomains)
	}
	if len(rep.TrustedDomains) != 1 || rep.TrustedDomains[0] != "good.example" {
		t.Errorf("trusted = %v", rep.TrustedDomains)
	}
	if !rep.HasFindings() {
		t.Error("HasFindings should be true")
	}
}
