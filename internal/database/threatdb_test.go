package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veilrpc/veilrpc/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *ThreatDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, dbFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false requires existing database", func(t *testing.T) {
		t.Parallel()

		opts := DefaultOptions()
		opts.CreateIfNotExists = false
		if _, err := Open(filepath.Join(t.TempDir(), "missing"), opts); err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if err := db.AddReported("evil.example"); err != nil {
			t.Fatalf("failed to add domain: %v", err)
		}
		_ = db.Close()

		opts := DefaultOptions()
		opts.CreateIfNotExists = false
		db2, err := Open(dir, opts)
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db2.Close()

		domains, err := db2.ReportedDomains(context.Background())
		if err != nil {
			t.Fatalf("failed to list domains: %v", err)
		}
		if len(domains) != 1 || domains[0] != "evil.example" {
			t.Errorf("unexpected domains after reopen: %v", domains)
		}
	})
}

// TestDomainLists tests the reported and trusted domain tables.
func TestDomainLists(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("reported domains round trip", func(t *testing.T) {
		if err := db.AddReported("phantom-wallet.xyz"); err != nil {
			t.Fatalf("AddReported: %v", err)
		}
		if err := db.AddReported("so1flare.com"); err != nil {
			t.Fatalf("AddReported: %v", err)
		}
		// Duplicate is a no-op, not an error.
		if err := db.AddReported("phantom-wallet.xyz"); err != nil {
			t.Fatalf("duplicate AddReported: %v", err)
		}

		domains, err := db.ReportedDomains(ctx)
		if err != nil {
			t.Fatalf("ReportedDomains: %v", err)
		}
		want := []string{"phantom-wallet.xyz", "so1flare.com"}
		if len(domains) != len(want) {
			t.Fatalf("got %v, want %v", domains, want)
		}
		for i := range want {
			if domains[i] != want[i] {
				t.Errorf("domains[%d] = %q, want %q", i, domains[i], want[i])
			}
		}
	})

	t.Run("trusted domains are separate", func(t *testing.T) {
		if err := db.AddTrusted("my-dapp.example"); err != nil {
			t.Fatalf("AddTrusted: %v", err)
		}
		trusted, err := db.TrustedDomains(ctx)
		if err != nil {
			t.Fatalf("TrustedDomains: %v", err)
		}
		if len(trusted) != 1 || trusted[0] != "my-dapp.example" {
			t.Errorf("unexpected trusted list: %v", trusted)
		}
	})

	t.Run("empty domain rejected", func(t *testing.T) {
		if err := db.AddReported(""); err == nil {
			t.Error("expected error for empty domain")
		}
	})
}

// TestAlertHistory tests recording and querying delivered alerts.
func TestAlertHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	notifications := []model.Notification{
		{Type: model.NotifyPhishingDetected, Title: "Phishing Detected", Message: "lookalike of phantom.app", Priority: model.PriorityUrgent, Timestamp: base},
		{Type: model.NotifyRPCFailover, Title: "RPC Failover", Message: "primary unreachable", Priority: model.PriorityNormal, Timestamp: base.Add(time.Minute)},
		{Type: model.NotifyDrainerDetected, Title: "Drainer Detected", Message: "full sequence observed", Priority: model.PriorityUrgent, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, n := range notifications {
		if err := db.RecordAlert(n); err != nil {
			t.Fatalf("RecordAlert: %v", err)
		}
	}

	t.Run("newest first with limit", func(t *testing.T) {
		records, err := db.AlertHistory(ctx, 2)
		if err != nil {
			t.Fatalf("AlertHistory: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if records[0].Type != model.NotifyDrainerDetected {
			t.Errorf("records[0].Type = %v, want drainer", records[0].Type)
		}
		if records[1].Type != model.NotifyRPCFailover {
			t.Errorf("records[1].Type = %v, want failover", records[1].Type)
		}
		if records[0].Priority != model.PriorityUrgent {
			t.Errorf("priority round trip failed: %v", records[0].Priority)
		}
		if records[0].CreatedAt.IsZero() {
			t.Error("created_at should parse to a non-zero time")
		}
	})

	t.Run("no limit returns everything", func(t *testing.T) {
		records, err := db.AlertHistory(ctx, 0)
		if err != nil {
			t.Fatalf("AlertHistory: %v", err)
		}
		if len(records) != 3 {
			t.Errorf("got %d records, want 3", len(records))
		}
	})

	t.Run("prune removes old entries", func(t *testing.T) {
		removed, err := db.PruneAlerts(ctx, base.Add(90*time.Second))
		if err != nil {
			t.Fatalf("PruneAlerts: %v", err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}
		records, err := db.AlertHistory(ctx, 0)
		if err != nil {
			t.Fatalf("AlertHistory: %v", err)
		}
		if len(records) != 1 || records[0].Type != model.NotifyDrainerDetected {
			t.Errorf("unexpected survivors: %+v", records)
		}
	})
}

// TestParseTimestamp tests the SQLite timestamp format fallback chain.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		zero  bool
	}{
		{"2026-02-10 12:00:00", false},
		{"2026-02-10T12:00:00Z", false},
		{"2026-02-10T12:00:00", false},
		{"2026-02-10 12:00:00.123", false},
		{"not a timestamp", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got := parseTimestamp(tt.input)
			if got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q).IsZero() = %v, want %v", tt.input, got.IsZero(), tt.zero)
			}
		})
	}
}
