package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/veilrpc/veilrpc/internal/model"
)

// dbFileName is the SQLite file name inside the data directory.
const dbFileName = "veilrpc.db"

// ThreatDB provides SQLite-based storage for domain lists and alert
// history. It manages connection pooling and provides methods for CRUD
// operations.
//
// Design decision: We use a single database file for all state rather
// than separate files per concern. The lists are tiny and the alert
// history benefits from living next to the domains it references.
type ThreatDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ThreatDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ThreatDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ThreatDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite uses mode=rw to prevent creating new files and
	// mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection avoids lock
	// contention between the reputation engine and the alert recorder.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	tdb := &ThreatDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := tdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return tdb, nil
}

// Close closes the database connection.
func (tdb *ThreatDB) Close() error {
	return tdb.db.Close()
}

// Path returns the path to the database file.
func (tdb *ThreatDB) Path() string {
	return tdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (tdb *ThreatDB) createTables() error {
	schema := `
	-- Domains the user reported as phishing
	CREATE TABLE IF NOT EXISTS reported_domains (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reported_domain ON reported_domains(domain);

	-- Domains the user explicitly trusts despite a lookalike verdict
	CREATE TABLE IF NOT EXISTS trusted_domains (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trusted_domain ON trusted_domains(domain);

	-- Alerts that were actually delivered to the user
	CREATE TABLE IF NOT EXISTS alert_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		priority INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_type ON alert_history(type);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alert_history(created_at);
	`

	_, err := tdb.db.ExecContext(context.Background(), schema)
	return err
}

// AddReported records a user-reported phishing domain. Re-reporting an
// already known domain is a no-op.
func (tdb *ThreatDB) AddReported(domain string) error {
	return tdb.upsertDomain("reported_domains", domain)
}

// AddTrusted records a user-trusted domain. Re-trusting an already
// known domain is a no-op.
func (tdb *ThreatDB) AddTrusted(domain string) error {
	return tdb.upsertDomain("trusted_domains", domain)
}

func (tdb *ThreatDB) upsertDomain(table, domain string) error {
	if domain == "" {
		return fmt.Errorf("empty domain")
	}
	// Table name comes from the two callers above, never from input.
	query := fmt.Sprintf("INSERT INTO %s (domain) VALUES (?) ON CONFLICT(domain) DO NOTHING", table)
	if _, err := tdb.db.ExecContext(context.Background(), query, domain); err != nil {
		return fmt.Errorf("failed to store domain: %w", err)
	}
	return nil
}

// ReportedDomains returns every reported domain, oldest first.
func (tdb *ThreatDB) ReportedDomains(ctx context.Context) ([]string, error) {
	return tdb.listDomains(ctx, "reported_domains")
}

// TrustedDomains returns every trusted domain, oldest first.
func (tdb *ThreatDB) TrustedDomains(ctx context.Context) ([]string, error) {
	return tdb.listDomains(ctx, "trusted_domains")
}

func (tdb *ThreatDB) listDomains(ctx context.Context, table string) ([]string, error) {
	query := fmt.Sprintf("SELECT domain FROM %s ORDER BY id", table)
	rows, err := tdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate domains: %w", err)
	}
	return domains, nil
}

// RecordAlert stores a delivered notification in the history table.
func (tdb *ThreatDB) RecordAlert(n model.Notification) error {
	query := `
	INSERT INTO alert_history (type, title, message, priority, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	at := n.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := tdb.db.ExecContext(context.Background(), query,
		string(n.Type),
		n.Title,
		n.Message,
		int(n.Priority),
		at.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// AlertRecord is a stored alert history entry.
type AlertRecord struct {
	ID        int64
	Type      model.NotificationType
	Title     string
	Message   string
	Priority  model.Priority
	CreatedAt time.Time
}

// AlertHistory returns up to limit most recent alerts, newest first.
// A non-positive limit returns everything.
func (tdb *ThreatDB) AlertHistory(ctx context.Context, limit int) ([]AlertRecord, error) {
	query := "SELECT id, type, title, message, priority, created_at FROM alert_history ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := tdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []AlertRecord
	for rows.Next() {
		var rec AlertRecord
		var typ, createdAt string
		var priority int
		if err := rows.Scan(&rec.ID, &typ, &rec.Title, &rec.Message, &priority, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert record: %w", err)
		}
		rec.Type = model.NotificationType(typ)
		rec.Priority = model.Priority(priority)
		rec.CreatedAt = parseTimestamp(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert history: %w", err)
	}
	return records, nil
}

// PruneAlerts deletes alert history entries older than the cutoff and
// returns the number removed.
func (tdb *ThreatDB) PruneAlerts(ctx context.Context, before time.Time) (int64, error) {
	result, err := tdb.db.ExecContext(ctx,
		"DELETE FROM alert_history WHERE created_at < ?",
		before.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune alert history: %w", err)
	}
	return result.RowsAffected()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
