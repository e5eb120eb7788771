// Package database provides SQLite-based storage for the relay.
//
// This package implements the ThreatDB, which stores:
//   - User-reported phishing domains
//   - User-trusted (pinned) domains
//   - Delivered alert history for later reporting
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
