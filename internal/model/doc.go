// Package model defines the core data types shared across the relay:
// JSON-RPC envelopes, privacy routes, transport states, domain verdicts,
// drainer warnings, notifications, and proxy statistics.
//
// This package has no dependencies outside the standard library so that
// every other package can import it without cycles.
package model
