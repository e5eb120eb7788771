// Package log provides slog-based logging with automatic masking of
// wallet-sensitive material.
//
// A relay sits between a wallet and its RPC endpoints, so log records can
// accidentally carry seed phrases, private keys, or credential-bearing RPC
// URLs. Every logger built here wraps the underlying handler in a
// SecureHandler that masks such values before they reach any output.
package log
