// Package tor manages an embedded Tor daemon for the relay's anonymized
// routes.
//
// The Daemon type owns the full lifecycle: it allocates a data directory,
// generates a torrc with cookie authentication, spawns the tor binary,
// parses bootstrap progress from stdout, and completes the control-port
// authentication handshake before reporting the daemon as connected.
//
// The Controller type is a minimal line-oriented control-port client with
// explicit command/response correlation: one CRLF-terminated command out,
// one 250/5xx-terminated reply back. It deliberately avoids ad hoc
// substring checks on the control stream.
package tor
