package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoPrimaryRPC is returned when no primary upstream endpoint is set.
	// The relay cannot forward anything without at least one endpoint.
	ErrNoPrimaryRPC = errors.New("no primary RPC endpoint specified")

	// ErrNotLoopback is returned when the listen address is not a loopback
	// address. Loopback-only binding is a policy invariant of the relay,
	// not a tunable.
	ErrNotLoopback = errors.New("listen address must be a loopback address (127.0.0.1 or ::1)")

	// ErrInvalidTimeout is returned when a hop timeout is not positive.
	// A timeout of zero or negative would cause immediate forward failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidVPNEndpoint is returned when the VPN route is selected but
	// no proxy host/port is configured.
	ErrInvalidVPNEndpoint = errors.New("vpn route selected but no proxy host:port configured")

	// ErrInvalidMaxPerMinute is returned when the alert rate cap is not
	// positive. A cap of zero would silence every notification.
	ErrInvalidMaxPerMinute = errors.New("invalid alert rate cap: must be positive")

	// ErrInvalidOnionEndpoint is returned when an upstream endpoint is a
	// .onion address that fails v3 checksum validation. A mistyped onion
	// address would otherwise surface only as an opaque connect failure
	// after Tor bootstraps.
	ErrInvalidOnionEndpoint = errors.New("invalid v3 onion address in upstream endpoint")

	// ErrOnionRequiresTor is returned when a .onion upstream endpoint is
	// configured on a route that cannot reach hidden services.
	ErrOnionRequiresTor = errors.New("onion upstream endpoint requires a tor or tor-over-vpn route")

	// ErrInvalidCommitment is returned when the commitment level is not
	// one of the levels upstream endpoints understand.
	ErrInvalidCommitment = errors.New("invalid commitment level: must be processed, confirmed, or finalized")
)
