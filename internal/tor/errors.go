package tor

import "errors"

// Tor lifecycle and control-protocol errors.
//
// Design decision: We define specific error types rather than wrapping all
// errors generically. This allows callers to handle different failure modes
// appropriately (e.g., fall back to a direct route on bootstrap timeout,
// but fail fast on a control authentication failure).
var (
	// ErrBootstrapTimeout is returned when the daemon does not reach 100%
	// bootstrap within the configured budget. The process is killed before
	// this error is returned; there is no partially-running state.
	ErrBootstrapTimeout = errors.New("tor bootstrap timed out")

	// ErrControlProtocol is returned when the control port replies with a
	// non-250 status to a command, including a failed AUTHENTICATE.
	ErrControlProtocol = errors.New("tor control protocol error")

	// ErrCookieUnavailable is returned when the cookie-auth file cannot be
	// read after the retry window. Tor writes the cookie shortly after the
	// control listener opens, so persistent absence means misconfiguration.
	ErrCookieUnavailable = errors.New("tor control auth cookie unavailable")

	// ErrNotRunning is returned for operations that require a connected
	// daemon, such as requesting a new circuit.
	ErrNotRunning = errors.New("tor daemon is not running")

	// ErrAlreadyRunning is returned when Start is called on a daemon that
	// already has a live process. Bootstrap attempts are never concurrent.
	ErrAlreadyRunning = errors.New("tor daemon is already running")

	// ErrInvalidOnionAddress is returned when a configured hidden-service
	// or onion target fails v3 address validation.
	ErrInvalidOnionAddress = errors.New("invalid v3 onion address")
)
