package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/veilrpc/veilrpc/internal/model"
)

// ErrTransportUnavailable is returned when the configured route cannot
// reach the Connected state at start. It is fatal to proxy startup unless
// fallback-to-direct is configured.
var ErrTransportUnavailable = errors.New("privacy transport unavailable")

// Transport is the forwarding-agent contract every route implements.
//
// Design decision: We use an interface rather than a concrete type because:
//  1. The router must stay transport-agnostic
//  2. Tor-over-VPN composes two transports behind one face
//  3. Tests substitute an instantly-connected fake
type Transport interface {
	// Start brings the transport to Connected, blocking until it is ready
	// or a hard error occurs. Start never leaves partial state behind.
	Start(ctx context.Context) error

	// Stop tears the transport down. Idempotent.
	Stop() error

	// State returns the current lifecycle state. Only Connected permits
	// forwarding.
	State() model.TransportState

	// Mode identifies the route this transport serves.
	Mode() model.RouteMode

	// HTTPClient returns a client that routes through this transport with
	// the given per-request timeout.
	HTTPClient(timeout time.Duration) *http.Client

	// Dialer exposes the underlying dialer for non-HTTP uses.
	Dialer() proxy.Dialer
}

// Resolve maps a PrivacyRoute to its Transport implementation.
// The returned transport has not been started.
func Resolve(route model.PrivacyRoute, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	switch route.Mode {
	case model.RouteTor:
		return NewTorTransport(route.Tor, logger)
	case model.RouteVPN:
		return NewVPNTransport(route.VPN, logger)
	case model.RouteTorOverVPN:
		return NewTorOverVPNTransport(route.Tor, route.VPN, logger)
	default:
		return NewDirectTransport()
	}
}

// httpClientThrough builds an HTTP client whose connections go through the
// given dialer. Upstream RPC endpoints are ordinary HTTPS services, so TLS
// verification stays on; the privacy layer wraps the path, not the trust
// model.
func httpClientThrough(dialer proxy.Dialer, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (conn net.Conn, err error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		// Circuits and VPN tunnels are scarcer than plain sockets; keep
		// the idle pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		// Compressed response sizes are an inference side channel on
		// anonymized paths; the bandwidth saving is not worth it.
		DisableCompression: true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
