package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/tor"
)

// TorTransport routes upstream traffic through an embedded Tor daemon's
// SOCKS port.
type TorTransport struct {
	daemon *tor.Daemon
	logger *slog.Logger
}

// NewTorTransport creates an unstarted Tor transport.
func NewTorTransport(cfg model.TorConfig, logger *slog.Logger) *TorTransport {
	return &TorTransport{
		daemon: tor.NewDaemon(cfg, tor.WithLogger(logger), tor.WithProgress(func(percent int, summary string) {
			logger.Debug("tor bootstrap", slog.Int("percent", percent), slog.String("summary", summary))
		})),
		logger: logger,
	}
}

// Start bootstraps the daemon; it blocks until Connected or a hard error.
func (t *TorTransport) Start(ctx context.Context) error {
	if err := t.daemon.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

// Stop shuts the daemon down.
func (t *TorTransport) Stop() error {
	return t.daemon.Stop()
}

// State returns the daemon's lifecycle state.
func (t *TorTransport) State() model.TransportState {
	return t.daemon.State()
}

// Mode returns the tor route mode.
func (t *TorTransport) Mode() model.RouteMode {
	return model.RouteTor
}

// NewCircuit requests a fresh Tor circuit.
func (t *TorTransport) NewCircuit() error {
	return t.daemon.NewCircuit()
}

// ExitAddress returns the last observed exit address, empty when unknown.
func (t *TorTransport) ExitAddress() string {
	return t.daemon.ExitAddress()
}

// HTTPClient returns a client routed through the daemon's SOCKS port.
func (t *TorTransport) HTTPClient(timeout time.Duration) *http.Client {
	return httpClientThrough(t.Dialer(), timeout)
}

// Dialer returns a SOCKS5 dialer over the daemon, or the direct dialer
// when the daemon is not running. The router never uses the dialer outside
// the Connected state, so the fallback only guards against misuse.
func (t *TorTransport) Dialer() proxy.Dialer {
	addr := t.daemon.SocksAddr()
	if addr == "" {
		return proxy.Direct
	}
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return proxy.Direct
	}
	return dialer
}

// TorOverVPNTransport layers Tor on top of the VPN bridge: the bridge
// connects first, then the daemon routes its own traffic through it.
// From the router's perspective this is indistinguishable from plain Tor.
type TorOverVPNTransport struct {
	vpn *VPNTransport
	tor *TorTransport
}

// NewTorOverVPNTransport creates the layered transport.
func NewTorOverVPNTransport(torCfg model.TorConfig, vpnCfg model.VPNConfig, logger *slog.Logger) *TorOverVPNTransport {
	vpn := NewVPNTransport(vpnCfg, logger)
	torCfg.UpstreamSOCKS = vpn.ProxyAddr()
	return &TorOverVPNTransport{
		vpn: vpn,
		tor: NewTorTransport(torCfg, logger),
	}
}

// Start connects the VPN bridge, then bootstraps Tor through it.
// A bridge failure aborts before Tor is ever spawned.
func (t *TorOverVPNTransport) Start(ctx context.Context) error {
	if err := t.vpn.Start(ctx); err != nil {
		return err
	}
	if err := t.tor.Start(ctx); err != nil {
		_ = t.vpn.Stop() //nolint:errcheck // Best effort unwind
		return err
	}
	return nil
}

// Stop tears down Tor first, then the bridge beneath it.
func (t *TorOverVPNTransport) Stop() error {
	err := t.tor.Stop()
	if verr := t.vpn.Stop(); err == nil {
		err = verr
	}
	return err
}

// State reports the layered state: the route is only Connected when Tor
// is, since all forwarding goes through Tor's SOCKS port.
func (t *TorOverVPNTransport) State() model.TransportState {
	return t.tor.State()
}

// Mode returns the tor-over-vpn route mode.
func (t *TorOverVPNTransport) Mode() model.RouteMode {
	return model.RouteTorOverVPN
}

// NewCircuit requests a fresh Tor circuit.
func (t *TorOverVPNTransport) NewCircuit() error {
	return t.tor.NewCircuit()
}

// ExitAddress returns the last observed Tor exit address.
func (t *TorOverVPNTransport) ExitAddress() string {
	return t.tor.ExitAddress()
}

// HTTPClient returns a client routed through Tor (and therefore the VPN).
func (t *TorOverVPNTransport) HTTPClient(timeout time.Duration) *http.Client {
	return t.tor.HTTPClient(timeout)
}

// Dialer returns Tor's SOCKS dialer.
func (t *TorOverVPNTransport) Dialer() proxy.Dialer {
	return t.tor.Dialer()
}

// CircuitRotator is implemented by transports that can rotate their
// visible exit address on request.
type CircuitRotator interface {
	NewCircuit() error
	ExitAddress() string
}
