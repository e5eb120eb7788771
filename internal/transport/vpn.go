package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/veilrpc/veilrpc/internal/model"
)

// probeTimeout bounds the reachability check against the VPN proxy
// endpoint. This is a local or near-local hop; a slow answer means the
// bridge is not usable.
const probeTimeout = 5 * time.Second

// VPNTransport bridges upstream traffic through a SOCKS5 or HTTP-CONNECT
// proxy, typically one exposed by a running VPN client.
//
// There is no bootstrap phase: a successful TCP probe of the proxy
// endpoint moves the transport straight to Connected.
type VPNTransport struct {
	cfg    model.VPNConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  model.TransportState
	dialer proxy.Dialer
}

// NewVPNTransport creates an unstarted VPN transport.
func NewVPNTransport(cfg model.VPNConfig, logger *slog.Logger) *VPNTransport {
	if cfg.Protocol == "" {
		cfg.Protocol = "socks5"
	}
	return &VPNTransport{
		cfg:    cfg,
		logger: logger,
		state:  model.StateDisconnected,
	}
}

// Start probes the proxy endpoint and builds the forwarding dialer.
func (t *VPNTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	t.state = model.StateConnecting
	t.mu.Unlock()

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	// Short TCP probe: the bridge must at least accept connections before
	// the route is considered usable.
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.mu.Lock()
		t.state = model.StateError
		t.mu.Unlock()
		return fmt.Errorf("%w: vpn proxy %s: %v", ErrTransportUnavailable, addr, err)
	}
	_ = conn.Close() //nolint:errcheck // Probe connection only

	dialer, err := t.buildDialer(addr)
	if err != nil {
		t.mu.Lock()
		t.state = model.StateError
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.dialer = dialer
	t.state = model.StateConnected
	t.mu.Unlock()

	t.logger.Debug("vpn bridge connected",
		slog.String("proxy", addr),
		slog.String("protocol", t.cfg.Protocol))
	return nil
}

// buildDialer constructs the protocol-appropriate dialer, with credentials
// when configured.
func (t *VPNTransport) buildDialer(addr string) (proxy.Dialer, error) {
	switch t.cfg.Protocol {
	case "http":
		return &httpConnectDialer{
			proxyAddr: addr,
			username:  t.cfg.Username,
			password:  t.cfg.Password,
		}, nil
	default:
		var auth *proxy.Auth
		if t.cfg.Username != "" {
			auth = &proxy.Auth{User: t.cfg.Username, Password: t.cfg.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		return dialer, nil
	}
}

// Stop marks the transport disconnected. The dialer holds no long-lived
// connections of its own.
func (t *VPNTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = model.StateDisconnected
	t.dialer = nil
	return nil
}

// State returns the current lifecycle state.
func (t *VPNTransport) State() model.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Mode returns the vpn route mode.
func (t *VPNTransport) Mode() model.RouteMode {
	return model.RouteVPN
}

// ProxyAddr returns the configured bridge endpoint as "host:port".
func (t *VPNTransport) ProxyAddr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// HTTPClient returns a client routed through the bridge.
func (t *VPNTransport) HTTPClient(timeout time.Duration) *http.Client {
	return httpClientThrough(t.Dialer(), timeout)
}

// Dialer returns the bridge dialer, or the direct dialer before Start.
func (t *VPNTransport) Dialer() proxy.Dialer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialer == nil {
		return proxy.Direct
	}
	return t.dialer
}

// httpConnectDialer tunnels TCP through an HTTP proxy's CONNECT verb.
//
// x/net/proxy has no HTTP-CONNECT dialer, so this implements the minimal
// exchange: one CONNECT request, one status line, then the raw stream.
type httpConnectDialer struct {
	proxyAddr string
	username  string
	password  string
}

// Dial establishes a tunneled connection to addr.
func (d *httpConnectDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := net.DialTimeout(network, d.proxyAddr, probeTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to reach http proxy: %w", err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", addr, addr)
	if d.username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(d.username + ":" + d.password))
		req += "Proxy-Authorization: Basic " + cred + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		_ = conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("failed to send CONNECT: %w", err)
	}

	// Read the status line and drain headers up to the blank line.
	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		_ = conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	var proto string
	var code int
	if _, err := fmt.Sscanf(status, "%s %d", &proto, &code); err != nil || code != http.StatusOK {
		_ = conn.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("http proxy refused CONNECT: %s", status)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			_ = conn.Close() //nolint:errcheck // Already failing
			return nil, fmt.Errorf("failed to read CONNECT headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	// Buffered bytes would be lost if we returned conn directly; after the
	// blank line the buffer should be empty for a compliant proxy.
	if reader.Buffered() > 0 {
		return &bufferedConn{Conn: conn, reader: reader}, nil
	}
	return conn, nil
}

// bufferedConn keeps response bytes that arrived with the CONNECT reply.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

// Read drains the buffer before touching the socket.
func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

// ProbeEndpoint checks a (host, port) for TCP reachability without
// constructing a transport. Used by diagnostics.
func ProbeEndpoint(ctx context.Context, host string, port int) error {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}
