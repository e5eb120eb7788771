package model

import "time"

// RouteMode selects the privacy path for upstream traffic.
// Exactly one route is active per running proxy instance; it is chosen at
// start and immutable while the proxy runs.
type RouteMode int

const (
	// RouteDirect forwards upstream traffic without anonymization.
	RouteDirect RouteMode = iota

	// RouteTor forwards through an embedded Tor daemon's SOCKS port.
	RouteTor

	// RouteVPN forwards through a configured SOCKS5 or HTTP-CONNECT proxy,
	// typically exposed by a VPN client.
	RouteVPN

	// RouteTorOverVPN connects the VPN bridge first, then runs Tor on top
	// of it. From the router's perspective this is indistinguishable from
	// plain Tor; the layering is a deployment detail.
	RouteTorOverVPN
)

// String returns the route mode name as used in config files and /status.
func (m RouteMode) String() string {
	switch m {
	case RouteTor:
		return "tor"
	case RouteVPN:
		return "vpn"
	case RouteTorOverVPN:
		return "tor-over-vpn"
	default:
		return "direct"
	}
}

// ParseRouteMode converts a config-file string into a RouteMode.
// Unknown values fall back to direct.
func ParseRouteMode(s string) RouteMode {
	switch s {
	case "tor":
		return RouteTor
	case "vpn":
		return RouteVPN
	case "tor-over-vpn", "torovervpn":
		return RouteTorOverVPN
	default:
		return RouteDirect
	}
}

// TorConfig configures the embedded Tor daemon.
type TorConfig struct {
	// BinaryPath is the tor executable to spawn. Defaults to "tor" on PATH.
	BinaryPath string `yaml:"binaryPath,omitempty"`

	// DataDir is the Tor data directory. When empty a directory under the
	// XDG state dir is allocated.
	DataDir string `yaml:"dataDir,omitempty"`

	// SocksPort is the SOCKS listener port. Zero means OS-assigned.
	SocksPort int `yaml:"socksPort,omitempty"`

	// ControlPort is the control listener port. Zero means OS-assigned.
	ControlPort int `yaml:"controlPort,omitempty"`

	// BootstrapTimeout bounds the bootstrap phase. Exceeding it is a hard
	// failure: the process is killed and Start rejects.
	BootstrapTimeout time.Duration `yaml:"bootstrapTimeout,omitempty"`

	// HiddenServiceTarget, when set, publishes the local listener as a
	// hidden service forwarding to this "host:port". Empty keeps the
	// daemon client-only.
	HiddenServiceTarget string `yaml:"hiddenServiceTarget,omitempty"`

	// UpstreamSOCKS routes the daemon's own traffic through a SOCKS5
	// proxy at "host:port". Set programmatically by the tor-over-vpn
	// route; never read from config files.
	UpstreamSOCKS string `yaml:"-"`
}

// VPNConfig configures the SOCKS5/HTTP-CONNECT bridge.
type VPNConfig struct {
	// Host and Port locate the proxy endpoint. Reachability is validated
	// with a short TCP probe before the route is considered Connected.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Protocol is "socks5" (default) or "http" for HTTP-CONNECT.
	Protocol string `yaml:"protocol,omitempty"`

	// Username and Password are optional proxy credentials.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// PrivacyRoute is the tagged route variant: the mode plus the config for
// the sub-transports that mode requires.
type PrivacyRoute struct {
	Mode RouteMode
	Tor  TorConfig
	VPN  VPNConfig

	// FallbackToDirect permits the proxy to start with a direct route when
	// the configured transport cannot reach Connected. When false, start
	// fails instead; the server never listens with a half-configured route.
	FallbackToDirect bool
}

// TransportState is the lifecycle state of a privacy transport.
// Only Connected permits forwarding through that transport.
type TransportState int

const (
	// StateDisconnected is the initial and final state.
	StateDisconnected TransportState = iota
	// StateConnecting means the transport is establishing its link.
	StateConnecting
	// StateBootstrapping means Tor is building its first circuits.
	StateBootstrapping
	// StateConnected means the transport is ready to forward.
	StateConnected
	// StateError means the transport failed and must be restarted.
	StateError
)

// String returns a human-readable representation of the state.
func (s TransportState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBootstrapping:
		return "bootstrapping"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// CanTransition reports whether moving from s to next is a legal state
// machine transition: Disconnected → Connecting → Bootstrapping →
// Connected → {Error, Disconnected}.
func (s TransportState) CanTransition(next TransportState) bool {
	switch s {
	case StateDisconnected:
		return next == StateConnecting
	case StateConnecting:
		return next == StateBootstrapping || next == StateConnected ||
			next == StateError || next == StateDisconnected
	case StateBootstrapping:
		return next == StateConnected || next == StateError || next == StateDisconnected
	case StateConnected:
		return next == StateError || next == StateDisconnected
	case StateError:
		return next == StateDisconnected
	default:
		return false
	}
}
