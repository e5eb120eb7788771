package config

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/tor"
)

// Default configuration values.
// These values are chosen around typical wallet RPC behavior and Tor
// network characteristics.
const (
	// DefaultListenAddress is where the relay accepts wallet traffic.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution overhead
	// and potential issues with IPv6 resolution on some systems. Port 8899
	// matches the conventional local Solana RPC port, so wallets can be
	// pointed at the relay without changing their port expectations.
	DefaultListenAddress = "127.0.0.1:8899"

	// DefaultPrimaryRPC is the default upstream endpoint.
	DefaultPrimaryRPC = "https://api.mainnet-beta.solana.com"

	// DefaultDirectTimeout is the per-hop forward timeout on a direct route.
	DefaultDirectTimeout = 15 * time.Second

	// DefaultPrivateTimeout is the per-hop forward timeout when routed
	// through Tor or a VPN bridge. Anonymized paths add multiple relay
	// hops, so this is deliberately more generous than the direct timeout.
	DefaultPrivateTimeout = 60 * time.Second

	// DefaultBootstrapTimeout bounds the embedded Tor bootstrap phase.
	// Bootstrap typically completes in well under a minute on a healthy
	// network; three minutes covers slow first starts that must download
	// directory information.
	DefaultBootstrapTimeout = 3 * time.Minute

	// DefaultMaxAlertsPerMinute is the global notification rate cap shared
	// across all notification types.
	DefaultMaxAlertsPerMinute = 5

	// DefaultActivityCooldown is the per-type cooldown for suspicious
	// activity notifications (SUSPICIOUS_RPC, RPC_BLOCKED). Drainer rules
	// re-evaluate on every qualifying call, so without this cooldown one
	// attack session would emit a notification per RPC call.
	DefaultActivityCooldown = 30 * time.Second

	// DefaultErrorCooldown is the per-type cooldown for proxy errors.
	DefaultErrorCooldown = 10 * time.Second

	// AppName is the application name used for XDG directory paths.
	AppName = "veilrpc"
)

// Config holds all configuration options for the relay.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The number of options is manageable, and nesting would
// add complexity without significant benefit.
type Config struct {
	// ListenAddress is the local address the relay binds. Must be loopback.
	ListenAddress string

	// PrimaryRPC is the first upstream endpoint tried for every forward.
	PrimaryRPC string

	// FallbackRPCs are tried in declared order after the primary fails.
	FallbackRPCs []string

	// RouteMode selects the privacy path: direct, tor, vpn, tor-over-vpn.
	RouteMode string

	// FallbackToDirect permits starting with a direct route when the
	// configured transport cannot connect. When false, start fails instead.
	FallbackToDirect bool

	// Tor configures the embedded Tor daemon (tor and tor-over-vpn routes).
	Tor model.TorConfig

	// VPN configures the SOCKS5/HTTP-CONNECT bridge (vpn and tor-over-vpn).
	VPN model.VPNConfig

	// DirectTimeout is the per-hop forward timeout on a direct route.
	DirectTimeout time.Duration

	// PrivateTimeout is the per-hop forward timeout over Tor or VPN.
	PrivateTimeout time.Duration

	// MaxAlertsPerMinute caps notifications across all types in a rolling
	// 60 second window.
	MaxAlertsPerMinute int

	// ActivityCooldown is the per-type cooldown for suspicious-activity
	// notifications; ErrorCooldown for proxy errors.
	ActivityCooldown time.Duration
	ErrorCooldown    time.Duration

	// NativeAlerts and OverlayAlerts enable the two delivery channels.
	NativeAlerts  bool
	OverlayAlerts bool

	// Commitment, when set, is injected into query methods that omit a
	// commitment level (processed, confirmed, or finalized). Empty
	// disables the rewrite and requests pass through untouched.
	Commitment string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the .veilrpc configuration file.
	// If empty, the loader searches the current and home directories.
	ConfigFilePath string

	// File holds values loaded from the configuration file, when present.
	File *File

	// DBDir is the directory for the SQLite threat database. When empty
	// the XDG data directory is used. Sessions are never persisted there;
	// only reported domains, trust decisions, and alert history.
	DBDir string
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		ListenAddress:      DefaultListenAddress,
		PrimaryRPC:         DefaultPrimaryRPC,
		RouteMode:          model.RouteDirect.String(),
		DirectTimeout:      DefaultDirectTimeout,
		PrivateTimeout:     DefaultPrivateTimeout,
		MaxAlertsPerMinute: DefaultMaxAlertsPerMinute,
		ActivityCooldown:   DefaultActivityCooldown,
		ErrorCooldown:      DefaultErrorCooldown,
		NativeAlerts:       true,
		OverlayAlerts:      true,
		Tor: model.TorConfig{
			BootstrapTimeout: DefaultBootstrapTimeout,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.PrimaryRPC == "" {
		return ErrNoPrimaryRPC
	}
	if !isLoopbackAddress(c.ListenAddress) {
		return ErrNotLoopback
	}
	if c.DirectTimeout <= 0 || c.PrivateTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAlertsPerMinute <= 0 {
		return ErrInvalidMaxPerMinute
	}
	mode := model.ParseRouteMode(c.RouteMode)
	if (mode == model.RouteVPN || mode == model.RouteTorOverVPN) &&
		(c.VPN.Host == "" || c.VPN.Port == 0) {
		return ErrInvalidVPNEndpoint
	}
	for _, endpoint := range append([]string{c.PrimaryRPC}, c.FallbackRPCs...) {
		if err := validateOnionEndpoint(endpoint, mode); err != nil {
			return err
		}
	}
	switch c.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		return ErrInvalidCommitment
	}
	return nil
}

// validateOnionEndpoint rejects .onion upstream endpoints that a relay
// could never reach: hidden services need a Tor route, and a v3 address
// with a bad checksum is a typo, not a destination.
func validateOnionEndpoint(endpoint string, mode model.RouteMode) error {
	u, err := url.Parse(endpoint)
	if err != nil || !strings.HasSuffix(u.Hostname(), tor.OnionSuffix) {
		return nil
	}
	if mode != model.RouteTor && mode != model.RouteTorOverVPN {
		return ErrOnionRequiresTor
	}
	if err := tor.ValidateOnionTarget(u.Hostname()); err != nil {
		return ErrInvalidOnionEndpoint
	}
	return nil
}

// Route builds the immutable PrivacyRoute for this configuration.
func (c *Config) Route() model.PrivacyRoute {
	return model.PrivacyRoute{
		Mode:             model.ParseRouteMode(c.RouteMode),
		Tor:              c.Tor,
		VPN:              c.VPN,
		FallbackToDirect: c.FallbackToDirect,
	}
}

// DatabaseDir returns the threat database directory, defaulting to the
// XDG data directory for the application.
func (c *Config) DatabaseDir() string {
	if c.DBDir != "" {
		return c.DBDir
	}
	return filepath.Join(xdg.DataHome, AppName)
}

// TorDataDir returns the Tor data directory, defaulting to the XDG state
// directory. State (guard/circuit data) is kept out of the data dir so a
// threat-database backup never picks up Tor identity material.
func (c *Config) TorDataDir() string {
	if c.Tor.DataDir != "" {
		return c.Tor.DataDir
	}
	return filepath.Join(xdg.StateHome, AppName, "tor")
}

// isLoopbackAddress reports whether addr is a host:port on a loopback IP.
// Hostnames are rejected: the policy check must not depend on resolution.
func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
