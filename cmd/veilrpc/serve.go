package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veilrpc/veilrpc/internal/config"
	"github.com/veilrpc/veilrpc/internal/runtime"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local RPC relay",
		Long: `Serve starts the relay on a loopback address and forwards wallet
JSON-RPC traffic to the configured endpoints over the selected privacy
route.

Examples:
  # Relay with defaults (direct route, mainnet primary)
  veilrpc serve

  # Route everything through an embedded Tor daemon
  veilrpc serve --route tor

  # Tor over a SOCKS5 VPN bridge
  veilrpc serve --route tor-over-vpn --vpn-host 10.8.0.1 --vpn-port 1080

  # Custom endpoint order with fallbacks
  veilrpc serve --rpc https://rpc.example --fallback https://backup1.example --fallback https://backup2.example

Configuration file (.veilrpc) example:
  route: tor
  primaryRpc: https://api.mainnet-beta.solana.com
  fallbackRpcs:
    - https://solana-api.projectserum.com
  trustedDomains:
    - my-dapp.example`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	// Listener and endpoint flags
	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Loopback address to bind (host:port)")
	cmd.Flags().StringP("rpc", "r", "",
		"Primary RPC endpoint URL")
	cmd.Flags().StringSliceP("fallback", "f", nil,
		"Fallback RPC endpoint, repeatable, tried in order")

	// Privacy route flags
	cmd.Flags().String("route", "",
		"Privacy route: direct, tor, vpn, tor-over-vpn")
	cmd.Flags().Bool("fallback-direct", false,
		"Fall back to a direct route when the privacy transport cannot connect")
	cmd.Flags().String("tor-binary", "",
		"Path to the tor binary for embedded Tor (default: found in PATH)")
	cmd.Flags().String("vpn-host", "", "VPN bridge host")
	cmd.Flags().Int("vpn-port", 0, "VPN bridge port")
	cmd.Flags().String("vpn-protocol", "", "VPN bridge protocol: socks5 or http")

	cmd.Flags().String("commitment", "",
		"Commitment level injected into query methods that omit one (processed, confirmed, finalized; empty disables)")

	// Alert flags
	cmd.Flags().Int("max-alerts", config.DefaultMaxAlertsPerMinute,
		"Maximum notifications per rolling minute")
	cmd.Flags().Bool("no-native-alerts", false,
		"Disable native desktop notifications")
	cmd.Flags().Bool("no-overlay-alerts", false,
		"Disable the overlay notification feed")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .veilrpc in current or home directory)")
	cmd.Flags().String("db-dir", "",
		"Threat database directory (default: XDG data directory)")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	rt, err := runtime.Init(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Teardown(); err != nil {
			logger.Error("teardown failed", "error", err)
		}
	}()

	// SIGINT/SIGTERM cancel the context; the server drains and returns.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

// buildServeConfig creates a Config from cobra command flags and the
// configuration file. Flags win over file values.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	if cfg.ListenAddress, err = cmd.Flags().GetString("listen"); err != nil {
		return nil, err
	}
	primary, err := cmd.Flags().GetString("rpc")
	if err != nil {
		return nil, err
	}
	if primary != "" {
		cfg.PrimaryRPC = primary
	}
	if cfg.FallbackRPCs, err = cmd.Flags().GetStringSlice("fallback"); err != nil {
		return nil, err
	}

	route, err := cmd.Flags().GetString("route")
	if err != nil {
		return nil, err
	}
	if route != "" {
		cfg.RouteMode = route
	}
	if cfg.FallbackToDirect, err = cmd.Flags().GetBool("fallback-direct"); err != nil {
		return nil, err
	}
	if cfg.Tor.BinaryPath, err = cmd.Flags().GetString("tor-binary"); err != nil {
		return nil, err
	}
	if cfg.VPN.Host, err = cmd.Flags().GetString("vpn-host"); err != nil {
		return nil, err
	}
	if cfg.VPN.Port, err = cmd.Flags().GetInt("vpn-port"); err != nil {
		return nil, err
	}
	if cfg.VPN.Protocol, err = cmd.Flags().GetString("vpn-protocol"); err != nil {
		return nil, err
	}

	if cfg.Commitment, err = cmd.Flags().GetString("commitment"); err != nil {
		return nil, err
	}

	if cfg.MaxAlertsPerMinute, err = cmd.Flags().GetInt("max-alerts"); err != nil {
		return nil, err
	}
	noNative, err := cmd.Flags().GetBool("no-native-alerts")
	if err != nil {
		return nil, err
	}
	cfg.NativeAlerts = !noNative
	noOverlay, err := cmd.Flags().GetBool("no-overlay-alerts")
	if err != nil {
		return nil, err
	}
	cfg.OverlayAlerts = !noOverlay

	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	}

	// Load the configuration file. An explicitly named file must exist;
	// the default search may come up empty.
	explicit := cfg.ConfigFilePath != ""
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path != "" {
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.Apply(file)
	} else if explicit {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	// Tor data always lives under the XDG state directory unless the
	// file says otherwise.
	cfg.Tor.DataDir = cfg.TorDataDir()

	return cfg, nil
}
