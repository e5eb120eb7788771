package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veilrpc/veilrpc/internal/config"
)

// TestNewServeCmd tests the serve command creation.
func TestNewServeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewServeCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "serve" {
			t.Errorf("expected use 'serve', got %q", cmd.Use)
		}
	})

	t.Run("has expected flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{
			"listen", "rpc", "fallback", "route", "fallback-direct",
			"tor-binary", "vpn-host", "vpn-port", "vpn-protocol", "commitment",
			"max-alerts", "no-native-alerts", "no-overlay-alerts",
			"config", "db-dir",
		} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %q flag", name)
			}
		}
	})

	t.Run("listen defaults to loopback", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("listen")
		if flag == nil {
			t.Fatal("expected listen flag")
		}
		if flag.DefValue != config.DefaultListenAddress {
			t.Errorf("expected default %q, got %q", config.DefaultListenAddress, flag.DefValue)
		}
	})
}

// TestBuildServeConfig tests flag and config-file merging.
func TestBuildServeConfig(t *testing.T) {
	// Keep the default config-file search away from any real .veilrpc
	// in the working directory or home.
	isolate := func(t *testing.T) {
		t.Helper()
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())
	}

	t.Run("defaults", func(t *testing.T) {
		isolate(t)
		cmd := NewServeCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.ListenAddress != config.DefaultListenAddress {
			t.Errorf("expected default listen address, got %q", cfg.ListenAddress)
		}
		if cfg.PrimaryRPC != config.DefaultPrimaryRPC {
			t.Errorf("expected default primary RPC, got %q", cfg.PrimaryRPC)
		}
		if cfg.RouteMode != "direct" {
			t.Errorf("expected direct route, got %q", cfg.RouteMode)
		}
		if !cfg.NativeAlerts || !cfg.OverlayAlerts {
			t.Error("expected alert channels enabled by default")
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		isolate(t)
		cmd := NewServeCmd()
		args := []string{
			"--rpc", "https://rpc.example",
			"--fallback", "https://backup1.example",
			"--fallback", "https://backup2.example",
			"--route", "tor",
			"--no-native-alerts",
			"--max-alerts", "10",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.PrimaryRPC != "https://rpc.example" {
			t.Errorf("expected flag primary RPC, got %q", cfg.PrimaryRPC)
		}
		if len(cfg.FallbackRPCs) != 2 || cfg.FallbackRPCs[0] != "https://backup1.example" {
			t.Errorf("unexpected fallbacks: %v", cfg.FallbackRPCs)
		}
		if cfg.RouteMode != "tor" {
			t.Errorf("expected tor route, got %q", cfg.RouteMode)
		}
		if cfg.NativeAlerts {
			t.Error("expected native alerts disabled")
		}
		if !cfg.OverlayAlerts {
			t.Error("expected overlay alerts still enabled")
		}
		if cfg.MaxAlertsPerMinute != 10 {
			t.Errorf("expected max alerts 10, got %d", cfg.MaxAlertsPerMinute)
		}
	})

	t.Run("config file fills unset values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".veilrpc")
		content := `route: vpn
primaryRpc: https://file.example
trustedDomains:
  - my-dapp.example
vpn:
  host: 10.8.0.1
  port: 1080
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		cmd := NewServeCmd()
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.RouteMode != "vpn" {
			t.Errorf("expected vpn route from file, got %q", cfg.RouteMode)
		}
		if cfg.PrimaryRPC != "https://file.example" {
			t.Errorf("expected file primary RPC, got %q", cfg.PrimaryRPC)
		}
		if cfg.VPN.Host != "10.8.0.1" || cfg.VPN.Port != 1080 {
			t.Errorf("expected VPN endpoint from file, got %s:%d", cfg.VPN.Host, cfg.VPN.Port)
		}
		if cfg.File == nil || len(cfg.File.TrustedDomains) != 1 {
			t.Error("expected trusted domains carried on the file config")
		}
	})

	t.Run("flags win over config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".veilrpc")
		if err := os.WriteFile(path, []byte("primaryRpc: https://file.example\n"), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		cmd := NewServeCmd()
		if err := cmd.ParseFlags([]string{"-c", path, "--rpc", "https://flag.example"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildServeConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.PrimaryRPC != "https://flag.example" {
			t.Errorf("expected flag to win, got %q", cfg.PrimaryRPC)
		}
	})

	t.Run("explicit missing config file errors", func(t *testing.T) {
		cmd := NewServeCmd()
		missing := filepath.Join(t.TempDir(), "nope.yaml")
		if err := cmd.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		_, err := buildServeConfig(cmd)
		if err == nil {
			t.Fatal("expected error for missing explicit config file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not-found error, got %v", err)
		}
	})
}
