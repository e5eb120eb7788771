package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".veilrpc"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .veilrpc configuration file.
// It carries the values a user tunes between runs: endpoint lists, the
// route mode, and domain trust overrides.
type File struct {
	// Route is the privacy route mode: direct, tor, vpn, tor-over-vpn.
	Route string `yaml:"route,omitempty"`

	// Listen overrides the local listen address.
	Listen string `yaml:"listen,omitempty"`

	// PrimaryRPC and FallbackRPCs override the upstream endpoint order.
	PrimaryRPC   string   `yaml:"primaryRpc,omitempty"`
	FallbackRPCs []string `yaml:"fallbackRpcs,omitempty"`

	// TrustedDomains are seeded into the reputation allow list. These are
	// the user's "trust this site" decisions.
	TrustedDomains []string `yaml:"trustedDomains,omitempty"`

	// BlockedDomains are seeded into the reputation deny list.
	BlockedDomains []string `yaml:"blockedDomains,omitempty"`

	// Commitment is the default commitment level injected into query
	// methods that omit one. Empty leaves requests untouched.
	Commitment string `yaml:"commitment,omitempty"`

	// Vpn configures the SOCKS5/HTTP-CONNECT bridge.
	Vpn *VPNFileConfig `yaml:"vpn,omitempty"`

	// Tor configures the embedded Tor daemon.
	Tor *TorFileConfig `yaml:"tor,omitempty"`
}

// VPNFileConfig is the YAML shape of the VPN bridge settings.
type VPNFileConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// TorFileConfig is the YAML shape of the Tor daemon settings.
type TorFileConfig struct {
	BinaryPath  string `yaml:"binaryPath,omitempty"`
	SocksPort   int    `yaml:"socksPort,omitempty"`
	ControlPort int    `yaml:"controlPort,omitempty"`
}

// LoadConfigFile loads relay configuration from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound. Callers should
// handle that appropriately based on whether the path was explicit.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Apply merges file values into the Config. Explicit flag values win, so
// Apply only fills fields still at their zero/default value.
func (c *Config) Apply(cf *File) {
	if cf == nil {
		return
	}
	c.File = cf
	if cf.Route != "" && c.RouteMode == "direct" {
		c.RouteMode = cf.Route
	}
	if cf.Listen != "" && c.ListenAddress == DefaultListenAddress {
		c.ListenAddress = cf.Listen
	}
	if cf.PrimaryRPC != "" && c.PrimaryRPC == DefaultPrimaryRPC {
		c.PrimaryRPC = cf.PrimaryRPC
	}
	if len(cf.FallbackRPCs) > 0 && len(c.FallbackRPCs) == 0 {
		c.FallbackRPCs = cf.FallbackRPCs
	}
	if cf.Commitment != "" && c.Commitment == "" {
		c.Commitment = cf.Commitment
	}
	if cf.Vpn != nil && c.VPN.Host == "" {
		c.VPN.Host = cf.Vpn.Host
		c.VPN.Port = cf.Vpn.Port
		c.VPN.Protocol = cf.Vpn.Protocol
		c.VPN.Username = cf.Vpn.Username
		c.VPN.Password = cf.Vpn.Password
	}
	if cf.Tor != nil {
		if cf.Tor.BinaryPath != "" && c.Tor.BinaryPath == "" {
			c.Tor.BinaryPath = cf.Tor.BinaryPath
		}
		if cf.Tor.SocksPort != 0 && c.Tor.SocksPort == 0 {
			c.Tor.SocksPort = cf.Tor.SocksPort
		}
		if cf.Tor.ControlPort != 0 && c.Tor.ControlPort == 0 {
			c.Tor.ControlPort = cf.Tor.ControlPort
		}
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .veilrpc in the current directory
// 3. Look for .veilrpc in the user's home directory
//
// Returns the path if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}
