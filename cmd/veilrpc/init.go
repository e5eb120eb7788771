package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/veilrpc/veilrpc/internal/config"
)

//go:embed templates/veilrpc.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new VeilRPC configuration file",
		Long: `Initialize creates a new .veilrpc configuration file in the current directory.

The generated file includes:
- The privacy route and listen address
- Commented examples for endpoint order and domain trust lists
- VPN bridge and embedded Tor settings

Examples:
  # Create .veilrpc in current directory
  veilrpc init

  # Create config file at a specific path
  veilrpc init -o myconfig.yaml

  # Force overwrite existing file
  veilrpc init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	// Check if file already exists
	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	// Read template from embedded filesystem
	content, err := configTemplate.ReadFile("templates/veilrpc.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	// Create parent directories if needed
	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Config files may carry VPN credentials; keep them owner-only.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	cmd.Printf("Created configuration file: %s\n", outputPath)
	cmd.Println("\nEdit this file to configure:")
	cmd.Println("  - The privacy route (direct, tor, vpn, tor-over-vpn)")
	cmd.Println("  - Upstream RPC endpoints and failover order")
	cmd.Println("  - Trusted and blocked domain lists")

	return nil
}
