package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	vlog "github.com/veilrpc/veilrpc/internal/log"
)

// NewRootCmd creates the root command for VeilRPC.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veilrpc",
		Short: "Privacy-preserving JSON-RPC relay for blockchain wallets",
		Long: `VeilRPC is a local JSON-RPC relay that sits between a wallet or dApp
and its RPC endpoints. It anonymizes the network path (direct, Tor, VPN,
or Tor-over-VPN), fails over between endpoints in a fixed order, and
watches the traffic for phishing domains and wallet-drainer call
sequences, raising throttled desktop and overlay alerts.

The relay binds loopback only; point your wallet's RPC URL at it.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewNewNymCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the structured logger. All CLI logging goes
// through the sanitizing handler so keys and seed material never reach
// the terminal or a piped log file.
func setupLogger(verbose bool) *slog.Logger {
	return vlog.NewSecureLogger(os.Stderr, verbose)
}
