package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/veilrpc/veilrpc/internal/config"
)

// newNymTimeout bounds the control request to the local relay. Circuit
// construction itself happens asynchronously inside the daemon, so the
// endpoint answers quickly or not at all.
const newNymTimeout = 15 * time.Second

// NewNewNymCmd creates the newnym command.
func NewNewNymCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newnym",
		Short: "Rotate the Tor circuit of a running relay",
		Long: `NewNym asks a running relay to build a fresh Tor circuit, changing
the exit address upstream endpoints observe. The relay must be serving
a tor or tor-over-vpn route.

Examples:
  veilrpc newnym
  veilrpc newnym --address 127.0.0.1:9010`,
		Args: cobra.NoArgs,
		RunE: runNewNymCmd,
	}

	cmd.Flags().StringP("address", "a", config.DefaultListenAddress,
		"Address of the running relay (host:port)")

	return cmd
}

// runNewNymCmd executes the newnym command.
func runNewNymCmd(cmd *cobra.Command, _ []string) error {
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: newNymTimeout}
	url := "http://" + address + "/newnym"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach relay at %s: %w", address, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		cmd.Println("Circuit rotated")
	case http.StatusConflict:
		return fmt.Errorf("relay is not on a tor route: %s", strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("rotation failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	// Show the new exit address when the relay can report one.
	if ip := fetchExitAddress(cmd, client, address); ip != "" {
		cmd.Printf("Exit address: %s\n", ip)
	}
	return nil
}

// fetchExitAddress asks /status for the current exit address. Failures
// are cosmetic; the rotation already succeeded.
func fetchExitAddress(cmd *cobra.Command, client *http.Client, address string) string {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "http://"+address+"/status", nil)
	if err != nil {
		return ""
	}
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	return gjson.GetBytes(body, "torIp").String()
}
