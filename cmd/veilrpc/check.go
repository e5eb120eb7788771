package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilrpc/veilrpc/internal/config"
	"github.com/veilrpc/veilrpc/internal/database"
	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/reputation"
)

// ErrPhishingDomain is returned when the checked domain is classified as
// phishing, so the process exits non-zero for scripted use.
var ErrPhishingDomain = errors.New("domain classified as phishing")

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [domain]",
		Short: "Check a domain against the reputation engine",
		Long: `Check runs a single domain through the same reputation passes the
relay applies to wallet origins: deny list, allow list, homograph
detection, and typosquat distance.

The command exits non-zero when the domain is classified as phishing.

Examples:
  veilrpc check phantom.app
  veilrpc check --json phanton.app`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckCmd,
	}

	cmd.Flags().Bool("json", false, "Output the verdict as JSON")
	cmd.Flags().String("db-dir", "",
		"Threat database directory (default: XDG data directory)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path for trusted/blocked domain lists")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	engine, cleanup, err := buildCheckEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	verdict := engine.Check(args[0])

	if jsonOut {
		data, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode verdict: %w", err)
		}
		cmd.Println(string(data))
	} else {
		printVerdict(cmd, verdict)
	}

	if verdict.IsPhishing {
		return ErrPhishingDomain
	}
	return nil
}

// buildCheckEngine assembles a reputation engine seeded from the threat
// database and any configuration file lists. The returned cleanup closes
// the database handle.
func buildCheckEngine(cmd *cobra.Command) (*reputation.Engine, func(), error) {
	cfg := config.NewConfig()

	var err error
	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, nil, err
	}
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, nil, err
	}
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.Apply(file)
	} else if cfg.ConfigFilePath != "" {
		return nil, nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	db, err := database.Open(cfg.DatabaseDir(), database.DefaultOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open threat database: %w", err)
	}
	cleanup := func() { _ = db.Close() } //nolint:errcheck // Read-only handle

	engine := reputation.NewEngine(reputation.WithStore(db))

	ctx := context.Background()
	trusted, err := db.TrustedDomains(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load trusted domains: %w", err)
	}
	engine.SeedAllow(trusted)

	reported, err := db.ReportedDomains(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load reported domains: %w", err)
	}
	engine.SeedDeny(reported)

	if cfg.File != nil {
		engine.SeedAllow(cfg.File.TrustedDomains)
		engine.SeedDeny(cfg.File.BlockedDomains)
	}
	return engine, cleanup, nil
}

// printVerdict renders a human-readable verdict.
func printVerdict(cmd *cobra.Command, v model.DomainVerdict) {
	status := "clean"
	if v.IsPhishing {
		status = "PHISHING"
	}
	cmd.Printf("Domain:     %s\n", v.Domain)
	cmd.Printf("Status:     %s\n", status)
	cmd.Printf("Confidence: %s\n", v.ConfidenceText)
	cmd.Printf("Reason:     %s\n", v.Reason)
	if v.LegitimateMatch != "" {
		cmd.Printf("Resembles:  %s\n", v.LegitimateMatch)
	}
	for _, a := range v.Alerts {
		cmd.Printf("  - %s\n", a)
	}
}
