package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/veilrpc/veilrpc/internal/config"
	"github.com/veilrpc/veilrpc/internal/database"
	"github.com/veilrpc/veilrpc/internal/report"
)

// defaultReportLimit caps how many alert rows a report pulls from the
// database when no limit flag is given.
const defaultReportLimit = 200

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a threat report from recorded alerts",
		Long: `Report assembles the alert history and domain lists persisted by the
relay into a readable threat report.

Examples:
  veilrpc report
  veilrpc report --markdown -o threat-report.md
  veilrpc report --json --limit 50`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Int("limit", defaultReportLimit,
		"Maximum number of alerts to include")
	cmd.Flags().String("db-dir", "",
		"Threat database directory (default: XDG data directory)")

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, _ []string) error {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOut && markdownOut {
		return errors.New("--json and --markdown are mutually exclusive")
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open threat database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-only handle

	threatReport, err := report.Collect(cmd.Context(), db, limit)
	if err != nil {
		return fmt.Errorf("failed to collect report data: %w", err)
	}

	// Determine output destination.
	output := cmd.OutOrStdout()
	if outputPath != "" {
		dir := filepath.Dir(outputPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// Reports list the domains a user trusted and the attacks aimed
		// at them; keep them owner-readable only.
		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // Flushed by Write below
		output = f
	}

	var writer report.Writer
	switch {
	case jsonOut:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint())
	case markdownOut:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(getVerboseFlag(cmd)))
	}
	if _, err := writer.Write(threatReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
