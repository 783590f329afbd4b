package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/harvester/internal/report"
	"github.com/spf13/cobra"
)

// defaultFailureLimit is how many failed items the status report lists.
const defaultFailureLimit = 20

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the work queue",
		Long: `Status prints how many items are pending, succeeded and failed, how many
detail records are stored, and where the next listing run will stop.

Examples:
  # Print a text summary
  harvester status

  # Write a Markdown report with a status chart
  harvester status --markdown -o report/status.md

  # Print JSON for scripts
  harvester status --json`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Int("failures", defaultFailureLimit,
		"Number of failed items to list")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	jsonReport, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownReport, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonReport && markdownReport {
		return errors.New("--json and --markdown are mutually exclusive")
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	failureLimit, err := cmd.Flags().GetInt("failures")
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	snapshot, err := report.Collect(cmd.Context(), a.db, a.cfg.Site.Name, a.db.Path(), failureLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := createOutputFile(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if _, err := newReportWriter(out, jsonReport, markdownReport).Write(snapshot); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if outputPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to: %s\n", outputPath)
	}
	return nil
}

// newReportWriter picks the writer for the requested format.
func newReportWriter(w io.Writer, jsonReport, markdownReport bool) report.Writer {
	switch {
	case jsonReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint())
	case markdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w)
	}
}

// createOutputFile creates path and its parent directories.
func createOutputFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, nil
}
