package main

import (
	"embed"
	"errors"
	"fmt"

	"github.com/nao1215/harvester/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/harvester.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a commented .harvester.yaml site file",
		Long: `Init creates a .harvester.yaml site file in the current directory.

The generated file contains the built-in site definition with every field
commented, ready to be adapted to another listing/detail site.

Examples:
  # Create .harvester.yaml in current directory
  harvester init

  # Create the file at a specific path
  harvester init -o sites/example.yaml

  # Force overwrite existing file
  harvester init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the site file")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing site file")

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

	content, err := configTemplate.ReadFile("templates/harvester.yaml")
	if err != nil {
		return fmt.Errorf("failed to read site file template: %w", err)
	}

	cf, err := config.WriteSiteFile(outputPath, content, force)
	if errors.Is(err, config.ErrSiteFileExists) {
		return fmt.Errorf("%w: %s (use -f to overwrite)", err, outputPath)
	}
	if err != nil {
		return fmt.Errorf("failed to write site file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created site file: %s\n", outputPath)
	fmt.Fprintf(out, "Site %q, listing %s\n", cf.Site.Name, cf.Site.ListURL)
	fmt.Fprintln(out, "\nEdit this file to point harvester at another site:")
	fmt.Fprintln(out, "  - Listing endpoint and pagination")
	fmt.Fprintln(out, "  - Listing and detail page selectors")
	fmt.Fprintln(out, "  - Cookies, headers and per-run caps")
	fmt.Fprintln(out, "\nProxy and browser settings are read from the environment or .env.")

	return nil
}
