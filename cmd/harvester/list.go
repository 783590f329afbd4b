package main

import (
	"fmt"

	"github.com/nao1215/harvester/internal/crawler"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover detail pages from the listing and queue them",
		Long: `List walks the paginated listing of the configured site and queues every
detail URL it has not seen before as pending.

A run stops at the first of:
- an empty listing page
- the most recently processed detail URL (everything after it is known)
- the per-run item cap (maxItems)
- the per-run page cap (maxPages)

Examples:
  # Discover with the built-in site definition
  harvester list

  # Discover with plain HTTP instead of the browser
  FETCHER=http harvester list

  # Limit this run to 5 listing pages
  harvester list --max-pages 5`,
		Args: cobra.NoArgs,
		RunE: runListCmd,
	}

	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of listing pages for this run (default: site maxPages)")
	cmd.Flags().IntP("max-items", "n", 0,
		"Maximum number of new items for this run (default: site maxItems)")

	return cmd
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, _ := cmd.Flags().GetInt("max-pages"); n > 0 {
		a.cfg.Site.MaxPages = n
	}
	if n, _ := cmd.Flags().GetInt("max-items"); n > 0 {
		a.cfg.Site.MaxItems = n
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	f, err := a.newFetcher(ctx)
	if err != nil {
		return err
	}
	if err := a.startBrowser(ctx); err != nil {
		return err
	}

	spider, err := crawler.NewListSpider(f, a.db, a.cfg.Site,
		crawler.WithListDelay(a.cfg.ListDelay),
		crawler.WithRetryPolicy(retryPolicy(a.cfg)),
		crawler.WithSpiderLogger(a.logger),
	)
	if err != nil {
		return err
	}

	a.logger.Info("starting list discovery",
		"site", a.cfg.Site.Name,
		"fetcher", a.cfg.Fetcher,
		"max_pages", a.cfg.Site.MaxPages,
		"max_items", a.cfg.Site.MaxItems,
	)

	summary, err := spider.Run(ctx)
	if err != nil {
		return fmt.Errorf("list discovery failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pages: %d  discovered: %d  skipped: %d  stop: %s\n",
		summary.Pages, summary.Discovered, summary.Skipped, summary.StopReason)
	return nil
}
