package main

import (
	"fmt"

	"github.com/nao1215/harvester/internal/orchestrator"
	"github.com/spf13/cobra"
)

// NewDetailCmd creates the detail command.
func NewDetailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detail",
		Short: "Fetch queued detail pages and store their content",
		Long: `Detail drains the pending queue in small concurrent batches. Every page is
fetched, its title, content and image URLs are stored, and the item is marked
success. A page that fails is marked failed and the run continues.

The run is aborted when more than FAILURE_THRESHOLD items have failed, or when
CONSECUTIVE_FAILED_BATCHES batches in a row failed completely. Failed items can
be queued again with "harvester requeue --all-failed". With a proxy allocation
service and the browser fetcher, PROXY_ROTATIONS lets an aborted run switch to
a new proxy and continue.

Examples:
  # Fetch with the defaults (2 pages at a time, 5 minute cooldown)
  harvester detail

  # Fetch 4 pages at a time with a 30 second cooldown
  harvester detail -b 4 --cooldown 30s`,
		Args: cobra.NoArgs,
		RunE: runDetailCmd,
	}

	cmd.Flags().IntP("batch", "b", 0,
		"Number of concurrent fetches (default: BATCH_SIZE)")
	cmd.Flags().Duration("cooldown", -1,
		"Pause after every page (default: DETAIL_COOLDOWN)")

	return cmd
}

// runDetailCmd executes the detail command.
func runDetailCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, _ := cmd.Flags().GetInt("batch"); n > 0 {
		a.cfg.BatchSize = n
	}
	if d, _ := cmd.Flags().GetDuration("cooldown"); d >= 0 {
		a.cfg.DetailCooldown = d
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

	orch := orchestrator.New(f, a.db,
		orchestrator.WithBatchSize(a.cfg.BatchSize),
		orchestrator.WithCooldown(a.cfg.DetailCooldown),
		orchestrator.WithPolicy(retryPolicy(a.cfg)),
		orchestrator.WithLogger(a.logger),
	)

	a.logger.Info("starting detail fetch",
		"site", a.cfg.Site.Name,
		"fetcher", a.cfg.Fetcher,
		"batch_size", a.cfg.BatchSize,
		"cooldown", a.cfg.DetailCooldown,
	)

	summary, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("detail fetch failed: %w", err)
	}
	for rotation := 1; summary.Aborted && rotation <= a.cfg.ProxyRotations; rotation++ {
		rotated, err := a.rotateProxy(ctx)
		if err != nil {
			return fmt.Errorf("proxy rotation failed: %w", err)
		}
		if !rotated {
			break
		}
		a.logger.Info("continuing detail fetch after proxy rotation",
			"rotation", rotation, "previous_abort", summary.AbortReason)
		next, err := orch.Run(ctx)
		if err != nil {
			return fmt.Errorf("detail fetch failed: %w", err)
		}
		summary.Merge(next)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "batches: %d  succeeded: %d  failed: %d\n",
		summary.Batches, summary.Succeeded, summary.Failed)
	if summary.Aborted {
		fmt.Fprintf(out, "aborted: %s\n", summary.AbortReason)
		a.dropProxyLease()
	}
	return nil
}
