package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/harvester/internal/model"
	"github.com/spf13/cobra"
)

// NewRequeueCmd creates the requeue command.
func NewRequeueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue [url...]",
		Short: "Move failed items back to pending",
		Long: `Requeue marks failed detail URLs as pending so the next "harvester detail"
run fetches them again. Only failed items can be requeued; items that
succeeded stay untouched.

Examples:
  # Requeue two items
  harvester requeue https://www.mafengwo.cn/i/1.html https://www.mafengwo.cn/i/2.html

  # Requeue every failed item
  harvester requeue --all-failed`,
		Args: cobra.ArbitraryArgs,
		RunE: runRequeueCmd,
	}

	cmd.Flags().BoolP("all-failed", "a", false, "Requeue every failed item")

	return cmd
}

// runRequeueCmd executes the requeue command.
func runRequeueCmd(cmd *cobra.Command, args []string) error {
	allFailed, err := cmd.Flags().GetBool("all-failed")
	if err != nil {
		return err
	}
	if !allFailed && len(args) == 0 {
		return errors.New("no items given (pass detail URLs or --all-failed)")
	}
	if allFailed && len(args) > 0 {
		return errors.New("--all-failed cannot be combined with detail URLs")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if allFailed {
		n, err := a.db.RequeueFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "requeued %d failed items\n", n)
		return nil
	}

	var errs []error
	requeued := 0
	for _, detailURL := range args {
		item, err := a.db.GetItem(ctx, detailURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if item == nil {
			errs = append(errs, fmt.Errorf("not queued: %s", detailURL))
			continue
		}
		if err := a.db.Requeue(ctx, detailURL); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				err = fmt.Errorf("%s is %s, not failed: %w", detailURL, item.Status, err)
			}
			errs = append(errs, err)
			continue
		}
		requeued++
	}

	fmt.Fprintf(out, "requeued %d of %d items\n", requeued, len(args))
	return errors.Join(errs...)
}
