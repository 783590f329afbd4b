package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/harvester/internal/model"
)

// BatchResult counts outcomes of one batch.
type BatchResult struct {
	Succeeded int
	Failed    int
	// Skipped items were not started because the context was done.
	Skipped int
}

// BatchProcessor runs one function per work item with bounded concurrency.
// It uses errgroup to manage goroutines and respect the concurrency limit.
type BatchProcessor struct {
	// concurrency is the maximum number of items in flight.
	concurrency int

	logger *slog.Logger
}

// NewBatchProcessor creates a BatchProcessor. A concurrency below one is
// treated as one.
func NewBatchProcessor(concurrency int, logger *slog.Logger) *BatchProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{concurrency: concurrency, logger: logger}
}

// Process calls fn for every item and returns when all calls returned.
// An error from fn marks that item as failed; it never cancels the others.
func (bp *BatchProcessor) Process(ctx context.Context, items []*model.WorkItem, fn func(ctx context.Context, item *model.WorkItem) error) BatchResult {
	startTime := time.Now()

	var (
		mu     sync.Mutex
		result BatchResult
	)

	g := new(errgroup.Group)
	g.SetLimit(bp.concurrency)

	for _, item := range items {
		g.Go(func() error {
			// Check for cancellation before starting
			if ctx.Err() != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			err := fn(ctx, item)

			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
			mu.Unlock()

			// Don't return the error to errgroup; the other items keep running.
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers always return nil

	bp.logger.Debug("batch processed",
		"items", len(items),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed", time.Since(startTime))
	return result
}
