package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/harvester/internal/browser"
	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/crawler"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/retry"
)

// Store is the work queue and content store the orchestrator writes to.
type Store interface {
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.WorkItem, error)
	SetStatus(ctx context.Context, detailURL string, status model.Status) error
	UpsertDetail(ctx context.Context, record *model.DetailRecord) error
}

// Summary describes a finished detail run.
type Summary struct {
	Succeeded   int
	Failed      int
	Batches     int
	Aborted     bool
	AbortReason string
}

// Merge adds the counts of a follow-up run and takes over its abort state.
func (s *Summary) Merge(next *Summary) {
	s.Succeeded += next.Succeeded
	s.Failed += next.Failed
	s.Batches += next.Batches
	s.Aborted = next.Aborted
	s.AbortReason = next.AbortReason
}

// Orchestrator fetches pending detail pages and records their outcome.
type Orchestrator struct {
	fetcher   crawler.DetailFetcher
	store     Store
	policy    retry.Policy
	batchSize int
	cooldown  time.Duration
	sleep     func(ctx context.Context, d time.Duration)
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets how many items are fetched at the same time.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithCooldown sets the pause after every item.
func WithCooldown(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.cooldown = d
	}
}

// WithPolicy sets the abort thresholds.
func WithPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithSleep replaces the cooldown wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(fetcher crawler.DetailFetcher, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		store:     store,
		policy:    retry.NewPolicy(),
		batchSize: config.DefaultBatchSize,
		cooldown:  config.DefaultDetailCooldown,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drains the pending queue batch by batch until it is empty, an abort
// threshold is crossed, or only items already attempted in this run are
// left. Per-item failures are recorded as failed rows and never returned.
// An error means the queue could not be read, ctx was cancelled, or the
// browser could not be started; items in flight at that point stay pending.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	runCtx, stopRun := context.WithCancelCause(ctx)
	defer stopRun(nil)

	tracker := o.policy.NewTracker()
	bp := NewBatchProcessor(o.batchSize, o.logger)
	attempted := make(map[string]struct{})
	summary := &Summary{}

	finish := func() *Summary {
		summary.Succeeded, summary.Failed = tracker.Counts()
		if abort, reason := tracker.ShouldAbort(); abort {
			summary.Aborted = true
			summary.AbortReason = reason
		}
		o.logger.Info("detail run finished",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"batches", summary.Batches,
			"aborted", summary.Aborted,
			"abort_reason", summary.AbortReason)
		return summary
	}

	for {
		if runCtx.Err() != nil {
			return finish(), context.Cause(runCtx)
		}

		// Rows whose status write failed are still pending and sort first,
		// so read past them.
		items, err := o.store.ListByStatus(runCtx, model.StatusPending, o.batchSize+len(attempted))
		if err != nil {
			return finish(), fmt.Errorf("failed to list pending items: %w", err)
		}
		batch := nextBatch(items, attempted, o.batchSize)
		if len(batch) == 0 {
			if len(items) == 0 {
				o.logger.Info("no pending items left")
			} else {
				o.logger.Warn("only items attempted in this run are pending; their status writes failed",
					"items", len(items))
			}
			break
		}

		summary.Batches++
		o.logger.Info("processing batch", "batch", summary.Batches, "items", len(batch))

		result := bp.Process(runCtx, batch, func(ctx context.Context, item *model.WorkItem) error {
			err := o.processItem(ctx, item, tracker)
			if isFatal(err) {
				stopRun(err)
			}
			return err
		})
		if runCtx.Err() != nil {
			continue
		}
		if result.Skipped == 0 {
			tracker.RecordBatch(result.Succeeded, result.Failed)
		}

		if err := tracker.Err(); err != nil {
			o.logger.Error("aborting detail run", "error", err)
			break
		}
	}

	return finish(), nil
}

// nextBatch returns up to size items not yet attempted and marks them.
func nextBatch(items []*model.WorkItem, attempted map[string]struct{}, size int) []*model.WorkItem {
	batch := make([]*model.WorkItem, 0, size)
	for _, item := range items {
		if len(batch) == size {
			break
		}
		if _, seen := attempted[item.DetailURL]; seen {
			continue
		}
		attempted[item.DetailURL] = struct{}{}
		batch = append(batch, item)
	}
	return batch
}

// isFatal reports whether err stops the whole run instead of failing one item.
func isFatal(err error) bool {
	return errors.Is(err, browser.ErrBrowserInitFailed)
}

// processItem fetches one item, writes the outcome and waits the cooldown.
// The returned error only marks the item as failed for batch accounting.
// An item whose fetch was interrupted, or hit a fatal error, keeps its
// pending status.
func (o *Orchestrator) processItem(ctx context.Context, item *model.WorkItem, tracker *retry.Tracker) error {
	// Status writes must happen even when ctx is cancelled mid-fetch.
	writeCtx := context.WithoutCancel(ctx)
	logger := o.logger.With("url", item.DetailURL)
	start := time.Now()

	err := o.fetchAndStore(ctx, writeCtx, item)
	switch {
	case err == nil:
		tracker.RecordSuccess()
		logger.Info("detail stored", "elapsed", time.Since(start))
		if setErr := o.store.SetStatus(writeCtx, item.DetailURL, model.StatusSuccess); setErr != nil {
			logger.Error("failed to mark item succeeded", "error", setErr)
		}
	case isFatal(err):
		logger.Error("detail run cannot continue", "error", err)
		return err
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		logger.Info("detail fetch interrupted, item stays pending", "error", err)
		return err
	default:
		tracker.RecordFailure()
		logger.Warn("detail fetch failed", "error", err, "elapsed", time.Since(start))
		if setErr := o.store.SetStatus(writeCtx, item.DetailURL, model.StatusFailed); setErr != nil {
			logger.Error("failed to mark item failed", "error", setErr)
		}
	}

	if o.cooldown > 0 {
		logger.Debug("cooling down", "duration", o.cooldown)
		o.sleep(ctx, o.cooldown)
	}
	return err
}

func (o *Orchestrator) fetchAndStore(ctx, writeCtx context.Context, item *model.WorkItem) error {
	page, err := o.fetcher.FetchDetailPage(ctx, item.DetailURL)
	if err != nil {
		return err
	}

	record := page.Record()
	if record.URL == "" {
		record.URL = item.DetailURL
	}
	if record.Title == "" {
		record.Title = item.DetailTitle
	}
	if record.PublishTime == "" {
		record.PublishTime = item.DetailTime
	}
	return o.store.UpsertDetail(writeCtx, record)
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
