package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/retry"
)

// StopReason tells why a listing run ended.
type StopReason string

// Stop reasons, in the priority they are checked after every page.
const (
	// StopExhausted means a page yielded no entries.
	StopExhausted StopReason = "exhausted"

	// StopCaughtUp means the last processed URL of a previous run was reached.
	StopCaughtUp StopReason = "caught_up"

	// StopItemCap means the per-run cap on new items was reached.
	StopItemCap StopReason = "item_cap"

	// StopPageCap means the per-run cap on pages was reached.
	StopPageCap StopReason = "page_cap"
)

// QueueWriter is the part of the work queue the list spider needs.
type QueueWriter interface {
	Enqueue(ctx context.Context, item *model.WorkItem) error
	LastProcessedURL(ctx context.Context) (string, error)
}

// ListSummary describes a finished listing run.
type ListSummary struct {
	// Pages is the number of listing pages fetched.
	Pages int

	// Discovered is the number of entries enqueued.
	Discovered int

	// Skipped is the number of entries dropped as duplicates or non-detail URLs.
	Skipped int

	// StopReason is why the run ended.
	StopReason StopReason
}

// ListSpider walks the paginated listing and enqueues every new detail URL
// as pending.
type ListSpider struct {
	fetcher ListFetcher
	queue   QueueWriter
	site    config.SiteConfig
	pattern *regexp.Regexp
	policy  retry.Policy
	delay   time.Duration
	sleep   func(time.Duration)
	logger  *slog.Logger
}

// ListSpiderOption configures a ListSpider.
type ListSpiderOption func(*ListSpider)

// WithListDelay sets the courtesy pause between pages.
func WithListDelay(d time.Duration) ListSpiderOption {
	return func(s *ListSpider) {
		s.delay = d
	}
}

// WithRetryPolicy sets the policy used to retry a failing page fetch.
func WithRetryPolicy(p retry.Policy) ListSpiderOption {
	return func(s *ListSpider) {
		s.policy = p
	}
}

// WithSleep replaces time.Sleep for the courtesy pause.
func WithSleep(sleep func(time.Duration)) ListSpiderOption {
	return func(s *ListSpider) {
		s.sleep = sleep
	}
}

// WithSpiderLogger sets the logger.
func WithSpiderLogger(l *slog.Logger) ListSpiderOption {
	return func(s *ListSpider) {
		s.logger = l
	}
}

// NewListSpider creates a ListSpider for site.
func NewListSpider(fetcher ListFetcher, queue QueueWriter, site config.SiteConfig, opts ...ListSpiderOption) (*ListSpider, error) {
	pattern, err := site.DetailPattern()
	if err != nil {
		return nil, err
	}

	s := &ListSpider{
		fetcher: fetcher,
		queue:   queue,
		site:    site,
		pattern: pattern,
		policy:  retry.NewPolicy(),
		delay:   config.DefaultListDelay,
		sleep:   time.Sleep,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run fetches listing pages from page 1 until a stop condition holds.
//
// After every page the stop conditions are checked in the order of the
// StopReason constants. Entries at and after the last processed URL of a
// previous run are not enqueued. A page fetch that still fails after the
// retry policy gave up ends the run with an error; the summary reflects
// what was enqueued until then.
func (s *ListSpider) Run(ctx context.Context) (*ListSummary, error) {
	summary := &ListSummary{}

	lastURL, err := s.queue.LastProcessedURL(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read resume point: %w", err)
	}
	s.logger.Info("listing started", "site", s.site.Name, "resume_from", lastURL, "max_pages", s.site.MaxPages)

	seenTitles := make(map[string]struct{})
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var entries []model.ListEntry
		err := s.policy.Do(ctx, s.logger, func(ctx context.Context, _ int) error {
			var fetchErr error
			entries, fetchErr = s.fetcher.FetchListPage(ctx, page)
			if isClientError(fetchErr) {
				return retry.Permanent(fetchErr)
			}
			return fetchErr
		})
		if err != nil {
			return summary, fmt.Errorf("failed to fetch listing page %d: %w", page, err)
		}
		summary.Pages = page

		if len(entries) == 0 {
			summary.StopReason = StopExhausted
			break
		}

		caughtUp := false
		if lastURL != "" {
			for i, entry := range entries {
				if entry.URL == lastURL {
					entries = entries[:i]
					caughtUp = true
					break
				}
			}
		}

		reachedCap := false
		for _, entry := range entries {
			if !s.pattern.MatchString(entry.URL) {
				summary.Skipped++
				continue
			}

			key := NormalizeTitle(entry.Title)
			if key == "" {
				key = entry.URL
			}
			if _, dup := seenTitles[key]; dup {
				summary.Skipped++
				continue
			}
			seenTitles[key] = struct{}{}

			item := &model.WorkItem{
				SiteName:    s.site.Name,
				SiteURL:     s.site.URL,
				DetailURL:   entry.URL,
				DetailTitle: entry.Title,
				Status:      model.StatusPending,
			}
			if err := s.queue.Enqueue(ctx, item); err != nil {
				return summary, fmt.Errorf("failed to enqueue %s: %w", entry.URL, err)
			}
			summary.Discovered++
			s.logger.Debug("enqueued", "url", entry.URL, "title", entry.Title)

			if s.site.MaxItems > 0 && summary.Discovered >= s.site.MaxItems {
				reachedCap = true
				break
			}
		}

		s.logger.Info("listing page done", "page", page, "entries", len(entries), "discovered", summary.Discovered)

		if caughtUp {
			summary.StopReason = StopCaughtUp
			break
		}
		if reachedCap {
			summary.StopReason = StopItemCap
			break
		}
		if s.site.MaxPages > 0 && page >= s.site.MaxPages {
			summary.StopReason = StopPageCap
			break
		}

		if s.delay > 0 {
			s.sleep(s.delay)
		}
	}

	s.logger.Info("listing finished",
		"pages", summary.Pages,
		"discovered", summary.Discovered,
		"skipped", summary.Skipped,
		"stop_reason", string(summary.StopReason))
	return summary, nil
}

// isClientError reports whether err is a 4xx answer other than 429, which
// retrying will not fix.
func isClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}
