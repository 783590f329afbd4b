package report

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/harvester/internal/model"
)

// Source is the read side of the work queue and content store.
type Source interface {
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	CountDetails(ctx context.Context) (int, error)
	LastProcessedURL(ctx context.Context) (string, error)
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.WorkItem, error)
}

// StatusReport is a snapshot of the crawl state.
type StatusReport struct {
	// Site is the configured site name.
	Site string `json:"site"`

	// Database is the path of the SQLite file.
	Database string `json:"database"`

	// GeneratedAt is when the snapshot was taken.
	GeneratedAt time.Time `json:"generated_at"`

	Pending int `json:"pending"`
	Success int `json:"success"`
	Failed  int `json:"failed"`

	// Details is the number of stored detail records.
	Details int `json:"details"`

	// LastProcessedURL is the resume point of the next listing run.
	LastProcessedURL string `json:"last_processed_url,omitempty"`

	// Failures are the oldest failed items, up to the limit given to Collect.
	Failures []*model.WorkItem `json:"failures,omitempty"`
}

// Total returns the number of queued items in any status.
func (r *StatusReport) Total() int {
	return r.Pending + r.Success + r.Failed
}

// Collect builds a StatusReport from src. At most failureLimit failed items
// are listed; zero lists none.
func Collect(ctx context.Context, src Source, site, dbPath string, failureLimit int) (*StatusReport, error) {
	counts, err := src.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	details, err := src.CountDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count details: %w", err)
	}
	last, err := src.LastProcessedURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last processed url: %w", err)
	}

	report := &StatusReport{
		Site:             site,
		Database:         dbPath,
		GeneratedAt:      time.Now(),
		Pending:          counts[model.StatusPending],
		Success:          counts[model.StatusSuccess],
		Failed:           counts[model.StatusFailed],
		Details:          details,
		LastProcessedURL: last,
	}

	if failureLimit > 0 && report.Failed > 0 {
		failures, err := src.ListByStatus(ctx, model.StatusFailed, failureLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list failed items: %w", err)
		}
		report.Failures = failures
	}
	return report, nil
}
