package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/harvester/internal/model"
)

// Enqueue inserts item as pending, or refreshes the descriptive fields of
// an existing row with the same detail URL. The status of an existing row
// is never touched, so re-discovering a finished item does not requeue it.
func (cdb *CrawlDB) Enqueue(ctx context.Context, item *model.WorkItem) error {
	if item.DetailURL == "" {
		return fmt.Errorf("%w: %w: detail_url", ErrStoreWrite, model.ErrMissingField)
	}

	now := cdb.timestamp()
	query := `
	INSERT INTO list_items (site_name, site_url, detail_url, detail_title, detail_desc, detail_time, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(detail_url) DO UPDATE SET
		site_name = excluded.site_name,
		site_url = excluded.site_url,
		detail_title = excluded.detail_title,
		detail_desc = excluded.detail_desc,
		detail_time = excluded.detail_time,
		updated_at = excluded.updated_at
	`

	_, err := cdb.db.ExecContext(ctx, query,
		item.SiteName,
		item.SiteURL,
		item.DetailURL,
		item.DetailTitle,
		item.DetailDesc,
		item.DetailTime,
		string(model.StatusPending),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to enqueue %s: %w", ErrStoreWrite, item.DetailURL, err)
	}
	return nil
}

// ListByStatus returns up to limit items with the given status in insertion order.
// A limit of zero or less returns every matching item.
func (cdb *CrawlDB) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.WorkItem, error) {
	query := `
	SELECT site_name, site_url, detail_url, detail_title, detail_desc, detail_time, status, created_at, updated_at
	FROM list_items
	WHERE status = ?
	ORDER BY id ASC
	`
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s items: %w", status, err)
	}
	defer rows.Close()

	var items []*model.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns the work item for detailURL, or nil if there is none.
func (cdb *CrawlDB) GetItem(ctx context.Context, detailURL string) (*model.WorkItem, error) {
	query := `
	SELECT site_name, site_url, detail_url, detail_title, detail_desc, detail_time, status, created_at, updated_at
	FROM list_items
	WHERE detail_url = ?
	`
	item, err := scanWorkItem(cdb.db.QueryRowContext(ctx, query, detailURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// SetStatus moves the item identified by detailURL to status and refreshes
// its updated_at. A missing item is logged and ignored. A transition the
// lifecycle forbids returns model.ErrInvalidTransition.
func (cdb *CrawlDB) SetStatus(ctx context.Context, detailURL string, status model.Status) error {
	sources := model.SourcesOf(status)
	if len(sources) == 0 {
		return fmt.Errorf("%w: nothing may move to %q", model.ErrInvalidTransition, status)
	}

	query := fmt.Sprintf(`
	UPDATE list_items SET status = ?, updated_at = ?
	WHERE detail_url = ? AND status IN (%s)
	`, placeholders(len(sources)))

	args := []any{string(status), cdb.timestamp(), detailURL}
	for _, s := range sources {
		args = append(args, string(s))
	}

	result, err := cdb.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to set status of %s: %w", ErrStoreWrite, detailURL, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to read affected rows: %w", ErrStoreWrite, err)
	}
	if affected > 0 {
		return nil
	}

	current, err := cdb.GetItem(ctx, detailURL)
	if err != nil {
		return err
	}
	if current == nil {
		cdb.logger.Warn("status update for unknown item ignored",
			"detail_url", detailURL,
			"status", status.String())
		return nil
	}
	return fmt.Errorf("%w: %s -> %s for %s", model.ErrInvalidTransition, current.Status, status, detailURL)
}

// Requeue moves a failed item back to pending.
func (cdb *CrawlDB) Requeue(ctx context.Context, detailURL string) error {
	return cdb.SetStatus(ctx, detailURL, model.StatusPending)
}

// RequeueFailed moves every failed item back to pending and returns how many moved.
func (cdb *CrawlDB) RequeueFailed(ctx context.Context) (int64, error) {
	result, err := cdb.db.ExecContext(ctx,
		`UPDATE list_items SET status = ?, updated_at = ? WHERE status = ?`,
		string(model.StatusPending), cdb.timestamp(), string(model.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to requeue failed items: %w", ErrStoreWrite, err)
	}
	return result.RowsAffected()
}

// LastProcessedURL returns the detail URL of the most recently updated item,
// or an empty string when the queue is empty.
func (cdb *CrawlDB) LastProcessedURL(ctx context.Context) (string, error) {
	var detailURL string
	err := cdb.db.QueryRowContext(ctx,
		`SELECT detail_url FROM list_items ORDER BY updated_at DESC, id DESC LIMIT 1`,
	).Scan(&detailURL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last processed url: %w", err)
	}
	return detailURL, nil
}

// CountByStatus returns the number of work items per status.
// Every known status is present in the result, possibly with zero.
func (cdb *CrawlDB) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	counts := map[model.Status]int{
		model.StatusPending: 0,
		model.StatusSuccess: 0,
		model.StatusFailed:  0,
	}

	rows, err := cdb.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM list_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[model.Status(status)] = count
	}
	return counts, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (*model.WorkItem, error) {
	var item model.WorkItem
	var status, createdAt, updatedAt string

	err := row.Scan(
		&item.SiteName,
		&item.SiteURL,
		&item.DetailURL,
		&item.DetailTitle,
		&item.DetailDesc,
		&item.DetailTime,
		&status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan work item: %w", err)
	}

	item.Status, err = model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("work item %s: %w", item.DetailURL, err)
	}
	item.CreatedAt = parseTimestamp(createdAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	return &item, nil
}
