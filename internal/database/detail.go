package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/harvester/internal/model"
)

// UpsertDetail stores record, replacing any earlier record for the same URL.
// created_at is kept from the first insert.
func (cdb *CrawlDB) UpsertDetail(ctx context.Context, record *model.DetailRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	attachments := record.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize attachments: %w", ErrStoreWrite, err)
	}

	now := cdb.timestamp()
	query := `
	INSERT INTO detail_records (url, title, content, author, publish_time, attachments, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		author = excluded.author,
		publish_time = excluded.publish_time,
		attachments = excluded.attachments,
		updated_at = excluded.updated_at
	`

	_, err = cdb.db.ExecContext(ctx, query,
		record.URL,
		record.Title,
		record.Content,
		record.Author,
		record.PublishTime,
		string(attachmentsJSON),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert detail %s: %w", ErrStoreWrite, record.URL, err)
	}
	return nil
}

// GetDetail returns the detail record for url, or nil if there is none.
func (cdb *CrawlDB) GetDetail(ctx context.Context, url string) (*model.DetailRecord, error) {
	query := `
	SELECT url, title, content, author, publish_time, attachments, created_at, updated_at
	FROM detail_records
	WHERE url = ?
	`
	record, err := scanDetail(cdb.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// CountDetails returns the number of stored detail records.
func (cdb *CrawlDB) CountDetails(ctx context.Context) (int, error) {
	var count int
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detail_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detail records: %w", err)
	}
	return count, nil
}

// ListDetailsByCreatedAt returns records created on the UTC calendar day of
// day, oldest first, paginated by limit and offset. The downstream content
// pipeline reads the store this way.
func (cdb *CrawlDB) ListDetailsByCreatedAt(ctx context.Context, day time.Time, limit, offset int) ([]*model.DetailRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	query := `
	SELECT url, title, content, author, publish_time, attachments, created_at, updated_at
	FROM detail_records
	WHERE created_at >= ? AND created_at < ?
	ORDER BY created_at ASC, id ASC
	LIMIT ? OFFSET ?
	`

	rows, err := cdb.db.QueryContext(ctx, query, formatTimestamp(start), formatTimestamp(end), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list detail records: %w", err)
	}
	defer rows.Close()

	var records []*model.DetailRecord
	for rows.Next() {
		record, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanDetail(row rowScanner) (*model.DetailRecord, error) {
	var record model.DetailRecord
	var attachmentsJSON, createdAt, updatedAt string

	err := row.Scan(
		&record.URL,
		&record.Title,
		&record.Content,
		&record.Author,
		&record.PublishTime,
		&attachmentsJSON,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan detail record: %w", err)
	}

	if attachmentsJSON != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON), &record.Attachments); err != nil {
			return nil, fmt.Errorf("failed to parse attachments: %w", err)
		}
	}
	record.CreatedAt = parseTimestamp(createdAt)
	record.UpdatedAt = parseTimestamp(updatedAt)
	return &record, nil
}
