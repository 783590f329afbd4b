package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingField is returned when a detail record lacks a required field.
var ErrMissingField = errors.New("missing required field")

// DetailRecord is the persisted result of a successful detail fetch.
// URL is the unique key; saving the same URL again replaces the record.
type DetailRecord struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author,omitempty"`
	PublishTime string    `json:"publish_time,omitempty"`
	Attachments []string  `json:"attachments"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks that the record carries a URL, a title and content.
func (r *DetailRecord) Validate() error {
	switch {
	case r.URL == "":
		return fmt.Errorf("%w: url", ErrMissingField)
	case r.Title == "":
		return fmt.Errorf("%w: title", ErrMissingField)
	case r.Content == "":
		return fmt.Errorf("%w: content", ErrMissingField)
	}
	return nil
}

// DetailPage is what a fetcher returns for one detail URL.
type DetailPage struct {
	URL     string
	Title   string
	Content string

	// Assets are absolute image URLs found inside the content region,
	// in document order, without duplicates.
	Assets []string
}

// Record converts the fetched page into a DetailRecord ready for upsert.
func (p *DetailPage) Record() *DetailRecord {
	attachments := p.Assets
	if attachments == nil {
		attachments = []string{}
	}
	return &DetailRecord{
		URL:         p.URL,
		Title:       p.Title,
		Content:     p.Content,
		Attachments: attachments,
	}
}
