// Package database provides SQLite-based storage for harvester.
//
// CrawlDB stores:
//   - the work queue (list_items): one row per detail URL with its status
//   - the content store (detail_records): one row per fetched detail page
//
// The whole crawl state is one SQLite file (modernc.org/sqlite, no cgo).
// A stopped crawl resumes from whatever the file holds.
package database
