// Package main provides the entry point for the harvester CLI.
//
// harvester discovers detail pages from a site's listing, queues them in a
// local SQLite database and fetches every queued page through a headless
// browser or plain HTTP, optionally behind a rotating proxy. Progress is
// persisted, so an interrupted crawl resumes where it stopped.
//
// Usage:
//
//	harvester list
//	harvester detail
//	harvester status
//
// See --help for all available options.
package main

// main is the entry point for harvester.
func main() {
	Execute()
}
