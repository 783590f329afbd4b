// Package crawler discovers and downloads pages of the crawled site.
//
// # Components
//
//   - ListSpider: walks the paginated listing and enqueues detail URLs
//   - HTTPFetcher: fetches listing and detail pages with plain HTTP
//   - BrowserFetcher: fetches them through the shared headless browser
//   - ParseListEntries / ExtractDetail: goquery based extraction shared by both fetchers
//
// # Politeness
//
// The listing is walked one page at a time with a blocking pause between
// pages, and HTTP requests are rate limited. The detail side is paced by
// the orchestrator.
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(client, cfg.Site, crawler.WithRateLimit(1))
//	spider, err := crawler.NewListSpider(fetcher, db, cfg.Site)
//	summary, err := spider.Run(ctx)
package crawler
