// Package retry holds the single retry and abort policy used by every crawl stage.
package retry
