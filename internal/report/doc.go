// Package report renders the state of the work queue and content store.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter: structured JSON for scripts
//   - MarkdownWriter: Markdown with a status chart for sharing
//
// A StatusReport is collected once and handed to any Writer.
package report
