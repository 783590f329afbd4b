// Package orchestrator drains the pending work queue by fetching detail
// pages in small concurrent batches.
//
// Every item ends as success (detail record stored) or failed. A long
// cooldown follows every item, and the run aborts once too many items fail.
package orchestrator
