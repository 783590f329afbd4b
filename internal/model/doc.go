// Package model defines the data structures shared by the crawler packages.
//
// The main types are:
//   - WorkItem: a detail URL in the work queue together with its Status
//   - DetailRecord: the persisted content of a fetched detail page
//   - ListEntry and DetailPage: what fetchers return
//   - ProxyLease: a cached proxy allocation
package model
