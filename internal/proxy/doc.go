// Package proxy provides the rotating proxy used by both fetch strategies.
//
// A Provider obtains an endpoint from a paid allocation service, validates
// it by fetching a test URL through it, and caches it as a lease on disk so
// that consecutive runs within the lease TTL reuse the same exit IP.
// A static proxy can be configured instead of the allocation service.
//
// Endpoints speak HTTP CONNECT or SOCKS5 (golang.org/x/net/proxy).
package proxy
