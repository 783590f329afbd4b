package model

import "time"

// DefaultLeaseTTL is how long an allocated proxy endpoint is trusted
// before a new one is requested.
const DefaultLeaseTTL = time.Hour

// ProxyLease is a proxy endpoint together with the time it was allocated.
type ProxyLease struct {
	// Endpoint is host:port as returned by the allocation service.
	Endpoint string `json:"endpoint"`

	// AcquiredAt is when the endpoint was allocated.
	AcquiredAt time.Time `json:"acquired_at"`
}

// Expired reports whether the lease is at least ttl old at now.
func (l ProxyLease) Expired(now time.Time, ttl time.Duration) bool {
	if l.Endpoint == "" || l.AcquiredAt.IsZero() {
		return true
	}
	return now.Sub(l.AcquiredAt) >= ttl
}
