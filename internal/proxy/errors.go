package proxy

import "errors"

// Proxy errors.
// Callers match them with errors.Is to decide between aborting a run and
// continuing without a proxy.
var (
	// ErrProxyUnavailable is returned when no working proxy could be obtained
	// within the allocation budget.
	ErrProxyUnavailable = errors.New("proxy unavailable")

	// ErrNoProxyConfigured is returned when neither a static proxy nor an
	// allocation service is configured. Callers run without a proxy.
	ErrNoProxyConfigured = errors.New("no proxy configured")

	// ErrAllocationFailed is returned when the allocation service does not
	// hand out a usable endpoint.
	ErrAllocationFailed = errors.New("proxy allocation failed")

	// ErrProxyBadStatus is returned when the test URL answers through the
	// proxy with a status other than 200.
	ErrProxyBadStatus = errors.New("proxy returned non-200 status")

	// ErrProxyCannotConnect is returned when the test request cannot be sent
	// through the proxy.
	ErrProxyCannotConnect = errors.New("cannot connect through proxy")

	// ErrProxyTimeout is returned when the test request does not complete
	// within the validation timeout.
	ErrProxyTimeout = errors.New("timeout validating proxy")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// ProxyStatus is the result of validating a proxy endpoint.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the test URL returned 200 through the proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusBadStatus indicates a response other than 200.
	ProxyStatusBadStatus

	// ProxyStatusCannotConnect indicates the request could not be sent.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the validation timeout elapsed.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusBadStatus:
		return "bad status"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusBadStatus:
		return ErrProxyBadStatus
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
