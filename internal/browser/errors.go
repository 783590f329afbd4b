package browser

import "errors"

// Browser errors.
var (
	// ErrBrowserInitFailed is returned when the browser process cannot be started.
	ErrBrowserInitFailed = errors.New("browser initialization failed")

	// ErrNotInitialized is returned when a page is requested before
	// EnsureInitialized completed, or after Shutdown.
	ErrNotInitialized = errors.New("browser session not initialized")

	// ErrNavigationTimeout is returned when a navigation does not reach the
	// requested lifecycle state within its timeout.
	ErrNavigationTimeout = errors.New("navigation timed out")

	// ErrSelectorNotFound is returned when the required selector does not
	// appear within the selector timeout.
	ErrSelectorNotFound = errors.New("required selector not found")
)
