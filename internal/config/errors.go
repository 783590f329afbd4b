package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrInvalidFetcher is returned when the fetcher is neither "browser" nor "http".
	ErrInvalidFetcher = errors.New("invalid fetcher: must be \"browser\" or \"http\"")

	// ErrInvalidWaitUntil is returned for an unknown navigation strategy.
	ErrInvalidWaitUntil = errors.New("invalid wait strategy: must be \"load\" or \"networkidle\"")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidDelay is returned when a delay or cooldown is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidFailureThreshold is returned when an abort threshold is negative.
	ErrInvalidFailureThreshold = errors.New("invalid failure threshold: must be non-negative")

	// ErrInvalidMaxAttempts is returned when the retry policy allows no attempt.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidProxyScheme is returned for a proxy scheme other than http or socks5.
	ErrInvalidProxyScheme = errors.New("invalid proxy scheme: must be \"http\" or \"socks5\"")

	// ErrMissingProxyCredentials is returned when an allocation service is
	// configured without its API key.
	ErrMissingProxyCredentials = errors.New("proxy allocation service requires PROXY_SECRET_ID and PROXY_SIGNATURE")

	// ErrProxyRequired is returned when a proxy is required but none is configured.
	ErrProxyRequired = errors.New("proxy required but neither PROXY_SERVER nor PROXY_API_URL is set")

	// ErrInvalidProxyRotations is returned when the rotation count is negative.
	ErrInvalidProxyRotations = errors.New("invalid proxy rotations: must be non-negative")

	// ErrSiteFileExists is returned when WriteSiteFile would overwrite a file.
	ErrSiteFileExists = errors.New("site file already exists")

	// ErrMissingListURL is returned when the site has no listing endpoint.
	ErrMissingListURL = errors.New("site list url is required")

	// ErrInvalidListMethod is returned when the listing method is not GET or POST.
	ErrInvalidListMethod = errors.New("invalid site list method: must be GET or POST")

	// ErrMissingSelector is returned when a required site selector is empty.
	ErrMissingSelector = errors.New("site selector is required")

	// ErrInvalidDetailPattern is returned when the detail URL pattern does not compile.
	ErrInvalidDetailPattern = errors.New("invalid site detail url pattern")

	// ErrInvalidMaxPages is returned when the page cap is not positive.
	ErrInvalidMaxPages = errors.New("invalid site max pages: must be positive")

	// ErrInvalidMaxItems is returned when the item cap is negative.
	ErrInvalidMaxItems = errors.New("invalid site max items: must be non-negative")
)
