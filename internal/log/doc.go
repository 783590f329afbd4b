// Package log provides secure logging built on top of the standard slog package.
//
// The SecureHandler masks sensitive information before it reaches the
// underlying handler:
//   - HTTP headers (Authorization, Cookie, Proxy-Authorization)
//   - proxy credentials and the allocation service API key (secret_id, signature)
//   - user:password pairs embedded in proxy URLs, also inside error messages
//   - values that look like tokens or keys
//
// Masking applies in verbose mode too, since crawl logs are often shared
// when a site changes its markup.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("proxy acquired", "endpoint", ep.Address, "password", ep.Password)
//	// password=***REDACTED***
package log
