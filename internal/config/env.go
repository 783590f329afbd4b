package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded from the working directory when present.
const DefaultEnvFile = ".env"

// ErrInvalidEnv is returned when an environment variable cannot be parsed.
var ErrInvalidEnv = errors.New("invalid environment variable")

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads variables from the given files into the process
// environment. Variables already set in the environment win. Missing files
// are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultEnvFile}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides c with the recognised environment variables.
// Pass os.LookupEnv in production and a map-backed function in tests.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}

	e.str("DB_DIR", &c.DBDir)
	e.str("DB_FILE_NAME", &c.DBFileName)
	e.str("FETCHER", &c.Fetcher)
	e.boolean("HEADLESS", &c.Headless)
	e.boolean("BLOCK_MEDIA", &c.BlockMedia)
	e.str("BROWSER_PATH", &c.BrowserPath)
	e.str("WAIT_UNTIL", &c.WaitUntil)
	e.duration("NAVIGATION_TIMEOUT", &c.NavigationTimeout)
	e.str("USER_AGENT", &c.UserAgent)
	e.str("COOKIE", &c.Cookie)
	e.duration("LIST_DELAY", &c.ListDelay)
	e.integer("BATCH_SIZE", &c.BatchSize)
	e.duration("DETAIL_COOLDOWN", &c.DetailCooldown)
	e.integer("FAILURE_THRESHOLD", &c.FailureThreshold)
	e.integer("CONSECUTIVE_FAILED_BATCHES", &c.ConsecutiveFailedBatches)
	e.float("REQUESTS_PER_SECOND", &c.RequestsPerSecond)
	e.integer("MAX_ATTEMPTS", &c.MaxAttempts)
	e.integer("MAX_PAGES", &c.Site.MaxPages)
	e.integer("MAX_ITEMS", &c.Site.MaxItems)

	e.str("PROXY_SERVER", &c.ProxyServer)
	e.str("PROXY_USERNAME", &c.ProxyUsername)
	e.str("PROXY_PASSWORD", &c.ProxyPassword)
	e.str("PROXY_SCHEME", &c.ProxyScheme)
	e.str("PROXY_API_URL", &c.ProxyAPIURL)
	e.str("PROXY_SECRET_ID", &c.ProxySecretID)
	e.str("PROXY_SIGNATURE", &c.ProxySignature)
	e.str("PROXY_TEST_URL", &c.ProxyTestURL)
	e.str("PROXY_LEASE_FILE", &c.ProxyLeaseFile)
	e.boolean("PROXY_REQUIRED", &c.ProxyRequired)
	e.integer("PROXY_ROTATIONS", &c.ProxyRotations)

	return errors.Join(e.errs...)
}

// envReader collects parse errors so that every bad variable is reported.
type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, v))
		return
	}
	*dst = b
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, v))
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, v))
		return
	}
	*dst = f
}

// duration accepts Go durations ("90s") and bare integers as milliseconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, v))
		return
	}
	*dst = d
}
