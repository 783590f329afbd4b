package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/harvester/internal/model"
)

// validationURL is only ever reached through a test proxy.
const validationURL = "http://validation.test/"

// fakeProxy is an HTTP forward proxy that answers every request itself.
type fakeProxy struct {
	server *httptest.Server
	hits   atomic.Int32
}

func newFakeProxy(t *testing.T, status int) *fakeProxy {
	t.Helper()

	fp := &fakeProxy{}
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fp.hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProxy) address() string {
	return strings.TrimPrefix(fp.server.URL, "http://")
}

// fakeAllocator hands out the given addresses in order, repeating the last one.
type fakeAllocator struct {
	server    *httptest.Server
	hits      atomic.Int32
	lastQuery atomic.Value
}

func newFakeAllocator(t *testing.T, addresses ...string) *fakeAllocator {
	t.Helper()

	fa := &fakeAllocator{}
	fa.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(fa.hits.Add(1))
		fa.lastQuery.Store(r.URL.Query().Encode())
		idx := n - 1
		if idx >= len(addresses) {
			idx = len(addresses) - 1
		}
		fmt.Fprintf(w, "%s\n", addresses[idx])
	}))
	t.Cleanup(fa.server.Close)
	return fa
}

func testSettings(t *testing.T, apiURL string) Settings {
	t.Helper()
	return Settings{
		APIURL:            apiURL,
		SecretID:          "sid",
		Signature:         "sig",
		TestURL:           validationURL,
		ValidationTimeout: 2 * time.Second,
		LeaseTTL:          time.Hour,
		MaxAllocations:    2,
		LeaseFile:         filepath.Join(t.TempDir(), "proxy_lease.json"),
	}
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func TestProviderAcquire(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stale lease is replaced without being validated", func(t *testing.T) {
		t.Parallel()

		stale := newFakeProxy(t, http.StatusOK)
		fresh := newFakeProxy(t, http.StatusOK)
		alloc := newFakeAllocator(t, fresh.address())

		settings := testSettings(t, alloc.server.URL)
		store := NewLeaseStore(settings.LeaseFile)
		if err := store.Save(model.ProxyLease{Endpoint: stale.address(), AcquiredAt: now.Add(-2 * time.Hour)}); err != nil {
			t.Fatal(err)
		}

		p := NewProvider(settings, WithClock(fixedClock(now)))
		ep, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}

		if ep.Address != fresh.address() {
			t.Errorf("expected fresh endpoint %s, got %s", fresh.address(), ep.Address)
		}
		if stale.hits.Load() != 0 {
			t.Errorf("stale proxy was validated %d times", stale.hits.Load())
		}
		if alloc.hits.Load() != 1 {
			t.Errorf("expected 1 allocation, got %d", alloc.hits.Load())
		}

		lease, err := store.Load()
		if err != nil {
			t.Fatal(err)
		}
		if lease.Endpoint != fresh.address() || !lease.AcquiredAt.Equal(now) {
			t.Errorf("lease not persisted: %+v", lease)
		}
	})

	t.Run("fresh valid lease is reused", func(t *testing.T) {
		t.Parallel()

		cached := newFakeProxy(t, http.StatusOK)
		alloc := newFakeAllocator(t, "10.0.0.1:1")

		settings := testSettings(t, alloc.server.URL)
		if err := NewLeaseStore(settings.LeaseFile).Save(model.ProxyLease{
			Endpoint:   cached.address(),
			AcquiredAt: now.Add(-10 * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}

		ep, err := NewProvider(settings, WithClock(fixedClock(now))).Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if ep.Address != cached.address() {
			t.Errorf("expected cached endpoint, got %s", ep.Address)
		}
		if alloc.hits.Load() != 0 {
			t.Errorf("allocation service should not be called, got %d", alloc.hits.Load())
		}
		if cached.hits.Load() != 1 {
			t.Errorf("cached proxy should be validated once, got %d", cached.hits.Load())
		}
	})

	t.Run("failing fresh lease triggers allocation", func(t *testing.T) {
		t.Parallel()

		broken := newFakeProxy(t, http.StatusBadGateway)
		good := newFakeProxy(t, http.StatusOK)
		alloc := newFakeAllocator(t, good.address())

		settings := testSettings(t, alloc.server.URL)
		if err := NewLeaseStore(settings.LeaseFile).Save(model.ProxyLease{
			Endpoint:   broken.address(),
			AcquiredAt: now.Add(-time.Minute),
		}); err != nil {
			t.Fatal(err)
		}

		ep, err := NewProvider(settings, WithClock(fixedClock(now))).Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if ep.Address != good.address() {
			t.Errorf("expected newly allocated endpoint, got %s", ep.Address)
		}
	})

	t.Run("second allocation recovers from a bad first one", func(t *testing.T) {
		t.Parallel()

		bad := newFakeProxy(t, http.StatusForbidden)
		good := newFakeProxy(t, http.StatusOK)
		alloc := newFakeAllocator(t, bad.address(), good.address())

		ep, err := NewProvider(testSettings(t, alloc.server.URL)).Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if ep.Address != good.address() {
			t.Errorf("expected second endpoint, got %s", ep.Address)
		}
		if alloc.hits.Load() != 2 {
			t.Errorf("expected 2 allocations, got %d", alloc.hits.Load())
		}
	})

	t.Run("exhausted re-allocation returns ErrProxyUnavailable", func(t *testing.T) {
		t.Parallel()

		bad := newFakeProxy(t, http.StatusServiceUnavailable)
		alloc := newFakeAllocator(t, bad.address())

		settings := testSettings(t, alloc.server.URL)
		_, err := NewProvider(settings).Acquire(context.Background())
		if !errors.Is(err, ErrProxyUnavailable) {
			t.Fatalf("expected ErrProxyUnavailable, got %v", err)
		}
		if !errors.Is(err, ErrProxyBadStatus) {
			t.Errorf("expected the last validation error to be wrapped, got %v", err)
		}
		if alloc.hits.Load() != 2 {
			t.Errorf("expected exactly 2 allocations, got %d", alloc.hits.Load())
		}
		if _, statErr := os.Stat(settings.LeaseFile); !os.IsNotExist(statErr) {
			t.Error("a failing endpoint must not be cached")
		}
	})

	t.Run("allocation request carries the api key", func(t *testing.T) {
		t.Parallel()

		good := newFakeProxy(t, http.StatusOK)
		alloc := newFakeAllocator(t, good.address())

		if _, err := NewProvider(testSettings(t, alloc.server.URL)).Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
		query, _ := alloc.lastQuery.Load().(string)
		for _, want := range []string{"secret_id=sid", "signature=sig", "num=1", "pt=1", "format=text", "sep=1"} {
			if !strings.Contains(query, want) {
				t.Errorf("query %q lacks %q", query, want)
			}
		}
	})

	t.Run("static proxy is returned as configured", func(t *testing.T) {
		t.Parallel()

		p := NewProvider(Settings{StaticAddress: "10.1.2.3:3128", Username: "u", Password: "p"})
		ep, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ep.Address != "10.1.2.3:3128" || !ep.HasCredentials() {
			t.Errorf("unexpected endpoint %+v", ep)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Parallel()

		p := NewProvider(Settings{})
		if p.Configured() {
			t.Error("expected Configured() to be false")
		}
		if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrNoProxyConfigured) {
			t.Errorf("expected ErrNoProxyConfigured, got %v", err)
		}
	})
}

func TestProviderInvalidate(t *testing.T) {
	t.Parallel()

	good := newFakeProxy(t, http.StatusOK)
	alloc := newFakeAllocator(t, good.address())
	settings := testSettings(t, alloc.server.URL)
	p := NewProvider(settings)

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Invalidate(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if alloc.hits.Load() != 2 {
		t.Errorf("expected a new allocation after Invalidate, got %d", alloc.hits.Load())
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer slow.Close()

		ep, err := NewEndpoint(strings.TrimPrefix(slow.URL, "http://"), "", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if status := Check(context.Background(), ep, validationURL, 100*time.Millisecond); status != ProxyStatusTimeout {
			t.Errorf("expected timeout, got %s", status)
		}
	})

	t.Run("cannot connect", func(t *testing.T) {
		t.Parallel()

		closed := httptest.NewServer(http.NotFoundHandler())
		address := strings.TrimPrefix(closed.URL, "http://")
		closed.Close()

		ep, err := NewEndpoint(address, "", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if status := Check(context.Background(), ep, validationURL, time.Second); status != ProxyStatusCannotConnect {
			t.Errorf("expected cannot connect, got %s", status)
		}
	})
}

func TestLeaseStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewLeaseStore(filepath.Join(dir, "nested", "proxy_lease.json"))

	lease, err := store.Load()
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if lease.Endpoint != "" {
		t.Errorf("expected zero lease, got %+v", lease)
	}

	if err := store.Save(model.ProxyLease{Endpoint: "1.2.3.4:5", AcquiredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "proxy_lease.json" {
		t.Errorf("temp files left behind: %v", entries)
	}

	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil {
		t.Error("expected parse error for corrupt lease")
	}

	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("clearing twice should succeed: %v", err)
	}
}
