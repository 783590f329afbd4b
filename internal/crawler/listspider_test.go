package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/retry"
)

// stubListFetcher serves fixed listing pages. Pages beyond the map are empty.
type stubListFetcher struct {
	mu     sync.Mutex
	pages  map[int][]model.ListEntry
	errs   map[int][]error
	calls  map[int]int
	called []int
}

func newStubListFetcher(pages map[int][]model.ListEntry) *stubListFetcher {
	return &stubListFetcher{pages: pages, errs: map[int][]error{}, calls: map[int]int{}}
}

func (f *stubListFetcher) FetchListPage(_ context.Context, page int) ([]model.ListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[page]++
	f.called = append(f.called, page)
	if queued := f.errs[page]; len(queued) > 0 {
		err := queued[0]
		f.errs[page] = queued[1:]
		return nil, err
	}
	return f.pages[page], nil
}

// memQueue is an in-memory work queue.
type memQueue struct {
	mu         sync.Mutex
	items      []*model.WorkItem
	last       string
	enqueueErr error
}

func (q *memQueue) Enqueue(_ context.Context, item *model.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.items = append(q.items, item)
	return nil
}

func (q *memQueue) LastProcessedURL(context.Context) (string, error) {
	return q.last, nil
}

func (q *memQueue) urls() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	urls := make([]string, 0, len(q.items))
	for _, item := range q.items {
		urls = append(urls, item.DetailURL)
	}
	return urls
}

func entry(id int) model.ListEntry {
	return model.ListEntry{Title: fmt.Sprintf("Trip %d", id), URL: fmt.Sprintf("https://example.com/i/%d.html", id)}
}

func spiderSite() config.SiteConfig {
	return config.SiteConfig{
		Name:             "example",
		URL:              "https://example.com",
		DetailURLPattern: `^https://example\.com/i/\d+\.html$`,
		MaxPages:         10,
	}
}

func newTestSpider(t *testing.T, f ListFetcher, q QueueWriter, site config.SiteConfig, sleeps *[]time.Duration) *ListSpider {
	t.Helper()

	s, err := NewListSpider(f, q, site,
		WithListDelay(time.Second),
		WithRetryPolicy(retry.Policy{MaxAttempts: 2}),
		WithSleep(func(d time.Duration) { *sleeps = append(*sleeps, d) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestListSpiderStops(t *testing.T) {
	t.Parallel()

	t.Run("exhausted", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{
			1: {entry(1), entry(2)},
			2: {entry(3)},
		})
		q := &memQueue{}
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, q, spiderSite(), &sleeps).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.StopReason != StopExhausted || summary.Pages != 3 || summary.Discovered != 3 {
			t.Errorf("summary = %+v", summary)
		}
		if len(sleeps) != 2 || sleeps[0] != time.Second {
			t.Errorf("sleeps = %v", sleeps)
		}
		q.mu.Lock()
		first := q.items[0]
		q.mu.Unlock()
		if first.Status != model.StatusPending || first.SiteName != "example" || first.SiteURL != "https://example.com" {
			t.Errorf("enqueued item = %+v", first)
		}
	})

	t.Run("caught up with the previous run", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{
			1: {entry(10), entry(9)},
			2: {entry(8), entry(7), entry(6)},
			3: {entry(5)},
		})
		q := &memQueue{last: entry(7).URL}
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, q, spiderSite(), &sleeps).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.StopReason != StopCaughtUp || summary.Pages != 2 {
			t.Errorf("summary = %+v", summary)
		}
		want := []string{entry(10).URL, entry(9).URL, entry(8).URL}
		if got := q.urls(); fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("enqueued %v, want %v", got, want)
		}
		if f.calls[3] != 0 {
			t.Error("page after the resume point must not be fetched")
		}
	})

	t.Run("item cap", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{
			1: {entry(1), entry(2)},
			2: {entry(3), entry(4)},
			3: {entry(5)},
		})
		q := &memQueue{}
		site := spiderSite()
		site.MaxItems = 3
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, q, site, &sleeps).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.StopReason != StopItemCap || summary.Discovered != 3 || summary.Pages != 2 {
			t.Errorf("summary = %+v", summary)
		}
		if len(q.urls()) != 3 {
			t.Errorf("enqueued %v", q.urls())
		}
	})

	t.Run("page cap", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{
			1: {entry(1)},
			2: {entry(2)},
			3: {entry(3)},
		})
		site := spiderSite()
		site.MaxPages = 2
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, &memQueue{}, site, &sleeps).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.StopReason != StopPageCap || summary.Pages != 2 || summary.Discovered != 2 {
			t.Errorf("summary = %+v", summary)
		}
		if len(sleeps) != 1 {
			t.Errorf("expected one pause between two pages, got %v", sleeps)
		}
	})

	t.Run("caught up wins over item cap", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{1: {entry(2), entry(1)}})
		site := spiderSite()
		site.MaxItems = 1
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, &memQueue{last: entry(1).URL}, site, &sleeps).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.StopReason != StopCaughtUp || summary.Discovered != 1 {
			t.Errorf("summary = %+v", summary)
		}
	})
}

func TestListSpiderDedup(t *testing.T) {
	t.Parallel()

	f := newStubListFetcher(map[int][]model.ListEntry{
		1: {
			{Title: "Lhasa  in winter", URL: "https://example.com/i/1.html"},
			{Title: "About us", URL: "https://example.com/about"},
		},
		2: {
			{Title: "Ｌhasa in　winter", URL: "https://example.com/i/2.html"},
			{Title: "Chengdu", URL: "https://example.com/i/3.html"},
		},
	})
	q := &memQueue{}
	var sleeps []time.Duration

	summary, err := newTestSpider(t, f, q, spiderSite(), &sleeps).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Discovered != 2 || summary.Skipped != 2 {
		t.Errorf("summary = %+v", summary)
	}
	want := []string{"https://example.com/i/1.html", "https://example.com/i/3.html"}
	if got := q.urls(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("enqueued %v, want %v", got, want)
	}
}

func TestListSpiderErrors(t *testing.T) {
	t.Parallel()

	t.Run("transient failure is retried", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{1: {entry(1)}})
		f.errs[1] = []error{errors.New("connection reset")}
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, &memQueue{}, spiderSite(), &sleeps).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if f.calls[1] != 2 || summary.Discovered != 1 {
			t.Errorf("calls = %v, summary = %+v", f.calls, summary)
		}
	})

	t.Run("exhausted retries abort the run", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{1: {entry(1)}})
		f.errs[2] = []error{errors.New("timeout"), errors.New("timeout")}
		var sleeps []time.Duration

		summary, err := newTestSpider(t, f, &memQueue{}, spiderSite(), &sleeps).Run(context.Background())
		if err == nil {
			t.Fatal("expected an error")
		}
		if summary.Discovered != 1 || summary.Pages != 1 {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(nil)
		f.errs[1] = []error{&StatusError{URL: "https://example.com/list", Code: http.StatusForbidden}}
		var sleeps []time.Duration

		_, err := newTestSpider(t, f, &memQueue{}, spiderSite(), &sleeps).Run(context.Background())
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusForbidden {
			t.Errorf("expected 403 StatusError, got %v", err)
		}
		if f.calls[1] != 1 {
			t.Errorf("expected a single attempt, got %d", f.calls[1])
		}
	})

	t.Run("enqueue failure", func(t *testing.T) {
		t.Parallel()

		f := newStubListFetcher(map[int][]model.ListEntry{1: {entry(1)}})
		storeErr := errors.New("disk full")
		var sleeps []time.Duration

		_, err := newTestSpider(t, f, &memQueue{enqueueErr: storeErr}, spiderSite(), &sleeps).Run(context.Background())
		if !errors.Is(err, storeErr) {
			t.Errorf("expected enqueue error, got %v", err)
		}
	})

	t.Run("invalid detail pattern", func(t *testing.T) {
		t.Parallel()

		site := spiderSite()
		site.DetailURLPattern = "("
		if _, err := NewListSpider(newStubListFetcher(nil), &memQueue{}, site); !errors.Is(err, config.ErrInvalidDetailPattern) {
			t.Errorf("expected ErrInvalidDetailPattern, got %v", err)
		}
	})
}
