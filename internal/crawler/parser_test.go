package crawler

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
)

const listingHTML = `<html><body>
<div class="feed-item"><a href="/i/100.html"><span class="title">  Hello
   World </span></a></div>
<div class="feed-item"><a href="https://www.mafengwo.cn/i/200.html#comments"><span class="title">Second</span></a></div>
<div class="feed-item"><span class="title">No link</span></div>
<div class="feed-item"><a href=""><span class="title">Empty link</span></a></div>
</body></html>`

func TestParseListEntries(t *testing.T) {
	t.Parallel()

	entries, err := ParseListEntries(strings.NewReader(listingHTML), config.DefaultSite())
	if err != nil {
		t.Fatal(err)
	}

	want := []model.ListEntry{
		{Title: "Hello World", URL: "https://www.mafengwo.cn/i/100.html"},
		{Title: "Second", URL: "https://www.mafengwo.cn/i/200.html"},
	}
	if !slices.Equal(entries, want) {
		t.Errorf("entries = %+v, want %+v", entries, want)
	}
}

func TestParseListEntriesItemIsAnchor(t *testing.T) {
	t.Parallel()

	site := config.SiteConfig{URL: "https://example.com/blog/", ItemSelector: "a.post", LinkSelector: "a"}
	entries, err := ParseListEntries(strings.NewReader(`<a class="post" href="p/1">One</a><a class="post" href="../p/2">Two</a>`), site)
	if err != nil {
		t.Fatal(err)
	}

	want := []model.ListEntry{
		{Title: "One", URL: "https://example.com/blog/p/1"},
		{Title: "Two", URL: "https://example.com/p/2"},
	}
	if !slices.Equal(entries, want) {
		t.Errorf("entries = %+v, want %+v", entries, want)
	}
}

func TestParseListEntriesEmpty(t *testing.T) {
	t.Parallel()

	entries, err := ParseListEntries(strings.NewReader(`<html><body></body></html>`), config.DefaultSite())
	if err != nil {
		t.Fatal(err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", entries)
	}
}

const detailHTML = `<html><head><title>Fallback title</title></head><body>
<h1>  Trip   to Lhasa </h1>
<div class="_j_content_box"><p>Day 1</p>
<img data-src="/img/a.jpg" src="placeholder.gif">
<img src="https://cdn.example.com/b.png">
<img data-src="/img/a.jpg">
<img src="data:image/png;base64,AAAA">
</div>
<img src="/outside.jpg">
</body></html>`

func TestExtractDetail(t *testing.T) {
	t.Parallel()

	pageURL := "https://www.mafengwo.cn/i/100.html"

	t.Run("first content selector", func(t *testing.T) {
		t.Parallel()

		page, err := ExtractDetail(strings.NewReader(detailHTML), pageURL, config.DefaultSite())
		if err != nil {
			t.Fatal(err)
		}
		if page.URL != pageURL {
			t.Errorf("URL = %q", page.URL)
		}
		if page.Title != "Trip to Lhasa" {
			t.Errorf("Title = %q", page.Title)
		}
		if !strings.HasPrefix(page.Content, `<div class="_j_content_box">`) || !strings.Contains(page.Content, "Day 1") {
			t.Errorf("Content = %q", page.Content)
		}
		if strings.Contains(page.Content, "outside.jpg") {
			t.Error("content must be limited to the content region")
		}

		wantAssets := []string{"https://www.mafengwo.cn/img/a.jpg", "https://cdn.example.com/b.png"}
		if !slices.Equal(page.Assets, wantAssets) {
			t.Errorf("Assets = %v, want %v", page.Assets, wantAssets)
		}
	})

	t.Run("candidates are tried in order", func(t *testing.T) {
		t.Parallel()

		site := config.DefaultSite()
		site.ContentSelectors = []string{".missing", "p", "._j_content_box"}
		page, err := ExtractDetail(strings.NewReader(detailHTML), pageURL, site)
		if err != nil {
			t.Fatal(err)
		}
		if page.Content != "<p>Day 1</p>" {
			t.Errorf("Content = %q", page.Content)
		}
		if len(page.Assets) != 0 {
			t.Errorf("expected no assets inside <p>, got %v", page.Assets)
		}
	})

	t.Run("title falls back to document title", func(t *testing.T) {
		t.Parallel()

		site := config.DefaultSite()
		site.DetailTitleSelector = "h2"
		page, err := ExtractDetail(strings.NewReader(detailHTML), pageURL, site)
		if err != nil {
			t.Fatal(err)
		}
		if page.Title != "Fallback title" {
			t.Errorf("Title = %q", page.Title)
		}
	})

	t.Run("no content region", func(t *testing.T) {
		t.Parallel()

		_, err := ExtractDetail(strings.NewReader(`<html><body><h1>x</h1></body></html>`), pageURL, config.DefaultSite())
		if !errors.Is(err, ErrContentNotFound) {
			t.Errorf("expected ErrContentNotFound, got %v", err)
		}
	})
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{"Hello World", "Hello World"},
		{"  Hello \n\t World  ", "Hello World"},
		{"Ｈｅｌｌｏ　World", "Hello World"},
		{"西藏 ７ 日游", "西藏 7 日游"},
		{"", ""},
	}

	for _, tc := range testCases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
