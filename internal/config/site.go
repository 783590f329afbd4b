package config

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// SiteConfig describes the site being crawled: where its listing lives and
// how listing and detail pages are parsed.
type SiteConfig struct {
	// Name is the human readable site name stored with every work item.
	Name string `yaml:"name,omitempty"`

	// URL is the site root. Relative links are resolved against it.
	URL string `yaml:"url,omitempty"`

	// ListURL is the listing endpoint. A "{page}" placeholder is replaced by
	// the page number; otherwise the page number is sent as ListPageParam.
	ListURL string `yaml:"listUrl,omitempty"`

	// ListMethod is GET or POST. POST sends the page as a form body.
	ListMethod string `yaml:"listMethod,omitempty"`

	// ListPageParam is the form or query parameter carrying the page number.
	ListPageParam string `yaml:"listPageParam,omitempty"`

	// ItemSelector selects one listing entry.
	ItemSelector string `yaml:"itemSelector,omitempty"`

	// TitleSelector selects the title inside an entry.
	TitleSelector string `yaml:"titleSelector,omitempty"`

	// LinkSelector selects the anchor inside an entry.
	LinkSelector string `yaml:"linkSelector,omitempty"`

	// DetailURLPattern is a regular expression every detail URL must match.
	DetailURLPattern string `yaml:"detailUrlPattern,omitempty"`

	// DetailTitleSelector selects the title on a detail page.
	DetailTitleSelector string `yaml:"detailTitleSelector,omitempty"`

	// ContentSelectors are tried in order; the first match is the content region.
	ContentSelectors []string `yaml:"contentSelectors,omitempty"`

	// RequiredSelector must appear before a browser fetch is considered rendered.
	// Defaults to the first content selector.
	RequiredSelector string `yaml:"requiredSelector,omitempty"`

	// ImageSelector selects images inside the content region.
	ImageSelector string `yaml:"imageSelector,omitempty"`

	// ImageAttributes are read in order; the first non-empty value is the image URL.
	ImageAttributes []string `yaml:"imageAttributes,omitempty"`

	// MaxPages caps listing pages per run.
	MaxPages int `yaml:"maxPages,omitempty"`

	// MaxItems caps newly discovered items per run. Zero means no cap.
	MaxItems int `yaml:"maxItems,omitempty"`

	// Cookie is an HTTP cookie header for this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// File represents the structure of the .harvester.yaml configuration file.
type File struct {
	// Site overrides fields of the built-in site definition.
	Site SiteConfig `yaml:"site,omitempty"`
}

// DefaultSite returns the built-in site definition.
func DefaultSite() SiteConfig {
	return SiteConfig{
		Name:                "马蜂窝",
		URL:                 "https://www.mafengwo.cn",
		ListURL:             "https://www.mafengwo.cn/gonglve/",
		ListMethod:          http.MethodPost,
		ListPageParam:       "page",
		ItemSelector:        ".feed-item",
		TitleSelector:       ".title",
		LinkSelector:        "a",
		DetailURLPattern:    `^https://www\.mafengwo\.cn/i/(\d+)\.html`,
		DetailTitleSelector: "h1",
		ContentSelectors:    []string{"._j_content_box"},
		ImageSelector:       "img",
		ImageAttributes:     []string{"data-src", "src"},
		MaxPages:            30,
		MaxItems:            0,
		Headers: map[string]string{
			"Accept-Language": "en,zh-CN;q=0.9,zh;q=0.8",
		},
	}
}

// Merge returns s with every non-zero field of override applied.
// Headers are merged key by key.
func (s SiteConfig) Merge(override SiteConfig) SiteConfig {
	result := s

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&result.Name, override.Name)
	setString(&result.URL, override.URL)
	setString(&result.ListURL, override.ListURL)
	setString(&result.ListMethod, override.ListMethod)
	setString(&result.ListPageParam, override.ListPageParam)
	setString(&result.ItemSelector, override.ItemSelector)
	setString(&result.TitleSelector, override.TitleSelector)
	setString(&result.LinkSelector, override.LinkSelector)
	setString(&result.DetailURLPattern, override.DetailURLPattern)
	setString(&result.DetailTitleSelector, override.DetailTitleSelector)
	setString(&result.RequiredSelector, override.RequiredSelector)
	setString(&result.ImageSelector, override.ImageSelector)
	setString(&result.Cookie, override.Cookie)

	if len(override.ContentSelectors) > 0 {
		result.ContentSelectors = override.ContentSelectors
	}
	if len(override.ImageAttributes) > 0 {
		result.ImageAttributes = override.ImageAttributes
	}
	if override.MaxPages != 0 {
		result.MaxPages = override.MaxPages
	}
	if override.MaxItems != 0 {
		result.MaxItems = override.MaxItems
	}
	if len(override.Headers) > 0 {
		headers := make(map[string]string, len(s.Headers)+len(override.Headers))
		for k, v := range s.Headers {
			headers[k] = v
		}
		for k, v := range override.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return result
}

// WaitSelector returns the selector a browser fetch waits for.
func (s SiteConfig) WaitSelector() string {
	if s.RequiredSelector != "" {
		return s.RequiredSelector
	}
	if len(s.ContentSelectors) > 0 {
		return s.ContentSelectors[0]
	}
	return ""
}

// DetailPattern compiles DetailURLPattern. An empty pattern matches everything.
func (s SiteConfig) DetailPattern() (*regexp.Regexp, error) {
	if s.DetailURLPattern == "" {
		return regexp.MustCompile(`.*`), nil
	}
	re, err := regexp.Compile(s.DetailURLPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDetailPattern, err)
	}
	return re, nil
}

// Validate checks the site definition.
func (s SiteConfig) Validate() error {
	if s.ListURL == "" {
		return ErrMissingListURL
	}

	switch strings.ToUpper(s.ListMethod) {
	case http.MethodGet, http.MethodPost:
	default:
		return ErrInvalidListMethod
	}

	if s.ItemSelector == "" || s.LinkSelector == "" || s.DetailTitleSelector == "" || len(s.ContentSelectors) == 0 {
		return ErrMissingSelector
	}

	if _, err := s.DetailPattern(); err != nil {
		return err
	}

	if s.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if s.MaxItems < 0 {
		return ErrInvalidMaxItems
	}

	return nil
}
