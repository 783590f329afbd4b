package model

import "time"

// WorkItem is one detail page waiting to be fetched.
// DetailURL is the unique key; every other descriptive field is refreshed
// when the list spider sees the same URL again.
type WorkItem struct {
	// SiteName is the human readable name of the source site.
	SiteName string `json:"site_name"`

	// SiteURL is the listing endpoint the item was discovered on.
	SiteURL string `json:"site_url"`

	// DetailURL is the absolute URL of the detail page.
	DetailURL string `json:"detail_url"`

	// DetailTitle is the normalized title shown in the listing.
	DetailTitle string `json:"detail_title"`

	// DetailDesc is an optional teaser text from the listing.
	DetailDesc string `json:"detail_desc,omitempty"`

	// DetailTime is the optional publish time shown in the listing, kept verbatim.
	DetailTime string `json:"detail_time,omitempty"`

	// Status is the processing state.
	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListEntry is a candidate extracted from a single listing page.
type ListEntry struct {
	Title string
	URL   string
}
