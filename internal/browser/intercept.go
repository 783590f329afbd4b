package browser

import (
	"net/url"
	"path"
	"strings"
)

// adDomains are aborted on every page regardless of settings.
var adDomains = []string{
	"doubleclick.net",
	"adservice.google.com",
	"googlesyndication.com",
	"googletagservices.com",
	"googletagmanager.com",
	"google-analytics.com",
	"adsystem.com",
	"adservice.com",
	"adnxs.com",
	"ads-twitter.com",
	"facebook.net",
	"fbcdn.net",
	"amazon-adsystem.com",
}

// mediaExtensions are aborted when media blocking is enabled.
var mediaExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".svg":  {},
	".mp3":  {},
	".mp4":  {},
	".avi":  {},
	".flac": {},
	".ogg":  {},
	".wav":  {},
	".webm": {},
}

// shouldBlock reports whether a request to rawURL must be aborted.
func shouldBlock(rawURL string, blockMedia bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, domain := range adDomains {
		if strings.Contains(host, domain) {
			return true
		}
	}

	if !blockMedia {
		return false
	}
	_, ok := mediaExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}
