// Package browser manages the shared headless Chrome used to render pages.
//
// One Session owns one Chrome process driven over the DevTools protocol
// (github.com/chromedp/chromedp). Every goroutine opens its own Page (a tab)
// on that process and closes it when done. Ad and tracking requests are
// aborted on every page, and binary media can be blocked as well.
package browser
