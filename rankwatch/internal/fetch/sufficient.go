package fetch

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const (
	minSufficientBytes = 256
	minVisibleText     = 200
	minTextRatio       = 0.10
)

// rankingMarkers prove the list was server-rendered even when the page is
// otherwise script-heavy.
var rankingMarkers = []string{"tx_name", "tx_brand", "data-prd-name", "data-goods-name", "data-brand-name"}

var shellMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	"<noscript>you need to enable javascript",
	"<noscript>enable javascript",
}

// IsSufficient reports whether a plain HTTP response can be extracted
// without rendering. JSON payloads always can; HTML must carry a ranking
// marker or enough visible text and no SPA shell.
func IsSufficient(resp *Response) bool {
	if resp == nil {
		return false
	}
	if looksJSON(resp.ContentType, resp.Body) {
		return true
	}

	lower := strings.ToLower(resp.Body)
	for _, m := range rankingMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	if len(resp.Body) < minSufficientBytes {
		return false
	}
	for _, m := range shellMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}

	text := visibleText(resp.Body)
	if text < minVisibleText {
		return false
	}
	return float64(text)/float64(len(resp.Body)) >= minTextRatio
}

func looksJSON(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	b := strings.TrimSpace(body)
	return strings.HasPrefix(b, "{") || strings.HasPrefix(b, "[")
}

// visibleText counts non-space bytes of rendered text, ignoring scripts,
// styles and templates.
func visibleText(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	doc.Find("script, style, noscript, template").Remove()
	n := 0
	for _, r := range doc.Find("body").Text() {
		if !unicode.IsSpace(r) {
			n += len(string(r))
		}
	}
	return n
}
