package hls

import (
	"net/url"
	"regexp"
	"strings"
)

var variantURLPattern = regexp.MustCompile(`(?m)^https:.*\.m3u8`)

// IsPlaylistURL reports whether a request URL targets a playlist document.
// Query strings and fragments are ignored for the extension match.
func IsPlaylistURL(rawURL string) bool {
	trimmed := strings.TrimSpace(rawURL)
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		return strings.HasSuffix(u.Path, ".m3u8")
	}
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(trimmed, ".m3u8")
}

// FirstVariantURL returns the first playlist URL line of a master playlist.
func FirstVariantURL(master string) (string, bool) {
	m := variantURLPattern.FindString(master)
	if m == "" {
		return "", false
	}
	return m, true
}

// VariantURLs returns every non-comment playlist URL line of a master
// playlist, in order.
func VariantURLs(master string) []string {
	var urls []string
	for _, line := range strings.Split(master, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if IsPlaylistURL(line) {
			urls = append(urls, line)
		}
	}
	return urls
}

// ContainsAdSignifier reports whether a playlist body carries the inserted-ad
// marker token.
func ContainsAdSignifier(body, signifier string) bool {
	return signifier != "" && strings.Contains(body, signifier)
}

// IsMidroll reports whether the playlist text around a detected ad indicates
// a mid-roll insertion.
func IsMidroll(body string) bool {
	return strings.Contains(strings.ToLower(body), "midroll")
}

// DateRangeAttrs extracts the attribute mappings of every #EXT-X-DATERANGE
// directive in a playlist body.
func DateRangeAttrs(body string) []*Attrs {
	const prefix = "#EXT-X-DATERANGE:"
	var out []*Attrs
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			out = append(out, ParseAttributes(line[len(prefix):]))
		}
	}
	return out
}
