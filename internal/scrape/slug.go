// Package scrape resolves shows, episode listings and player URLs from the
// target site's public listing pages.
package scrape

import (
	"fmt"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// Slug derives the canonical video-page slug for one episode: strip
// non-alphanumerics, collapse spaces to hyphens, lower-case, append the
// episode ordinal.
func Slug(show string, episode int) string {
	cleaned := nonAlnum.ReplaceAllString(show, "")
	cleaned = strings.Join(strings.Fields(cleaned), "-")
	return fmt.Sprintf("%s-episode-%d", strings.ToLower(cleaned), episode)
}
