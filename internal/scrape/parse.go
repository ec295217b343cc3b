package scrape

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
)

var episodeName = regexp.MustCompile(`^(.+?) Episode (\d+)$`)

// parseSearch extracts show results from a search listing document.
func parseSearch(doc *goquery.Document) []models.ActionEpisodes {
	var shows []models.ActionEpisodes
	seen := make(map[string]bool)

	doc.Find("ul.listing.items > li.video-block").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(".name").Text())
		image := s.Find(".picture > img").AttrOr("src", "")

		m := episodeName.FindStringSubmatch(name)
		if m == nil || image == "" {
			return
		}
		show := m[1]
		if seen[show] {
			return
		}
		seen[show] = true
		shows = append(shows, models.ActionEpisodes{Show: show, Image: image})
	})

	return shows
}

// parseEpisodes extracts the deduplicated, ordered episode list from a
// show's video listing document.
func parseEpisodes(doc *goquery.Document) []models.ActionDownload {
	var episodes []models.ActionDownload
	seen := make(map[int]bool)

	doc.Find("ul.listing.items.lists > li.video-block").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(".name").Text())
		m := episodeName.FindStringSubmatch(name)
		if m == nil {
			return
		}
		ep, err := strconv.Atoi(m[2])
		if err != nil || seen[ep] {
			return
		}
		seen[ep] = true
		episodes = append(episodes, models.ActionDownload{Show: m[1], Episode: ep})
	})

	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Episode < episodes[j].Episode })
	return episodes
}

// parsePlayerURL extracts the embedded player URL from an episode page and
// rewrites it to the download-flow variant.
func parsePlayerURL(doc *goquery.Document) (string, error) {
	src, ok := doc.Find("iframe").First().Attr("src")
	if !ok || src == "" {
		return "", fmt.Errorf("no player iframe on page")
	}
	if strings.HasPrefix(src, "//") {
		src = "http:" + src
	}
	return strings.Replace(src, "play.php", "download", 1), nil
}
