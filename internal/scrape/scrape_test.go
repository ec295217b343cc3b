package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		show    string
		episode int
		want    string
	}{
		{"Strong Girl Bong-soon", 3, "strong-girl-bongsoon-episode-3"},
		{"Strong Girl Bongsoon", 3, "strong-girl-bongsoon-episode-3"},
		{"STRONG girl bongsoon", 3, "strong-girl-bongsoon-episode-3"},
		{"W (Two Worlds)", 1, "w-two-worlds-episode-1"},
		{"It's Okay to Not Be Okay", 16, "its-okay-to-not-be-okay-episode-16"},
		{"Hotel  Del   Luna", 2, "hotel-del-luna-episode-2"},
	}

	for _, c := range cases {
		if got := Slug(c.show, c.episode); got != c.want {
			t.Errorf("Slug(%q, %d) = %q, want %q", c.show, c.episode, got, c.want)
		}
	}
}

func TestSlugDeterministic(t *testing.T) {
	a := Slug("Crash Landing on You!", 5)
	b := Slug("Crash Landing, on You", 5)
	if a != b {
		t.Errorf("equivalent inputs produced different slugs: %q vs %q", a, b)
	}
}

const searchHTML = `
<html><body>
<ul class="listing items">
	<li class="video-block">
		<div class="picture"><img src="http://img/bongsoon.jpg"></div>
		<div class="name"> Strong Girl Bong-soon Episode 16 </div>
	</li>
	<li class="video-block">
		<div class="picture"><img src="http://img/bongsoon.jpg"></div>
		<div class="name">Strong Girl Bong-soon Episode 15</div>
	</li>
	<li class="video-block">
		<div class="picture"><img src="http://img/goblin.jpg"></div>
		<div class="name">Goblin Episode 1</div>
	</li>
	<li class="video-block">
		<div class="picture"><img src="http://img/x.jpg"></div>
		<div class="name">Not An Episode Entry</div>
	</li>
</ul>
</body></html>`

func TestParseSearch(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchHTML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	shows := parseSearch(doc)
	if len(shows) != 2 {
		t.Fatalf("parseSearch returned %d shows, want 2 (deduplicated)", len(shows))
	}
	if shows[0].Show != "Strong Girl Bong-soon" || shows[0].Image != "http://img/bongsoon.jpg" {
		t.Errorf("shows[0] = %+v, want Strong Girl Bong-soon", shows[0])
	}
	if shows[1].Show != "Goblin" {
		t.Errorf("shows[1].Show = %q, want Goblin", shows[1].Show)
	}
}

const episodesHTML = `
<html><body>
<ul class="listing items lists">
	<li class="video-block"><div class="name">Goblin Episode 3</div></li>
	<li class="video-block"><div class="name">Goblin Episode 1</div></li>
	<li class="video-block"><div class="name">Goblin Episode 2</div></li>
	<li class="video-block"><div class="name">Goblin Episode 2</div></li>
</ul>
</body></html>`

func TestParseEpisodes(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(episodesHTML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	episodes := parseEpisodes(doc)
	if len(episodes) != 3 {
		t.Fatalf("parseEpisodes returned %d episodes, want 3", len(episodes))
	}
	for i, want := range []int{1, 2, 3} {
		if episodes[i].Episode != want {
			t.Errorf("episodes[%d].Episode = %d, want %d", i, episodes[i].Episode, want)
		}
		if episodes[i].Show != "Goblin" {
			t.Errorf("episodes[%d].Show = %q, want Goblin", i, episodes[i].Show)
		}
	}
}

func TestParsePlayerURL(t *testing.T) {
	t.Run("protocol-relative src is rewritten", func(t *testing.T) {
		html := `<html><body><iframe src="//embed.example/streaming.php?id=1&title=x"></iframe></body></html>`
		doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
		got, err := parsePlayerURL(doc)
		if err != nil {
			t.Fatalf("parsePlayerURL error: %v", err)
		}
		want := "http://embed.example/streaming.php?id=1&title=x"
		if got != want {
			t.Errorf("parsePlayerURL = %q, want %q", got, want)
		}
	})

	t.Run("play.php becomes download", func(t *testing.T) {
		html := `<html><body><iframe src="https://embed.example/play.php?id=2"></iframe></body></html>`
		doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
		got, err := parsePlayerURL(doc)
		if err != nil {
			t.Fatalf("parsePlayerURL error: %v", err)
		}
		want := "https://embed.example/download?id=2"
		if got != want {
			t.Errorf("parsePlayerURL = %q, want %q", got, want)
		}
	})

	t.Run("missing iframe is an error", func(t *testing.T) {
		doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
		if _, err := parsePlayerURL(doc); err == nil {
			t.Error("parsePlayerURL = nil error, want error for missing iframe")
		}
	})
}
