package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Resolver fetches and parses the site's listing pages.
type Resolver struct {
	base   string
	logger *slog.Logger
}

// New creates a resolver against the given site base URL.
func New(base string, logger *slog.Logger) *Resolver {
	return &Resolver{base: base, logger: logger.With("component", "scrape")}
}

// fetchDocument retrieves one page and hands back its parsed document.
func (r *Resolver) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var (
		doc      *goquery.Document
		parseErr error
		fetchErr error
	)

	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.SetRequestTimeout(20 * time.Second)

	c.OnRequest(func(req *colly.Request) {
		select {
		case <-ctx.Done():
			req.Abort()
		default:
		}
	})
	c.OnResponse(func(resp *colly.Response) {
		doc, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	})
	c.OnError(func(resp *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, parseErr)
	}
	if doc == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fetch %s: no response", pageURL)
	}
	return doc, nil
}

// Search returns the shows matching a keyword.
func (r *Resolver) Search(ctx context.Context, keyword string) ([]models.ActionEpisodes, error) {
	pageURL := r.base + "/search.html?keyword=" + url.QueryEscape(keyword)
	doc, err := r.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	shows := parseSearch(doc)
	r.logger.Debug("search complete", "keyword", keyword, "results", len(shows))
	return shows, nil
}

// Episodes returns the ordered episode list for a show. The listing is
// reachable from any episode's page; episode 1 is used as the entry point.
func (r *Resolver) Episodes(ctx context.Context, show string) ([]models.ActionDownload, error) {
	pageURL := r.base + "/videos/" + Slug(show, 1)
	doc, err := r.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	episodes := parseEpisodes(doc)
	r.logger.Debug("episode listing complete", "show", show, "episodes", len(episodes))
	return episodes, nil
}

// ResolveDownloadURL derives the download-flow URL for one episode from its
// landing page's embedded player.
func (r *Resolver) ResolveDownloadURL(ctx context.Context, show string, episode int) (string, error) {
	pageURL := r.base + "/videos/" + Slug(show, episode)
	doc, err := r.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	downloadURL, err := parsePlayerURL(doc)
	if err != nil {
		return "", fmt.Errorf("resolve %s episode %d: %w", show, episode, err)
	}
	r.logger.Debug("download url resolved", "show", show, "episode", episode, "url", downloadURL)
	return downloadURL, nil
}
