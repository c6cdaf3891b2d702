// cmd/kagerou/scrape.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// scrapeSource pulls a subject's public timeline page and extracts posts from
// the markup. It is the fallback of last resort: no media variants, no
// metrics, just IDs and text. Works against mirror frontends that render
// server-side; the official site renders client-side and will usually come
// back empty there.
type scrapeSource struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func newScrapeSource(baseURL, userAgent string, client *http.Client) *scrapeSource {
	return &scrapeSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
	}
}

func (s *scrapeSource) Name() string { return "scrape" }

func (s *scrapeSource) Fetch(ctx context.Context, subject Subject) ([]Item, error) {
	pageURL := fmt.Sprintf("%s/%s", s.baseURL, subject.Handle)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, NewSourceError(SourceUnavailable, s.Name(), err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSourceError(SourceUnavailable, s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewSourceError(classifyStatus(resp.StatusCode), s.Name(),
			fmt.Errorf("want 200, got %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, NewSourceError(SourceMalformed, s.Name(), err)
	}

	return s.extract(subject, doc), nil
}

// extract walks timeline entries. Both nitter-style markup (.timeline-item)
// and article-based markup are handled; anything without a /status/ link is
// skipped.
func (s *scrapeSource) extract(subject Subject, doc *goquery.Document) []Item {
	var items []Item
	seen := make(map[string]bool)

	collect := func(sel *goquery.Selection, textSelector string) {
		link, ok := sel.Find(`a[href*="/status/"]`).First().Attr("href")
		if !ok {
			return
		}
		id := statusIDFromLink(link)
		if id == "" || seen[id] {
			return
		}

		text := strings.TrimSpace(sel.Find(textSelector).First().Text())
		if text == "" {
			return
		}

		it := Item{
			ID:         id,
			Text:       text,
			Permalink:  fmt.Sprintf("https://x.com/%s/status/%s", subject.Handle, id),
			AuthorName: subject.Handle,
			Handle:     subject.Handle,
		}
		if dt, ok := sel.Find("time").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				it.CreatedAt = t
			}
		}
		if src, ok := sel.Find(".attachment img, .still-image img").First().Attr("src"); ok {
			it.Media = append(it.Media, Media{Kind: MediaPhoto, URL: src})
		}

		seen[id] = true
		items = append(items, it)
	}

	doc.Find(".timeline-item").Each(func(_ int, sel *goquery.Selection) {
		collect(sel, ".tweet-content")
	})
	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		collect(sel, `[data-testid="tweetText"]`)
	})

	return items
}
