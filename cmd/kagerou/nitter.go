// cmd/kagerou/nitter.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
)

// nitterSource reads a subject's timeline from the RSS feed of a Nitter-style
// mirror. Several mirrors can be configured; they are tried in order since
// public instances come and go.
type nitterSource struct {
	baseURLs  []string
	userAgent string
	parser    *gofeed.Parser
}

func newNitterSource(baseURLs []string, userAgent string, client *http.Client) *nitterSource {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = client
	return &nitterSource{
		baseURLs:  baseURLs,
		userAgent: userAgent,
		parser:    parser,
	}
}

func (n *nitterSource) Name() string { return "nitter" }

func (n *nitterSource) Fetch(ctx context.Context, subject Subject) ([]Item, error) {
	var lastErr error
	for _, base := range n.baseURLs {
		feedURL := fmt.Sprintf("%s/%s/rss", strings.TrimRight(base, "/"), subject.Handle)

		feed, err := n.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			lastErr = n.classify(err)
			continue
		}
		return n.normalize(subject, feed), nil
	}
	if lastErr == nil {
		lastErr = NewSourceError(SourceUnavailable, n.Name(), errors.New("no mirror base URLs configured"))
	}
	return nil, lastErr
}

func (n *nitterSource) classify(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return NewSourceError(classifyStatus(httpErr.StatusCode), n.Name(), err)
	}
	if strings.Contains(err.Error(), "Failed to detect feed type") {
		return NewSourceError(SourceMalformed, n.Name(), err)
	}
	return NewSourceError(SourceUnavailable, n.Name(), err)
}

// normalize converts feed entries into Items. Mirror feeds put the post text
// in the entry title and carry media as enclosures; entries without a
// parseable /status/ ID are dropped rather than guessed at.
func (n *nitterSource) normalize(subject Subject, feed *gofeed.Feed) []Item {
	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		id := statusIDFromLink(entry.Link)
		if id == "" && entry.GUID != "" {
			id = statusIDFromLink(entry.GUID)
		}
		if id == "" {
			Log().Debug("nitter: dropping entry without status ID: %s", entry.Link)
			continue
		}

		text := strings.TrimSpace(entry.Title)
		if text == "" {
			text = strings.TrimSpace(entry.Description)
		}

		it := Item{
			ID:         id,
			Text:       text,
			Permalink:  fmt.Sprintf("https://x.com/%s/status/%s", subject.Handle, id),
			AuthorName: strings.TrimPrefix(strings.TrimSpace(authorOf(entry, feed)), "@"),
			Handle:     subject.Handle,
		}
		if entry.PublishedParsed != nil {
			it.CreatedAt = *entry.PublishedParsed
		}
		for _, enc := range entry.Enclosures {
			switch {
			case strings.HasPrefix(enc.Type, "image/"):
				it.Media = append(it.Media, Media{Kind: MediaPhoto, URL: enc.URL})
			case strings.HasPrefix(enc.Type, "video/"):
				it.Media = append(it.Media, Media{Kind: MediaVideo, URL: enc.URL})
			}
		}
		items = append(items, it)
	}
	return items
}

func authorOf(entry *gofeed.Item, feed *gofeed.Feed) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	if entry.DublinCoreExt != nil && len(entry.DublinCoreExt.Creator) > 0 {
		return entry.DublinCoreExt.Creator[0]
	}
	return feed.Title
}
