// cmd/kagerou/source.go
package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// ItemSource supplies a batch of candidate items for a subject. Batches may
// be empty, unordered or partial; adapters normalize provider payloads into
// the Item shape before anything sees them, and classify failures as
// SourceError kinds.
type ItemSource interface {
	Name() string
	Fetch(ctx context.Context, subject Subject) ([]Item, error)
}

var handleFolder = cases.Fold()

// normalizeHandle canonicalizes an account handle: leading @ stripped,
// whitespace trimmed, case folded. Subject IDs are always the normalized
// form so markers and registry entries agree.
func normalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return handleFolder.String(handle)
}

// sourceChain tries each source in order until one returns a batch. This
// replaces per-provider retry cascades: failover order is data, not code.
type sourceChain struct {
	sources []ItemSource
}

func (c *sourceChain) Name() string { return "chain" }

// Fetch returns the first successful batch. A malformed response from one
// source is logged and the next source is tried; if every source fails, the
// last error is returned so the scheduler can classify it.
func (c *sourceChain) Fetch(ctx context.Context, subject Subject) ([]Item, error) {
	var lastErr error
	for _, src := range c.sources {
		if ctx.Err() != nil {
			return nil, NewSourceError(SourceUnavailable, c.Name(), ctx.Err())
		}

		items, err := src.Fetch(ctx, subject)
		if err == nil {
			return items, nil
		}
		lastErr = err
		Log().Warn("source %s failed for @%s: %v", src.Name(), subject.Handle, err)

		// Auth problems won't clear by trying the same source again, but
		// another provider may still work.
	}
	if lastErr == nil {
		lastErr = NewSourceError(SourceUnavailable, c.Name(), errors.New("no sources configured"))
	}
	return nil, NewError(ErrorTypeSource, ErrCodeSourceExhaust, "all sources failed", lastErr)
}

// BuildSources assembles the fallback chain from configuration. Unknown
// names are skipped with a warning; the proxy source is skipped when no
// base URL is configured.
func BuildSources(cfg *Config) (ItemSource, error) {
	httpClient := &http.Client{Timeout: time.Duration(cfg.FetchTimeoutSecs) * time.Second}

	var sources []ItemSource
	for _, name := range cfg.SourceOrder {
		switch strings.TrimSpace(name) {
		case "nitter":
			sources = append(sources, newNitterSource(cfg.NitterBaseURLs, cfg.UserAgent, httpClient))
		case "proxy":
			if cfg.ProxyAPIBaseURL == "" {
				Log().Warn("proxy source requested but PROXY_API_BASE_URL is not set, skipping")
				continue
			}
			sources = append(sources, newProxySource(cfg.ProxyAPIBaseURL, cfg.ProxyBearerToken, cfg.MaxItemsPerPoll, httpClient))
		case "scrape":
			sources = append(sources, newScrapeSource(cfg.ScrapeBaseURL, cfg.UserAgent, httpClient))
		default:
			Log().Warn("unknown source %q in SOURCE_ORDER, skipping", name)
		}
	}
	if len(sources) == 0 {
		return nil, NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "no usable sources configured", nil)
	}
	return &sourceChain{sources: sources}, nil
}

// classifyStatus maps an HTTP status to a source error kind.
func classifyStatus(status int) SourceKind {
	switch {
	case status == http.StatusNotFound:
		return SourceNotFound
	case status == http.StatusTooManyRequests:
		return SourceRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return SourceAuthRequired
	default:
		return SourceUnavailable
	}
}

// statusIDFromLink extracts the snowflake from a .../status/<id> permalink.
// Returns "" when the link does not carry one.
func statusIDFromLink(link string) string {
	const needle = "/status/"
	i := strings.Index(link, needle)
	if i < 0 {
		return ""
	}
	id := link[i+len(needle):]
	for j, r := range id {
		if r < '0' || r > '9' {
			id = id[:j]
			break
		}
	}
	if !isDigits(id) {
		return ""
	}
	return id
}
