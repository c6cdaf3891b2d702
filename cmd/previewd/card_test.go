// cmd/previewd/card_test.go
package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func getCard(t *testing.T, params url.Values) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/?"+params.Encode(), nil)
	rec := httptest.NewRecorder()

	handleCard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	return rec.Body.String()
}

func TestCardVideoPost(t *testing.T) {
	body := getCard(t, url.Values{
		"title":    {"Alice (@alice)"},
		"name":     {"Alice"},
		"handle":   {"alice"},
		"text":     {"watch this"},
		"video":    {"https://video.example.com/v.mp4"},
		"image":    {"https://video.example.com/v.jpg"},
		"likes":    {"42"},
		"retweets": {"7"},
		"replies":  {"3"},
		"views":    {"900"},
	})

	for _, want := range []string{
		`<meta property="og:title" content="Alice (@alice)">`,
		`<meta property="og:description" content="watch this">`,
		`<meta property="og:image" content="https://video.example.com/v.jpg">`,
		`<meta property="og:video" content="https://video.example.com/v.mp4">`,
		`<meta name="twitter:card" content="player">`,
		`<meta name="twitter:player" content="https://video.example.com/v.mp4">`,
		`<source src="https://video.example.com/v.mp4" type="video/mp4">`,
		`<strong>42</strong>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("card missing %s", want)
		}
	}
	if strings.Contains(body, "summary_large_image") {
		t.Error("video card fell back to summary_large_image")
	}
}

func TestCardImagePost(t *testing.T) {
	body := getCard(t, url.Values{
		"name":   {"Alice"},
		"handle": {"alice"},
		"text":   {"a photo"},
		"image":  {"https://pbs.example.com/p.jpg"},
	})

	if !strings.Contains(body, `<meta name="twitter:card" content="summary_large_image">`) {
		t.Error("image card missing summary_large_image")
	}
	if strings.Contains(body, "og:video") || strings.Contains(body, "<video") {
		t.Error("image card carries video markup")
	}
	// Title falls back to the display name.
	if !strings.Contains(body, `<meta property="og:title" content="Alice">`) {
		t.Error("title did not default to name")
	}
}

func TestCardEscapesHostileInput(t *testing.T) {
	body := getCard(t, url.Values{
		"name": {`<script>alert(1)</script>`},
		"text": {`"><img src=x onerror=alert(1)>`},
	})

	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("script tag survived unescaped")
	}
	if strings.Contains(body, "<img src=x") {
		t.Error("injected attribute survived unescaped")
	}
}

func TestCardTruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", maxDisplayText+200)
	body := getCard(t, url.Values{"text": {long}})

	if strings.Contains(body, long) {
		t.Error("body text not truncated")
	}
	// The description is clipped harder than the display text.
	descLine := `<meta property="og:description" content="`
	i := strings.Index(body, descLine)
	if i < 0 {
		t.Fatal("no description tag")
	}
	rest := body[i+len(descLine):]
	desc := rest[:strings.IndexByte(rest, '"')]
	if n := len([]rune(desc)); n > maxDescription {
		t.Errorf("description is %d runes, cap is %d", n, maxDescription)
	}
}

func TestCardZeroMetricsDefault(t *testing.T) {
	body := getCard(t, url.Values{"name": {"Alice"}})
	if strings.Count(body, "<strong>0</strong>") != 4 {
		t.Error("missing metric params did not default to 0")
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"ok"}` {
		t.Errorf("body = %s", body)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("no-op truncate = %q", got)
	}
	if got := truncate("hello world", 6); got != "hello…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("あいうえお", 3); got != "あい…" {
		t.Errorf("multibyte truncate = %q", got)
	}
}
