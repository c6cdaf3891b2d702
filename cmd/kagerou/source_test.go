// cmd/kagerou/source_test.go
package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"@Alice", "alice"},
		{"  alice  ", "alice"},
		{"ALICE_2", "alice_2"},
		{"@@double", "@double"}, // only one leading @ is ours to strip
		{"alice", "alice"},
	}
	for _, tt := range tests {
		if got := normalizeHandle(tt.in); got != tt.want {
			t.Errorf("normalizeHandle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusIDFromLink(t *testing.T) {
	tests := []struct {
		link, want string
	}{
		{"https://nitter.net/alice/status/1790000000000000001", "1790000000000000001"},
		{"https://nitter.net/alice/status/1790000000000000001#m", "1790000000000000001"},
		{"https://x.com/alice/status/42?s=20", "42"},
		{"https://x.com/alice", ""},
		{"https://x.com/alice/status/", ""},
		{"https://x.com/alice/status/notanid", ""},
	}
	for _, tt := range tests {
		if got := statusIDFromLink(tt.link); got != tt.want {
			t.Errorf("statusIDFromLink(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   SourceKind
	}{
		{http.StatusNotFound, SourceNotFound},
		{http.StatusTooManyRequests, SourceRateLimited},
		{http.StatusUnauthorized, SourceAuthRequired},
		{http.StatusForbidden, SourceAuthRequired},
		{http.StatusInternalServerError, SourceUnavailable},
		{http.StatusBadGateway, SourceUnavailable},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// scriptedSource returns a fixed batch or error for chain tests.
type scriptedSource struct {
	name  string
	items []Item
	err   error
	calls int
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Fetch(ctx context.Context, subject Subject) ([]Item, error) {
	s.calls++
	return s.items, s.err
}

func TestSourceChainFirstSuccessWins(t *testing.T) {
	first := &scriptedSource{name: "a", items: batchOf("1", "2")}
	second := &scriptedSource{name: "b", items: batchOf("9")}
	chain := &sourceChain{sources: []ItemSource{first, second}}

	items, err := chain.Fetch(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(items)); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if second.calls != 0 {
		t.Errorf("fallback source called %d times after a success", second.calls)
	}
}

func TestSourceChainFallsThrough(t *testing.T) {
	first := &scriptedSource{name: "a", err: NewSourceError(SourceRateLimited, "a", errors.New("429"))}
	second := &scriptedSource{name: "b", items: batchOf("7")}
	chain := &sourceChain{sources: []ItemSource{first, second}}

	items, err := chain.Fetch(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff([]string{"7"}, ids(items)); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestSourceChainAllFailReturnsLastError(t *testing.T) {
	first := &scriptedSource{name: "a", err: NewSourceError(SourceUnavailable, "a", errors.New("503"))}
	second := &scriptedSource{name: "b", err: NewSourceError(SourceNotFound, "b", errors.New("404"))}
	chain := &sourceChain{sources: []ItemSource{first, second}}

	_, err := chain.Fetch(context.Background(), testSubject())
	if err == nil {
		t.Fatal("expected error when every source fails")
	}
	// The classification of the last failure survives the wrapping.
	if kind := SourceErrorKind(err); kind != SourceNotFound {
		t.Errorf("error kind = %v, want SourceNotFound", kind)
	}
}

func TestSourceChainHonorsContext(t *testing.T) {
	src := &scriptedSource{name: "a", items: batchOf("1")}
	chain := &sourceChain{sources: []ItemSource{src}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := chain.Fetch(ctx, testSubject()); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if src.calls != 0 {
		t.Errorf("source called %d times under a cancelled context", src.calls)
	}
}

func TestBuildSourcesSkipsUnusable(t *testing.T) {
	c := &Config{
		SourceOrder:      []string{"proxy", "nitter", "bogus"},
		NitterBaseURLs:   []string{"https://nitter.example.com"},
		FetchTimeoutSecs: 5,
		// ProxyAPIBaseURL unset: proxy is skipped, not fatal.
	}

	src, err := BuildSources(c)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	chain, ok := src.(*sourceChain)
	if !ok {
		t.Fatalf("unexpected source type %T", src)
	}
	if len(chain.sources) != 1 || chain.sources[0].Name() != "nitter" {
		t.Errorf("chain = %d sources, first %q", len(chain.sources), chain.sources[0].Name())
	}
}

func TestBuildSourcesEmptyOrderFails(t *testing.T) {
	c := &Config{SourceOrder: []string{"bogus"}, FetchTimeoutSecs: 5}
	if _, err := BuildSources(c); err == nil {
		t.Fatal("expected error when no source is usable")
	}
}
