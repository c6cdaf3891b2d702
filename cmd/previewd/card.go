// cmd/previewd/card.go
package main

import (
	_ "embed"
	"html/template"
	"net/http"
)

const (
	// maxDisplayText bounds the text shown in the card body.
	maxDisplayText = 500
	// maxDescription bounds the og:description meta content; unfurlers only
	// show the first sentence or two anyway.
	maxDescription = 160
)

//go:embed card.html
var cardHTML string

// html/template escapes every interpolation, which is the whole security
// story here: the card is a function of attacker-controllable query params.
var cardTemplate = template.Must(template.New("card").Parse(cardHTML))

type cardData struct {
	Title       string
	Name        string
	Handle      string
	Text        string
	Description string
	Image       string
	Video       string
	Likes       string
	Retweets    string
	Replies     string
	Views       string
}

func handleCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	data := cardData{
		Title:       q.Get("title"),
		Name:        q.Get("name"),
		Handle:      q.Get("handle"),
		Text:        truncate(q.Get("text"), maxDisplayText),
		Description: truncate(q.Get("text"), maxDescription),
		Image:       q.Get("image"),
		Video:       q.Get("video"),
		Likes:       orZero(q.Get("likes")),
		Retweets:    orZero(q.Get("retweets")),
		Replies:     orZero(q.Get("replies")),
		Views:       orZero(q.Get("views")),
	}
	if data.Title == "" {
		data.Title = data.Name
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := cardTemplate.Execute(w, data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// truncate cuts s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
