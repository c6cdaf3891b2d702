// cmd/kagerou/sink.go
package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// DeliverySink accepts rendered messages for a destination. Sends may fail
// transiently; the scheduler owns retry policy, the sink just reports.
type DeliverySink interface {
	Send(ctx context.Context, destination string, msg Message) error
}

// discordSink delivers messages to Discord channels, paced by a shared rate
// limiter so a large catch-up batch doesn't trip the API limiter.
type discordSink struct {
	session *discordgo.Session
	limiter *rate.Limiter
}

func newDiscordSink(session *discordgo.Session, perSecond float64, burst int) *discordSink {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &discordSink{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (d *discordSink) Send(ctx context.Context, channelID string, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkDelivery, err)
	}

	send := &discordgo.MessageSend{Content: msg.Text}
	if msg.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{buildDiscordEmbed(msg.Embed)}
	}

	if _, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkDelivery, err)
	}

	// Companion bare URL: Discord won't play a video from embed fields, but
	// it will unfurl a plain link. Sent as a second message so the embed
	// above keeps its layout.
	if msg.CompanionURL != "" {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkDelivery, err)
		}
		if _, err := d.session.ChannelMessageSend(channelID, msg.CompanionURL, discordgo.WithContext(ctx)); err != nil {
			// The primary message landed; a lost companion is cosmetic.
			Log().Warn("companion URL send failed for %s: %v", channelID, err)
		}
	}
	return nil
}

func buildDiscordEmbed(e *Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Text,
		Color:       embedColor,
	}
	if e.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    e.AuthorName,
			URL:     e.AuthorURL,
			IconURL: e.AuthorIcon,
		}
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.ThumbURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbURL}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	if e.Metrics != nil {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Replies", Value: strconv.Itoa(e.Metrics.Replies), Inline: true},
			{Name: "Reposts", Value: strconv.Itoa(e.Metrics.Reposts), Inline: true},
			{Name: "Likes", Value: strconv.Itoa(e.Metrics.Likes), Inline: true},
		}
		if e.Metrics.Views > 0 {
			embed.Fields = append(embed.Fields,
				&discordgo.MessageEmbedField{Name: "Views", Value: strconv.Itoa(e.Metrics.Views), Inline: true})
		}
	}
	return embed
}

// renderMessage turns a fetched item into the sink message for a subject.
func renderMessage(subject Subject, it Item) Message {
	embed := &Embed{
		AuthorName: fmt.Sprintf("%s (@%s)", authorDisplay(it), it.Handle),
		AuthorURL:  fmt.Sprintf("https://x.com/%s", it.Handle),
		AuthorIcon: it.AvatarURL,
		URL:        it.Permalink,
		Text:       truncate(it.Text, maxEmbedText),
		Footer:     "X",
		Timestamp:  it.CreatedAt,
	}
	if it.Metrics != (Metrics{}) {
		m := it.Metrics
		embed.Metrics = &m
	}
	if photo, ok := it.Photo(); ok {
		embed.ImageURL = firstNonEmpty(photo.URL, photo.PreviewURL)
	}

	msg := Message{Embed: embed}

	if video, ok := it.Video(); ok {
		if embed.ImageURL == "" {
			embed.ImageURL = video.PreviewURL
		}
		msg.CompanionURL = companionURL(it, video)
	}
	return msg
}

// companionURL is what gets dual-sent for video posts: a previewd link when
// one is configured (the preview page carries og:video/twitter:player tags
// the client will render), otherwise the raw media URL.
func companionURL(it Item, video Media) string {
	if cfg.PreviewBaseURL == "" {
		return video.URL
	}
	q := url.Values{}
	q.Set("title", fmt.Sprintf("%s (@%s)", authorDisplay(it), it.Handle))
	q.Set("name", authorDisplay(it))
	q.Set("handle", it.Handle)
	q.Set("text", it.Text)
	q.Set("video", video.URL)
	if video.PreviewURL != "" {
		q.Set("image", video.PreviewURL)
	}
	q.Set("replies", strconv.Itoa(it.Metrics.Replies))
	q.Set("retweets", strconv.Itoa(it.Metrics.Reposts))
	q.Set("likes", strconv.Itoa(it.Metrics.Likes))
	q.Set("views", strconv.Itoa(it.Metrics.Views))
	return strings.TrimRight(cfg.PreviewBaseURL, "/") + "/?" + q.Encode()
}

func authorDisplay(it Item) string {
	if it.AuthorName != "" {
		return it.AuthorName
	}
	return it.Handle
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
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
