// cmd/kagerou/types.go
package main

import (
	"time"
)

// MediaKind identifies the kind of a media attachment.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaGIF   MediaKind = "gif"
)

// Media describes one attachment on an item.
type Media struct {
	Kind       MediaKind `json:"kind"`
	URL        string    `json:"url"`
	PreviewURL string    `json:"previewUrl,omitempty"`
}

// Metrics holds best-effort engagement counts for an item. Sources that
// cannot provide them leave the struct zeroed.
type Metrics struct {
	Replies int `json:"replies"`
	Reposts int `json:"reposts"`
	Likes   int `json:"likes"`
	Views   int `json:"views"`
}

// Item is a single fetched post, normalized at the source-adapter boundary.
// It is immutable once constructed; adapters must not hand out items they
// keep mutating. Ordering always uses ID, never CreatedAt — timestamps from
// scraped sources are unreliable or absent.
type Item struct {
	ID         string
	Text       string
	Permalink  string
	AuthorName string
	Handle     string
	AvatarURL  string
	Media      []Media
	Metrics    Metrics
	CreatedAt  time.Time // advisory only
}

// Video returns the first video or gif attachment, if any.
func (it Item) Video() (Media, bool) {
	for _, m := range it.Media {
		if m.Kind == MediaVideo || m.Kind == MediaGIF {
			return m, true
		}
	}
	return Media{}, false
}

// Photo returns the first photo attachment, if any.
func (it Item) Photo() (Media, bool) {
	for _, m := range it.Media {
		if m.Kind == MediaPhoto {
			return m, true
		}
	}
	return Media{}, false
}

// FirstPollPolicy decides what happens on a subject's very first poll, when
// no marker exists yet. Skipping the backlog is the default: backfilling on
// every fresh registration re-posts history, which is almost never what an
// operator wants.
type FirstPollPolicy string

const (
	SkipBacklogOnFirstPoll    FirstPollPolicy = "skip"
	DeliverBacklogOnFirstPoll FirstPollPolicy = "backfill"
)

// DedupeMode selects the marker representation for a subject.
type DedupeMode string

const (
	// DedupeMarker treats "new" as "ID strictly greater than the marker".
	// Requires IDs with a chronologically consistent total order.
	DedupeMarker DedupeMode = "marker"
	// DedupeRecent treats "new" as "not in the recent-ID set". For sources
	// whose IDs are not strictly monotonic.
	DedupeRecent DedupeMode = "recent"
)

// recentSetLimit bounds the recent-ID set kept per subject in DedupeRecent
// mode. Trimmed after every tick.
const recentSetLimit = 100

// Subject identifies one remote account being monitored and where its posts
// are relayed. Owned by the scheduler's registry; handles are case-normalized
// on load.
type Subject struct {
	Handle       string          `yaml:"handle"`
	ChannelID    string          `yaml:"channel_id"`
	IntervalSecs int             `yaml:"interval_seconds,omitempty"`
	FirstPoll    FirstPollPolicy `yaml:"first_poll,omitempty"`
	Dedupe       DedupeMode      `yaml:"dedupe,omitempty"`
	Paused       bool            `yaml:"paused,omitempty"`
}

// Interval returns the poll cadence for the subject, applying the configured
// default when unset.
func (s Subject) Interval() time.Duration {
	if s.IntervalSecs <= 0 {
		return time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	return time.Duration(s.IntervalSecs) * time.Second
}

// SeenMarker records delivery progress for one subject. LastDeliveredID == ""
// means nothing was ever delivered. Once non-empty it only ever moves forward.
type SeenMarker struct {
	SubjectID       string    `json:"subjectId"`
	LastDeliveredID string    `json:"lastDeliveredId"`
	RecentIDs       []string  `json:"recentIds,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IsNull reports whether the marker has never been advanced.
func (m SeenMarker) IsNull() bool {
	return m.LastDeliveredID == "" && len(m.RecentIDs) == 0
}

// Message is a rendered post ready for a delivery sink. Embed carries the
// structured preview; CompanionURL, when set, is sent as plain content so the
// client's own unfurler picks it up (structured video fields do not render in
// Discord, the bare-URL companion does).
type Message struct {
	Text         string
	Embed        *Embed
	CompanionURL string
}

// Embed is the sink-agnostic shape of a rich preview.
type Embed struct {
	AuthorName string
	AuthorURL  string
	AuthorIcon string
	Title      string
	URL        string
	Text       string
	ImageURL   string
	ThumbURL   string
	Footer     string
	Timestamp  time.Time
	Metrics    *Metrics
}
