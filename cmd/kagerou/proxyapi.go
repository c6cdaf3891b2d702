// cmd/kagerou/proxyapi.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// proxySource fetches a subject's timeline from a third-party proxy exposing
// a v2-style JSON API. Responses are normalized at this boundary: media
// variants collapse to the highest-bitrate mp4, metrics map onto the fixed
// Metrics shape, and nothing provider-specific leaks past Fetch.
type proxySource struct {
	baseURL    string
	bearer     string
	maxResults int
	client     *http.Client

	mutex   sync.Mutex
	userIDs map[string]string // handle -> upstream user ID
}

func newProxySource(baseURL, bearer string, maxResults int, client *http.Client) *proxySource {
	if maxResults < 5 {
		maxResults = 5 // upstream minimum
	}
	if maxResults > 100 {
		maxResults = 100
	}
	return &proxySource{
		baseURL:    baseURL,
		bearer:     bearer,
		maxResults: maxResults,
		client:     client,
		userIDs:    make(map[string]string),
	}
}

func (p *proxySource) Name() string { return "proxy" }

type proxyUserResponse struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

type proxyTimelineResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			ReplyCount      int `json:"reply_count"`
			RetweetCount    int `json:"retweet_count"`
			LikeCount       int `json:"like_count"`
			ImpressionCount int `json:"impression_count"`
		} `json:"public_metrics"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Media []struct {
			MediaKey        string `json:"media_key"`
			Type            string `json:"type"`
			URL             string `json:"url"`
			PreviewImageURL string `json:"preview_image_url"`
			Variants        []struct {
				BitRate     int    `json:"bit_rate"`
				ContentType string `json:"content_type"`
				URL         string `json:"url"`
			} `json:"variants"`
		} `json:"media"`
		Users []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"users"`
	} `json:"includes"`
}

func (p *proxySource) Fetch(ctx context.Context, subject Subject) ([]Item, error) {
	userID, err := p.lookupUserID(ctx, subject.Handle)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(p.maxResults))
	q.Set("tweet.fields", "created_at,public_metrics")
	q.Set("expansions", "attachments.media_keys,author_id")
	q.Set("media.fields", "media_key,type,url,preview_image_url,variants")
	q.Set("user.fields", "name,username,profile_image_url")

	endpoint := fmt.Sprintf("%s/users/%s/tweets?%s", p.baseURL, userID, q.Encode())

	var timeline proxyTimelineResponse
	if err := p.getJSON(ctx, endpoint, &timeline); err != nil {
		return nil, err
	}

	return p.normalize(subject, &timeline), nil
}

// lookupUserID resolves and caches the upstream numeric ID for a handle.
func (p *proxySource) lookupUserID(ctx context.Context, handle string) (string, error) {
	p.mutex.Lock()
	if id, ok := p.userIDs[handle]; ok {
		p.mutex.Unlock()
		return id, nil
	}
	p.mutex.Unlock()

	var user proxyUserResponse
	endpoint := fmt.Sprintf("%s/users/by/username/%s", p.baseURL, url.PathEscape(handle))
	if err := p.getJSON(ctx, endpoint, &user); err != nil {
		return "", err
	}
	if user.Data.ID == "" {
		return "", NewSourceError(SourceNotFound, p.Name(), fmt.Errorf("no user ID for @%s", handle))
	}

	p.mutex.Lock()
	p.userIDs[handle] = user.Data.ID
	p.mutex.Unlock()
	return user.Data.ID, nil
}

func (p *proxySource) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return NewSourceError(SourceUnavailable, p.Name(), err)
	}
	if p.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+p.bearer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return NewSourceError(SourceUnavailable, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewSourceError(classifyStatus(resp.StatusCode), p.Name(),
			fmt.Errorf("want 200, got %d: %s", resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewSourceError(SourceMalformed, p.Name(), err)
	}
	return nil
}

func (p *proxySource) normalize(subject Subject, timeline *proxyTimelineResponse) []Item {
	mediaByKey := make(map[string]int, len(timeline.Includes.Media))
	for i, m := range timeline.Includes.Media {
		mediaByKey[m.MediaKey] = i
	}

	authorName, avatarURL := subject.Handle, ""
	for _, u := range timeline.Includes.Users {
		if normalizeHandle(u.Username) == subject.Handle {
			authorName, avatarURL = u.Name, u.ProfileImageURL
			break
		}
	}

	items := make([]Item, 0, len(timeline.Data))
	for _, tw := range timeline.Data {
		it := Item{
			ID:         tw.ID,
			Text:       tw.Text,
			Permalink:  fmt.Sprintf("https://x.com/%s/status/%s", subject.Handle, tw.ID),
			AuthorName: authorName,
			Handle:     subject.Handle,
			AvatarURL:  avatarURL,
			Metrics: Metrics{
				Replies: tw.PublicMetrics.ReplyCount,
				Reposts: tw.PublicMetrics.RetweetCount,
				Likes:   tw.PublicMetrics.LikeCount,
				Views:   tw.PublicMetrics.ImpressionCount,
			},
		}
		if t, err := time.Parse(time.RFC3339, tw.CreatedAt); err == nil {
			it.CreatedAt = t
		}

		for _, key := range tw.Attachments.MediaKeys {
			i, ok := mediaByKey[key]
			if !ok {
				continue
			}
			m := timeline.Includes.Media[i]
			switch m.Type {
			case "photo":
				it.Media = append(it.Media, Media{Kind: MediaPhoto, URL: m.URL, PreviewURL: m.PreviewImageURL})
			case "video", "animated_gif":
				kind := MediaVideo
				if m.Type == "animated_gif" {
					kind = MediaGIF
				}
				// Pick the highest-bitrate mp4 variant.
				best, bestRate := "", -1
				for _, v := range m.Variants {
					if v.ContentType == "video/mp4" && v.BitRate > bestRate {
						best, bestRate = v.URL, v.BitRate
					}
				}
				if best == "" {
					best = m.URL
				}
				it.Media = append(it.Media, Media{Kind: kind, URL: best, PreviewURL: m.PreviewImageURL})
			}
		}

		items = append(items, it)
	}
	return items
}
