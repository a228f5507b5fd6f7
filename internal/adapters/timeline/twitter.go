package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

const (
	twitterMinResults = 5
	twitterMaxResults = 100
)

// Twitter читает ленту пользователя через API v2.
type Twitter struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

var _ domain.TimelineSource = (*Twitter)(nil)

// NewTwitter создаёт источник. client может быть nil.
func NewTwitter(baseURL, bearerToken, userID string, client *http.Client) *Twitter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Twitter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   bearerToken,
		userID:  userID,
		http:    client,
	}
}

type tweetsResponse struct {
	Data []struct {
		ID       string `json:"id"`
		Text     string `json:"text"`
		Entities struct {
			URLs []struct {
				URL         string `json:"url"`
				ExpandedURL string `json:"expanded_url"`
			} `json:"urls"`
		} `json:"entities"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Recent возвращает до limit последних твитов.
func (t *Twitter) Recent(ctx context.Context, limit int) ([]domain.FeedItem, error) {
	if t.userID == "" {
		return nil, fmt.Errorf("twitter: user id is not configured")
	}
	maxResults := min(max(limit, twitterMinResults), twitterMaxResults)
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("tweet.fields", "entities")
	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", t.baseURL, url.PathEscape(t.userID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.token)

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("twitter", "user_tweets", "api", start, err)
		return nil, fmt.Errorf("twitter: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err = fmt.Errorf("twitter: want 200, got %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		metrics.ObserveNetworkRequest("twitter", "user_tweets", "api", start, err)
		return nil, err
	}

	var payload tweetsResponse
	err = json.NewDecoder(resp.Body).Decode(&payload)
	metrics.ObserveNetworkRequest("twitter", "user_tweets", "api", start, err)
	if err != nil {
		return nil, fmt.Errorf("twitter: decode: %w", err)
	}
	if len(payload.Data) == 0 && len(payload.Errors) > 0 {
		return nil, fmt.Errorf("twitter: %s: %s", payload.Errors[0].Title, payload.Errors[0].Detail)
	}

	items := make([]domain.FeedItem, 0, len(payload.Data))
	for _, tw := range payload.Data {
		item := domain.FeedItem{ID: tw.ID, Text: tw.Text}
		for _, u := range tw.Entities.URLs {
			link := u.ExpandedURL
			if link == "" {
				link = u.URL
			}
			if link != "" {
				item.Links = append(item.Links, link)
			}
		}
		items = append(items, item)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
