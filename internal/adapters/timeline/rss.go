package timeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

var urlRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// RSS читает ленту из RSS/Atom документа.
type RSS struct {
	url  string
	http *http.Client
	fp   *gofeed.Parser
}

var _ domain.TimelineSource = (*RSS)(nil)

// NewRSS создаёт источник. client может быть nil.
func NewRSS(feedURL string, client *http.Client) *RSS {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RSS{url: feedURL, http: client, fp: gofeed.NewParser()}
}

// Recent возвращает до limit первых записей ленты.
func (r *RSS) Recent(ctx context.Context, limit int) ([]domain.FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("rss", "fetch_feed", "feed", start, err)
		return nil, fmt.Errorf("rss: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err = fmt.Errorf("rss: want 200, got %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		metrics.ObserveNetworkRequest("rss", "fetch_feed", "feed", start, err)
		return nil, err
	}

	feed, err := r.fp.Parse(resp.Body)
	metrics.ObserveNetworkRequest("rss", "fetch_feed", "feed", start, err)
	if err != nil {
		return nil, fmt.Errorf("rss: parse: %w", err)
	}

	items := make([]domain.FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if limit > 0 && len(items) >= limit {
			break
		}
		items = append(items, convertItem(it))
	}
	return items, nil
}

func convertItem(it *gofeed.Item) domain.FeedItem {
	id := it.GUID
	if id == "" {
		id = it.Link
	}
	text := strings.TrimSpace(it.Title)
	if text == "" {
		text = strings.TrimSpace(it.Description)
	}
	var links []string
	add := func(link string) {
		link = strings.TrimSpace(link)
		if link != "" && !slices.Contains(links, link) {
			links = append(links, link)
		}
	}
	add(it.Link)
	for _, body := range []string{it.Description, it.Content} {
		for _, link := range urlRe.FindAllString(body, -1) {
			add(link)
		}
	}
	return domain.FeedItem{ID: id, Text: text, Links: links}
}
