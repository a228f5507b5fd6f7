package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

// Client отправляет сообщения в беседы платформы. Одновременно выполняется не больше одного запроса.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  domain.TokenSource
	rooms   domain.RoomDirectory
	limiter *rate.Limiter
	log     zerolog.Logger

	sendMu sync.Mutex
}

var (
	_ domain.MessageSender = (*Client)(nil)
	_ domain.Broadcaster   = (*Client)(nil)
)

// Option настраивает Client.
type Option func(*Client)

// WithRateLimit ограничивает частоту отправки. rps <= 0 отключает ограничение.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient подменяет HTTP клиента.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// New создаёт клиента отправки.
func New(baseURL string, timeout time.Duration, tokens domain.TokenSource, rooms domain.RoomDirectory, logger zerolog.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		rooms:   rooms,
		log:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type activityRequest struct {
	Message messageBody `json:"message"`
}

type messageBody struct {
	Content string `json:"content"`
}

// Send отправляет текст в беседу. Возвращает true только при ответе 201.
func (c *Client) Send(ctx context.Context, roomID, text string) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	err := c.send(ctx, roomID, text)
	metrics.IncOutbound(err == nil)
	if err != nil {
		c.log.Error().Err(err).Str("room", roomID).Msg("sender: message not delivered")
		return false
	}
	c.log.Debug().Str("room", roomID).Int("len", len(text)).Msg("sender: message delivered")
	return true
}

func (c *Client) send(ctx context.Context, roomID, text string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	token := c.tokens.Token(ctx)
	if token == "" {
		return domain.ErrTokenUnavailable
	}

	body, err := json.Marshal(activityRequest{Message: messageBody{Content: text}})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/conversations/%s/activities", c.baseURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("chatapi", "send_activity", "conversations", start, err)
		return fmt.Errorf("post activity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	metrics.ObserveNetworkRequest("chatapi", "send_activity", "conversations", start, err)
	return err
}

// Broadcast отправляет текст во все комнаты из текущего снимка списка.
func (c *Client) Broadcast(ctx context.Context, text string) int {
	rooms := c.rooms.Rooms()
	delivered := 0
	for _, room := range rooms {
		if c.Send(ctx, room, text) {
			delivered++
		}
	}
	c.log.Info().Int("rooms", len(rooms)).Int("delivered", delivered).Msg("sender: broadcast done")
	return delivered
}
