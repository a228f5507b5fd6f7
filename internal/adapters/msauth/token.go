package msauth

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

// Config описывает параметры client-credentials обмена.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string
}

// TokenCache хранит единственный токен приложения и обновляет его по истечении.
type TokenCache struct {
	oauth  clientcredentials.Config
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	token    domain.Token
	disabled bool
	// attempts растёт после каждой попытки обновления, удачной или нет.
	attempts atomic.Uint64
}

var _ domain.TokenSource = (*TokenCache)(nil)

// NewTokenCache создаёт кэш токена. client может быть nil.
func NewTokenCache(cfg Config, client *http.Client, logger zerolog.Logger) *TokenCache {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenCache{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{cfg.Scope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: client,
		log:    logger,
		now:    time.Now,
	}
}

// Disable навсегда выключает обновление: Token будет возвращать пустую строку.
func (c *TokenCache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	c.token = domain.Token{}
}

// Disabled сообщает, выключен ли кэш.
func (c *TokenCache) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Token возвращает текущий токен, при необходимости обновив его.
// Ошибка обновления не возвращается: вызывающий получает то, что лежит в кэше.
// Вызовы, ждавшие блокировку во время попытки обновления, получают её результат
// и не обновляют повторно.
func (c *TokenCache) Token(ctx context.Context) string {
	seen := c.attempts.Load()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return ""
	}
	if c.now().Before(c.token.ValidUntil) {
		return c.token.Value
	}
	if c.attempts.Load() != seen {
		return c.token.Value
	}
	c.refreshLocked(ctx)
	c.attempts.Add(1)
	return c.token.Value
}

// ValidUntil возвращает момент истечения текущего токена.
func (c *TokenCache) ValidUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.ValidUntil
}

func (c *TokenCache) refreshLocked(ctx context.Context) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	requested := c.now()
	start := time.Now()
	tok, err := c.oauth.Token(ctx)
	metrics.ObserveNetworkRequest("msauth", "token_refresh", "oauth", start, err)
	metrics.IncTokenRefresh(err == nil)
	if err != nil {
		c.log.Error().Err(err).Msg("token: refresh failed, keeping cached value")
		return
	}
	if tok.AccessToken == "" {
		c.log.Error().Msg("token: endpoint returned empty access_token")
		return
	}

	validUntil := requested.Add(expiresIn(tok, start))
	if validUntil.Before(c.token.ValidUntil) {
		validUntil = c.token.ValidUntil
	}
	c.token = domain.Token{Value: tok.AccessToken, ValidUntil: validUntil}
	c.log.Info().
		Str("token", c.token.Short()).
		Time("valid_until", validUntil).
		Msg("token: refreshed")
}

// expiresIn достаёт срок жизни из поля expires_in ответа.
func expiresIn(tok *oauth2.Token, issued time.Time) time.Duration {
	var seconds float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = v
	case int64:
		seconds = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err == nil {
			seconds = parsed
		}
	default:
		if !tok.Expiry.IsZero() {
			return max(tok.Expiry.Sub(issued).Round(time.Second), 0)
		}
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
