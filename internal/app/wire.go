package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"relay-bot/internal/adapters/repo"
	"relay-bot/internal/adapters/timeline"
	"relay-bot/internal/domain"
	"relay-bot/internal/infra/cache"
	"relay-bot/internal/infra/config"
	"relay-bot/internal/infra/db"
)

// OpenDocuments подключает хранилище документов согласно STORAGE_BACKEND.
// Возвращённую функцию нужно вызвать при завершении.
func OpenDocuments(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.DocumentStore, func(), error) {
	switch cfg.Storage.Backend {
	case "file":
		store, err := repo.NewFile(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("dir", cfg.Storage.DataDir).Msg("storage: file backend")
		return store, func() {}, nil
	case "postgres":
		if cfg.Storage.PGDSN == "" {
			return nil, nil, fmt.Errorf("PG_DSN is required for postgres backend")
		}
		pool, err := db.Connect(ctx, cfg.Storage.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := repo.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Msg("storage: postgres backend")
		return store, pool.Close, nil
	case "redis":
		if cfg.Storage.RedisAddr == "" {
			return nil, nil, fmt.Errorf("REDIS_ADDR is required for redis backend")
		}
		client, err := cache.Connect(ctx, cache.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("addr", cfg.Storage.RedisAddr).Msg("storage: redis backend")
		return repo.NewRedis(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// NewTimeline создаёт источник ленты согласно TIMELINE_SOURCE.
func NewTimeline(cfg config.AppConfig, client *http.Client) (domain.TimelineSource, error) {
	switch cfg.Timeline.Source {
	case "twitter":
		if cfg.Timeline.UserID == "" || cfg.Timeline.BearerToken == "" {
			return nil, fmt.Errorf("TWITTER_USER_ID and TWITTER_BEARER_TOKEN are required for twitter source")
		}
		return timeline.NewTwitter(cfg.Timeline.TwitterAPIURL, cfg.Timeline.BearerToken, cfg.Timeline.UserID, client), nil
	case "rss":
		if cfg.Timeline.RSSURL == "" {
			return nil, fmt.Errorf("TIMELINE_RSS_URL is required for rss source")
		}
		return timeline.NewRSS(cfg.Timeline.RSSURL, client), nil
	default:
		return nil, fmt.Errorf("unknown timeline source %q", cfg.Timeline.Source)
	}
}
