package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

const redisKeyPrefix = "relay:doc:"

// Redis хранит документы строковыми ключами relay:doc:<name>.
type Redis struct {
	client *redis.Client
}

var _ domain.DocumentStore = (*Redis)(nil)

// NewRedis создаёт хранилище поверх клиента Redis.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Load возвращает документ.
func (r *Redis) Load(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	data, err := r.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "documents_load", "documents", start, nil)
		return nil, domain.ErrDocumentNotFound
	}
	metrics.ObserveNetworkRequest("redis", "documents_load", "documents", start, err)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", name, err)
	}
	return data, nil
}

// Save записывает документ без TTL.
func (r *Redis) Save(ctx context.Context, name string, body []byte) error {
	start := time.Now()
	err := r.client.Set(ctx, redisKeyPrefix+name, body, 0).Err()
	metrics.ObserveNetworkRequest("redis", "documents_save", "documents", start, err)
	if err != nil {
		return fmt.Errorf("save document %s: %w", name, err)
	}
	return nil
}
