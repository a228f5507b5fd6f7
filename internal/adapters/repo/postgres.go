package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

const documentsTable = "relay_documents"

// pgConn — подмножество pgxpool.Pool, которое нужно хранилищу.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres хранит документы в таблице relay_documents.
type Postgres struct {
	pool pgConn
}

var _ domain.DocumentStore = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД. Принимает *pgxpool.Pool.
func NewPostgres(pool pgConn) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицу документов, если её нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS relay_documents (
	name text PRIMARY KEY,
	body jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`)
	metrics.ObserveNetworkRequest("postgres", "documents_ensure_schema", documentsTable, start, err)
	if err != nil {
		return fmt.Errorf("create %s: %w", documentsTable, err)
	}
	return nil
}

// Load возвращает тело документа.
func (p *Postgres) Load(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var body []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT body FROM relay_documents WHERE name = $1`, name).Scan(&body)
	metrics.ObserveNetworkRequest("postgres", "documents_load", documentsTable, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", name, err)
	}
	clone := make([]byte, len(body))
	copy(clone, body)
	return clone, nil
}

// Save сохраняет документ целиком.
func (p *Postgres) Save(ctx context.Context, name string, body []byte) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tmp := make([]byte, len(body))
	copy(tmp, body)

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO relay_documents (name, body, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
`, name, tmp)
	metrics.ObserveNetworkRequest("postgres", "documents_save", documentsTable, start, err)
	if err != nil {
		return fmt.Errorf("save document %s: %w", name, err)
	}
	return nil
}
