package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relay-bot/internal/domain"
)

// DocumentName — имя документа с уже разосланными записями.
const DocumentName = "sent_items"

type document struct {
	Items         []domain.SentItem `json:"items"`
	LastBroadcast string            `json:"last_broadcast,omitempty"`
}

// Ledger помнит идентификаторы записей, которые уже попали в рассылку.
type Ledger struct {
	docs      domain.DocumentStore
	log       zerolog.Logger
	retention time.Duration
	now       func() time.Time

	mu            sync.Mutex
	items         []domain.SentItem
	index         map[string]struct{}
	lastBroadcast string
}

// New создаёт пустой журнал. retention <= 0 хранит записи бессрочно.
func New(docs domain.DocumentStore, retention time.Duration, logger zerolog.Logger) *Ledger {
	return &Ledger{
		docs:      docs,
		log:       logger,
		retention: retention,
		now:       time.Now,
		index:     map[string]struct{}{},
	}
}

// Load читает журнал. Поддерживается и старый формат: просто массив id.
func (l *Ledger) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.docs.Load(ctx, DocumentName)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return
	}
	if err != nil {
		l.log.Warn().Err(err).Msg("ledger: load failed, starting empty")
		return
	}
	doc, err := decode(data)
	if err != nil {
		l.log.Warn().Err(err).Msg("ledger: corrupt document, starting empty")
		return
	}
	l.items = l.items[:0]
	l.index = map[string]struct{}{}
	for _, item := range doc.Items {
		l.markLocked(item)
	}
	l.lastBroadcast = doc.LastBroadcast
	l.log.Info().Int("items", len(l.items)).Msg("ledger: loaded")
}

func decode(data []byte) (document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return document{}, err
		}
		doc := document{Items: make([]domain.SentItem, 0, len(ids))}
		for _, id := range ids {
			doc.Items = append(doc.Items, domain.SentItem{ID: id})
		}
		return doc, nil
	}
	var doc document
	err := json.Unmarshal(trimmed, &doc)
	return doc, err
}

// Contains сообщает, была ли запись уже отмечена.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok
}

// Mark отмечает запись. Повторная отметка ничего не меняет.
func (l *Ledger) Mark(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(domain.SentItem{ID: id, MarkedAt: l.now().UTC()})
}

func (l *Ledger) markLocked(item domain.SentItem) {
	if item.ID == "" {
		return
	}
	if _, ok := l.index[item.ID]; ok {
		return
	}
	l.index[item.ID] = struct{}{}
	l.items = append(l.items, item)
}

// Len возвращает число отмеченных записей.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// LastBroadcast возвращает текст последней рассылки.
func (l *Ledger) LastBroadcast() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastBroadcast
}

// SetLastBroadcast запоминает текст последней рассылки.
func (l *Ledger) SetLastBroadcast(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastBroadcast = text
}

// Prune удаляет записи старше срока хранения. Записи без отметки времени не трогает.
func (l *Ledger) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(now)
}

func (l *Ledger) pruneLocked(now time.Time) int {
	if l.retention <= 0 {
		return 0
	}
	cutoff := now.Add(-l.retention)
	kept := l.items[:0]
	removed := 0
	for _, item := range l.items {
		if !item.MarkedAt.IsZero() && item.MarkedAt.Before(cutoff) {
			delete(l.index, item.ID)
			removed++
			continue
		}
		kept = append(kept, item)
	}
	l.items = kept
	return removed
}

// Save перезаписывает документ целиком.
func (l *Ledger) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if removed := l.pruneLocked(l.now()); removed > 0 {
		l.log.Info().Int("removed", removed).Msg("ledger: pruned old items")
	}
	items := l.items
	if items == nil {
		items = []domain.SentItem{}
	}
	body, err := json.Marshal(document{Items: items, LastBroadcast: l.lastBroadcast})
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := l.docs.Save(ctx, DocumentName, body); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
