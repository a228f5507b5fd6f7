package relay

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

// SentLedger — журнал уже разосланных записей.
type SentLedger interface {
	Contains(id string) bool
	Mark(id string)
	LastBroadcast() string
	SetLastBroadcast(text string)
	Save(ctx context.Context) error
}

// Options описывает параметры опроса.
type Options struct {
	Limit       int
	Interval    time.Duration
	LinkPattern *regexp.Regexp
	Separator   string
}

// Poller периодически забирает ленту и рассылает новые записи одним сообщением.
type Poller struct {
	source domain.TimelineSource
	ledger SentLedger
	sender domain.Broadcaster
	mirror domain.Mirror
	opts   Options
	log    zerolog.Logger

	mu    sync.Mutex
	batch []domain.BatchEntry
}

// NewPoller создаёт опросчик ленты. mirror может быть nil.
func NewPoller(source domain.TimelineSource, ledger SentLedger, sender domain.Broadcaster, mirror domain.Mirror, opts Options, logger zerolog.Logger) *Poller {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Poller{
		source: source,
		ledger: ledger,
		sender: sender,
		mirror: mirror,
		opts:   opts,
		log:    logger,
	}
}

// Run выполняет первый цикл сразу, затем по таймеру до отмены ctx.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Dur("interval", p.opts.Interval).Msg("poller: started")
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		p.Tick(ctx)
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller: stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick выполняет один цикл опроса и возвращает число записей, попавших в рассылку.
func (p *Poller) Tick(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.log.With().Str("tick", uuid.NewString()).Logger()
	items, err := p.source.Recent(ctx, p.opts.Limit)
	if err != nil {
		metrics.IncPollerTick(false)
		logger.Error().Err(err).Msg("poller: fetch failed")
		return 0
	}
	metrics.AddPollerItems("fetched", len(items))

	entries := p.curate(items)
	metrics.AddPollerItems("filtered", len(entries))

	duplicates := 0
	for _, entry := range entries {
		if p.ledger.Contains(entry.ID) {
			duplicates++
			continue
		}
		p.batch = append(p.batch, entry)
		p.ledger.Mark(entry.ID)
	}
	metrics.AddPollerItems("duplicate", duplicates)
	metrics.AddPollerItems("queued", len(p.batch))
	metrics.IncPollerTick(true)

	queued := len(p.batch)
	if queued == 0 {
		logger.Debug().Int("fetched", len(items)).Msg("poller: nothing new")
		return 0
	}

	text := FormatBatch(p.batch)
	p.batch = nil
	delivered := p.sender.Broadcast(ctx, text)
	p.mirrorText(ctx, logger, text)
	p.ledger.SetLastBroadcast(text)
	if err := p.ledger.Save(ctx); err != nil {
		logger.Error().Err(err).Msg("poller: ledger save failed")
	}
	logger.Info().
		Int("fetched", len(items)).
		Int("queued", queued).
		Int("delivered", delivered).
		Msg("poller: batch sent")
	return queued
}

// Curated возвращает отфильтрованные записи ленты без отметки в журнале.
func (p *Poller) Curated(ctx context.Context) ([]domain.BatchEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.source.Recent(ctx, p.opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}
	return p.curate(items), nil
}

// Resend повторяет последнюю рассылку. ok=false, если рассылок ещё не было.
func (p *Poller) Resend(ctx context.Context) (delivered int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text := p.ledger.LastBroadcast()
	if text == "" {
		return 0, false
	}
	return p.sender.Broadcast(ctx, text), true
}

func (p *Poller) mirrorText(ctx context.Context, logger zerolog.Logger, text string) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.Mirror(ctx, text); err != nil {
		metrics.MirrorErrors.Inc()
		logger.Warn().Err(err).Msg("poller: mirror failed")
	}
}

func (p *Poller) curate(items []domain.FeedItem) []domain.BatchEntry {
	return Curate(items, p.opts.LinkPattern, p.opts.Separator)
}

// Curate оставляет записи с подходящей ссылкой и выделяет заголовок.
// Повторы id внутри одной выборки схлопываются.
func Curate(items []domain.FeedItem, pattern *regexp.Regexp, separator string) []domain.BatchEntry {
	seen := make(map[string]struct{}, len(items))
	entries := make([]domain.BatchEntry, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		link := matchingLink(item.Links, pattern)
		if link == "" {
			continue
		}
		seen[item.ID] = struct{}{}
		entries = append(entries, domain.BatchEntry{
			ID:    item.ID,
			Title: ExtractTitle(item.Text, separator),
			Link:  link,
		})
	}
	return entries
}

func matchingLink(links []string, pattern *regexp.Regexp) string {
	for _, link := range links {
		if pattern == nil || pattern.MatchString(link) {
			return link
		}
	}
	return ""
}

// FormatBatch склеивает записи в одно сообщение: по строке "title - link" на запись.
func FormatBatch(entries []domain.BatchEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Title+" - "+e.Link)
	}
	return strings.Join(lines, "\n")
}
