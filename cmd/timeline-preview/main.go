package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"relay-bot/internal/app"
	"relay-bot/internal/infra/config"
	"relay-bot/internal/usecase/ledger"
	"relay-bot/internal/usecase/relay"
)

func main() {
	var (
		limit   int
		timeout time.Duration
		all     bool
	)
	flag.IntVar(&limit, "limit", 0, "How many recent items to fetch (defaults to TIMELINE_LIMIT)")
	flag.DurationVar(&timeout, "timeout", 20*time.Second, "Overall timeout")
	flag.BoolVar(&all, "all", false, "Print items that were already sent too")
	flag.Parse()

	cfg := config.Load()
	if limit <= 0 {
		limit = cfg.Timeline.Limit
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	source, err := app.NewTimeline(cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("timeline-preview: timeline is not configured")
	}
	linkRe, err := regexp.Compile(cfg.Timeline.LinkPattern)
	if err != nil {
		log.Fatal().Err(err).Msg("timeline-preview: invalid LINK_PATTERN")
	}

	docs, closeDocs, err := app.OpenDocuments(ctx, cfg, zerolog.Nop())
	if err != nil {
		log.Fatal().Err(err).Msg("timeline-preview: failed to open storage")
	}
	defer closeDocs()
	sent := ledger.New(docs, 0, zerolog.Nop())
	sent.Load(ctx)

	items, err := source.Recent(ctx, limit)
	if err != nil {
		log.Fatal().Err(err).Msg("timeline-preview: fetch failed")
	}
	entries := relay.Curate(items, linkRe, cfg.Timeline.TitleSeparator)

	fresh := 0
	for _, e := range entries {
		mark := "new "
		if sent.Contains(e.ID) {
			if !all {
				continue
			}
			mark = "sent"
		} else {
			fresh++
		}
		fmt.Printf("[%s] %s  %s - %s\n", mark, e.ID, e.Title, e.Link)
	}
	fmt.Printf("Fetched %d items, %d matched, %d new\n", len(items), len(entries), fresh)
}
