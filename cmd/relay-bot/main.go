package main

import (
	"context"
	"net/http"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relay-bot/internal/adapters/bot"
	"relay-bot/internal/adapters/chatapi"
	"relay-bot/internal/adapters/msauth"
	"relay-bot/internal/adapters/telegram"
	"relay-bot/internal/app"
	"relay-bot/internal/domain"
	"relay-bot/internal/infra/config"
	apphttp "relay-bot/internal/infra/http"
	"relay-bot/internal/infra/log"
	"relay-bot/internal/infra/metrics"
	"relay-bot/internal/usecase/ledger"
	"relay-bot/internal/usecase/membership"
	"relay-bot/internal/usecase/relay"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, requestShutdown := context.WithCancel(ctx)
	defer requestShutdown()

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	docs, closeDocs, err := app.OpenDocuments(ctx, cfg, log.Component(logger, "storage"))
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось открыть хранилище")
	}
	defer closeDocs()

	members := membership.NewStore(docs, log.Component(logger, "membership"))
	members.Load(ctx)
	sent := ledger.New(docs, cfg.Storage.SentRetention, log.Component(logger, "ledger"))
	sent.Load(ctx)

	tokens := msauth.NewTokenCache(msauth.Config{
		ClientID:     cfg.Auth.AppID,
		ClientSecret: cfg.Auth.AppSecret,
		TokenURL:     cfg.Auth.TokenURL,
		Scope:        cfg.Auth.Scope,
	}, nil, log.Component(logger, "token"))
	if cfg.PlaceholderCredentials() {
		logger.Warn().Msg("MS_APP_ID не задан или оставлен из шаблона: исходящие сообщения отключены")
		tokens.Disable()
	}

	sender := chatapi.New(cfg.Chat.APIURL, cfg.Chat.SendTimeout, tokens, members,
		log.Component(logger, "sender"), chatapi.WithRateLimit(cfg.Chat.SendRPS))

	var feed bot.Feed
	var poller *relay.Poller
	source, err := app.NewTimeline(cfg, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("лента не настроена, опрос отключён")
	} else {
		linkRe, err := regexp.Compile(cfg.Timeline.LinkPattern)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный LINK_PATTERN")
		}
		var mirror domain.Mirror
		if cfg.Mirror.TelegramToken != "" && cfg.Mirror.TelegramChatID != 0 {
			m, err := telegram.NewMirror(cfg.Mirror.TelegramToken, cfg.Mirror.TelegramChatID, log.Component(logger, "mirror"))
			if err != nil {
				logger.Warn().Err(err).Msg("зеркало в Telegram отключено")
			} else {
				mirror = m
			}
		}
		poller = relay.NewPoller(source, sent, sender, mirror, relay.Options{
			Limit:       cfg.Timeline.Limit,
			Interval:    cfg.Timeline.PollInterval,
			LinkPattern: linkRe,
			Separator:   cfg.Timeline.TitleSeparator,
		}, log.Component(logger, "poller"))
		feed = poller
	}

	handler := bot.NewHandler(cfg.Chat.BotID, members, sender, feed, cfg.Chat.AdminIDs, log.Component(logger, "router"))

	srv := apphttp.NewServer(log.Component(logger, "http"))
	srv.Router.HandleFunc("/webhook_chat", handler.WebhookHandler())
	srv.Router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/status", http.StatusMovedPermanently)
	})
	srv.Router.Get("/status", bot.StatusHandler(bot.StatusSource{
		Rooms:        members.Rooms,
		ContactCount: members.ContactCount,
		SentItems:    sent.Len,
		TokenUntil:   tokens.ValidUntil,
	}))
	srv.Router.With(apphttp.TokenAuthMiddleware(apphttp.ShutdownTokenHeader, cfg.Server.ShutdownToken)).
		Post("/request_shutdown", func(w http.ResponseWriter, r *http.Request) {
			logger.Info().Str("request_id", apphttp.RequestID(r)).Msg("остановка по запросу")
			apphttp.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
			requestShutdown()
		})

	var wg sync.WaitGroup
	if poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	go func() {
		if err := srv.Start(cfg.ListenAddr(), cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			requestShutdown()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP сервер не завершился корректно")
	}
	wg.Wait()
	handler.Wait()

	if err := members.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("не удалось сохранить участников")
	}
	if err := sent.Save(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("не удалось сохранить журнал рассылок")
	}
	logger.Info().Dur("uptime", time.Since(startedAt)).Msg("бот остановлен")
}

var startedAt = time.Now()
