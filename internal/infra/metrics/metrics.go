package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Входящие события вебхука по типу активности",
	}, []string{"activity"})

	OutboundMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_messages_total",
		Help: "Исходящие сообщения по результату",
	}, []string{"status"})

	TokenRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refresh_total",
		Help: "Обновления токена доступа",
	}, []string{"status"})

	PollerItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_items_total",
		Help: "Элементы ленты по стадии обработки",
	}, []string{"stage"})

	PollerTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_ticks_total",
		Help: "Циклы опроса ленты",
	}, []string{"status"})

	MembershipRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "membership_rooms",
		Help: "Количество комнат, в которых состоит бот",
	})

	MirrorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mirror_send_errors_total",
		Help: "Ошибки отправки копии рассылки в Telegram",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		WebhookEvents,
		OutboundMessages,
		TokenRefresh,
		PollerItems,
		PollerTicks,
		MembershipRooms,
		MirrorErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		defer close(stopped)
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncWebhookEvent учитывает входящее событие.
func IncWebhookEvent(activity string) {
	if activity == "" {
		activity = "unknown"
	}
	WebhookEvents.WithLabelValues(activity).Inc()
}

// IncOutbound учитывает результат отправки сообщения.
func IncOutbound(ok bool) {
	OutboundMessages.WithLabelValues(statusLabel(ok)).Inc()
}

// IncTokenRefresh учитывает попытку обновления токена.
func IncTokenRefresh(ok bool) {
	TokenRefresh.WithLabelValues(statusLabel(ok)).Inc()
}

// AddPollerItems добавляет n элементов к стадии.
func AddPollerItems(stage string, n int) {
	if n <= 0 {
		return
	}
	PollerItems.WithLabelValues(stage).Add(float64(n))
}

// IncPollerTick учитывает цикл опроса.
func IncPollerTick(ok bool) {
	PollerTicks.WithLabelValues(statusLabel(ok)).Inc()
}

// SetRooms выставляет текущее число комнат.
func SetRooms(n int) {
	MembershipRooms.Set(float64(n))
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
