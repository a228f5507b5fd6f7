package bot

import (
	"context"
	"io"
	"net/http"
	"time"
)

const maxWebhookBody = 1 << 20

// WebhookHandler принимает события платформы. Любой POST получает 201 без тела
// сразу после чтения тела, события обрабатываются в фоне.
func (h *Handler) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		writeAccepted(w)

		switch {
		case err != nil:
			h.log.Warn().Err(err).Msg("router: webhook body read failed")
		case len(body) > maxWebhookBody:
			h.log.Warn().Int("limit", maxWebhookBody).Msg("router: webhook body too large, dropped")
		default:
			ctx := context.WithoutCancel(r.Context())
			h.inflight.Add(1)
			go func() {
				defer h.inflight.Done()
				h.process(ctx, body)
			}()
		}
	}
}

// Wait блокируется, пока не завершатся все принятые вебхуки.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) process(ctx context.Context, body []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error().Interface("panic", rec).Msg("router: event processing panicked")
		}
	}()
	start := time.Now()
	n := h.HandleBody(ctx, body)
	h.log.Debug().Int("events", n).Dur("duration", time.Since(start)).Msg("router: webhook processed")
}

func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusCreated)
}
