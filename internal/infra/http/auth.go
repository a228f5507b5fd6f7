package http

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ShutdownTokenHeader содержит секрет для служебного эндпоинта остановки.
const ShutdownTokenHeader = "X-Shutdown-Token"

// TokenAuthMiddleware пропускает запрос только при совпадении заголовка с секретом.
// Пустой секрет закрывает эндпоинт полностью.
func TokenAuthMiddleware(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				WriteError(w, http.StatusNotFound, "not found")
				return
			}
			got := r.Header.Get(header)
			if got == "" || !hmac.Equal([]byte(got), []byte(secret)) {
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON отправляет значение как JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}
