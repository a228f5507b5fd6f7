package bot

import (
	"net/http"
	"time"

	apphttp "relay-bot/internal/infra/http"
)

// StatusSource отдаёт сведения для страницы статуса.
type StatusSource struct {
	Rooms        func() []string
	ContactCount func() int
	SentItems    func() int
	TokenUntil   func() time.Time
}

// StatusResponse — JSON ответа /status.
type StatusResponse struct {
	Status          string     `json:"status"`
	Rooms           int        `json:"rooms"`
	Contacts        int        `json:"contacts"`
	SentItems       int        `json:"sent_items"`
	TokenValidUntil *time.Time `json:"token_valid_until,omitempty"`
}

// StatusHandler отвечает сводкой о состоянии бота.
func StatusHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{Status: "ok"}
		if src.Rooms != nil {
			resp.Rooms = len(src.Rooms())
		}
		if src.ContactCount != nil {
			resp.Contacts = src.ContactCount()
		}
		if src.SentItems != nil {
			resp.SentItems = src.SentItems()
		}
		if src.TokenUntil != nil {
			if until := src.TokenUntil(); !until.IsZero() {
				until = until.UTC()
				resp.TokenValidUntil = &until
			}
		}
		apphttp.WriteJSON(w, http.StatusOK, resp)
	}
}
