package domain

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentNotFound возвращается хранилищем, если документ ещё не сохранялся.
var ErrDocumentNotFound = errors.New("document not found")

// ErrTokenUnavailable означает, что для исходящего вызова нет действующего токена.
var ErrTokenUnavailable = errors.New("access token unavailable")

// DocumentStore хранит JSON-документы целиком: чтение при старте, перезапись при каждом изменении.
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, body []byte) error
}

// TokenSource выдаёт актуальный токен для исходящих вызовов.
type TokenSource interface {
	Token(ctx context.Context) string
	ValidUntil() time.Time
}

// MessageSender отправляет сообщение в одну беседу.
type MessageSender interface {
	Send(ctx context.Context, roomID, text string) bool
}

// Broadcaster рассылает сообщение во все известные комнаты и возвращает число успешных отправок.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) int
}

// RoomDirectory отдаёт текущий список комнат бота.
type RoomDirectory interface {
	Rooms() []string
}

// TimelineSource выгружает последние записи ленты.
type TimelineSource interface {
	Recent(ctx context.Context, limit int) ([]FeedItem, error)
}

// Mirror дублирует рассылку во внешний канал.
type Mirror interface {
	Mirror(ctx context.Context, text string) error
}
