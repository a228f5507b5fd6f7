package domain

import "time"

// Token описывает access token OAuth2. Пустое значение означает, что токена нет.
type Token struct {
	Value      string
	ValidUntil time.Time
}

// Short возвращает сокращённое представление токена для логов.
func (t Token) Short() string {
	if len(t.Value) < 25 {
		return t.Value
	}
	return t.Value[:10] + "..." + t.Value[len(t.Value)-10:]
}

// Contact описывает пользователя, добавившего бота в контакты.
type Contact struct {
	ID          string
	DisplayName string
}

// FeedItem представляет запись ленты из внешнего источника.
type FeedItem struct {
	ID    string
	Text  string
	Links []string
}

// BatchEntry описывает одну строку рассылки.
type BatchEntry struct {
	ID    string
	Title string
	Link  string
}

// SentItem отмечает запись ленты как уже разосланную.
type SentItem struct {
	ID       string    `json:"id"`
	MarkedAt time.Time `json:"marked_at"`
}
