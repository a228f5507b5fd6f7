package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Mirror дублирует рассылки в чат Telegram.
type Mirror struct {
	bot    messageSender
	chatID int64
	log    zerolog.Logger
}

var _ domain.Mirror = (*Mirror)(nil)

// NewMirror авторизует бота и создаёт зеркало.
func NewMirror(token string, chatID int64, logger zerolog.Logger) (*Mirror, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Int64("chat", chatID).Msg("telegram: mirror enabled")
	return &Mirror{bot: bot, chatID: chatID, log: logger}, nil
}

// Mirror отправляет текст частями в целевой чат.
func (m *Mirror) Mirror(ctx context.Context, text string) error {
	target := strconv.FormatInt(m.chatID, 10)
	for _, part := range Split(text, messageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(m.chatID, part)
		start := time.Now()
		_, err := m.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", target, start, err)
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}
