package bot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
	"relay-bot/internal/usecase/relay"
)

const (
	helpText    = "I post new links from the feed into this chat. Commands: !help"
	emptyFeed   = "Nothing new in the feed right now."
	nothingSent = "Nothing has been sent yet."
)

var mentionRe = regexp.MustCompile(`(?is)<at\b[^>]*>.*?</at>`)

// Membership — состояние контактов и комнат, которое меняет роутер.
type Membership interface {
	AddContact(ctx context.Context, userID, displayName string)
	RemoveContact(ctx context.Context, userID string)
	AddRoom(ctx context.Context, roomID string)
	RemoveRoom(ctx context.Context, roomID string)
	IsMember(roomID string) bool
	DisplayNameFor(userID string) string
}

// Feed — команды, которые роутер делегирует опросчику ленты.
type Feed interface {
	Resend(ctx context.Context) (delivered int, ok bool)
	Curated(ctx context.Context) ([]domain.BatchEntry, error)
}

// Handler разбирает события вебхука и реагирует на них.
type Handler struct {
	botID   string
	members Membership
	sender  domain.MessageSender
	feed    Feed
	admins  map[string]struct{}
	log     zerolog.Logger

	inflight sync.WaitGroup
}

// NewHandler создаёт обработчик. feed может быть nil, тогда команды недоступны.
func NewHandler(botID string, members Membership, sender domain.MessageSender, feed Feed, adminIDs []string, logger zerolog.Logger) *Handler {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[domain.StripID(id)] = struct{}{}
		}
	}
	return &Handler{
		botID:   botID,
		members: members,
		sender:  sender,
		feed:    feed,
		admins:  admins,
		log:     logger,
	}
}

// HandleBody обрабатывает тело одного вызова вебхука и возвращает число разобранных событий.
func (h *Handler) HandleBody(ctx context.Context, body []byte) int {
	logger := h.log.With().Str("delivery", uuid.NewString()).Logger()
	events, err := ParseEvents(body)
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(body)).Msg("router: malformed webhook body")
		return 0
	}
	for _, ev := range events {
		h.HandleEvent(ctx, logger, ev)
	}
	return len(events)
}

// HandleEvent направляет событие ровно в один обработчик по типу активности.
func (h *Handler) HandleEvent(ctx context.Context, logger zerolog.Logger, ev Event) {
	metrics.IncWebhookEvent(ev.Activity)
	logger = logger.With().
		Str("activity", ev.Activity).
		Str("from", ev.From).
		Str("to", ev.To).
		Logger()
	logger.Debug().Time("time", ev.Time).Str("id", ev.ID).Msg("router: event")

	switch ev.Activity {
	case ActivityMessage:
		h.handleMessage(ctx, logger, ev)
	case ActivityAttachment:
		logger.Debug().Msg("router: attachment ignored")
	case ActivityContactRelation:
		h.handleContactRelation(ctx, logger, ev)
	case ActivityConversationUpdate:
		h.handleConversationUpdate(ctx, logger, ev)
	default:
		logger.Warn().Msg("router: unknown activity dropped")
	}
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, ev Event) {
	if domain.KindOf(ev.From) != domain.IDUser {
		logger.Debug().Msg("router: message not from a user")
		return
	}
	switch domain.KindOf(ev.To) {
	case domain.IDBot:
		if !domain.SameID(ev.To, h.botID) {
			logger.Debug().Msg("router: direct message to another bot")
			return
		}
		h.handleDirect(ctx, logger, ev)
	case domain.IDRoom:
		h.handleRoom(ctx, logger, ev)
	default:
		logger.Debug().Msg("router: message target not recognised")
	}
}

func (h *Handler) handleDirect(ctx context.Context, logger zerolog.Logger, ev Event) {
	text := strings.TrimSpace(ev.Content)
	command := ""
	if fields := strings.Fields(text); len(fields) > 0 {
		command = strings.ToLower(fields[0])
	}

	if h.feed != nil && h.isAdmin(ev.From) {
		switch command {
		case "!resend":
			delivered, ok := h.feed.Resend(ctx)
			if !ok {
				h.reply(ctx, logger, ev.From, nothingSent)
				return
			}
			h.reply(ctx, logger, ev.From, fmt.Sprintf("Resent the last batch to %d room(s).", delivered))
			return
		case "!latest":
			h.reply(ctx, logger, ev.From, h.latest(ctx, logger))
			return
		}
	}

	name := h.members.DisplayNameFor(ev.From)
	h.reply(ctx, logger, ev.From, fmt.Sprintf("Hi, %s! I don't chat 1:1 yet. Add me to a group chat and I will post new links there.", name))
}

func (h *Handler) latest(ctx context.Context, logger zerolog.Logger) string {
	entries, err := h.feed.Curated(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("router: latest failed")
		return emptyFeed
	}
	if len(entries) == 0 {
		return emptyFeed
	}
	return relay.FormatBatch(entries)
}

func (h *Handler) handleRoom(ctx context.Context, logger zerolog.Logger, ev Event) {
	text := strings.TrimSpace(mentionRe.ReplaceAllString(ev.Content, ""))
	if !strings.EqualFold(text, "!help") {
		return
	}
	h.reply(ctx, logger, ev.To, helpText)
}

func (h *Handler) handleContactRelation(ctx context.Context, logger zerolog.Logger, ev Event) {
	if ev.From == "" {
		logger.Warn().Msg("router: contact update without sender")
		return
	}
	switch ev.Action {
	case "add":
		h.members.AddContact(ctx, ev.From, ev.FromDisplayName)
		logger.Info().Str("name", ev.FromDisplayName).Msg("router: contact added")
	case "remove":
		h.members.RemoveContact(ctx, ev.From)
		logger.Info().Msg("router: contact removed")
	default:
		logger.Debug().Str("action", ev.Action).Msg("router: contact action ignored")
	}
}

func (h *Handler) handleConversationUpdate(ctx context.Context, logger zerolog.Logger, ev Event) {
	room := ev.To
	if domain.KindOf(room) != domain.IDRoom {
		if room != "" {
			logger.Warn().Str("to", room).Msg("router: conversation update for non-room id ignored")
		}
		return
	}
	if h.mentionsSelf(ev.MembersAdded) && !h.members.IsMember(room) {
		h.members.AddRoom(ctx, room)
		logger.Info().Str("room", room).Msg("router: joined room")
	}
	if h.mentionsSelf(ev.MembersRemoved) && h.members.IsMember(room) {
		h.members.RemoveRoom(ctx, room)
		logger.Info().Str("room", room).Msg("router: left room")
	}
}

func (h *Handler) mentionsSelf(ids []string) bool {
	return slices.ContainsFunc(ids, func(id string) bool { return domain.SameID(id, h.botID) })
}

func (h *Handler) isAdmin(userID string) bool {
	if len(h.admins) == 0 {
		return true
	}
	_, ok := h.admins[domain.StripID(userID)]
	return ok
}

func (h *Handler) reply(ctx context.Context, logger zerolog.Logger, to, text string) {
	if !h.sender.Send(ctx, to, text) {
		logger.Warn().Str("reply_to", to).Msg("router: reply not delivered")
	}
}
