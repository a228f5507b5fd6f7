package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"relay-bot/internal/domain"
	"relay-bot/internal/infra/metrics"
)

// DocumentName — имя документа с контактами и комнатами.
const DocumentName = "membership"

type document struct {
	Contacts map[string]string `json:"contacts"`
	Rooms    []string          `json:"rooms"`
}

// Store хранит контакты и комнаты бота. Все операции сериализованы одним мьютексом,
// каждая мутация сразу перезаписывает документ целиком.
type Store struct {
	docs domain.DocumentStore
	log  zerolog.Logger

	mu       sync.Mutex
	contacts map[string]string
	rooms    []string
}

var _ domain.RoomDirectory = (*Store)(nil)

// NewStore создаёт пустое хранилище.
func NewStore(docs domain.DocumentStore, logger zerolog.Logger) *Store {
	return &Store{docs: docs, log: logger, contacts: map[string]string{}}
}

// Load читает документ. Ошибки не фатальны: хранилище остаётся пустым.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.docs.Load(ctx, DocumentName)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		s.log.Info().Msg("membership: no saved state, starting empty")
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("membership: load failed, starting empty")
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn().Err(err).Msg("membership: corrupt document, starting empty")
		return
	}
	if doc.Contacts != nil {
		s.contacts = doc.Contacts
	}
	s.rooms = s.rooms[:0]
	for _, room := range doc.Rooms {
		if room != "" && !slices.Contains(s.rooms, room) {
			s.rooms = append(s.rooms, room)
		}
	}
	metrics.SetRooms(len(s.rooms))
	s.log.Info().Int("contacts", len(s.contacts)).Int("rooms", len(s.rooms)).Msg("membership: loaded")
}

// AddContact создаёт или перезаписывает контакт.
func (s *Store) AddContact(ctx context.Context, userID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[domain.StripID(userID)] = displayName
	s.saveLocked(ctx)
}

// RemoveContact удаляет контакт, если он есть.
func (s *Store) RemoveContact(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, domain.StripID(userID))
	s.saveLocked(ctx)
}

// AddRoom добавляет комнату, если её ещё нет.
func (s *Store) AddRoom(ctx context.Context, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.rooms, roomID) {
		s.rooms = append(s.rooms, roomID)
	}
	s.saveLocked(ctx)
}

// RemoveRoom удаляет комнату, если она есть.
func (s *Store) RemoveRoom(ctx context.Context, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = slices.DeleteFunc(s.rooms, func(r string) bool { return r == roomID })
	s.saveLocked(ctx)
}

// IsMember сообщает, известна ли комната.
func (s *Store) IsMember(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.rooms, roomID)
}

// HasContact сообщает, есть ли пользователь в контактах.
func (s *Store) HasContact(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.contacts[domain.StripID(userID)]
	return ok
}

// DisplayNameFor возвращает имя контакта или сам идентификатор.
func (s *Store) DisplayNameFor(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.contacts[domain.StripID(userID)]; ok && name != "" {
		return name
	}
	return userID
}

// Rooms возвращает копию списка комнат.
func (s *Store) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rooms)
}

// ContactCount возвращает число контактов.
func (s *Store) ContactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}

// Flush сохраняет текущее состояние и возвращает ошибку записи.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) {
	metrics.SetRooms(len(s.rooms))
	if err := s.persistLocked(ctx); err != nil {
		s.log.Error().Err(err).Msg("membership: save failed, keeping in-memory state")
	}
}

func (s *Store) persistLocked(ctx context.Context) error {
	rooms := s.rooms
	if rooms == nil {
		rooms = []string{}
	}
	body, err := json.Marshal(document{Contacts: s.contacts, Rooms: rooms})
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}
	return s.docs.Save(ctx, DocumentName, body)
}
