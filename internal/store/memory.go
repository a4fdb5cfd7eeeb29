package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"

	"github.com/wishpop/wishpop/internal/types"
)

// MemoryStore is an in-process Store. It backs tests and the
// --in-memory development mode; state does not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]types.Room
	messages map[string]types.Message // by message id
	order    []string                 // message ids in creation order

	msgNotifier  *notifier[[]types.Message]
	roomNotifier *notifier[*types.Room]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[string]types.Room),
		messages:     make(map[string]types.Message),
		msgNotifier:  newNotifier[[]types.Message](),
		roomNotifier: newNotifier[*types.Room](),
	}
}

func (s *MemoryStore) CreateRoom(themeId string) (types.Room, error) {
	code, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room code: %w", err)
	}
	return s.EnsureRoom(code, themeId)
}

func (s *MemoryStore) GetRoom(code string) (types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return types.Room{}, ErrNotFound
	}
	return room, nil
}

func (s *MemoryStore) EnsureRoom(code, themeId string) (types.Room, error) {
	s.mu.Lock()
	if room, ok := s.rooms[code]; ok {
		s.mu.Unlock()
		return room, nil
	}

	room := types.Room{
		Id:        code,
		ThemeId:   themeId,
		CreatedAt: time.Now().UTC(),
	}
	s.rooms[code] = room
	s.mu.Unlock()

	s.publishRoom(code)
	return room, nil
}

func (s *MemoryStore) SetTheme(code, themeId string) error {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	room.ThemeId = themeId
	s.rooms[code] = room
	s.mu.Unlock()

	s.publishRoom(code)
	return nil
}

func (s *MemoryStore) CreateMessage(roomCode, text string) (types.Message, error) {
	now := time.Now().UTC()
	msg := types.Message{
		Id:        uuid.NewString(),
		RoomCode:  roomCode,
		Text:      text,
		Popped:    false,
		CreatedAt: &now,
	}

	s.mu.Lock()
	s.messages[msg.Id] = msg
	s.order = append(s.order, msg.Id)
	s.mu.Unlock()

	s.publishMessages(roomCode)
	return msg, nil
}

func (s *MemoryStore) PopMessage(id string) error {
	s.mu.Lock()
	msg, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if msg.Popped {
		// Monotonic flag, nothing to do.
		s.mu.Unlock()
		return nil
	}
	msg.Popped = true
	s.messages[id] = msg
	s.mu.Unlock()

	s.publishMessages(msg.RoomCode)
	return nil
}

func (s *MemoryStore) Messages(roomCode string) ([]types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(roomCode), nil
}

// snapshot builds the room's full message set in creation order.
// Callers must hold s.mu.
func (s *MemoryStore) snapshot(roomCode string) []types.Message {
	var msgs []types.Message
	for _, id := range s.order {
		if m := s.messages[id]; m.RoomCode == roomCode {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (s *MemoryStore) SubscribeMessages(roomCode string) *Subscription[[]types.Message] {
	sub := s.msgNotifier.subscribe(roomCode)

	s.mu.Lock()
	snap := s.snapshot(roomCode)
	s.mu.Unlock()

	s.msgNotifier.deliver(roomCode, sub, snap)
	return sub
}

func (s *MemoryStore) SubscribeRoom(code string) *Subscription[*types.Room] {
	sub := s.roomNotifier.subscribe(code)
	s.roomNotifier.deliver(code, sub, s.roomRecord(code))
	return sub
}

func (s *MemoryStore) roomRecord(code string) *types.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[code]; ok {
		return &room
	}
	return nil
}

func (s *MemoryStore) publishMessages(roomCode string) {
	s.mu.Lock()
	snap := s.snapshot(roomCode)
	s.mu.Unlock()

	s.msgNotifier.publish(roomCode, snap)
}

func (s *MemoryStore) publishRoom(code string) {
	s.roomNotifier.publish(code, s.roomRecord(code))
}

func (s *MemoryStore) Close() error {
	return nil
}
