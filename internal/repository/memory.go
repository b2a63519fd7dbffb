package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/locolive/pulse/internal/domain"
)

type storedNotification struct {
	n   domain.Notification
	seq int64
}

// MemoryRepository keeps notifications and chat rooms in process memory.
// It backs tests and the "memory" database driver.
type MemoryRepository struct {
	mu            sync.RWMutex
	seq           int64
	notifications map[string]*storedNotification
	rooms         map[string]*domain.Room
	messages      map[string][]*domain.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		notifications: make(map[string]*storedNotification),
		rooms:         make(map[string]*domain.Room),
		messages:      make(map[string][]*domain.Message),
	}
}

var (
	_ domain.NotificationStore = (*MemoryRepository)(nil)
	_ domain.ChatRepository    = (*MemoryRepository)(nil)
)

func (r *MemoryRepository) Insert(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	n.ID = uuid.NewString()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.notifications[n.ID] = &storedNotification{n: *n, seq: r.seq}
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.notifications[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	n := s.n
	return &n, nil
}

func (r *MemoryRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	// Copy under the lock; MarkRead and MarkAllRead mutate stored entries.
	r.mu.RLock()
	var owned []storedNotification
	for _, s := range r.notifications {
		if s.n.RecipientID == userID {
			owned = append(owned, *s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].n.CreatedAt.Equal(owned[j].n.CreatedAt) {
			return owned[i].n.CreatedAt.After(owned[j].n.CreatedAt)
		}
		return owned[i].seq > owned[j].seq
	})

	result := []*domain.Notification{}
	for i := offset; i < len(owned) && len(result) < limit; i++ {
		result = append(result, &owned[i].n)
	}
	return result, nil
}

func (r *MemoryRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, s := range r.notifications {
		if s.n.RecipientID == userID && !s.n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.notifications[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	s.n.IsRead = true
	n := s.n
	return &n, nil
}

func (r *MemoryRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for _, s := range r.notifications {
		if s.n.RecipientID == userID && !s.n.IsRead {
			s.n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.notifications {
		if s.n.CreatedAt.Before(cutoff) {
			delete(r.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemoryRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room.ID = uuid.NewString()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	r.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (r *MemoryRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

// SetParticipants replaces a room's participant set. Membership is managed
// outside the core; this exists for tests and tooling.
func (r *MemoryRepository) SetParticipants(roomID string, participants []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Participants = append([]string(nil), participants...)
	return nil
}

func (r *MemoryRepository) ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := []*domain.Room{}
	for _, room := range r.rooms {
		if room.HasParticipant(userID) {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (r *MemoryRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[msg.RoomID]; !ok {
		return domain.ErrRoomNotFound
	}
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	stored := *msg
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], &stored)
	return nil
}

func (r *MemoryRepository) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[roomID]
	result := []*domain.Message{}
	for i := len(all) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		m := *all[i]
		m.ReadBy = append([]string(nil), all[i].ReadBy...)
		result = append(result, &m)
	}
	return result, nil
}

func (r *MemoryRepository) MarkMessagesRead(ctx context.Context, roomID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for _, m := range r.messages[roomID] {
		if m.SenderID == userID || contains(m.ReadBy, userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		updated++
	}
	return updated, nil
}

func cloneRoom(room *domain.Room) *domain.Room {
	c := *room
	c.Participants = append([]string(nil), room.Participants...)
	return &c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
