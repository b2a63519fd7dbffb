package domain

import (
	"context"
	"time"
)

// RoomKind distinguishes one-to-one rooms from group rooms.
type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

// Room is a chat room with a fixed participant set.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Kind         RoomKind  `json:"kind"`
	Participants []string  `json:"participants"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the room.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	ReadBy    []string  `json:"readBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatRepository interface {
	// CreateRoom stores room and assigns room.ID.
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]*Room, error)
	// CreateMessage stores msg and assigns msg.ID.
	CreateMessage(ctx context.Context, msg *Message) error
	// ListMessages returns a room's messages newest first.
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*Message, error)
	// MarkMessagesRead adds userID to readBy on every message in the room
	// not sent by userID, returning the number of messages updated.
	MarkMessagesRead(ctx context.Context, roomID, userID string) (int64, error)
}
