package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/pkg/validator"
)

// Outbound event types.
const (
	EventReceiveMessage = "receive_message"
	EventRoomJoined     = "room_joined"
	EventRoomLeft       = "room_left"
	EventMessagesRead   = "messages_read"
	EventPong           = "pong"
	EventError          = "error"
)

// Inbound event types.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
	EventPing        = "ping"
)

// Error codes carried by error events.
const (
	CodeBadRequest = "bad_request"
	CodeValidation = "validation"
	CodeForbidden  = "forbidden"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal"
)

// WSEvent is the envelope for every frame in both directions.
type WSEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEvent{Type: event, Payload: payload})
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

type sendMessageRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// ReceivedMessage is the receive_message payload.
type ReceivedMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func receivedMessage(m *domain.Message) ReceivedMessage {
	return ReceivedMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

type roomEvent struct {
	RoomID string `json:"roomId"`
}

type messagesReadEvent struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Updated int64  `json:"updated"`
}

// ErrorEvent is the payload of an error event. The connection stays open.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

func errorEventFor(request, roomID string, err error) ErrorEvent {
	ev := ErrorEvent{Request: request, RoomID: roomID}
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		ev.Code, ev.Message = CodeForbidden, err.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		ev.Code, ev.Message = CodeNotFound, err.Error()
	case errors.Is(err, domain.ErrEmptyMessage), validator.IsValidation(err):
		ev.Code, ev.Message = CodeValidation, err.Error()
	default:
		ev.Code, ev.Message = CodeInternal, "request failed"
	}
	return ev
}
