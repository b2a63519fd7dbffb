package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
)

const requestTimeout = 10 * time.Second

// ChatBackend is the part of the chat service the hub needs.
type ChatBackend interface {
	AuthorizeParticipant(ctx context.Context, roomID, userID string) (*domain.Room, error)
	SendMessage(ctx context.Context, roomID, senderID, text string) (*domain.Message, error)
	MarkRead(ctx context.Context, roomID, userID string) (int64, error)
}

// Hub routes notification pushes to users and chat traffic to joined rooms.
type Hub struct {
	registry *Registry
	chat     ChatBackend
	logger   *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	// joined is the reverse index used to clean up on disconnect.
	joined map[*Client]map[string]struct{}

	// roomLocks holds a *sync.Mutex per room serializing persist+broadcast.
	roomLocks sync.Map
}

func NewHub(registry *Registry, chat ChatBackend, logger *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		chat:     chat,
		logger:   logger,
		rooms:    make(map[string]map[*Client]struct{}),
		joined:   make(map[*Client]map[string]struct{}),
	}
}

// Connect registers an authenticated client as its user's live channel.
func (h *Hub) Connect(c *Client) {
	c.generation = h.registry.Register(c.UserID, c)
	h.logger.Debug("client connected",
		zap.String("user_id", c.UserID),
		zap.String("conn_id", c.ID.String()),
		zap.Uint64("generation", c.generation),
	)
}

// Disconnect removes the client from every room and from the registry. It
// is safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	// Close first so a concurrent JoinRoom cannot re-add the client.
	c.close()

	h.mu.Lock()
	for roomID := range h.joined[c] {
		h.removeLocked(roomID, c)
	}
	delete(h.joined, c)
	h.mu.Unlock()

	if h.registry.Deregister(c.UserID, c.generation) {
		h.logger.Debug("client disconnected",
			zap.String("user_id", c.UserID),
			zap.String("conn_id", c.ID.String()),
		)
	}
}

// JoinRoom adds c to roomID after checking the user is a participant. The
// check runs on every attempt.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, roomID string) error {
	if _, err := h.chat.AuthorizeParticipant(ctx, roomID, c.UserID); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}

	if h.joined[c] == nil {
		h.joined[c] = make(map[string]struct{})
	}
	h.joined[c][roomID] = struct{}{}
	return nil
}

func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(roomID, c)
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, roomID)
	}
}

func (h *Hub) removeLocked(roomID string, c *Client) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// JoinedCount returns how many sockets are joined to roomID.
func (h *Hub) JoinedCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) roomLock(roomID string) *sync.Mutex {
	v, _ := h.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// SendMessage persists a chat message and then broadcasts it to the sockets
// joined to the room. Both steps run under the room's lock so broadcast
// order matches persistence order. Locks exist only for rooms the sender
// was authorized for.
func (h *Hub) SendMessage(ctx context.Context, senderID, roomID, text string) (*domain.Message, error) {
	room, err := h.chat.AuthorizeParticipant(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}

	lock := h.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.chat.SendMessage(ctx, roomID, senderID, text)
	if err != nil {
		return nil, err
	}
	h.Broadcast(roomID, EventReceiveMessage, receivedMessage(msg))
	return msg, nil
}

// MarkRead marks the room's messages read for userID and tells the room.
func (h *Hub) MarkRead(ctx context.Context, userID, roomID string) (int64, error) {
	updated, err := h.chat.MarkRead(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	h.Broadcast(roomID, EventMessagesRead, messagesReadEvent{RoomID: roomID, UserID: userID, Updated: updated})
	return updated, nil
}

// Broadcast sends an event to every socket joined to roomID and returns the
// number of sockets that accepted it.
func (h *Hub) Broadcast(roomID, event string, payload any) int {
	data, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to encode room event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if err := c.sendRaw(data); err != nil {
			h.logger.Debug("room broadcast skipped client",
				zap.String("room_id", roomID),
				zap.String("user_id", c.UserID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// HandleInbound decodes one client frame and acts on it. Failures are
// reported to the sender as error events; the connection stays open.
func (h *Hub) HandleInbound(ctx context.Context, c *Client, data []byte) {
	var ev WSEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		h.reply(c, EventError, ErrorEvent{Code: CodeBadRequest, Message: "malformed event"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch ev.Type {
	case EventPing:
		h.reply(c, EventPong, nil)

	case EventJoinRoom, EventLeaveRoom, EventMarkRead:
		var req roomRequest
		if err := json.Unmarshal(ev.Payload, &req); err != nil || req.RoomID == "" {
			h.reply(c, EventError, ErrorEvent{Code: CodeBadRequest, Message: "roomId is required", Request: ev.Type})
			return
		}
		h.handleRoomRequest(ctx, c, ev.Type, req.RoomID)

	case EventSendMessage:
		var req sendMessageRequest
		if err := json.Unmarshal(ev.Payload, &req); err != nil || req.RoomID == "" {
			h.reply(c, EventError, ErrorEvent{Code: CodeBadRequest, Message: "roomId is required", Request: ev.Type})
			return
		}
		if _, err := h.SendMessage(ctx, c.UserID, req.RoomID, req.Text); err != nil {
			h.reply(c, EventError, errorEventFor(ev.Type, req.RoomID, err))
		}

	default:
		h.reply(c, EventError, ErrorEvent{Code: CodeBadRequest, Message: "unknown event type", Request: ev.Type})
	}
}

func (h *Hub) handleRoomRequest(ctx context.Context, c *Client, request, roomID string) {
	switch request {
	case EventJoinRoom:
		if err := h.JoinRoom(ctx, c, roomID); err != nil {
			h.logger.Debug("room join rejected",
				zap.String("room_id", roomID),
				zap.String("user_id", c.UserID),
				zap.Error(err),
			)
			h.reply(c, EventError, errorEventFor(request, roomID, err))
			return
		}
		h.reply(c, EventRoomJoined, roomEvent{RoomID: roomID})

	case EventLeaveRoom:
		h.LeaveRoom(c, roomID)
		h.reply(c, EventRoomLeft, roomEvent{RoomID: roomID})

	case EventMarkRead:
		if _, err := h.MarkRead(ctx, c.UserID, roomID); err != nil {
			h.reply(c, EventError, errorEventFor(request, roomID, err))
		}
	}
}

func (h *Hub) reply(c *Client, event string, payload any) {
	if err := c.Send(event, payload); err != nil {
		h.logger.Debug("reply dropped",
			zap.String("user_id", c.UserID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
