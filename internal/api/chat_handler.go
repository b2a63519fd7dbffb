package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/internal/middleware"
	"github.com/locolive/pulse/internal/realtime"
	"github.com/locolive/pulse/pkg/response"
)

type ChatHandler struct {
	chatService *domain.ChatService
	hub         *realtime.Hub
	logger      *zap.Logger
}

func NewChatHandler(chatService *domain.ChatService, hub *realtime.Hub, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		hub:         hub,
		logger:      logger,
	}
}

// CreateRoom creates a room with the caller as a participant
func (h *ChatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req domain.CreateRoomParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	room, err := h.chatService.CreateRoom(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create room")
		return
	}

	response.Created(w, room)
}

// GetRooms returns the rooms the caller participates in
func (h *ChatHandler) GetRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	rooms, err := h.chatService.GetUserRooms(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get rooms")
		return
	}

	response.OK(w, rooms)
}

// GetMessages returns a page of a room's history, newest first
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	roomID := chi.URLParam(r, "roomId")
	limit, offset := pagination(r, domain.MessagePageSize)

	messages, err := h.chatService.GetMessages(r.Context(), roomID, userID, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get messages")
		return
	}

	response.Page(w, messages, limit, offset, len(messages))
}

type sendMessageBody struct {
	Text string `json:"text"`
}

// SendMessage is the HTTP fallback for send_message. It goes through the
// hub so joined sockets see the message in persistence order.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req sendMessageBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	msg, err := h.hub.SendMessage(r.Context(), userID, chi.URLParam(r, "roomId"), req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to send message")
		return
	}

	response.Created(w, msg)
}

// MarkRead marks every message in the room as read by the caller
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	updated, err := h.hub.MarkRead(r.Context(), userID, chi.URLParam(r, "roomId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to mark messages read")
		return
	}

	response.OK(w, map[string]int64{"updated": updated})
}
