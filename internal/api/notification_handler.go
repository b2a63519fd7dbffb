package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/internal/middleware"
	"github.com/locolive/pulse/pkg/response"
)

type NotificationHandler struct {
	service *domain.NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

// GetNotifications lists the caller's notifications newest first
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	limit, offset := pagination(r, domain.NotificationPageSize)
	notifs, err := h.service.GetNotifications(r.Context(), userID, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to fetch notifications")
		return
	}

	response.Page(w, notifs, limit, offset, len(notifs))
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to count notifications")
		return
	}

	response.OK(w, map[string]int64{"count": count})
}

// MarkRead marks one of the caller's notifications as read. Other users'
// notifications report not found.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "invalid notification id")
		return
	}

	n, err := h.service.MarkRead(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update notification")
		return
	}

	response.OK(w, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update notifications")
		return
	}

	response.OK(w, map[string]int64{"updated": updated})
}
