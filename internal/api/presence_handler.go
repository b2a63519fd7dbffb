package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/locolive/pulse/internal/realtime"
	"github.com/locolive/pulse/pkg/response"
)

type PresenceHandler struct {
	registry *realtime.Registry
}

func NewPresenceHandler(registry *realtime.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

type presenceResponse struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// GetPresence reports whether a user has a live connection and when they
// were last seen. lastSeen is null for users never seen by this process.
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		response.BadRequest(w, "user id is required")
		return
	}

	resp := presenceResponse{
		UserID: userID,
		Online: h.registry.IsOnline(userID),
	}
	if seen, ok := h.registry.LastSeen(userID); ok {
		resp.LastSeen = &seen
	}

	response.OK(w, resp)
}
