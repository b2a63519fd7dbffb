package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/auth"
	"github.com/locolive/pulse/internal/middleware"
	"github.com/locolive/pulse/internal/realtime"
	"github.com/locolive/pulse/pkg/response"
)

// WebSocketHandler authenticates the handshake and hands the connection to
// the hub. The token comes from the Authorization header or the "token"
// query parameter; a bad token is rejected with 401 before upgrading.
type WebSocketHandler struct {
	hub        *realtime.Hub
	jwtManager *auth.JWTManager
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, jwtManager *auth.JWTManager, allowedOrigins []string, sendBuffer int, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		jwtManager: jwtManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Native clients send no Origin.
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades an authenticated request and serves it until the socket
// closes.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.Authenticate(h.jwtManager, r)
	if err != nil {
		response.Unauthorized(w, "invalid or missing token")
		return
	}
	ctx := middleware.WithUser(r.Context(), claims.UserID, claims.Email)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}

	// The request context ends when this handler returns; the client owns
	// its own cancellation from here on.
	client := realtime.NewClient(context.WithoutCancel(ctx), claims.UserID, conn, h.sendBuffer)
	h.hub.Connect(client)

	email, _ := middleware.GetEmail(ctx)
	started := time.Now()

	go client.WritePump()
	client.ReadPump(h.hub)

	h.logger.Info("websocket session ended",
		zap.String("user_id", claims.UserID),
		zap.String("user_email", email),
		zap.String("conn_id", client.ID.String()),
		zap.Duration("duration", time.Since(started)),
	)
}
