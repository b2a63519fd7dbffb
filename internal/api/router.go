package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/auth"
	"github.com/locolive/pulse/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	notificationHandler *NotificationHandler
	chatHandler         *ChatHandler
	presenceHandler     *PresenceHandler
	wsHandler           *WebSocketHandler
	healthHandler       *HealthHandler
	jwtManager          *auth.JWTManager
	allowedOrigins      []string
	logger              *zap.Logger
}

// Handlers groups the handlers the router mounts
type Handlers struct {
	Notifications *NotificationHandler
	Chat          *ChatHandler
	Presence      *PresenceHandler
	WebSocket     *WebSocketHandler
	Health        *HealthHandler
}

// NewRouter creates a new router
func NewRouter(handlers Handlers, jwtManager *auth.JWTManager, allowedOrigins []string, logger *zap.Logger) *Router {
	return &Router{
		notificationHandler: handlers.Notifications,
		chatHandler:         handlers.Chat,
		presenceHandler:     handlers.Presence,
		wsHandler:           handlers.WebSocket,
		healthHandler:       handlers.Health,
		jwtManager:          jwtManager,
		allowedOrigins:      allowedOrigins,
		logger:              logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket handler authenticates the handshake itself so it
		// can accept the token as a query parameter.
		r.Get("/ws", rt.wsHandler.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.jwtManager))
			r.Use(chimiddleware.Compress(5))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", rt.notificationHandler.GetNotifications)
				r.Get("/unread/count", rt.notificationHandler.UnreadCount)
				r.Patch("/read-all", rt.notificationHandler.MarkAllRead)
				r.Patch("/{id}/read", rt.notificationHandler.MarkRead)
			})

			r.Get("/users/{userId}/presence", rt.presenceHandler.GetPresence)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", rt.chatHandler.CreateRoom)
				r.Get("/", rt.chatHandler.GetRooms)
				r.Get("/{roomId}/messages", rt.chatHandler.GetMessages)
				r.Post("/{roomId}/messages", rt.chatHandler.SendMessage)
				r.Post("/{roomId}/read", rt.chatHandler.MarkRead)
			})
		})
	})

	return r
}
