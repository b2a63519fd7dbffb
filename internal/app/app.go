package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/locolive/pulse/internal/api"
	"github.com/locolive/pulse/internal/auth"
	"github.com/locolive/pulse/internal/config"
	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/internal/realtime"
)

// App is the wired service. Feature modules built into the same binary
// produce notifications through Notifier.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Registry   *realtime.Registry
	Hub        *realtime.Hub
	Dispatcher *domain.Dispatcher
	Notifier   *domain.Notifier
	Sweeper    *domain.RetentionSweeper
	JWT        *auth.JWTManager
	Handler    http.Handler
}

// New wires services and handlers over the given stores.
func New(cfg *config.Config, logger *zap.Logger, stores *Stores, version string) *App {
	registry := realtime.NewRegistry()
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry)

	chatService := domain.NewChatService(stores.Chat, logger)
	notificationService := domain.NewNotificationService(stores.Notifications, logger)
	hub := realtime.NewHub(registry, chatService, logger)

	dispatcher := domain.NewDispatcher(stores.Notifications, registry, logger,
		domain.WithWriteTimeout(cfg.Notifications.WriteTimeout),
	)

	router := api.NewRouter(api.Handlers{
		Notifications: api.NewNotificationHandler(notificationService, logger),
		Chat:          api.NewChatHandler(chatService, hub, logger),
		Presence:      api.NewPresenceHandler(registry),
		WebSocket:     api.NewWebSocketHandler(hub, jwtManager, cfg.Server.AllowedOrigins, cfg.Realtime.SendBuffer, logger),
		Health:        api.NewHealthHandler(stores.Checks, registry.OnlineCount, version, logger),
	}, jwtManager, cfg.Server.AllowedOrigins, logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		Registry:   registry,
		Hub:        hub,
		Dispatcher: dispatcher,
		Notifier:   domain.NewNotifier(dispatcher),
		Sweeper:    domain.NewRetentionSweeper(stores.Notifications, cfg.Notifications.Retention, logger),
		JWT:        jwtManager,
		Handler:    router.Setup(),
	}
}

// Run serves HTTP and runs the retention worker until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.Sweeper.Run(gctx, a.cfg.Notifications.SweepInterval)
	})

	err := g.Wait()
	a.logger.Info("server stopped")
	return err
}
