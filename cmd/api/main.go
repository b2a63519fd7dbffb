package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/app"
	"github.com/locolive/pulse/internal/auth"
	"github.com/locolive/pulse/internal/config"
	"github.com/locolive/pulse/internal/domain"
)

const serviceName = "locolive-pulse"

var version = "0.0.0"

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:    serviceName,
		Usage:   "Notifications, presence and realtime chat for LocoLive",
		Version: version,
		Commands: []*cli.Command{
			serveCmd(),
			sweepCmd(),
			tokenCmd(),
		},
		DefaultCommand: "serve",
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the HTTP and websocket server with the retention worker",
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting locolive pulse",
				zap.String("env", cfg.Server.Env),
				zap.String("port", cfg.Server.Port),
				zap.String("db_driver", cfg.Database.Driver),
			)

			stores, err := app.OpenStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			return app.New(cfg, logger, stores, version).Run(ctx)
		},
	}
}

func sweepCmd() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete notifications older than the retention window once and exit",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "override NOTIFICATION_RETENTION",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			retention := cfg.Notifications.Retention
			if d := c.Duration("older-than"); d > 0 {
				retention = d
			}

			stores, err := app.OpenStores(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			deleted, err := domain.NewRetentionSweeper(stores.Notifications, retention, logger).Sweep(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deleted %d notifications\n", deleted)
			return nil
		},
	}
}

func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint an access token for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "user ID to put in the token", Required: true},
			&cli.StringFlag{Name: "email", Usage: "optional email claim"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}

			token, err := auth.NewJWTManager(cfg.JWT.Secret, c.Duration("ttl")).
				GenerateAccessToken(c.String("user"), c.String("email"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err == nil {
		zcfg.Level = level
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}
