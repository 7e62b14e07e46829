// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/bingo/internal/auth"
	"github.com/jason-s-yu/bingo/internal/cache"
	"github.com/jason-s-yu/bingo/internal/config"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/handlers"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &config.Config{}
	cmd := config.NewCommand(cfg, releaseVersion, func(cmd *cobra.Command, cfg *config.Config) error {
		return run(cmd.Context(), cfg)
	})
	cmd.AddCommand(newWatchCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Server.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := initAuth(cfg); err != nil {
		return err
	}

	health := map[string]func(context.Context) error{}
	store, closeStore, err := openStore(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := handlers.NewHub(logger)
	broadcasters := game.MultiBroadcaster{hub}
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		mirror := cache.NewRedisBroadcaster(client, cfg.Redis.Queue, logger)
		go mirror.Run(ctx)
		broadcasters = append(broadcasters, mirror)
		logger.WithField("addr", cfg.Redis.Addr).Info("mirroring room events to redis")
	}

	rooms := game.NewRoomStore(store, broadcasters, game.Options{
		GraceWindow: cfg.Game.GraceWindow,
		OpTimeout:   cfg.Game.OpTimeout,
		Seed:        cfg.Game.Seed,
		Logger:      logger,
	})
	defer rooms.Close()
	if cfg.Game.RoomIdle > 0 {
		go rooms.RunJanitor(ctx, time.Minute, cfg.Game.RoomIdle, func(code string) bool {
			return hub.Count(code) > 0
		})
	}

	srv := handlers.NewServer(rooms, hub, handlers.Settings{
		JoinURL:        cfg.JoinURL,
		MinAutoCall:    cfg.Game.MinAutoCall,
		AllowedOrigins: cfg.Origins(),
		Health:         health,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func initAuth(cfg *config.Config) error {
	expiry, err := auth.ParseTokenExpiry(cfg.Auth.TokenExpiry)
	if err != nil {
		return err
	}
	if cfg.Auth.PrivateKeyPath != "" {
		return auth.InitFromPath(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, expiry)
	}
	return auth.Init(expiry)
}

// openStore connects to Postgres when a DSN is configured and falls back to
// an in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger, health map[string]func(context.Context) error) (game.Store, func(), error) {
	if cfg.DSN() == "" {
		logger.Warn("no database configured, rooms live in memory only")
		return database.NewMemoryStore(), func() {}, nil
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(cfg.DSN()); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations applied")
	}
	db, err := database.NewPostgresDB(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	health["postgres"] = db.Health
	return database.NewPostgresStore(db), db.Close, nil
}
