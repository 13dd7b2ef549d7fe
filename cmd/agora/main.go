package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kaldra/agora/internal/api"
	"github.com/kaldra/agora/internal/config"
	"github.com/kaldra/agora/internal/marketplace"
	"github.com/kaldra/agora/internal/notify"
	"github.com/kaldra/agora/internal/registry"
	pgstore "github.com/kaldra/agora/internal/store"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/agora.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Agora...", zap.String("config", cfgPath))

	if len(cfg.Registry.TrustedAuthorities) == 0 {
		logger.Fatal("registry.trusted_authorities must name at least one identity")
	}

	// Storage: PostgreSQL when configured, in-memory otherwise.
	var (
		regStore    registry.Store
		marketStore marketplace.Store
		pg          *pgstore.Store
	)
	if cfg.Database.Postgres.DSN != "" {
		pg, err = pgstore.New(context.Background(), cfg.Database.Postgres.DSN, cfg.Database.Postgres.MaxConns, logger)
		if err != nil {
			logger.Fatal("postgres unavailable", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(context.Background(), "migrations"); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		regStore, marketStore = pg, pg
	} else {
		logger.Warn("no postgres DSN configured, records will not survive restarts")
		regStore = registry.NewMemStore()
		marketStore = marketplace.NewMemStore()
	}

	// Notifications: Redis Stream when configured, discarded otherwise.
	var pub notify.Publisher = notify.Nop{}
	if cfg.Database.Redis.URL != "" {
		sp, err := notify.NewStreamPublisher(cfg.Database.Redis.URL, cfg.Registry.EventStream, logger)
		if err != nil {
			logger.Warn("redis unavailable, notifications disabled", zap.Error(err))
		} else {
			pub = sp
		}
	} else {
		logger.Warn("no redis URL configured, notifications disabled")
	}
	defer pub.Close()

	reg := registry.New(regStore, pub, cfg.Registry.TrustedAuthorities, logger)
	market := marketplace.New(marketStore, reg, pub, logger)
	handler := api.NewHandler(reg, market, logger)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Agora listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Agora...")
	srv.Shutdown(context.Background())
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
