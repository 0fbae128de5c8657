package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bonchi-health/bonchi_api/internal/config"
	"github.com/bonchi-health/bonchi_api/internal/events"
	"github.com/bonchi-health/bonchi_api/internal/infra"
	"github.com/bonchi-health/bonchi_api/internal/logging"
	"github.com/bonchi-health/bonchi_api/internal/routes"
	"github.com/bonchi-health/bonchi_api/internal/server"
	"github.com/bonchi-health/bonchi_api/internal/sms"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)
	slog.SetDefault(logger)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if cfg.AutoMigrate {
			if err := infra.EnsureSchema(ctx, db); err != nil {
				logger.Error("apply schema", "error", err)
				os.Exit(1)
			}
			logger.Info("schema applied")
		}
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set; rate limiting and idempotency disabled")
	}

	nc, err := infra.NewNATSConn(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Error("connect nats", "error", err)
		os.Exit(1)
	}
	var publisher events.Publisher = events.NewLoggerPublisher(logger)
	if nc != nil {
		publisher = events.NewNATSPublisher(nc)
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("drain nats", "error", err)
			}
		}()
	}

	sender, err := sms.New(cfg.SMS, logger)
	if err != nil {
		logger.Error("build sms sender", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(routes.Deps{
		Cfg:    cfg,
		DB:     db,
		Cache:  cache,
		SMS:    sender,
		Events: publisher,
		Logger: logger,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("server listening", "address", cfg.Address(), "env", cfg.AppEnv, "sms_provider", cfg.SMS.Provider)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
