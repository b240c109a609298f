// Package main provides the entry point for the API server.
package main

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/bithra/platform/internal/api"
	"github.com/bithra/platform/internal/api/health"
	"github.com/bithra/platform/internal/auth"
	"github.com/bithra/platform/internal/fees"
	"github.com/bithra/platform/internal/negotiation"
	"github.com/bithra/platform/internal/shutdown"
	pgstore "github.com/bithra/platform/internal/store/postgres"
	"github.com/bithra/platform/pkg/config"
	"github.com/bithra/platform/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		return 1
	}

	level, _ := cfg.LogLevelValue()
	log := logger.New(level, cfg.JSONLogs())

	st, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log.WithComponent("store").Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}

	if cfg.AutoMigrate {
		if err := st.Migrate(context.Background()); err != nil {
			log.Error("failed to apply migrations", "error", err)
			st.Close()
			return 1
		}
	}

	schedule, err := cfg.FeeSchedule()
	if err != nil {
		log.Error("failed to load fee schedule", "error", err)
		st.Close()
		return 1
	}
	log.Info("fee schedule loaded", "rate", schedule.Rate.String(), "flat", schedule.Flat.String())

	svc := negotiation.NewService(st, fees.NewCalculator(schedule), log.WithComponent("negotiation").Logger,
		negotiation.WithDuration(cfg.Negotiation.Duration),
		negotiation.WithPageSize(cfg.Negotiation.MessagePageSize),
	)

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, st.Users(), log.WithComponent("auth").Logger)

	server := api.NewServer(cfg, st, svc, authService, log.Logger)
	if path := cfg.Negotiation.FeeScheduleFile; path != "" {
		server.Health().Register("fee_schedule", health.PingFunc(func(ctx context.Context) error {
			_, err := fees.LoadSchedule(path)
			return err
		}), false)
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.WithComponent("shutdown").Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("database", st))
	coordinator.Register(shutdown.NewHTTPServerComponent("api", server.HTTPServer()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var failed atomic.Bool
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
			failed.Store(true)
			cancel()
		}
	}()

	coordinator.WaitForSignal(ctx)
	if failed.Load() {
		return 1
	}
	return coordinator.ExitCode()
}
