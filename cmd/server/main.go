package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crisisgrid/backend/internal/config"
	"github.com/crisisgrid/backend/internal/db"
	"github.com/crisisgrid/backend/internal/hazard"
	httpapi "github.com/crisisgrid/backend/internal/http"
	"github.com/crisisgrid/backend/internal/mission"
	"github.com/crisisgrid/backend/internal/notify"
	"github.com/crisisgrid/backend/internal/routing"
	"github.com/crisisgrid/backend/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "crisisgrid-backend").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	oracle := routing.NewOSRMClient(cfg.OSRMBaseURL, cfg.OracleTimeout)
	planner := &routing.Planner{Oracle: oracle, Logger: logger}

	hazards := hazard.NewModel(logger)
	if err := hazards.Refresh(ctx, store); err != nil {
		logger.Warn().Err(err).Msg("initial hazard load failed")
	}
	go hazards.Run(ctx, store, cfg.HazardPollInterval)

	hub := tracking.NewHub(ctx, planner, hazards, logger)
	defer hub.StopAll()

	missions := &mission.Service{
		Store:    store,
		Notifier: notify.LogNotifier{Logger: logger},
		Logger:   logger,
	}

	go func() {
		ticker := time.NewTicker(cfg.ExpirySweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := missions.SweepExpired(ctx); err != nil {
					logger.Warn().Err(err).Msg("expiry sweep failed")
				}
			}
		}
	}()

	router := httpapi.Router(cfg, store, missions, planner, hazards, hub, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
