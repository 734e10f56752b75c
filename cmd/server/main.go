package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetops/backend/internal/config"
	"github.com/fleetops/backend/internal/db"
	"github.com/fleetops/backend/internal/execution"
	httpapi "github.com/fleetops/backend/internal/http"
	"github.com/fleetops/backend/internal/optimizer"
	"github.com/fleetops/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "fleet-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	var routeOptimizer optimizer.Adapter
	if cfg.OptimizerURL == "" {
		routeOptimizer = optimizer.MockAdapter{Facilities: store}
		logger.Info().Msg("using mock route optimizer")
	} else {
		routeOptimizer = optimizer.HTTPAdapter{BaseURL: cfg.OptimizerURL}
	}

	var publisher execution.Publisher
	if cfg.ExecutionURL == "" {
		publisher = execution.MockPublisher{}
		logger.Info().Msg("using mock execution publisher")
	} else {
		publisher = execution.HTTPPublisher{BaseURL: cfg.ExecutionURL}
	}

	packaging := &service.PackagingService{Store: store, Logger: logger}
	slots := &service.SlotService{Store: store, RetryMax: cfg.SlotRetryMax, Logger: logger}
	lifecycle := &service.LifecycleService{Store: store, Slots: slots, Publisher: publisher, Logger: logger}
	optimization := &service.OptimizationService{Store: store, Optimizer: routeOptimizer, Logger: logger}

	router := httpapi.Router(cfg, store, packaging, slots, lifecycle, optimization, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
