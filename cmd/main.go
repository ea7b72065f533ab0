package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"alert-bulletin-service/internal/api"
	"alert-bulletin-service/internal/bulletin"
	"alert-bulletin-service/internal/classifier"
	"alert-bulletin-service/internal/config"
	"alert-bulletin-service/internal/db"
	"alert-bulletin-service/internal/dispatch"
	"alert-bulletin-service/internal/kafka"
	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/mediagen"
	"alert-bulletin-service/internal/observability"
	"alert-bulletin-service/internal/pipeline"
	"alert-bulletin-service/internal/providers"
	"alert-bulletin-service/internal/realtime"
	"alert-bulletin-service/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.Migrate(ctx); err != nil {
		logger.Fatalf("Database migration failed: %v", err)
	}

	// Attachments
	var linker providers.Linker
	composerOpts := []bulletin.Option{bulletin.WithClock(clock)}
	if cfg.S3.Bucket != "" {
		store, err := storage.New(storage.Config{
			Bucket:        cfg.S3.Bucket,
			Prefix:        cfg.S3.Prefix,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PresignExpiry: cfg.S3.PresignExpiry,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to init attachment store: %v", err)
		}
		linker = store
		if cfg.MediaGen.BaseURL != "" {
			composerOpts = append(composerOpts,
				bulletin.WithMedia(mediagen.NewClient(cfg.MediaGen.BaseURL, cfg.MediaGen.Timeout), store, cfg.MediaGen.Timeout))
		} else {
			logger.Warn("Media generator is not configured; bulletins are composed without charts")
		}
	} else {
		logger.Warn("S3 bucket is not configured; bulletins are composed without charts")
	}

	composer := bulletin.NewComposer(dbConn, logger, metrics, composerOpts...)

	// Dissemination
	registry := providers.NewFromConfig(cfg, linker, logger)
	defer registry.Close()

	coordinator := dispatch.NewCoordinator(registry, dbConn, dbConn, dispatch.Config{
		ChannelTimeout:  cfg.Dispatch.ChannelTimeout,
		BreakerFailures: cfg.Dispatch.BreakerFailures,
		BreakerWindow:   cfg.Dispatch.BreakerWindow,
		BreakerDelay:    cfg.Dispatch.BreakerDelay,
		InitiatedBy:     cfg.Dispatch.DefaultInitiatedBy,
	}, clock, logger, metrics)

	hub := realtime.NewHub(logger)
	defer hub.Close()
	coordinator.OnSummary(hub.Broadcast)

	// Pipeline
	recorder := pipeline.NewRecorder(dbConn, clock, logger)
	runner := pipeline.NewRunner(classifier.NewDefault(), dbConn, composer, coordinator, recorder, logger, metrics)
	svc := pipeline.NewService(runner, cfg.Pipeline.QueueSize, cfg.Pipeline.MaxWorkers, logger, metrics)
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Initialize Kafka consumer
	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer = kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.ForecastTopic,
			GroupID: cfg.Kafka.GroupID,
		}, svc, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.ForecastTopic)
	} else {
		logger.Warn("KAFKA_BROKERS is empty; forecast batches are accepted over HTTP only")
	}

	// Start API server
	handler := api.NewHandler(dbConn, svc, coordinator, linker, logger, "api")
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(cfg.API.BasePath, logger, handler, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}

	svc.Stop()
	wg.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	logger.Info("Shutdown complete")
}
