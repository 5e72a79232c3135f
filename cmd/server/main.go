package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/config"
	"github.com/t77yq/conflictwatch/internal/connector"
	"github.com/t77yq/conflictwatch/internal/detector"
	"github.com/t77yq/conflictwatch/internal/model"
	"github.com/t77yq/conflictwatch/internal/monitor"
	"github.com/t77yq/conflictwatch/internal/orchestrator"
	"github.com/t77yq/conflictwatch/internal/service"
	"github.com/t77yq/conflictwatch/internal/storage"
	"github.com/t77yq/conflictwatch/internal/transform"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Open the store
	store, err := storage.NewSQLiteStore(logger, cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	// Connector fan-out; list order is the deduplication precedence
	opts := connector.Options{
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.Timeout,
		BatchSize:  cfg.BatchSize,
	}
	connectors := []connector.Connector{
		connector.NewACLEDConnector(logger, cfg.ACLEDAPIKey, cfg.ACLEDEmail, opts),
		connector.NewUCDPConnector(logger, opts),
		connector.NewGDELTConnector(logger, opts),
	}

	normalizer := transform.NewNormalizer(logger)
	reconciler := transform.NewReconciler(logger, transform.ReconcilerConfig{
		DateFloor:       cfg.DateFloor,
		FutureTolerance: 24 * time.Hour,
		AlertThreshold:  cfg.AlertThreshold,
	})
	det := detector.NewDetector(logger, cfg.AlertThreshold)

	orch := orchestrator.New(logger, connectors, normalizer, reconciler, det, store)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Messaging is optional; without a NATS URL alerts stay in the
	// store and metrics are not published
	var metrics *monitor.MetricsCollector
	if cfg.NATSURL != "" {
		nc, err := connectNATS(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}

		publisher, err := service.NewAlertPublisher(logger, js)
		if err != nil {
			logger.Fatal("Failed to create alert publisher", zap.Error(err))
		}
		orch.SetAlertSink(publisher)

		metrics, err = monitor.NewMetricsCollector(js, orch, cfg.MetricsInterval, logger)
		if err != nil {
			logger.Fatal("Failed to create metrics collector", zap.Error(err))
		}
		metrics.Start(ctx)
		defer metrics.Stop()
	}

	pipeline := service.NewPipeline(logger, cfg, orch, store)
	catalog := pipeline.DatasetsCatalog()
	for _, warning := range catalog.Warnings {
		logger.Warn(warning)
	}

	// Recurring daily ingestion over the configured trailing window
	cron := orchestrator.NewCronRunner(orch, logger)
	start, end := cfg.DefaultDateRange(time.Now())
	if err := cron.AddSchedule(&model.PipelineSchedule{
		Name:       "daily-ingest",
		Expression: "0 6 * * *",
		Config: model.RunConfig{
			Sources:        cfg.EnabledSources,
			StartDate:      start,
			EndDate:        end,
			AlertThreshold: cfg.AlertThreshold,
			BatchSize:      cfg.BatchSize,
		},
	}); err != nil {
		logger.Fatal("Failed to register daily schedule", zap.Error(err))
	}
	cron.Start()
	defer cron.Stop()

	// Run once at startup so the store is warm before the first
	// scheduled firing
	resp, err := pipeline.ExecutePipeline(ctx, service.ExecuteRequest{Background: true})
	if err != nil {
		logger.Error("Initial pipeline run failed to submit", zap.Error(err))
	} else {
		logger.Info("Initial pipeline run submitted", zap.String("run_id", resp.RunID))
	}

	// Periodic registry cleanup
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := orch.Cleanup(ctx, cfg.RunRetention); err != nil {
					logger.Error("Run cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	logger.Info("Waiting for in-flight runs to finish")
	orch.Wait()
	logger.Info("Server shutting down gracefully")
}

func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.AppName),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATSURL, opts...)
		if err == nil {
			logger.Info("Connected to NATS successfully",
				zap.String("url", nc.ConnectedUrl()))
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, err
}
