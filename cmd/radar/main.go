package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/nexrad-reflectivity-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nexrad-reflectivity-service/internal/adapter/kafka"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/adapter/nexrad"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/buffer"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/config"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/observability"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/scheduler"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/sites"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	registry, err := sites.Load(cfg.SitesFile)
	if err != nil {
		logger.Error("failed to load radar sites", "error", err)
		os.Exit(1)
	}
	if _, err := registry.Get(cfg.DefaultSite); err != nil {
		logger.Error("default site is not in the catalogue", "site_id", cfg.DefaultSite, "error", err)
		os.Exit(1)
	}
	if err := registry.Require(cfg.PrewarmSites); err != nil {
		logger.Error("prewarm sites are not in the catalogue", "error", err)
		os.Exit(1)
	}
	logger.Info("radar sites loaded", "count", registry.Len(), "default", cfg.DefaultSite)

	client := nexrad.NewClient(cfg.ArchiveBaseURL, cfg.ArchiveTimeout, metrics, logger)
	gateway := nexrad.NewCachedGateway(client, nexrad.CacheConfig{
		ListTTL:    cfg.ArchiveListTTL,
		VolumeTTL:  cfg.ArchiveVolumeTTL,
		MaxVolumes: cfg.ArchiveCacheSize,
	}, metrics)

	// Snapshot notifications are feature-flagged via KAFKA_BROKERS.
	var publisher domain.SnapshotPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic, logger)
		publisher = kafkaPublisher
		logger.Info("snapshot notifications enabled", "topic", cfg.KafkaSnapshotTopic)
	} else {
		logger.Info("snapshot notifications disabled")
	}

	buf := buffer.New(gateway, publisher, buffer.Config{
		MaxSites:         cfg.MaxSites,
		SnapshotsPerSite: cfg.SnapshotsPerSite,
		LookbackHours:    cfg.LookbackHours,
		ThresholdDBZ:     cfg.ThresholdDBZ,
		DownsampleFactor: cfg.DownsampleFactor,
	}, logger, metrics)

	api := httpadapter.NewAPI(registry, buf, cfg.DefaultSite, cfg.ThresholdDBZ, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, registry, api, logger)

	prewarmer := scheduler.New(buf, cfg.PrewarmSites, cfg.PrewarmInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if err := prewarmer.Start(); err != nil {
		logger.Error("prewarm scheduler error", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	prewarmer.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
