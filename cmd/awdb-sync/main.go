package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cascadia-gis/awdb-station-sync/internal/adapter/arcgis"
	"github.com/cascadia-gis/awdb-station-sync/internal/adapter/awdb"
	kafkaadapter "github.com/cascadia-gis/awdb-station-sync/internal/adapter/kafka"
	"github.com/cascadia-gis/awdb-station-sync/internal/adapter/usgs"
	"github.com/cascadia-gis/awdb-station-sync/internal/archive"
	"github.com/cascadia-gis/awdb-station-sync/internal/config"
	"github.com/cascadia-gis/awdb-station-sync/internal/observability"
	"github.com/cascadia-gis/awdb-station-sync/internal/store"
	stationsync "github.com/cascadia-gis/awdb-station-sync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := run(ctx, cfg, logger, metrics); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) int {
	st, err := store.New(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.StatementTimeout, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		return 1
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "error", err)
		return 1
	}

	fetcher := awdb.NewClient(cfg.AWDBEndpoint, cfg.RequestTimeout, cfg.MaxRequest, logger)

	// Optional stages, each feature-flagged through its own config keys.
	var enricher stationsync.Enricher
	if cfg.USGSEnabled {
		client := usgs.NewClient(cfg.USGSURL, cfg.RequestTimeout, logger)
		enricher = usgs.NewEnricher(usgs.NewCachedClient(client, cfg.USGSCacheSize), logger)
		logger.Info("usgs enrichment enabled", "cache_size", cfg.USGSCacheSize)
	} else {
		logger.Info("usgs enrichment disabled")
	}

	var services stationsync.ServiceController
	if cfg.ArcGISAdminURL != "" {
		services = arcgis.NewClient(cfg.ArcGISAdminURL, cfg.ArcGISUser, cfg.ArcGISPassword, cfg.RequestTimeout, logger)
		logger.Info("service guard enabled", "admin_url", cfg.ArcGISAdminURL)
	} else {
		logger.Info("service guard disabled, writing without stopping services")
	}

	var notifier stationsync.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		n := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := n.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		notifier = n
		logger.Info("change feed enabled", "topic", cfg.KafkaTopic)
	}

	var archiver stationsync.Archiver
	if cfg.ArchiveDir != "" {
		archiver = archive.NewWriter(cfg.ArchiveDir)
		logger.Info("snapshot archiving enabled", "dir", cfg.ArchiveDir)
	}

	runner := stationsync.New(fetcher, enricher, st, services, notifier, archiver, logger, metrics, cfg.RetryCount)
	summary := runner.Run(ctx, cfg.Networks)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(cfg.PushgatewayURL, "awdb_station_sync"); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	if failed := summary.Failed(); failed > 0 {
		logger.Error("sync finished with failures", "failed", failed)
		return 1
	}
	return 0
}
