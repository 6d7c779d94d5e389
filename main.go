package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"volspike/config"
	"volspike/internal/api"
	"volspike/internal/bootstrap"
	"volspike/internal/channel"
	"volspike/internal/feed"
	"volspike/internal/kvstore"
	"volspike/internal/tier"
	"volspike/internal/transport"
	"volspike/logger"
	"volspike/models"
	"volspike/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	appEnv := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Volspike.Name,
		"version":     cfg.Volspike.Version,
		"tier":        cfg.Feed.Tier,
		"environment": appEnv,
	}).Info("starting volspike")

	if config.IsProductionLike(appEnv) && cfg.Storage.KV.Backend == "memory" {
		log.WithComponent("main").Warn("memory kv backend selected; cached snapshots will not survive restarts")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		logger.InitCloudWatch("", cfg.Metrics.Namespace, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	kv, err := newKVStore(cfg)
	if err != nil {
		log.WithError(err).Error("failed to initialize key-value store")
		os.Exit(1)
	}
	defer kv.Close()

	feedTier, err := tier.Parse(cfg.Feed.Tier)
	if err != nil {
		log.WithError(err).Error("invalid tier")
		os.Exit(1)
	}

	channels := channel.NewChannels(cfg.Channels.ArchiveBuffer, cfg.Channels.PublishBuffer)
	defer channels.Close()

	var seeds feed.SeedSource
	if cfg.Bootstrap.Enabled {
		seeds = bootstrap.NewLoader(cfg.Bootstrap.BaseURL, kv)
	} else {
		log.WithComponent("main").Info("REST bootstrap disabled")
	}

	var apiServer *api.Server

	engine := feed.NewEngine(feed.Config{
		URL:              cfg.Feed.URL,
		Tier:             feedTier,
		VolumeFloor:      cfg.Feed.VolumeFloor,
		MinSymbols:       cfg.Feed.MinSymbols,
		BootstrapWindow:  cfg.Feed.BootstrapWindow,
		GeofenceWindow:   cfg.Feed.GeofenceWindow,
		DebounceInterval: cfg.Feed.DebounceInterval,
		BaseBackoff:      cfg.Feed.BaseBackoff,
		MaxBackoff:       cfg.Feed.MaxBackoff,
	}, feed.Options{
		Dialer:   transport.NewWebsocketDialer(),
		KV:       kv,
		Seeds:    seeds,
		Channels: channels,
		OnSnapshot: func(em feed.Emission) {
			logger.IncrementSnapshotEmitted(len(em.Snapshot.Rows))
			if apiServer != nil {
				apiServer.SetEmission(em)
			}
		},
	})

	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{
			Host:       cfg.API.Host,
			Port:       cfg.API.Port,
			StaleAfter: cfg.API.StaleAfter,
		}, engine.Status)
	}

	var archiver *writer.Archiver
	var publisher *writer.KafkaPublisher

	if cfg.Storage.S3.Enabled {
		archiver, err = writer.NewArchiver(cfg, channels.Archive)
		if err != nil {
			log.WithError(err).Error("failed to create S3 archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archiver")
		go drainSnapshots(ctx, channels.Archive)
	}

	if cfg.Storage.Kafka.Enabled {
		publisher, err = writer.NewKafkaPublisher(cfg, channels.Publish)
		if err != nil {
			log.WithError(err).Error("failed to create kafka publisher")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("kafka disabled; skipping publisher")
		go drainSnapshots(ctx, channels.Publish)
	}

	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("s3 archiver failed to start")
			os.Exit(1)
		}
	}
	if publisher != nil {
		if err := publisher.Start(ctx); err != nil {
			log.WithError(err).Error("kafka publisher failed to start")
			os.Exit(1)
		}
	}
	if apiServer != nil {
		if err := apiServer.Start(); err != nil {
			log.WithError(err).Error("api server failed to start")
			os.Exit(1)
		}
	}

	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("feed engine failed to start")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	log.Info("stopping feed engine")
	engine.Stop()

	cancel()

	if apiServer != nil {
		log.Info("stopping api server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("api server shutdown failed")
		}
		shutdownCancel()
	}

	if archiver != nil {
		log.Info("stopping s3 archiver")
		archiver.Stop()
	}
	if publisher != nil {
		log.Info("stopping kafka publisher")
		publisher.Stop()
	}

	log.Info("volspike stopped")
}

func newKVStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.Storage.KV.Backend {
	case "redis":
		return kvstore.NewRedisStore(
			cfg.Storage.KV.Redis.Addr,
			cfg.Storage.KV.Redis.Password,
			cfg.Storage.KV.Redis.DB,
		)
	case "memory":
		return kvstore.NewMemoryStore(), nil
	default:
		return kvstore.NewFileStore(cfg.Storage.KV.Dir)
	}
}

// drainSnapshots keeps a disabled sink's channel from filling up and
// skewing the drop counters.
func drainSnapshots(ctx context.Context, ch <-chan models.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
		}
	}
}
