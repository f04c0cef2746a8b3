// Package main wires together the entity audit service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcspubsub "cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/entityscope/entityscope/internal/api"
	"github.com/entityscope/entityscope/internal/archive"
	"github.com/entityscope/entityscope/internal/audit"
	"github.com/entityscope/entityscope/internal/clock/system"
	"github.com/entityscope/entityscope/internal/config"
	"github.com/entityscope/entityscope/internal/crawl"
	"github.com/entityscope/entityscope/internal/dataset"
	"github.com/entityscope/entityscope/internal/discovery"
	"github.com/entityscope/entityscope/internal/drift"
	"github.com/entityscope/entityscope/internal/id/uuid"
	"github.com/entityscope/entityscope/internal/logging"
	"github.com/entityscope/entityscope/internal/metrics"
	"github.com/entityscope/entityscope/internal/orchestrator"
	memorypublisher "github.com/entityscope/entityscope/internal/publisher/memory"
	pubsubpublisher "github.com/entityscope/entityscope/internal/publisher/pubsub"
	boltstorage "github.com/entityscope/entityscope/internal/storage/bolt"
	memorystorage "github.com/entityscope/entityscope/internal/storage/memory"
	postgresstorage "github.com/entityscope/entityscope/internal/storage/postgres"
	"github.com/entityscope/entityscope/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()
	idGen := uuid.New()

	jobStore, driftStore, closeStore, err := buildStores(ctx, cfg, clock)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	blobStore, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	datasets := dataset.NewRegistry()
	if cfg.Datasets.Dir != "" {
		if err := datasets.LoadDir(cfg.Datasets.Dir); err != nil {
			logger.Fatal("dataset catalog load failed", zap.Error(err))
		}
		logger.Info("dataset catalog loaded", zap.Strings("keys", datasets.Keys()))
	}

	fetcher := crawl.NewStaticFetcher(crawl.StaticConfig{
		UserAgent:    cfg.Crawl.UserAgent,
		Timeout:      time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
		MaxRedirects: cfg.Crawl.MaxRedirects,
	})

	var renderer audit.Renderer = crawl.NewNoopRenderer()
	if cfg.Headless.Enabled {
		chromedpRenderer, err := crawl.NewChromedpRenderer(crawl.RendererConfig{
			MaxConcurrency: cfg.Headless.MaxParallel,
			Timeout:        time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			DomainQPS:      cfg.Headless.DomainQPS,
		}, logger.Named("renderer"))
		if err != nil {
			logger.Warn("renderer init failed, keeping static-only crawls", zap.Error(err))
		} else {
			renderer = chromedpRenderer
			defer func() {
				if err := chromedpRenderer.Close(context.Background()); err != nil {
					logger.Warn("renderer close failed", zap.Error(err))
				}
			}()
		}
	}

	engine := crawl.NewEngine(
		fetcher,
		renderer,
		crawl.NewEscalationPolicy(cfg.Escalation.MinWordCount, cfg.Escalation.MaxScriptCount),
		blobStore,
		crawl.EngineConfig{
			StaticTimeout: time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
			RenderTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			UserAgents:    cfg.Crawl.UserAgents,
			ArchivePrefix: cfg.Crawl.ArchivePrefix,
		},
		logger.Named("crawl"),
	)

	discoverer := discovery.New(fetcher, discovery.Config{
		MaxSurfaces: cfg.Discovery.MaxSurfaces,
		Timeout:     time.Duration(cfg.Discovery.TimeoutSeconds) * time.Second,
	}, logger.Named("discovery"))

	recorder := drift.NewRecorder(driftStore, 10*time.Second, logger.Named("drift"))
	defer recorder.Wait()

	orch := orchestrator.New(
		jobStore,
		datasets,
		engine,
		discoverer,
		audit.NewPromotionGate(cfg.Gate.MinSchemaObjects),
		cfg.Scoring,
		recorder,
		publisher,
		clock,
		idGen,
		orchestrator.Config{
			ChunkSize:       cfg.Batch.ChunkSize,
			TimeBudget:      cfg.TimeBudget(),
			EntityTimeout:   cfg.EntityTimeout(),
			Cooldown:        cfg.Cooldown(),
			LiteFirst:       cfg.Batch.LiteFirst,
			CompletionTopic: cfg.Batch.CompletionTopic,
		},
		logger.Named("orchestrator"),
	)

	pool := worker.NewPool(cfg.Pool.Size, orch.AuditURL, logger.Named("pool"))
	apiServer := api.NewServer(orch, pool, jobStore, driftStore, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func buildStores(
	ctx context.Context,
	cfg config.Config,
	clock audit.Clock,
) (audit.JobStore, audit.DriftStore, func(), error) {
	switch cfg.Store.Provider {
	case config.StoreMemory:
		store := memorystorage.NewStore(cfg.StoreTTL(), clock)
		return store, store, func() {}, nil
	case config.StoreBolt:
		store, err := boltstorage.NewStore(cfg.Store.BoltPath, cfg.StoreTTL(), clock)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open bolt store: %w", err)
		}
		return store, store, func() {
			if err := store.Close(); err != nil {
				zap.L().Warn("bolt store close failed", zap.Error(err))
			}
		}, nil
	case config.StorePostgres:
		store, err := postgresstorage.NewStore(ctx, postgresstorage.Config{
			DSN: cfg.Store.DSN,
			TTL: cfg.StoreTTL(),
		}, clock)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, store, store.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store provider %q", cfg.Store.Provider)
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (audit.BlobStore, error) {
	switch cfg.Archive.Provider {
	case config.ArchiveNone:
		return nil, nil
	case config.ArchiveMemory:
		return archive.NewMemoryStore(), nil
	case config.ArchiveLocal:
		return archive.NewLocalStore(archive.LocalConfig{BaseDir: cfg.Archive.BaseDir})
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return archive.NewGCSStore(client, archive.GCSConfig{Bucket: cfg.Archive.Bucket})
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (audit.Publisher, func(), error) {
	if cfg.Batch.CompletionTopic == "" {
		return nil, func() {}, nil
	}
	if cfg.PubSub.Emulate {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := gcspubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() {
		pub.Close()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}, nil
}
