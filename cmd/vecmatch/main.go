package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/config"
	dbRedis "github.com/kailas-cloud/vecmatch/internal/db/redis"
	"github.com/kailas-cloud/vecmatch/internal/domain"
	domcol "github.com/kailas-cloud/vecmatch/internal/domain/collection"
	"github.com/kailas-cloud/vecmatch/internal/domain/collection/field"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/query"
	logpkg "github.com/kailas-cloud/vecmatch/internal/logger"
	"github.com/kailas-cloud/vecmatch/internal/metrics"
	collectionrepo "github.com/kailas-cloud/vecmatch/internal/repository/collection"
	"github.com/kailas-cloud/vecmatch/internal/repository/embcache"
	searchrepo "github.com/kailas-cloud/vecmatch/internal/repository/search"
	chiTransport "github.com/kailas-cloud/vecmatch/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/vecmatch/internal/transport/openai"
	classifyuc "github.com/kailas-cloud/vecmatch/internal/usecase/classify"
	embeddinguc "github.com/kailas-cloud/vecmatch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/vecmatch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecmatch/internal/usecase/search"
	"github.com/kailas-cloud/vecmatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vecmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Int("collections", len(cfg.Retrieval.Collections)),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:        cfg.Database.Addrs,
		Username:     cfg.Database.Username,
		Password:     cfg.Database.Password,
		DB:           cfg.Database.DB,
		DialTimeout:  time.Duration(cfg.Database.DialTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Database.ReadTimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Embedder chain per model kind: OpenAI -> Cached -> Instrumented
	models := make(map[domain.ModelKind]embeddinguc.Model, len(cfg.Embedding.Models))
	embedChecks := make(map[string]healthuc.EmbeddingChecker, len(cfg.Embedding.Models))
	for kindName, mc := range cfg.Embedding.Models {
		kind := domain.ModelKind(kindName)
		provider := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      mc.Model,
			Kind:       kind,
			Dimensions: mc.Dimensions,
			User:       cfg.Embedding.User,
			Logger:     logger,
		})
		models[kind] = embeddinguc.Model{
			Embedder:   buildEmbedder(provider, kind, mc, cfg.Embedding.Cache, store, logger),
			Name:       mc.Model,
			Dimensions: mc.Dimensions,
			MaxWords:   max(mc.MaxWords, 0),
		}
		embedChecks["embedding_"+kindName] = provider

		logger.Info("Embedder created",
			zap.String("kind", kindName),
			zap.String("model", mc.Model),
			zap.Int("dimensions", mc.Dimensions),
			zap.Bool("cache", cfg.Embedding.Cache.Enabled),
		)
	}

	embedClient := embeddinguc.NewClient(
		embeddinguc.Config{
			Enabled: cfg.Embedding.IsEnabled(),
			Timeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		},
		models,
		embeddinguc.Metrics{
			Degraded:    metrics.EmbeddingDegradedTotal,
			Truncations: metrics.EmbeddingTruncationsTotal,
		},
		logger,
	)
	if !cfg.Embedding.IsEnabled() {
		logger.Warn("Embeddings disabled, searches run lexical only")
		embedChecks = nil
	}

	cols, err := buildCollections(cfg.Retrieval.Collections)
	if err != nil {
		logger.Fatal("Invalid collection configuration", zap.Error(err))
	}
	registry, err := domcol.NewRegistry(cols...)
	if err != nil {
		logger.Fatal("Invalid collection registry", zap.Error(err))
	}

	collRepo := collectionrepo.New(store, cols, logger).WithHNSW(collectionrepo.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if cfg.Index.AutoCreate {
		created, err := collRepo.EnsureIndexes(ctx)
		if err != nil {
			logger.Fatal("Failed to create indexes", zap.Error(err))
		}
		logger.Info("Indexes ensured", zap.Strings("created", created))
	}

	searchRepo := searchrepo.New(store, registry, searchrepo.Metrics{
		Requests: metrics.RetrievalRequestsTotal,
		Duration: metrics.RetrievalDuration,
	})

	searchSvc := searchuc.New(searchRepo, registry, embedClient, query.NewBuilder(*cfg.Retrieval.Alpha), logger)
	classifier := classifyuc.New(
		classifyuc.Config{
			GroupCollection: cfg.Classification.GroupCollection,
			TextCollection:  cfg.Classification.TextCollection,
			ImageCollection: cfg.Classification.ImageCollection,
			LabelField:      cfg.Classification.LabelField,
			DefaultGroup:    cfg.Classification.DefaultGroup,
			Neighbors:       cfg.Classification.Neighbors,
			TextWeight:      cfg.Classification.TextWeight,
			ImageWeight:     cfg.Classification.ImageWeight,
			SingleThreshold: cfg.Classification.SingleThreshold,
			DualThreshold:   cfg.Classification.DualThreshold,
			CaptionMaxChars: cfg.Classification.CaptionMaxChars,
		},
		embedClient, searchRepo, registry, metrics.ClassificationsTotal, logger,
	)
	healthSvc := healthuc.New(store, embedChecks, collRepo)

	server := chiTransport.NewServer(searchSvc, classifier, healthSvc, chiTransport.Options{
		APIKeys:      cfg.Auth.APIKeys,
		MaxBodyBytes: int64(cfg.HTTP.MaxBodyBytes),
		MaxBatchSize: cfg.HTTP.MaxBatchSize,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(
	provider domain.Embedder,
	kind domain.ModelKind,
	mc config.ModelConfig,
	cacheCfg config.CacheConfig,
	store *dbRedis.Store,
	logger *zap.Logger,
) domain.Embedder {
	embedder := provider
	if cacheCfg.Enabled {
		embedder = embcache.New(embedder, store, embcache.Options{
			Model: mc.Model,
			Kind:  kind,
			TTL:   time.Duration(cacheCfg.TTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}
	return embeddinguc.NewInstrumentedEmbedder(embedder, kind, mc.Model, logger)
}

// buildCollections converts the configured collections, sorted by name for stable index creation.
func buildCollections(cfgs map[string]config.CollectionConfig) ([]domcol.Collection, error) {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]domcol.Collection, 0, len(names))
	for _, name := range names {
		cc := cfgs[name]

		fields := make([]field.Field, 0, len(cc.Tags)+len(cc.Numerics))
		for _, t := range cc.Tags {
			f, err := field.New(t, field.Tag)
			if err != nil {
				return nil, fmt.Errorf("collection %s: %w", name, err)
			}
			fields = append(fields, f)
		}
		for _, n := range cc.Numerics {
			f, err := field.New(n, field.Numeric)
			if err != nil {
				return nil, fmt.Errorf("collection %s: %w", name, err)
			}
			fields = append(fields, f)
		}

		byKind, err := cc.VectorsByKind()
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		kinds := make([]string, 0, len(byKind))
		for kind := range byKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		vectors := make([]domcol.VectorSpec, 0, len(kinds))
		for _, kind := range kinds {
			v := byKind[kind]
			vectors = append(vectors, domcol.VectorSpec{
				Field:      v.Field,
				Kind:       domain.ModelKind(kind),
				Dimensions: v.Dimensions,
			})
		}

		col, err := domcol.New(domcol.Spec{
			Name:    name,
			QueryBy: cc.QueryBy,
			Vectors: vectors,
			Fields:  fields,
		})
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}
