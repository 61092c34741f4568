package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/voxcache/ai/anchor"
	"github.com/hrygo/voxcache/ai/cache"
	"github.com/hrygo/voxcache/ai/configloader"
	"github.com/hrygo/voxcache/ai/core/embedding"
	"github.com/hrygo/voxcache/ai/core/reranker"
	"github.com/hrygo/voxcache/ai/metrics"
	"github.com/hrygo/voxcache/ai/topology"
	"github.com/hrygo/voxcache/internal/profile"
	"github.com/hrygo/voxcache/store"
	"github.com/hrygo/voxcache/store/db"
)

// components holds everything built from a profile.
type components struct {
	store    *store.Store
	cache    *cache.Cache
	exporter *metrics.PrometheusExporter
}

func (c *components) Close() {
	if err := c.cache.Close(); err != nil {
		slog.Warn("failed to close cache", "error", err)
	}
	if err := c.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}

func newComponents(ctx context.Context, p *profile.Profile, logger *slog.Logger) (*components, error) {
	dbDriver, err := db.NewDBDriver(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	storeInstance := store.New(dbDriver, p)

	embedder, err := embedding.NewService(ctx, &embedding.Config{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Project:    p.EmbeddingProject,
		Location:   p.EmbeddingLocation,
		Dimensions: p.EmbeddingDimensions,
		Timeout:    p.EmbeddingTimeout,
	})
	if err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	if p.EmbeddingMemoSize > 0 {
		embedder = embedding.NewCachedService(embedder, p.EmbeddingMemoSize, time.Hour)
	}

	rerankerService := reranker.NewService(&reranker.Config{
		Mode:     rerankMode(p, logger),
		Provider: p.RerankProvider,
		Model:    p.RerankModel,
		APIKey:   p.RerankAPIKey,
		BaseURL:  p.RerankBaseURL,
		Timeout:  p.RerankTimeout,
		Enabled:  p.RerankEnabled,
		Logger:   logger,
	})

	exporter := metrics.NewPrometheusExporter(metrics.Config{ProcessCollectors: true})

	cfg := cache.Config{
		Thresholds:         reranker.NewThresholds(p.RerankThreshold, p.RerankDomainThresholds),
		ExcludeRules:       p.CacheExcludeRules,
		MaxEntries:         p.CacheMaxEntries,
		TopK:               p.CacheTopK,
		MinWords:           p.CacheMinWords,
		VectorThreshold:    p.CacheVectorThreshold,
		DuplicateThreshold: p.CacheDuplicateThreshold,
		LegacyThreshold:    p.CacheLegacyThreshold,
		Enabled:            p.CacheEnabled,
	}
	opts := []cache.Option{
		cache.WithReranker(rerankerService),
		cache.WithLogger(logger),
		cache.WithRecorder(exporter),
	}

	provider := newTopologyProvider(p)
	if provider != nil {
		templates := anchor.DefaultTemplates()
		if p.AnchorTemplatesFile != "" {
			loader := configloader.NewLoader(filepath.Dir(p.AnchorTemplatesFile))
			templates, err = anchor.LoadTemplates(loader, filepath.Base(p.AnchorTemplatesFile))
			if err != nil {
				_ = storeInstance.Close()
				return nil, errors.Wrap(err, "failed to load anchor templates")
			}
		}
		opts = append(opts, cache.WithBootstrapper(anchor.NewGenerator(provider, embedder, anchor.Config{
			Templates:     templates,
			Logger:        logger,
			Concurrency:   p.AnchorConcurrency,
			RatePerSecond: p.AnchorRatePerSecond,
			EntityScope:   p.AnchorEntityScope,
		})))
	} else {
		logger.Info("no topology configured, anchors disabled")
	}

	c, err := cache.New(cfg, embedder, storeInstance, opts...)
	if err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to create cache")
	}

	return &components{
		store:    storeInstance,
		cache:    c,
		exporter: exporter,
	}, nil
}

// A topology file wins over Home Assistant.
func newTopologyProvider(p *profile.Profile) topology.Provider {
	switch {
	case p.TopologyFile != "":
		return topology.NewFile(p.TopologyFile)
	case p.HomeAssistantURL != "":
		return topology.NewHomeAssistant(p.HomeAssistantURL, p.HomeAssistantToken, 10*time.Second)
	default:
		return nil
	}
}

// rerankMode returns the reranker mode to run with. Local inference is
// linked in through reranker.RegisterLocalModel; without a registered model
// the local mode would fail every lookup, so it falls back to the API.
func rerankMode(p *profile.Profile, logger *slog.Logger) string {
	if !p.RerankEnabled || p.RerankMode != reranker.ModeLocal || reranker.HasLocalModel(p.RerankModel) {
		return p.RerankMode
	}
	logger.Warn("no in-process reranker model linked, using the api mode", "model", p.RerankModel)
	return reranker.ModeAPI
}
