package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/config"
	dbRedis "github.com/kailas-cloud/meilifed/internal/db/redis"
	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/metrics"
	"github.com/kailas-cloud/meilifed/internal/registry"
	"github.com/kailas-cloud/meilifed/internal/repository/configrepo"
	"github.com/kailas-cloud/meilifed/internal/repository/embcache"
	"github.com/kailas-cloud/meilifed/internal/repository/searchcache"
	chiTransport "github.com/kailas-cloud/meilifed/internal/transport/chi"
	"github.com/kailas-cloud/meilifed/internal/transport/meili"
	openaiEmb "github.com/kailas-cloud/meilifed/internal/transport/openai"
	batchuc "github.com/kailas-cloud/meilifed/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/meilifed/internal/usecase/document"
	healthuc "github.com/kailas-cloud/meilifed/internal/usecase/health"
	indexuc "github.com/kailas-cloud/meilifed/internal/usecase/index"
	"github.com/kailas-cloud/meilifed/internal/usecase/provision"
	searchuc "github.com/kailas-cloud/meilifed/internal/usecase/search"
	settingsuc "github.com/kailas-cloud/meilifed/internal/usecase/settings"
	"github.com/kailas-cloud/meilifed/internal/usecase/vectorize"
)

// engine is the request path to Meilisearch, possibly behind the search cache.
type engine interface {
	Do(ctx context.Context, req remote.Request) (remote.Response, error)
}

// app is the composition root shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	client *meili.Client
	store  *dbRedis.Store // nil unless a cache driver is configured and connected
	engine engine

	codec   affix.Codec
	indexes *registry.Indexes
	groups  *registry.Groups

	provisioner *provision.Provisioner
	resolver    *provision.Resolver
	syncer      *provision.Syncer

	enricher *vectorize.Enricher // nil when enrichment is off
	provider *openaiEmb.Embedder
}

// newApp wires the catalog and the engine client. The cache store is only
// connected when connectCache is set, so read-only commands work without it.
func newApp(ctx context.Context, cfg config.Config, l *zap.Logger, connectCache bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  l,
		codec:   affix.New(cfg.Indexes.Prefix, cfg.Indexes.Suffix),
		indexes: registry.NewIndexes(),
		groups:  registry.NewGroups(),
	}

	repos, err := configrepo.FromConfig(cfg.Repositories)
	if err != nil {
		return nil, err
	}
	if err := a.indexes.LoadRepositories(repos...); err != nil {
		return nil, fmt.Errorf("load repositories: %w", err)
	}
	for name, entries := range cfg.Groups {
		if err := a.groups.Declare(name, entries); err != nil {
			return nil, fmt.Errorf("declare group %s: %w", name, err)
		}
	}

	a.client, err = meili.New(meili.Config{
		URL:          cfg.Meilisearch.URL,
		SearchKey:    cfg.Meilisearch.SearchKey,
		AdminKey:     cfg.Meilisearch.AdminKey,
		Timeout:      time.Duration(cfg.Meilisearch.TimeoutSec) * time.Second,
		RateLimit:    cfg.Meilisearch.RateLimitRPS,
		RateBurst:    cfg.Meilisearch.RateLimitBurst,
		GzipMinBytes: cfg.Meilisearch.GzipMinBytes,
		Logger:       l,
	})
	if err != nil {
		return nil, err
	}
	a.engine = a.client

	if connectCache && cfg.Cache.Enabled() {
		if err := a.connectStore(ctx); err != nil {
			return nil, err
		}
		if cfg.Cache.SearchTTLSec > 0 {
			ttl := time.Duration(cfg.Cache.SearchTTLSec) * time.Second
			a.engine = searchcache.New(a.client, a.store, ttl, metrics.SearchCacheTotal, l)
			l.Info("Search response cache enabled", zap.Duration("ttl", ttl))
		}
	}

	opts := provision.Options{
		TaskTimeout:  cfg.Tasks.TaskTimeout(),
		PollInterval: cfg.Tasks.PollInterval(),
	}
	a.provisioner = provision.New(a.engine, a.indexes, a.codec, l).WithDefaults(opts.TaskTimeout, opts.PollInterval)
	a.resolver, err = provision.NewResolver(a.provisioner, a.indexes, 0, opts)
	if err != nil {
		return nil, err
	}
	a.syncer = provision.NewSyncer(a.provisioner, a.indexes, opts, l)

	if cfg.Embedding.Enabled() {
		a.buildEmbedder()
	}
	return a, nil
}

func (a *app) connectStore(ctx context.Context) error {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.cfg.Cache.Addrs,
		Password: a.cfg.Cache.Password,
	})
	if err != nil {
		return fmt.Errorf("create cache store: %w", err)
	}
	timeout := time.Duration(a.cfg.Cache.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return fmt.Errorf("cache store not ready: %w", err)
	}
	a.store = store
	a.logger.Info("Connected to cache store",
		zap.String("driver", a.cfg.Cache.Driver), zap.Strings("addrs", a.cfg.Cache.Addrs))
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
func (a *app) buildEmbedder() {
	ec := a.cfg.Embedding
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		User:       ec.User,
		Provider:   ec.Provider,
		Logger:     a.logger,
	})
	a.provider = base

	var e domain.Embedder = base
	if a.store != nil {
		e = embcache.New(base, a.store, metrics.EmbeddingCacheTotal, a.logger).
			WithModel(ec.Model).
			WithTTL(time.Duration(a.cfg.Cache.EmbeddingTTLSec) * time.Second)
	}
	e = vectorize.NewInstrumentedEmbedder(e, ec.Provider, ec.Model, a.logger)
	if ec.Instruction != "" {
		e = domain.NewInstructionEmbedder(e, ec.Instruction)
	}

	a.enricher = vectorize.NewEnricher(e, ec.Embedder, ec.Fields, a.logger)
	a.logger.Info("Vector enrichment enabled",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.String("embedder", ec.Embedder),
		zap.Int("indexes", len(ec.Fields)),
	)
}

// newBatcher returns a fresh document batcher.
func (a *app) newBatcher() *batchuc.Batcher {
	b := batchuc.New(a.engine, a.indexes, nil, a.codec, a.logger).
		WithConcurrency(a.cfg.Batch.FlushConcurrency)
	if a.enricher != nil {
		b = b.WithEnricher(a.enricher)
	}
	return b
}

func (a *app) healthService() *healthuc.Service {
	// Nil interfaces, not typed nil pointers, when a dependency is absent.
	var cache healthuc.CachePinger
	if a.store != nil {
		cache = a.store
	}
	var emb healthuc.EmbeddingChecker
	if a.provider != nil {
		emb = a.provider
	}
	return healthuc.New(a.client, cache, emb)
}

// handler builds the HTTP gateway.
func (a *app) handler() http.Handler {
	server := chiTransport.NewServer(chiTransport.Deps{
		Search:    searchuc.New(a.engine, a.indexes, a.groups, a.codec, a.logger),
		Indexes:   indexuc.New(a.engine, a.indexes, a.codec, a.logger).WithForgetter(a.resolver),
		Documents: documentuc.New(a.engine, a.indexes, a.codec),
		Settings:  settingsuc.New(a.engine, a.indexes, a.codec, a.logger),
		Groups:    a.groups,
		Batcher:   a.newBatcher,
		Syncer:    a.syncer,
		Ensurer:   a.resolver,
		Health:    a.healthService(),
	}, a.logger)
	return chiTransport.NewRouter(server, chiTransport.NewKeyRing(a.cfg.Auth.APIKeys, a.cfg.Auth.SearchKeys), a.logger)
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}
