package meilifed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/normalize"
	"github.com/kailas-cloud/meilifed/internal/registry"
	"github.com/kailas-cloud/meilifed/internal/transport/meili"
	batchuc "github.com/kailas-cloud/meilifed/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/meilifed/internal/usecase/document"
	indexuc "github.com/kailas-cloud/meilifed/internal/usecase/index"
	"github.com/kailas-cloud/meilifed/internal/usecase/provision"
	searchuc "github.com/kailas-cloud/meilifed/internal/usecase/search"
	settingsuc "github.com/kailas-cloud/meilifed/internal/usecase/settings"
)

// Client is the meilifed SDK entry point. It is safe for concurrent use;
// the Batcher it hands out is not.
type Client struct {
	engine  *meili.Client
	codec   affix.Codec
	indexes *registry.Indexes
	groups  *registry.Groups
	chain   *normalize.Chain

	searchSvc   *searchuc.Service
	merger      *searchuc.Merger
	docSvc      *documentuc.Service
	settingsSvc *settingsuc.Service
	indexSvc    *indexuc.Service
	provisioner *provision.Provisioner
	resolver    *provision.Resolver
	syncer      *provision.Syncer

	cfg *clientConfig
	obs *observer
}

// New creates a Client. Unless WithoutPing is given, the engine must answer
// its health check before ctx is done.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		taskTimeout:  provision.DefaultTaskTimeout,
		pollInterval: provision.DefaultPollInterval,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.url == "" {
		return nil, errors.New("meilifed: engine url required (use WithURL)")
	}

	engine, err := meili.New(meili.Config{
		URL:        cfg.url,
		SearchKey:  cfg.searchKey,
		AdminKey:   cfg.adminKey,
		Timeout:    cfg.timeout,
		HTTPClient: cfg.httpClient,
		Logger:     cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("meilifed: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	c, err := wireClient(engine, cfg, obs)
	if err != nil {
		return nil, err
	}

	if !cfg.skipPing {
		if err := engine.Health(ctx); err != nil {
			return nil, fmt.Errorf("meilifed: engine not ready: %w", err)
		}
	}
	return c, nil
}

func wireClient(engine *meili.Client, cfg *clientConfig, obs *observer) (*Client, error) {
	codec := affix.New(cfg.prefix, cfg.suffix)

	indexes := registry.NewIndexes()
	if err := indexes.LoadRepositories(cfg.repositories...); err != nil {
		return nil, fmt.Errorf("meilifed: %w", err)
	}
	groups := registry.NewGroups()
	for _, g := range cfg.groups {
		if err := groups.Declare(g.name, g.entries); err != nil {
			return nil, fmt.Errorf("meilifed: %w", err)
		}
	}

	provisioner := provision.New(engine, indexes, codec, cfg.logger).
		WithDefaults(cfg.taskTimeout, cfg.pollInterval)
	resolver, err := provision.NewResolver(provisioner, indexes, 0, provision.Options{})
	if err != nil {
		return nil, fmt.Errorf("meilifed: %w", err)
	}

	return &Client{
		engine:      engine,
		codec:       codec,
		indexes:     indexes,
		groups:      groups,
		chain:       normalize.NewChain(cfg.normalizers...),
		searchSvc:   searchuc.New(engine, indexes, groups, codec, cfg.logger),
		merger:      searchuc.NewMerger(indexes, groups, codec),
		docSvc:      documentuc.New(engine, indexes, codec),
		settingsSvc: settingsuc.New(engine, indexes, codec, cfg.logger),
		indexSvc:    indexuc.New(engine, indexes, codec, cfg.logger).WithForgetter(resolver),
		provisioner: provisioner,
		resolver:    resolver,
		syncer:      provision.NewSyncer(provisioner, indexes, provision.Options{}, cfg.logger),
		cfg:         cfg,
		obs:         obs,
	}, nil
}

// Ping checks engine health.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.engine.Health(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// RemoteUID returns the engine uid of a logical index id.
func (c *Client) RemoteUID(indexID string) string { return c.codec.Add(indexID) }

// LogicalID strips the configured affixes from an engine uid.
func (c *Client) LogicalID(uid string) string { return c.codec.Remove(uid) }

// RegisterIndex adds an index outside of any repository.
func (c *Client) RegisterIndex(idx Index) error { return c.indexes.Register(idx) }

// LoadRepository registers every index the repository declares.
func (c *Client) LoadRepository(repo Repository) error { return c.indexes.LoadRepository(repo) }

// DeclareGroup registers a search group after construction.
func (c *Client) DeclareGroup(name string, entries ...GroupEntry) error {
	return c.groups.Declare(name, entries)
}

// IsManaged reports whether indexID is registered.
func (c *Client) IsManaged(indexID string) bool { return c.indexes.IsManaged(indexID) }

// Search queries one managed index; params.IndexUID holds the logical id.
func (c *Client) Search(ctx context.Context, params *Parameters) (res IndexResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	return c.searchSvc.Search(ctx, params)
}

// MultiSearch sends all queries in one request. Every query must target a managed index.
func (c *Client) MultiSearch(ctx context.Context, queries ...*Parameters) (res MultiSearchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("multi_search", start, err) }()

	return c.searchSvc.MultiSearch(ctx, queries)
}

// GroupSearch runs params against every member of a group, one result block per member.
func (c *Client) GroupSearch(ctx context.Context, group string, params *Parameters) (res MultiSearchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("group_search", start, err) }()

	return c.searchSvc.GroupSearch(ctx, group, params)
}

// GroupSearchMerged runs a group search and merges the blocks into one list ordered
// by weighted ranking score. With unique set, hits sharing a primary key collapse
// into the best scored one.
func (c *Client) GroupSearchMerged(ctx context.Context, group string, params *Parameters, unique bool) (hits []Hit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("group_search_merged", start, err) }()

	return c.searchSvc.GroupSearchMerged(ctx, group, params, unique)
}

// Merge combines the blocks of a group search result.
func (c *Client) Merge(res MultiSearchResult, group string, unique bool) ([]Hit, error) {
	return c.merger.Merge(res, group, unique)
}

// Ensure creates the index on the engine if needed and, with opts.UpdateSettings,
// pushes its repository settings.
func (c *Client) Ensure(ctx context.Context, indexID string, opts EnsureOptions) (res EnsureResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ensure", start, err) }()

	idx, err := c.indexes.Get(indexID)
	if err != nil {
		return EnsureResult{}, err
	}
	return c.provisioner.Ensure(ctx, idx, opts)
}

// Resolve returns the remote handle of a managed index, ensuring it once per client.
func (c *Client) Resolve(ctx context.Context, indexID string) (RemoteIndex, error) {
	return c.resolver.Resolve(ctx, indexID)
}

// Sync ensures every managed index matching the glob pattern and pushes its settings.
// An empty pattern matches all indexes. It fails only when some index failed.
func (c *Client) Sync(ctx context.Context, pattern string) (outcomes []SyncOutcome, err error) {
	start := time.Now()
	defer func() { c.obs.observe("sync", start, err) }()

	outcomes = c.syncer.Sync(ctx, pattern)
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Index, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

// Batcher returns a new document batcher. Batchers are not safe for concurrent use.
func (c *Client) Batcher() *Batcher {
	return &Batcher{
		b:   batchuc.New(c.engine, c.indexes, c.chain, c.codec, c.cfg.logger),
		obs: c.obs,
	}
}

// Documents returns the direct document service.
func (c *Client) Documents() *DocumentService {
	return &DocumentService{svc: c.docSvc, obs: c.obs}
}

// Settings returns the index settings service.
func (c *Client) Settings() *SettingsService {
	return &SettingsService{svc: c.settingsSvc, obs: c.obs}
}

// Indexes returns the index administration service.
func (c *Client) Indexes() *IndexService {
	return &IndexService{svc: c.indexSvc, obs: c.obs}
}
