package meilifed

import (
	"context"
	"time"

	batchuc "github.com/kailas-cloud/meilifed/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/meilifed/internal/usecase/document"
	indexuc "github.com/kailas-cloud/meilifed/internal/usecase/index"
	settingsuc "github.com/kailas-cloud/meilifed/internal/usecase/settings"
)

// AddOption customizes one Batcher.Add call.
type AddOption = batchuc.Option

// WithPrimaryKey overrides the index primary key for one added document.
func WithPrimaryKey(field string) AddOption { return batchuc.WithPrimaryKey(field) }

// WithNormalizeContext passes caller hints to the normalizer; they take
// precedence over the index's static context.
func WithNormalizeContext(nctx Context) AddOption { return batchuc.WithContext(nctx) }

// Batcher accumulates documents per index and uploads them as NDJSON on Flush.
type Batcher struct {
	b   *batchuc.Batcher
	obs *observer
}

// Add normalizes doc and queues it. A later document with the same primary key
// replaces the earlier one.
func (b *Batcher) Add(ctx context.Context, indexID string, doc any, opts ...AddOption) error {
	return b.b.Add(ctx, indexID, doc, opts...)
}

// Pending returns the number of queued documents.
func (b *Batcher) Pending() int { return b.b.Pending() }

// Flush uploads every pending batch. Pending state is cleared even on failure.
func (b *Batcher) Flush(ctx context.Context) (refs map[string]TaskRef, err error) {
	start := time.Now()
	defer func() { b.obs.observe("batch_flush", start, err) }()

	return b.b.Flush(ctx)
}

// FlushReport is Flush with a per-index outcome.
func (b *Batcher) FlushReport(ctx context.Context) []BatchResult {
	return b.b.FlushReport(ctx)
}

// DocumentService performs direct document operations on managed indexes.
type DocumentService struct {
	svc *documentuc.Service
	obs *observer
}

// Add upserts documents, replacing existing ones. An empty primaryKey uses the index's own.
func (s *DocumentService) Add(ctx context.Context, indexID string, docs []Record, primaryKey string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_add", start, err) }()

	return s.svc.Add(ctx, indexID, docs, primaryKey)
}

// Update upserts documents, merging fields into existing ones.
func (s *DocumentService) Update(ctx context.Context, indexID string, docs []Record, primaryKey string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_update", start, err) }()

	return s.svc.Update(ctx, indexID, docs, primaryKey)
}

// Get returns one document, optionally restricted to fields.
func (s *DocumentService) Get(ctx context.Context, indexID, docID string, fields ...string) (doc Record, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_get", start, err) }()

	return s.svc.Get(ctx, indexID, docID, fields...)
}

// Fetch returns a page of documents matching q.
func (s *DocumentService) Fetch(ctx context.Context, indexID string, q FetchQuery) (page DocumentPage, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_fetch", start, err) }()

	return s.svc.Fetch(ctx, indexID, q)
}

// Delete removes one document.
func (s *DocumentService) Delete(ctx context.Context, indexID, docID string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_delete", start, err) }()

	return s.svc.Delete(ctx, indexID, docID)
}

// DeleteBatch removes documents by id.
func (s *DocumentService) DeleteBatch(ctx context.Context, indexID string, ids []string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_delete_batch", start, err) }()

	return s.svc.DeleteBatch(ctx, indexID, ids)
}

// Clear removes every document of the index.
func (s *DocumentService) Clear(ctx context.Context, indexID string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("documents_clear", start, err) }()

	return s.svc.Clear(ctx, indexID)
}

// SettingsService reads and writes index settings.
type SettingsService struct {
	svc *settingsuc.Service
	obs *observer
}

// Get returns the engine settings of a managed index.
func (s *SettingsService) Get(ctx context.Context, indexID string) (Settings, error) {
	return s.svc.Get(ctx, indexID)
}

// Update patches settings.
func (s *SettingsService) Update(ctx context.Context, indexID string, values Settings) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("settings_update", start, err) }()

	return s.svc.Update(ctx, indexID, values)
}

// Reset restores the engine defaults.
func (s *SettingsService) Reset(ctx context.Context, indexID string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("settings_reset", start, err) }()

	return s.svc.Reset(ctx, indexID)
}

// Synchronize pushes the repository settings of the index with overrides on top.
func (s *SettingsService) Synchronize(ctx context.Context, indexID string, overrides Settings) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("settings_synchronize", start, err) }()

	return s.svc.Synchronize(ctx, indexID, overrides)
}

// SynchronizeAll synchronizes every managed index. overrides is keyed by index id.
func (s *SettingsService) SynchronizeAll(ctx context.Context, overrides map[string]Settings) (refs map[string]TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("settings_synchronize_all", start, err) }()

	return s.svc.SynchronizeAll(ctx, overrides)
}

// ConfiguredIndex pairs a managed index with its remote uid.
type ConfiguredIndex = indexuc.Configured

// IndexService administers managed indexes on the engine.
type IndexService struct {
	svc *indexuc.Service
	obs *observer
}

// Configured lists managed indexes whose id matches a glob pattern; "" matches all.
func (s *IndexService) Configured(pattern string) []ConfiguredIndex {
	return s.svc.Configured(pattern)
}

// ListRemote lists the indexes present on the engine, managed or not.
func (s *IndexService) ListRemote(ctx context.Context, offset, limit int) (RemoteIndexList, error) {
	return s.svc.ListRemote(ctx, offset, limit)
}

// Get returns the engine's view of a managed index.
func (s *IndexService) Get(ctx context.Context, indexID string) (RemoteIndex, error) {
	return s.svc.Get(ctx, indexID)
}

// Create enqueues creation of a managed index.
func (s *IndexService) Create(ctx context.Context, indexID string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("index_create", start, err) }()

	return s.svc.Create(ctx, indexID)
}

// Update changes the primary key of a managed index.
func (s *IndexService) Update(ctx context.Context, indexID, primaryKey string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("index_update", start, err) }()

	return s.svc.Update(ctx, indexID, primaryKey)
}

// Drop deletes a managed index on the engine and unregisters it.
func (s *IndexService) Drop(ctx context.Context, indexID string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("index_drop", start, err) }()

	return s.svc.Drop(ctx, indexID)
}

// DeleteRemote deletes an engine index by raw uid.
func (s *IndexService) DeleteRemote(ctx context.Context, uid string) (ref TaskRef, err error) {
	start := time.Now()
	defer func() { s.obs.observe("index_delete_remote", start, err) }()

	return s.svc.DeleteRemote(ctx, uid)
}
