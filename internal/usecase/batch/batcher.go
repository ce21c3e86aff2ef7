package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain"
	dombatch "github.com/kailas-cloud/meilifed/internal/domain/batch"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/search/result"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/metrics"
	"github.com/kailas-cloud/meilifed/internal/normalize"
)

// DefaultConcurrency bounds parallel per-index uploads during a flush.
const DefaultConcurrency = 4

// contextIndexKey is forced into every normalization context.
const contextIndexKey = "index"

// Option adjusts a single Add call.
type Option func(*addOptions)

type addOptions struct {
	nctx       normalize.Context
	primaryKey string
}

// WithContext adds caller normalization hints; they take precedence over the
// index's static context.
func WithContext(nctx normalize.Context) Option {
	return func(o *addOptions) { o.nctx = nctx }
}

// WithPrimaryKey overrides the index primary key for this document's batch.
func WithPrimaryKey(pk string) Option {
	return func(o *addOptions) { o.primaryKey = pk }
}

type pending struct {
	primaryKey string
	order      []string
	docs       map[string][]byte
}

// Batcher accumulates documents per index and uploads each index's batch in one request.
// Re-adding a document with the same primary key value replaces the earlier version.
//
// A Batcher is not safe for concurrent use.
type Batcher struct {
	remote      Remote
	indexes     IndexResolver
	normalizer  Normalizer
	enricher    Enricher
	codec       affix.Codec
	concurrency int
	logger      *zap.Logger

	batches map[string]*pending
	order   []string
}

// New creates an empty batcher.
func New(r Remote, indexes IndexResolver, normalizer Normalizer, codec affix.Codec, l *zap.Logger) *Batcher {
	return &Batcher{
		remote:      r,
		indexes:     indexes,
		normalizer:  normalizer,
		codec:       codec,
		concurrency: DefaultConcurrency,
		logger:      logger.OrNop(l),
		batches:     make(map[string]*pending),
	}
}

// WithConcurrency configures how many index batches are uploaded in parallel.
func (b *Batcher) WithConcurrency(n int) *Batcher {
	if n > 0 {
		b.concurrency = n
	}
	return b
}

// WithEnricher installs a post-normalization step.
func (b *Batcher) WithEnricher(e Enricher) *Batcher {
	b.enricher = e
	return b
}

// Add normalizes doc and queues it for indexID. Plain map records are queued as-is.
func (b *Batcher) Add(ctx context.Context, indexID string, doc any, opts ...Option) error {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	idx, err := b.indexes.Get(indexID)
	if err != nil {
		return err
	}

	rec, ok := doc.(map[string]any)
	if !ok {
		if b.normalizer == nil {
			return &domain.NormalizationError{Type: fmt.Sprintf("%T", doc)}
		}
		nctx := normalize.MergeContext(idx.Context(), o.nctx, normalize.Context{contextIndexKey: idx.ID()})
		rec, err = b.normalizer.Normalize(ctx, doc, nctx)
		if err != nil {
			return err
		}
	}
	if b.enricher != nil {
		if rec, err = b.enricher.Enrich(ctx, idx, rec); err != nil {
			return fmt.Errorf("enrich document for %s: %w", idx.ID(), err)
		}
	}

	pk := idx.PrimaryKey()
	if o.primaryKey != "" {
		pk = o.primaryKey
	}
	key, ok := result.Hit(rec).Key(pk)
	if !ok {
		return &domain.MissingPrimaryKeyError{Index: idx.ID(), Field: pk}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode document for %s: %w", idx.ID(), err)
	}

	batch, exists := b.batches[idx.ID()]
	if !exists {
		batch = &pending{primaryKey: pk, docs: make(map[string][]byte)}
		b.batches[idx.ID()] = batch
		b.order = append(b.order, idx.ID())
	} else if batch.primaryKey != pk {
		return fmt.Errorf("index %s: primary key %q conflicts with pending batch key %q", idx.ID(), pk, batch.primaryKey)
	}

	if _, seen := batch.docs[key]; !seen {
		batch.order = append(batch.order, key)
	}
	batch.docs[key] = data
	return nil
}

// Pending returns the number of queued documents across all indexes.
func (b *Batcher) Pending() int {
	n := 0
	for _, batch := range b.batches {
		n += len(batch.docs)
	}
	return n
}

// Flush uploads every pending batch and returns the enqueued task per index.
// Pending state is cleared whether or not uploads succeed; successful uploads
// are returned alongside the joined errors of failed ones.
func (b *Batcher) Flush(ctx context.Context) (map[string]task.Ref, error) {
	results := b.FlushReport(ctx)

	refs := make(map[string]task.Ref, len(results))
	var errs []error
	for _, r := range results {
		if r.Err() != nil {
			errs = append(errs, r.Err())
			continue
		}
		refs[r.Index()] = r.Task()
	}
	return refs, errors.Join(errs...)
}

// FlushReport is Flush with a per-index outcome, in first-add order.
func (b *Batcher) FlushReport(ctx context.Context) []dombatch.Result {
	batches, order := b.batches, b.order
	b.batches, b.order = make(map[string]*pending), nil

	if len(order) == 0 {
		return nil
	}

	results := make([]dombatch.Result, len(order))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, id := range order {
		batch := batches[id]
		g.Go(func() error {
			ref, err := b.upload(ctx, id, batch)
			if err != nil {
				metrics.BatchFlushesTotal.WithLabelValues("error").Inc()
				results[i] = dombatch.NewError(id, len(batch.order), err)
				return nil
			}
			metrics.BatchFlushesTotal.WithLabelValues("success").Inc()
			metrics.BatchDocumentsTotal.WithLabelValues(id).Add(float64(len(batch.order)))
			results[i] = dombatch.NewOK(id, len(batch.order), ref)
			return nil
		})
	}
	_ = g.Wait()

	log := logger.FromContext(ctx, b.logger)
	for _, r := range results {
		if r.Err() != nil {
			log.Warn("batch upload failed", zap.String("index", r.Index()),
				zap.Int("documents", r.Documents()), zap.Error(r.Err()))
			continue
		}
		log.Info("batch uploaded", zap.String("index", r.Index()),
			zap.Int("documents", r.Documents()), zap.Int64("task_uid", r.Task().TaskUID))
	}
	return results
}

func (b *Batcher) upload(ctx context.Context, id string, batch *pending) (task.Ref, error) {
	lines := make([][]byte, 0, len(batch.order))
	for _, key := range batch.order {
		lines = append(lines, batch.docs[key])
	}

	req := remote.Request{
		Method:      http.MethodPost,
		Path:        "/indexes/" + url.PathEscape(b.codec.Add(id)) + "/documents",
		ContentType: remote.ContentTypeNDJSON,
		Body:        bytes.Join(lines, []byte("\n")),
	}.WithQuery("primaryKey", batch.primaryKey)

	resp, err := b.remote.Do(ctx, req)
	if err != nil {
		return task.Ref{}, fmt.Errorf("upload %s: %w", id, err)
	}
	var ref task.Ref
	if err := resp.Decode(&ref); err != nil {
		return task.Ref{}, fmt.Errorf("upload %s: %w", id, err)
	}
	return ref, nil
}
