// Package vectorize attaches user-provided embeddings to documents before upload.
package vectorize

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/normalize"
)

// VectorsField is the document field Meilisearch reads user-provided embeddings from.
const VectorsField = "_vectors"

// Enricher embeds configured text fields and stores the vector under
// `_vectors.{embedder}`. Indexes without configured fields pass through untouched.
type Enricher struct {
	embedder domain.Embedder
	name     string
	fields   map[string][]string
	logger   *zap.Logger
}

// NewEnricher creates an enricher. name is the Meilisearch embedder name;
// fields maps logical index ids to the record fields whose text gets embedded.
func NewEnricher(e domain.Embedder, name string, fields map[string][]string, l *zap.Logger) *Enricher {
	return &Enricher{
		embedder: e,
		name:     name,
		fields:   fields,
		logger:   logger.OrNop(l),
	}
}

// Fields returns the configured text fields for an index.
func (e *Enricher) Fields(indexID string) []string {
	return e.fields[indexID]
}

// Enrich returns a copy of rec with the vector attached. The input is never mutated.
func (e *Enricher) Enrich(ctx context.Context, idx index.Index, rec normalize.Record) (normalize.Record, error) {
	fields := e.fields[idx.ID()]
	if len(fields) == 0 {
		return rec, nil
	}

	text := Text(rec, fields)
	if text == "" {
		e.logger.Debug("No text to embed", zap.String("index", idx.ID()))
		return rec, nil
	}

	res, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize %s: %w", idx.ID(), err)
	}

	out := maps.Clone(rec)
	vectors := map[string]any{}
	if existing, ok := rec[VectorsField].(map[string]any); ok {
		vectors = maps.Clone(existing)
	}
	vectors[e.name] = res.Embedding
	out[VectorsField] = vectors
	return out, nil
}

// Text joins the non-empty values of fields with newlines, in field order.
// Nested fields use dotted paths.
func Text(rec normalize.Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := lookup(rec, f)
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case []any:
			items := make([]string, 0, len(t))
			for _, it := range t {
				items = append(items, fmt.Sprint(it))
			}
			s = strings.Join(items, ", ")
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func lookup(rec map[string]any, path string) (any, bool) {
	cur := any(rec)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}
