package vectorize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/normalize"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	texts []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.vec, TotalTokens: 3}, nil
}

var movies = index.MustNew("movies", "id", nil)

func TestEnrich_AttachesVector(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{0.1, 0.2}}
	e := NewEnricher(emb, "default", map[string][]string{"movies": {"title", "overview"}}, zap.NewNop())

	rec := normalize.Record{"id": 1, "title": "Heat", "overview": "A heist."}
	out, err := e.Enrich(context.Background(), movies, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"Heat\nA heist."}, emb.texts)
	assert.Equal(t, map[string]any{"default": []float32{0.1, 0.2}}, out[VectorsField])
	assert.NotContains(t, rec, VectorsField, "input must not be mutated")
}

func TestEnrich_KeepsOtherEmbedders(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1}}
	e := NewEnricher(emb, "text", map[string][]string{"movies": {"title"}}, nil)

	rec := normalize.Record{"id": 1, "title": "Heat", VectorsField: map[string]any{"image": []float32{9}}}
	out, err := e.Enrich(context.Background(), movies, rec)
	require.NoError(t, err)

	vectors := out[VectorsField].(map[string]any)
	assert.Len(t, vectors, 2)
	assert.Len(t, rec[VectorsField].(map[string]any), 1)
}

func TestEnrich_UnconfiguredIndexPassesThrough(t *testing.T) {
	emb := &stubEmbedder{}
	e := NewEnricher(emb, "default", map[string][]string{"books": {"title"}}, nil)

	rec := normalize.Record{"id": 1, "title": "Heat"}
	out, err := e.Enrich(context.Background(), movies, rec)
	require.NoError(t, err)
	assert.Equal(t, rec, out)
	assert.Empty(t, emb.texts)
}

func TestEnrich_EmptyTextSkipsEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	e := NewEnricher(emb, "default", map[string][]string{"movies": {"title"}}, nil)

	out, err := e.Enrich(context.Background(), movies, normalize.Record{"id": 1, "title": "  "})
	require.NoError(t, err)
	assert.NotContains(t, out, VectorsField)
	assert.Empty(t, emb.texts)
}

func TestEnrich_EmbedderError(t *testing.T) {
	emb := &stubEmbedder{err: domain.ErrEmbeddingProviderError}
	e := NewEnricher(emb, "default", map[string][]string{"movies": {"title"}}, nil)

	_, err := e.Enrich(context.Background(), movies, normalize.Record{"id": 1, "title": "Heat"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingProviderError))
}

func TestText(t *testing.T) {
	rec := normalize.Record{
		"title":  "Heat",
		"year":   1995,
		"genres": []any{"crime", "drama"},
		"meta":   map[string]any{"tagline": "A Los Angeles crime saga"},
		"empty":  nil,
	}
	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{"single", []string{"title"}, "Heat"},
		{"number", []string{"year"}, "1995"},
		{"list", []string{"genres"}, "crime, drama"},
		{"nested", []string{"meta.tagline"}, "A Los Angeles crime saga"},
		{"missing and nil skipped", []string{"nope", "empty", "title"}, "Heat"},
		{"ordered", []string{"year", "title"}, "1995\nHeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(rec, tt.fields))
		})
	}
}
