package request

import (
	"slices"

	"github.com/kailas-cloud/meilifed/internal/domain/search/filter"
)

// Hybrid configures a hybrid keyword/semantic search.
type Hybrid struct {
	SemanticRatio float64 `json:"semanticRatio"`
	Embedder      string  `json:"embedder"`
}

// Parameters is the query descriptor sent to the remote engine.
// Unset (nil) fields are omitted from the serialized query.
type Parameters struct {
	IndexUID              string    `json:"indexUid,omitempty"`
	Query                 string    `json:"q"`
	Offset                *int      `json:"offset,omitempty"`
	Limit                 *int      `json:"limit,omitempty"`
	HitsPerPage           *int      `json:"hitsPerPage,omitempty"`
	Page                  *int      `json:"page,omitempty"`
	Filter                any       `json:"filter,omitempty"`
	Facets                []string  `json:"facets,omitempty"`
	AttributesToRetrieve  []string  `json:"attributesToRetrieve,omitempty"`
	AttributesToCrop      []string  `json:"attributesToCrop,omitempty"`
	CropLength            *int      `json:"cropLength,omitempty"`
	CropMarker            *string   `json:"cropMarker,omitempty"`
	AttributesToHighlight []string  `json:"attributesToHighlight,omitempty"`
	HighlightPreTag       *string   `json:"highlightPreTag,omitempty"`
	HighlightPostTag      *string   `json:"highlightPostTag,omitempty"`
	ShowMatchesPosition   *bool     `json:"showMatchesPosition,omitempty"`
	Sort                  []string  `json:"sort,omitempty"`
	MatchingStrategy      *string   `json:"matchingStrategy,omitempty"`
	ShowRankingScore      *bool     `json:"showRankingScore,omitempty"`
	RankingScoreThreshold *float64  `json:"rankingScoreThreshold,omitempty"`
	AttributesToSearchOn  []string  `json:"attributesToSearchOn,omitempty"`
	Distinct              *string   `json:"distinct,omitempty"`
	Hybrid                *Hybrid   `json:"hybrid,omitempty"`
	Vector                []float32 `json:"vector,omitempty"`
}

// Option sets one search parameter.
type Option func(*Parameters)

// New creates parameters for a query. Ranking scores are requested by default
// because merged group results are ordered by them.
func New(query string, opts ...Option) *Parameters {
	showScore := true
	p := &Parameters{Query: query, ShowRankingScore: &showScore}
	for _, o := range opts {
		o(p)
	}
	return p
}

// WithIndex targets a logical index.
func WithIndex(uid string) Option { return func(p *Parameters) { p.IndexUID = uid } }

// WithOffset sets the number of hits to skip.
func WithOffset(n int) Option { return func(p *Parameters) { p.Offset = &n } }

// WithLimit sets the maximum number of hits.
func WithLimit(n int) Option { return func(p *Parameters) { p.Limit = &n } }

// WithPage switches to page-based pagination.
func WithPage(page, hitsPerPage int) Option {
	return func(p *Parameters) {
		p.Page = &page
		p.HitsPerPage = &hitsPerPage
	}
}

// WithFilter sets a filter expression (string or nested string arrays).
func WithFilter(filter any) Option { return func(p *Parameters) { p.Filter = filter } }

// WithExpression sets the filter from a structured expression. An empty
// expression clears the filter.
func WithExpression(e filter.Expression) Option {
	return func(p *Parameters) {
		if e.IsEmpty() {
			p.Filter = nil
			return
		}
		p.Filter = e.String()
	}
}

// WithFacets requests facet distributions.
func WithFacets(facets ...string) Option { return func(p *Parameters) { p.Facets = facets } }

// WithSort sets sort rules such as "price:asc".
func WithSort(rules ...string) Option { return func(p *Parameters) { p.Sort = rules } }

// WithAttributesToRetrieve restricts the returned document fields.
func WithAttributesToRetrieve(attrs ...string) Option {
	return func(p *Parameters) { p.AttributesToRetrieve = attrs }
}

// WithAttributesToSearchOn restricts the searched fields.
func WithAttributesToSearchOn(attrs ...string) Option {
	return func(p *Parameters) { p.AttributesToSearchOn = attrs }
}

// WithHighlight highlights matches in the given attributes.
func WithHighlight(preTag, postTag string, attrs ...string) Option {
	return func(p *Parameters) {
		p.AttributesToHighlight = attrs
		p.HighlightPreTag = &preTag
		p.HighlightPostTag = &postTag
	}
}

// WithCrop crops the given attributes around matches.
func WithCrop(length int, marker string, attrs ...string) Option {
	return func(p *Parameters) {
		p.AttributesToCrop = attrs
		p.CropLength = &length
		p.CropMarker = &marker
	}
}

// WithMatchingStrategy sets "last", "all" or "frequency".
func WithMatchingStrategy(s string) Option { return func(p *Parameters) { p.MatchingStrategy = &s } }

// WithRankingScoreThreshold drops hits scoring below the threshold.
func WithRankingScoreThreshold(v float64) Option {
	return func(p *Parameters) { p.RankingScoreThreshold = &v }
}

// WithHybrid enables hybrid search with the named embedder.
func WithHybrid(embedder string, semanticRatio float64) Option {
	return func(p *Parameters) { p.Hybrid = &Hybrid{Embedder: embedder, SemanticRatio: semanticRatio} }
}

// Clone returns an independent deep copy.
func (p *Parameters) Clone() *Parameters {
	c := *p
	c.Offset = clonePtr(p.Offset)
	c.Limit = clonePtr(p.Limit)
	c.HitsPerPage = clonePtr(p.HitsPerPage)
	c.Page = clonePtr(p.Page)
	c.Filter = cloneFilter(p.Filter)
	c.Facets = slices.Clone(p.Facets)
	c.AttributesToRetrieve = slices.Clone(p.AttributesToRetrieve)
	c.AttributesToCrop = slices.Clone(p.AttributesToCrop)
	c.CropLength = clonePtr(p.CropLength)
	c.CropMarker = clonePtr(p.CropMarker)
	c.AttributesToHighlight = slices.Clone(p.AttributesToHighlight)
	c.HighlightPreTag = clonePtr(p.HighlightPreTag)
	c.HighlightPostTag = clonePtr(p.HighlightPostTag)
	c.ShowMatchesPosition = clonePtr(p.ShowMatchesPosition)
	c.Sort = slices.Clone(p.Sort)
	c.MatchingStrategy = clonePtr(p.MatchingStrategy)
	c.ShowRankingScore = clonePtr(p.ShowRankingScore)
	c.RankingScoreThreshold = clonePtr(p.RankingScoreThreshold)
	c.AttributesToSearchOn = slices.Clone(p.AttributesToSearchOn)
	c.Distinct = clonePtr(p.Distinct)
	c.Hybrid = clonePtr(p.Hybrid)
	c.Vector = slices.Clone(p.Vector)
	return &c
}

// ForIndex returns a clone targeting another index.
func (p *Parameters) ForIndex(uid string) *Parameters {
	c := p.Clone()
	c.IndexUID = uid
	return c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFilter(f any) any {
	switch v := f.(type) {
	case []string:
		return slices.Clone(v)
	case [][]string:
		out := make([][]string, len(v))
		for i := range v {
			out[i] = slices.Clone(v[i])
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = cloneFilter(v[i])
		}
		return out
	default:
		return f
	}
}
