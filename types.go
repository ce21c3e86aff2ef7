package meilifed

import (
	"context"
	"fmt"

	dombatch "github.com/kailas-cloud/meilifed/internal/domain/batch"
	"github.com/kailas-cloud/meilifed/internal/domain/group"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/search/request"
	"github.com/kailas-cloud/meilifed/internal/domain/search/result"
	"github.com/kailas-cloud/meilifed/internal/domain/settings"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
	"github.com/kailas-cloud/meilifed/internal/normalize"
	documentuc "github.com/kailas-cloud/meilifed/internal/usecase/document"
	"github.com/kailas-cloud/meilifed/internal/usecase/provision"
)

type (
	// Index is the immutable definition of a managed index.
	Index = index.Index
	// Repository declares managed indexes and supplies their settings.
	Repository = index.Repository
	// RemoteIndex describes an index as it exists on the engine.
	RemoteIndex = index.Remote
	// RemoteIndexList is one page of the engine's index listing.
	RemoteIndexList = index.RemoteList

	// GroupEntry is one declared member of a search group.
	GroupEntry = group.Entry

	// Parameters are the search parameters of one query.
	Parameters = request.Parameters
	// SearchOption customizes Parameters.
	SearchOption = request.Option
	// IndexResult is the reply of a single-index search.
	IndexResult = result.IndexResult
	// MultiSearchResult holds one IndexResult per query.
	MultiSearchResult = result.MultiSearch
	// Hit is one search hit.
	Hit = result.Hit

	// Settings are engine index settings.
	Settings = settings.Settings
	// TaskRef is the summary of an enqueued engine task.
	TaskRef = task.Ref

	// Record is a document ready for indexing.
	Record = normalize.Record
	// Context carries layered hints for normalizers.
	Context = normalize.Context
	// Normalizer converts application objects into records.
	Normalizer = normalize.Normalizer
	// Documenter is implemented by objects that serialize themselves.
	Documenter = normalize.Documenter

	// FetchQuery selects documents for DocumentService.Fetch.
	FetchQuery = documentuc.FetchQuery
	// DocumentPage is one page of fetched documents.
	DocumentPage = documentuc.Page

	// BatchResult reports the upload of one index batch.
	BatchResult = dombatch.Result

	// EnsureOptions control a single Ensure call.
	EnsureOptions = provision.Options
	// EnsureResult reports how an index was made ready.
	EnsureResult = provision.Result
	// SyncOutcome is the result of syncing one index.
	SyncOutcome = provision.Outcome
	// State is a step of the provisioning state machine.
	State = provision.State
)

// Reserved document fields set on merged hits.
const (
	FieldIndex        = result.FieldIndex
	FieldRankingScore = result.FieldRankingScore
)

// NewIndex defines a managed index. ctx holds static normalization hints.
func NewIndex(id, primaryKey string, ctx map[string]any) (Index, error) {
	return index.New(id, primaryKey, ctx)
}

// MustIndex is like NewIndex but panics on an invalid definition.
func MustIndex(id, primaryKey string, ctx map[string]any) Index {
	return index.MustNew(id, primaryKey, ctx)
}

// Member declares a group member with an explicit weight.
func Member(indexID string, weight float64) GroupEntry {
	return GroupEntry{Index: indexID, Weight: group.Weight(weight)}
}

// Query builds search parameters for q.
func Query(q string, opts ...SearchOption) *Parameters { return request.New(q, opts...) }

// Search options.
func Offset(n int) SearchOption                    { return request.WithOffset(n) }
func Limit(n int) SearchOption                     { return request.WithLimit(n) }
func Page(page, hitsPerPage int) SearchOption      { return request.WithPage(page, hitsPerPage) }
func Filter(filter any) SearchOption               { return request.WithFilter(filter) }
func Facets(facets ...string) SearchOption         { return request.WithFacets(facets...) }
func Sort(rules ...string) SearchOption            { return request.WithSort(rules...) }
func MatchingStrategy(s string) SearchOption       { return request.WithMatchingStrategy(s) }
func RankingScoreThreshold(v float64) SearchOption { return request.WithRankingScoreThreshold(v) }
func AttributesToRetrieve(attrs ...string) SearchOption {
	return request.WithAttributesToRetrieve(attrs...)
}
func Hybrid(embedder string, semanticRatio float64) SearchOption {
	return request.WithHybrid(embedder, semanticRatio)
}

// On targets the query at a logical index id (used by MultiSearch).
func On(indexID string) SearchOption { return request.WithIndex(indexID) }

// NormalizeFunc adapts a typed conversion function into a Normalizer for T.
func NormalizeFunc[T any](fn func(ctx context.Context, v T, nctx Context) (Record, error)) Normalizer {
	return normalize.For(normalize.Func[T](fn))
}

// staticRepository is a fixed list of indexes with per-index settings.
type staticRepository struct {
	name     string
	settings map[string]Settings
	indexes  []Index
}

// StaticRepository declares indexes in code. settings is keyed by index id;
// the "*" entry applies to every index and is overridden per index.
func StaticRepository(name string, settings map[string]Settings, indexes ...Index) Repository {
	return &staticRepository{name: name, settings: settings, indexes: indexes}
}

func (r *staticRepository) Name() string { return r.name }

func (r *staticRepository) Indexes() []Index {
	out := make([]Index, len(r.indexes))
	copy(out, r.indexes)
	return out
}

func (r *staticRepository) Settings(_ context.Context, idx Index) (Settings, error) {
	for _, known := range r.indexes {
		if known.ID() == idx.ID() {
			return r.settings["*"].With(r.settings[idx.ID()]), nil
		}
	}
	return nil, fmt.Errorf("repository %s: %w", r.name, ErrIndexNotFound)
}
