package batch

import (
	"context"

	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/normalize"
)

// Remote sends requests to the search engine.
type Remote interface {
	Do(ctx context.Context, req remote.Request) (remote.Response, error)
}

// IndexResolver looks up managed indexes by logical id.
type IndexResolver interface {
	Get(id string) (index.Index, error)
}

// Normalizer converts application objects into records.
type Normalizer interface {
	Normalize(ctx context.Context, obj any, nctx normalize.Context) (normalize.Record, error)
}

// Enricher post-processes a record before it is queued (e.g. attaching vectors).
type Enricher interface {
	Enrich(ctx context.Context, idx index.Index, rec normalize.Record) (normalize.Record, error)
}
