package index

import (
	"context"

	domidx "github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
)

// Remote sends requests to the search engine.
type Remote interface {
	Do(ctx context.Context, req remote.Request) (remote.Response, error)
}

// Registry is the catalog of managed indexes.
type Registry interface {
	Get(id string) (domidx.Index, error)
	Match(pattern string) []domidx.Index
	Remove(id string)
}

// Forgetter drops cached state about a removed index.
type Forgetter interface {
	Forget(id string)
}
