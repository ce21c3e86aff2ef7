package provision

import (
	"context"

	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
)

// Remote sends requests to the search engine.
type Remote interface {
	Do(ctx context.Context, req remote.Request) (remote.Response, error)
}

// Registry exposes managed indexes and the repositories that declared them.
type Registry interface {
	Get(id string) (index.Index, error)
	RepositoryFor(id string) (index.Repository, error)
	Match(pattern string) []index.Index
}
