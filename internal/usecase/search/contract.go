package search

import (
	"context"

	"github.com/kailas-cloud/meilifed/internal/domain/group"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
)

// Remote sends requests to the search engine.
type Remote interface {
	Do(ctx context.Context, req remote.Request) (remote.Response, error)
}

// IndexResolver looks up managed indexes by logical id.
type IndexResolver interface {
	Get(id string) (index.Index, error)
}

// GroupResolver looks up search groups by name.
type GroupResolver interface {
	Resolve(name string) (group.Config, error)
}
