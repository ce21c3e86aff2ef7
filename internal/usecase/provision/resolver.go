package provision

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/meilifed/internal/domain/index"
)

// DefaultResolverSize bounds the number of cached remote handles.
const DefaultResolverSize = 256

// Resolver lazily ensures managed indexes on first access and caches their remote handles.
type Resolver struct {
	provisioner *Provisioner
	registry    Registry
	opts        Options
	cache       *lru.Cache[string, index.Remote]
	group       singleflight.Group
}

// NewResolver creates a resolver holding up to size handles.
func NewResolver(p *Provisioner, reg Registry, size int, opts Options) (*Resolver, error) {
	if size <= 0 {
		size = DefaultResolverSize
	}
	cache, err := lru.New[string, index.Remote](size)
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}
	return &Resolver{provisioner: p, registry: reg, opts: opts, cache: cache}, nil
}

// Resolve returns the remote handle of a managed index, ensuring it exists first.
// Concurrent first calls for the same id share one Ensure. The shared Ensure is
// detached from the cancellation of whichever caller started it and bounded by
// twice the task timeout; each caller still stops waiting when its own ctx ends.
func (r *Resolver) Resolve(ctx context.Context, id string) (index.Remote, error) {
	if h, ok := r.cache.Get(id); ok {
		return h, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (any, error) {
		if h, ok := r.cache.Get(id); ok {
			return h, nil
		}
		idx, err := r.registry.Get(id)
		if err != nil {
			return index.Remote{}, err
		}
		ectx, cancel := context.WithTimeout(shared, 2*r.taskTimeout())
		defer cancel()
		res, err := r.provisioner.Ensure(ectx, idx, r.opts)
		if err != nil {
			return index.Remote{}, err
		}
		r.cache.Add(id, res.Remote)
		return res.Remote, nil
	})

	select {
	case <-ctx.Done():
		return index.Remote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return index.Remote{}, res.Err
		}
		return res.Val.(index.Remote), nil
	}
}

func (r *Resolver) taskTimeout() time.Duration {
	if r.opts.TaskTimeout > 0 {
		return r.opts.TaskTimeout
	}
	if r.provisioner.defaults.TaskTimeout > 0 {
		return r.provisioner.defaults.TaskTimeout
	}
	return DefaultTaskTimeout
}

// Forget drops the cached handle, e.g. after the index was deleted.
func (r *Resolver) Forget(id string) {
	r.cache.Remove(id)
}

// Len returns the number of cached handles.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
