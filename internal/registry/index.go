// Package registry holds the in-memory catalog of managed indexes and search groups.
//
// Both registries are filled at startup and read-mostly afterwards; reads are safe
// for concurrent use.
package registry

import (
	"fmt"
	"path"
	"sync"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
)

// Indexes maps logical index ids to their definitions and owning repositories.
type Indexes struct {
	mu           sync.RWMutex
	indexes      map[string]index.Index
	order        []string
	owners       map[string]index.Repository
	repositories []index.Repository
}

// NewIndexes creates an empty index registry.
func NewIndexes() *Indexes {
	return &Indexes{
		indexes: make(map[string]index.Index),
		owners:  make(map[string]index.Repository),
	}
}

// Register adds an index without an owning repository.
func (r *Indexes) Register(idx index.Index) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(idx)
}

func (r *Indexes) register(idx index.Index) error {
	if idx.IsZero() {
		return fmt.Errorf("register index: %w", domain.ErrInvalidIndex)
	}
	if _, exists := r.indexes[idx.ID()]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateIndex, idx.ID())
	}
	r.indexes[idx.ID()] = idx
	r.order = append(r.order, idx.ID())
	return nil
}

// Get returns the index registered under a logical id.
func (r *Indexes) Get(id string) (index.Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.indexes[id]
	if !ok {
		return index.Index{}, domain.NewIndexNotFound(id)
	}
	return idx, nil
}

// IsManaged reports whether a logical id is registered.
func (r *Indexes) IsManaged(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.indexes[id]
	return ok
}

// RepositoryFor returns the repository that declared the index.
// The repository is nil for indexes registered directly.
func (r *Indexes) RepositoryFor(id string) (index.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.indexes[id]; !ok {
		return nil, domain.NewIndexNotFound(id)
	}
	return r.owners[id], nil
}

// LoadRepository registers every index the repository declares. Loading the same
// declarations again is a no-op; the first repository to declare an index owns it.
func (r *Indexes) LoadRepository(repo index.Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := false
	for _, existing := range r.repositories {
		if existing == repo {
			known = true
			break
		}
	}
	if !known {
		r.repositories = append(r.repositories, repo)
	}

	for _, idx := range repo.Indexes() {
		if current, exists := r.indexes[idx.ID()]; exists {
			if !current.Equal(idx) {
				return fmt.Errorf("%w: %q declared by repository %q", domain.ErrDuplicateIndex, idx.ID(), repo.Name())
			}
		} else if err := r.register(idx); err != nil {
			return fmt.Errorf("repository %q: %w", repo.Name(), err)
		}
		if r.owners[idx.ID()] == nil {
			r.owners[idx.ID()] = repo
		}
	}
	return nil
}

// LoadRepositories loads each repository in order and stops at the first error.
func (r *Indexes) LoadRepositories(repos ...index.Repository) error {
	for _, repo := range repos {
		if err := r.LoadRepository(repo); err != nil {
			return err
		}
	}
	return nil
}

// Repositories returns the loaded repositories in load order.
func (r *Indexes) Repositories() []index.Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]index.Repository, len(r.repositories))
	copy(out, r.repositories)
	return out
}

// All returns every registered index in registration order.
func (r *Indexes) All() []index.Index {
	return r.Match("*")
}

// Match returns the indexes whose id matches a glob pattern ("*", "blog_*").
// An empty pattern matches everything; malformed patterns match nothing.
func (r *Indexes) Match(pattern string) []index.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]index.Index, 0, len(r.order))
	for _, id := range r.order {
		if pattern != "" && pattern != "*" {
			if ok, err := path.Match(pattern, id); err != nil || !ok {
				continue
			}
		}
		out = append(out, r.indexes[id])
	}
	return out
}

// Remove drops an index from the registry; unknown ids are ignored.
func (r *Indexes) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.indexes[id]; !ok {
		return
	}
	delete(r.indexes, id)
	delete(r.owners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered indexes.
func (r *Indexes) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.indexes)
}
