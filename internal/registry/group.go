package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/group"
)

// Groups maps group names to their weighted member indexes.
type Groups struct {
	mu     sync.RWMutex
	groups map[string]group.Config
}

// NewGroups creates an empty group registry.
func NewGroups() *Groups {
	return &Groups{groups: make(map[string]group.Config)}
}

// Register adds a group; names must be unique.
func (r *Groups) Register(cfg group.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.Name() == "" {
		return fmt.Errorf("register group: %w", domain.ErrInvalidGroup)
	}
	if _, exists := r.groups[cfg.Name()]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateGroup, cfg.Name())
	}
	r.groups[cfg.Name()] = cfg
	return nil
}

// Declare builds a group from raw entries and registers it.
func (r *Groups) Declare(name string, entries []group.Entry) error {
	cfg, err := group.New(name, entries)
	if err != nil {
		return err
	}
	return r.Register(cfg)
}

// Resolve returns the group registered under name.
func (r *Groups) Resolve(name string) (group.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.groups[name]
	if !ok {
		return group.Config{}, fmt.Errorf("%w: %q", domain.ErrGroupNotFound, name)
	}
	return cfg, nil
}

// All returns every group sorted by name.
func (r *Groups) All() []group.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]group.Config, 0, len(r.groups))
	for _, cfg := range r.groups {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
