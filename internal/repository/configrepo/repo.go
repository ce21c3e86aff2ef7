// Package configrepo builds index repositories from configuration.
package configrepo

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/meilifed/internal/config"
	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/settings"
)

// Repository is an index.Repository declared in a config file.
type Repository struct {
	name     string
	indexes  []index.Index
	settings map[string]settings.Settings
}

var _ index.Repository = (*Repository)(nil)

// New builds a repository. Repository-wide settings sit under each index's own settings.
func New(cfg config.RepositoryConfig) (*Repository, error) {
	r := &Repository{
		name:     cfg.Name,
		indexes:  make([]index.Index, 0, len(cfg.Indexes)),
		settings: make(map[string]settings.Settings, len(cfg.Indexes)),
	}
	shared := settings.Settings(cfg.Settings)
	for _, ic := range cfg.Indexes {
		idx, err := index.New(ic.ID, ic.PrimaryKey, ic.Context)
		if err != nil {
			return nil, fmt.Errorf("repository %s: %w", cfg.Name, err)
		}
		r.indexes = append(r.indexes, idx)
		r.settings[ic.ID] = shared.With(settings.Settings(ic.Settings))
	}
	return r, nil
}

// FromConfig builds one repository per configured entry.
func FromConfig(cfgs []config.RepositoryConfig) ([]index.Repository, error) {
	out := make([]index.Repository, 0, len(cfgs))
	for _, c := range cfgs {
		r, err := New(c)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Name returns the repository name.
func (r *Repository) Name() string { return r.name }

// Indexes returns the declared indexes in configuration order.
func (r *Repository) Indexes() []index.Index {
	out := make([]index.Index, len(r.indexes))
	copy(out, r.indexes)
	return out
}

// Settings returns the merged settings for one of the repository's indexes.
func (r *Repository) Settings(_ context.Context, idx index.Index) (settings.Settings, error) {
	s, ok := r.settings[idx.ID()]
	if !ok {
		return nil, domain.NewIndexNotFound(idx.ID())
	}
	return s.With(), nil
}
