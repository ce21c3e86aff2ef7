// Package settings reads and writes remote index settings.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	domset "github.com/kailas-cloud/meilifed/internal/domain/settings"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
	"github.com/kailas-cloud/meilifed/internal/logger"
)

// Service manages the settings of managed indexes.
type Service struct {
	remote   Remote
	registry Registry
	codec    affix.Codec
	logger   *zap.Logger
}

// New creates a settings service.
func New(r Remote, reg Registry, codec affix.Codec, l *zap.Logger) *Service {
	return &Service{remote: r, registry: reg, codec: codec, logger: logger.OrNop(l)}
}

// Get returns the settings currently applied on the engine.
func (s *Service) Get(ctx context.Context, indexID string) (domset.Settings, error) {
	path, err := s.path(indexID)
	if err != nil {
		return nil, err
	}
	resp, err := s.remote.Do(ctx, remote.Get(path))
	if err != nil {
		return nil, fmt.Errorf("get settings of %s: %w", indexID, err)
	}
	var out domset.Settings
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("get settings of %s: %w", indexID, err)
	}
	return out, nil
}

// Update patches the given settings; keys not present are left unchanged.
func (s *Service) Update(ctx context.Context, indexID string, values domset.Settings) (task.Ref, error) {
	path, err := s.path(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	req, err := remote.NewJSON(http.MethodPatch, path, values)
	if err != nil {
		return task.Ref{}, err
	}
	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return task.Ref{}, fmt.Errorf("update settings of %s: %w", indexID, err)
	}
	return resp.Task()
}

// Reset restores the engine defaults.
func (s *Service) Reset(ctx context.Context, indexID string) (task.Ref, error) {
	path, err := s.path(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	resp, err := s.remote.Do(ctx, remote.Delete(path))
	if err != nil {
		return task.Ref{}, fmt.Errorf("reset settings of %s: %w", indexID, err)
	}
	return resp.Task()
}

// Synchronize pushes the repository settings of an index, with overrides layered on top.
func (s *Service) Synchronize(ctx context.Context, indexID string, overrides domset.Settings) (task.Ref, error) {
	idx, err := s.registry.Get(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	base := domset.Settings{}
	repo, err := s.registry.RepositoryFor(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	if repo != nil {
		if base, err = repo.Settings(ctx, idx); err != nil {
			return task.Ref{}, fmt.Errorf("settings of %s from repository %s: %w", indexID, repo.Name(), err)
		}
	}
	return s.Update(ctx, indexID, base.With(overrides))
}

// SynchronizeAll synchronizes every managed index. Overrides are keyed by index id.
// Indexes that fail do not stop the others.
func (s *Service) SynchronizeAll(ctx context.Context, overrides map[string]domset.Settings) (map[string]task.Ref, error) {
	refs := make(map[string]task.Ref)
	var errs []error
	for _, idx := range s.registry.All() {
		ref, err := s.Synchronize(ctx, idx.ID(), overrides[idx.ID()])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs[idx.ID()] = ref
	}
	logger.FromContext(ctx, s.logger).Info("settings synchronized",
		zap.Int("indexes", len(refs)), zap.Int("failed", len(errs)))
	return refs, errors.Join(errs...)
}

func (s *Service) path(indexID string) (string, error) {
	idx, err := s.registry.Get(indexID)
	if err != nil {
		return "", err
	}
	return "/indexes/" + url.PathEscape(s.codec.Add(idx.ID())) + "/settings", nil
}
