package index

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/affix"
	domidx "github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
	"github.com/kailas-cloud/meilifed/internal/logger"
)

// Configured pairs a managed index with its remote uid.
type Configured struct {
	Index     domidx.Index
	RemoteUID string
}

// Service administers managed indexes on the engine.
type Service struct {
	remote    Remote
	registry  Registry
	codec     affix.Codec
	forgetter Forgetter
	logger    *zap.Logger
}

// New creates an index administration service.
func New(r Remote, reg Registry, codec affix.Codec, l *zap.Logger) *Service {
	return &Service{remote: r, registry: reg, codec: codec, logger: logger.OrNop(l)}
}

// WithForgetter installs a cache to invalidate when an index is dropped.
func (s *Service) WithForgetter(f Forgetter) *Service {
	s.forgetter = f
	return s
}

// Configured lists the managed indexes whose id matches a glob pattern.
func (s *Service) Configured(pattern string) []Configured {
	matched := s.registry.Match(pattern)
	out := make([]Configured, 0, len(matched))
	for _, idx := range matched {
		out = append(out, Configured{Index: idx, RemoteUID: s.codec.Add(idx.ID())})
	}
	return out
}

// IsManaged reports whether id names a managed index.
func (s *Service) IsManaged(id string) bool {
	_, err := s.registry.Get(id)
	return err == nil
}

// ListRemote lists indexes present on the engine, managed or not.
func (s *Service) ListRemote(ctx context.Context, offset, limit int) (domidx.RemoteList, error) {
	req := remote.Get("/indexes")
	if offset > 0 {
		req = req.WithQuery("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		req = req.WithQuery("limit", strconv.Itoa(limit))
	}
	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return domidx.RemoteList{}, fmt.Errorf("list indexes: %w", err)
	}
	var out domidx.RemoteList
	if err := resp.Decode(&out); err != nil {
		return domidx.RemoteList{}, fmt.Errorf("list indexes: %w", err)
	}
	return out, nil
}

// Get returns the engine's view of a managed index.
func (s *Service) Get(ctx context.Context, id string) (domidx.Remote, error) {
	path, err := s.path(id)
	if err != nil {
		return domidx.Remote{}, err
	}
	resp, err := s.remote.Do(ctx, remote.Get(path))
	if err != nil {
		return domidx.Remote{}, fmt.Errorf("get index %s: %w", id, err)
	}
	var out domidx.Remote
	if err := resp.Decode(&out); err != nil {
		return domidx.Remote{}, fmt.Errorf("get index %s: %w", id, err)
	}
	return out, nil
}

// Create enqueues creation of a managed index with its declared primary key.
func (s *Service) Create(ctx context.Context, id string) (task.Ref, error) {
	idx, err := s.registry.Get(id)
	if err != nil {
		return task.Ref{}, err
	}
	req, err := remote.NewJSON(http.MethodPost, "/indexes", map[string]string{
		"uid":        s.codec.Add(idx.ID()),
		"primaryKey": idx.PrimaryKey(),
	})
	if err != nil {
		return task.Ref{}, err
	}
	return s.enqueue(ctx, req)
}

// Update changes the primary key of a managed index on the engine.
func (s *Service) Update(ctx context.Context, id, primaryKey string) (task.Ref, error) {
	if primaryKey == "" {
		return task.Ref{}, errors.New("primary key is required")
	}
	path, err := s.path(id)
	if err != nil {
		return task.Ref{}, err
	}
	req, err := remote.NewJSON(http.MethodPatch, path, map[string]string{"primaryKey": primaryKey})
	if err != nil {
		return task.Ref{}, err
	}
	return s.enqueue(ctx, req)
}

// Drop deletes a managed index on the engine and removes it from the registry.
func (s *Service) Drop(ctx context.Context, id string) (task.Ref, error) {
	path, err := s.path(id)
	if err != nil {
		return task.Ref{}, err
	}
	ref, err := s.enqueue(ctx, remote.Delete(path))
	if err != nil {
		return task.Ref{}, err
	}
	s.registry.Remove(id)
	if s.forgetter != nil {
		s.forgetter.Forget(id)
	}
	logger.FromContext(ctx, s.logger).Info("index dropped", zap.String("index", id), zap.Int64("task_uid", ref.TaskUID))
	return ref, nil
}

// DeleteRemote deletes an engine index by its raw uid, without touching the registry.
func (s *Service) DeleteRemote(ctx context.Context, uid string) (task.Ref, error) {
	if uid == "" {
		return task.Ref{}, errors.New("index uid is required")
	}
	return s.enqueue(ctx, remote.Delete("/indexes/"+url.PathEscape(uid)))
}

func (s *Service) enqueue(ctx context.Context, req remote.Request) (task.Ref, error) {
	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return task.Ref{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	return resp.Task()
}

func (s *Service) path(id string) (string, error) {
	idx, err := s.registry.Get(id)
	if err != nil {
		return "", err
	}
	return "/indexes/" + url.PathEscape(s.codec.Add(idx.ID())), nil
}
