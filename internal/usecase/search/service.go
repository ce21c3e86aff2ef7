package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/search/request"
	"github.com/kailas-cloud/meilifed/internal/domain/search/result"
	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/metrics"
)

// Service routes single-index, multi-index and group searches to the engine.
type Service struct {
	remote  Remote
	indexes IndexResolver
	groups  GroupResolver
	codec   affix.Codec
	merger  *Merger
	logger  *zap.Logger
}

// New creates a search service.
func New(r Remote, indexes IndexResolver, groups GroupResolver, codec affix.Codec, l *zap.Logger) *Service {
	return &Service{
		remote:  r,
		indexes: indexes,
		groups:  groups,
		codec:   codec,
		merger:  NewMerger(indexes, groups, codec),
		logger:  logger.OrNop(l),
	}
}

// Search queries one managed index. The index is taken from params.IndexUID.
func (s *Service) Search(ctx context.Context, params *request.Parameters) (result.IndexResult, error) {
	if params == nil {
		return result.IndexResult{}, errors.New("search parameters are required")
	}
	idx, err := s.indexes.Get(params.IndexUID)
	if err != nil {
		return result.IndexResult{}, err
	}

	remoteUID := s.codec.Add(idx.ID())
	body := params.ForIndex("")
	req, err := remote.NewJSON(http.MethodPost, "/indexes/"+url.PathEscape(remoteUID)+"/search", body)
	if err != nil {
		return result.IndexResult{}, err
	}

	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return result.IndexResult{}, fmt.Errorf("search %s: %w", idx.ID(), err)
	}
	var out result.IndexResult
	if err := resp.Decode(&out); err != nil {
		return result.IndexResult{}, fmt.Errorf("search %s: %w", idx.ID(), err)
	}
	out.IndexUID = remoteUID
	return out, nil
}

// MultiSearch sends all queries in one request. Every entry is validated before
// anything is sent; result blocks carry remote (affixed) index uids.
func (s *Service) MultiSearch(ctx context.Context, queries []*request.Parameters) (result.MultiSearch, error) {
	body := struct {
		Queries []*request.Parameters `json:"queries"`
	}{Queries: make([]*request.Parameters, 0, len(queries))}

	for i, q := range queries {
		if q == nil {
			return result.MultiSearch{}, fmt.Errorf("query %d: search parameters are required", i)
		}
		idx, err := s.indexes.Get(q.IndexUID)
		if err != nil {
			return result.MultiSearch{}, fmt.Errorf("query %d: %w", i, err)
		}
		body.Queries = append(body.Queries, q.ForIndex(s.codec.Add(idx.ID())))
	}

	req, err := remote.NewJSON(http.MethodPost, "/multi-search", body)
	if err != nil {
		return result.MultiSearch{}, err
	}
	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return result.MultiSearch{}, fmt.Errorf("multi-search: %w", err)
	}

	var out result.MultiSearch
	if err := resp.Decode(&out); err != nil {
		return result.MultiSearch{}, fmt.Errorf("multi-search: %w", err)
	}
	logger.FromContext(ctx, s.logger).Debug("multi-search",
		zap.Int("queries", len(body.Queries)), zap.Int("results", len(out.Results)))
	return out, nil
}

// GroupSearch runs params once per group member. Member queries differ only in index uid.
func (s *Service) GroupSearch(ctx context.Context, groupName string, params *request.Parameters) (result.MultiSearch, error) {
	cfg, err := s.groups.Resolve(groupName)
	if err != nil {
		return result.MultiSearch{}, err
	}
	if params == nil {
		params = request.New("")
	}

	queries := make([]*request.Parameters, 0, len(cfg.Members()))
	for _, id := range cfg.Indexes() {
		queries = append(queries, params.ForIndex(id))
	}
	return s.MultiSearch(ctx, queries)
}

// GroupSearchMerged runs a group search and merges the blocks into one weighted,
// score-ordered hit list.
func (s *Service) GroupSearchMerged(
	ctx context.Context, groupName string, params *request.Parameters, uniqueByPrimaryKey bool,
) ([]result.Hit, error) {
	res, err := s.GroupSearch(ctx, groupName, params)
	if err != nil {
		return nil, err
	}
	hits, err := s.merger.Merge(res, groupName, uniqueByPrimaryKey)
	if err != nil {
		return nil, err
	}
	metrics.MergedHitsTotal.WithLabelValues(groupName).Add(float64(len(hits)))
	return hits, nil
}
