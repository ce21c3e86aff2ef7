package document

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
)

// Record is one stored document.
type Record = map[string]any

// FetchQuery selects documents for Fetch.
type FetchQuery struct {
	Filter any      `json:"filter,omitempty"`
	Fields []string `json:"fields,omitempty"`
	Offset int      `json:"offset,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// Page is one page of fetched documents.
type Page struct {
	Results []Record `json:"results"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	Total   int      `json:"total"`
}

// Service performs direct document operations on managed indexes.
type Service struct {
	remote          Remote
	indexes         IndexResolver
	codec           affix.Codec
	defaultPageSize int
	maxPageSize     int
}

// New creates a document service.
func New(r Remote, indexes IndexResolver, codec affix.Codec) *Service {
	return &Service{
		remote:          r,
		indexes:         indexes,
		codec:           codec,
		defaultPageSize: 20,
		maxPageSize:     1000,
	}
}

// WithPagination configures page size limits for Fetch.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Add replaces documents by primary key. An empty primaryKey uses the index's own.
func (s *Service) Add(ctx context.Context, indexID string, docs []Record, primaryKey string) (task.Ref, error) {
	return s.write(ctx, http.MethodPost, indexID, docs, primaryKey)
}

// Update merges documents into existing ones by primary key.
func (s *Service) Update(ctx context.Context, indexID string, docs []Record, primaryKey string) (task.Ref, error) {
	return s.write(ctx, http.MethodPut, indexID, docs, primaryKey)
}

func (s *Service) write(ctx context.Context, method, indexID string, docs []Record, primaryKey string) (task.Ref, error) {
	idx, err := s.indexes.Get(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	if len(docs) == 0 {
		return task.Ref{}, errors.New("at least one document is required")
	}
	if primaryKey == "" {
		primaryKey = idx.PrimaryKey()
	}

	req, err := remote.NewJSON(method, s.path(idx, "documents"), docs)
	if err != nil {
		return task.Ref{}, err
	}
	return s.enqueue(ctx, req.WithQuery("primaryKey", primaryKey))
}

// Get returns one document, optionally restricted to fields.
func (s *Service) Get(ctx context.Context, indexID, docID string, fields ...string) (Record, error) {
	idx, err := s.indexes.Get(indexID)
	if err != nil {
		return nil, err
	}
	req := remote.Get(s.path(idx, "documents", docID))
	if len(fields) > 0 {
		req = req.WithQuery("fields", strings.Join(fields, ","))
	}

	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", indexID, docID, err)
	}
	var doc Record
	if err := resp.Decode(&doc); err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", indexID, docID, err)
	}
	return doc, nil
}

// Fetch returns a page of documents matching q.
func (s *Service) Fetch(ctx context.Context, indexID string, q FetchQuery) (Page, error) {
	idx, err := s.indexes.Get(indexID)
	if err != nil {
		return Page{}, err
	}
	if q.Limit <= 0 {
		q.Limit = s.defaultPageSize
	}
	if q.Limit > s.maxPageSize {
		q.Limit = s.maxPageSize
	}

	req, err := remote.NewJSON(http.MethodPost, s.path(idx, "documents", "fetch"), q)
	if err != nil {
		return Page{}, err
	}
	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch documents of %s: %w", indexID, err)
	}
	var page Page
	if err := resp.Decode(&page); err != nil {
		return Page{}, fmt.Errorf("fetch documents of %s: %w", indexID, err)
	}
	return page, nil
}

// Delete removes one document.
func (s *Service) Delete(ctx context.Context, indexID, docID string) (task.Ref, error) {
	idx, err := s.indexes.Get(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	return s.enqueue(ctx, remote.Delete(s.path(idx, "documents", docID)))
}

// DeleteBatch removes documents by primary key value.
func (s *Service) DeleteBatch(ctx context.Context, indexID string, ids []string) (task.Ref, error) {
	idx, err := s.indexes.Get(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	if len(ids) == 0 {
		return task.Ref{}, errors.New("at least one document id is required")
	}
	req, err := remote.NewJSON(http.MethodPost, s.path(idx, "documents", "delete-batch"), ids)
	if err != nil {
		return task.Ref{}, err
	}
	return s.enqueue(ctx, req)
}

// Clear removes every document of the index.
func (s *Service) Clear(ctx context.Context, indexID string) (task.Ref, error) {
	idx, err := s.indexes.Get(indexID)
	if err != nil {
		return task.Ref{}, err
	}
	return s.enqueue(ctx, remote.Delete(s.path(idx, "documents")))
}

func (s *Service) enqueue(ctx context.Context, req remote.Request) (task.Ref, error) {
	resp, err := s.remote.Do(ctx, req)
	if err != nil {
		return task.Ref{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	return resp.Task()
}

func (s *Service) path(idx index.Index, segments ...string) string {
	var b strings.Builder
	b.WriteString("/indexes/")
	b.WriteString(url.PathEscape(s.codec.Add(idx.ID())))
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}
