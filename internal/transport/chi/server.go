// Package chi exposes the orchestration layer over HTTP.
package chi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/group"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	domremote "github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/search/request"
	domset "github.com/kailas-cloud/meilifed/internal/domain/settings"
	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/metrics"
	batchuc "github.com/kailas-cloud/meilifed/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/meilifed/internal/usecase/document"
	healthuc "github.com/kailas-cloud/meilifed/internal/usecase/health"
	indexuc "github.com/kailas-cloud/meilifed/internal/usecase/index"
	"github.com/kailas-cloud/meilifed/internal/usecase/provision"
	searchuc "github.com/kailas-cloud/meilifed/internal/usecase/search"
	settingsuc "github.com/kailas-cloud/meilifed/internal/usecase/settings"
)

// maxUploadDocuments caps the documents accepted by one upload request.
const maxUploadDocuments = 10000

// ErrorCode is the machine-readable error code of an API error response.
type ErrorCode string

// API error codes.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeForbidden          ErrorCode = "forbidden"
	ErrorCodeIndexNotFound      ErrorCode = "index_not_found"
	ErrorCodeGroupNotFound      ErrorCode = "group_not_found"
	ErrorCodeMissingPrimaryKey  ErrorCode = "missing_primary_key"
	ErrorCodeNormalization      ErrorCode = "normalization_failed"
	ErrorCodeProvisioningFailed ErrorCode = "provisioning_failed"
	ErrorCodeInvalidResult      ErrorCode = "invalid_remote_result"
	ErrorCodeEmbeddingProvider  ErrorCode = "embedding_provider_error"
	ErrorCodeRemote             ErrorCode = "remote_error"
	ErrorCodeInternal           ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	RemoteCode string    `json:"remote_code,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// GroupLister lists the declared search groups.
type GroupLister interface {
	All() []group.Config
}

// Ensurer provisions a managed index on first use.
type Ensurer interface {
	Resolve(ctx context.Context, id string) (index.Remote, error)
}

// Deps are the use cases served by the gateway. Documents, Settings, Syncer and Ensurer are optional.
type Deps struct {
	Search    *searchuc.Service
	Indexes   *indexuc.Service
	Documents *documentuc.Service
	Settings  *settingsuc.Service
	Groups    GroupLister
	// Batcher returns a fresh batcher; one is created per upload request.
	Batcher func() *batchuc.Batcher
	Syncer  *provision.Syncer
	Ensurer Ensurer
	Health  *healthuc.Service
}

// Server implements the HTTP handlers.
type Server struct {
	deps          Deps
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, l *zap.Logger) *Server {
	s := &Server{deps: deps, logger: logger.OrNop(l)}
	s.errorHandlers = []errorHandler{
		remoteErrorHandler,
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, ErrorCodeIndexNotFound),
		sentinelHandler(domain.ErrGroupNotFound, http.StatusNotFound, ErrorCodeGroupNotFound),
		sentinelHandler(domain.ErrMissingPrimaryKey, http.StatusBadRequest, ErrorCodeMissingPrimaryKey),
		sentinelHandler(domain.ErrNormalizerNotFound, http.StatusUnprocessableEntity, ErrorCodeNormalization),
		sentinelHandler(domain.ErrNormalizationFailed, http.StatusUnprocessableEntity, ErrorCodeNormalization),
		sentinelHandler(domain.ErrProvisioningTaskFailed, http.StatusBadGateway, ErrorCodeProvisioningFailed),
		sentinelHandler(domain.ErrInvalidResult, http.StatusBadGateway, ErrorCodeInvalidResult),
		sentinelHandler(domain.ErrGroupMismatch, http.StatusBadGateway, ErrorCodeInvalidResult),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeEmbeddingProvider),
	}
	return s
}

// knownTarget keeps metric labels to catalog entries.
func (s *Server) knownTarget(kind, name string) bool {
	switch kind {
	case metrics.TargetIndex:
		return s.deps.Indexes != nil && s.deps.Indexes.IsManaged(name)
	case metrics.TargetGroup:
		if s.deps.Groups == nil {
			return false
		}
		for _, g := range s.deps.Groups.All() {
			if g.Name() == name {
				return true
			}
		}
	}
	return false
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type indexItem struct {
	ID         string         `json:"id"`
	RemoteUID  string         `json:"remote_uid"`
	PrimaryKey string         `json:"primary_key"`
	Context    map[string]any `json:"context,omitempty"`
}

// ListIndexes handles GET /v1/indexes?match=.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	var match *string
	if err := runtime.BindQueryParameter("form", true, false, "match", r.URL.Query(), &match); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid match parameter")
		return
	}

	configured := s.deps.Indexes.Configured(deref(match))
	items := make([]indexItem, len(configured))
	for i, c := range configured {
		items[i] = indexItem{
			ID:         c.Index.ID(),
			RemoteUID:  c.RemoteUID,
			PrimaryKey: c.Index.PrimaryKey(),
			Context:    c.Index.Context(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// GetIndex handles GET /v1/indexes/{index}.
func (s *Server) GetIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	remote, err := s.deps.Indexes.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote)
}

// DropIndex handles DELETE /v1/indexes/{index}.
func (s *Server) DropIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	ref, err := s.deps.Indexes.Drop(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ref)
}

type groupMember struct {
	Index  string  `json:"index"`
	Weight float64 `json:"weight"`
}

type groupItem struct {
	Name    string        `json:"name"`
	Members []groupMember `json:"members"`
}

// ListGroups handles GET /v1/groups.
func (s *Server) ListGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.deps.Groups.All()
	items := make([]groupItem, len(groups))
	for i, g := range groups {
		members := g.Members()
		item := groupItem{Name: g.Name(), Members: make([]groupMember, len(members))}
		for j, m := range members {
			item.Members[j] = groupMember{Index: m.Index, Weight: m.Weight}
		}
		items[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// SearchIndex handles POST /v1/indexes/{index}/search.
func (s *Server) SearchIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	params, ok := decodeSearch(w, r)
	if !ok {
		return
	}
	params.IndexUID = id

	res, err := s.deps.Search.Search(r.Context(), params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type multiSearchRequest struct {
	Queries []*request.Parameters `json:"queries"`
}

// MultiSearch handles POST /v1/multi-search.
func (s *Server) MultiSearch(w http.ResponseWriter, r *http.Request) {
	var req multiSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "queries must not be empty")
		return
	}
	for i, q := range req.Queries {
		if q == nil || q.IndexUID == "" {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, fmt.Sprintf("queries[%d].indexUid is required", i))
			return
		}
	}

	res, err := s.deps.Search.MultiSearch(r.Context(), req.Queries)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchGroup handles POST /v1/groups/{group}/search?merge=&unique=.
func (s *Server) SearchGroup(w http.ResponseWriter, r *http.Request) {
	var name string
	if err := bindPath("group", chi.URLParam(r, "group"), &name); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid group parameter")
		return
	}
	var merge, unique *bool
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "merge", q, &merge); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "merge must be a boolean")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "unique", q, &unique); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "unique must be a boolean")
		return
	}
	params, ok := decodeSearch(w, r)
	if !ok {
		return
	}

	if merge == nil || !*merge {
		res, err := s.deps.Search.GroupSearch(r.Context(), name, params)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	hits, err := s.deps.Search.GroupSearchMerged(r.Context(), name, params, unique != nil && *unique)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "total": len(hits)})
}

// UploadDocuments handles POST /v1/indexes/{index}/documents?primaryKey=.
// The body is a JSON array of objects or NDJSON. Documents are deduplicated by
// primary key (last wins) and uploaded as one batch.
func (s *Server) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var pk *string
	if err := runtime.BindQueryParameter("form", true, false, "primaryKey", r.URL.Query(), &pk); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid primaryKey parameter")
		return
	}

	docs, err := decodeDocuments(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(docs) == 0 || len(docs) > maxUploadDocuments {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			fmt.Sprintf("documents count must be between 1 and %d", maxUploadDocuments))
		return
	}

	if s.deps.Ensurer != nil {
		if _, err := s.deps.Ensurer.Resolve(r.Context(), id); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
	}

	var opts []batchuc.Option
	if pk != nil && *pk != "" {
		opts = append(opts, batchuc.WithPrimaryKey(*pk))
	}
	b := s.deps.Batcher()
	for i, doc := range docs {
		if err := b.Add(r.Context(), id, doc, opts...); err != nil {
			s.logger.Debug("Rejected document", zap.Int("position", i), zap.Error(err))
			s.handleDomainError(w, r, err)
			return
		}
	}

	tasks, err := b.Flush(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"documents": len(docs),
		"tasks":     tasks,
	})
}

// GetDocument handles GET /v1/indexes/{index}/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var docID string
	if err := bindPath("id", chi.URLParam(r, "id"), &docID); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid document id")
		return
	}
	var fields *[]string
	if err := runtime.BindQueryParameter("form", false, false, "fields", r.URL.Query(), &fields); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid fields parameter")
		return
	}

	var selected []string
	if fields != nil {
		selected = *fields
	}
	doc, err := s.deps.Documents.Get(r.Context(), id, docID, selected...)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /v1/indexes/{index}/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var docID string
	if err := bindPath("id", chi.URLParam(r, "id"), &docID); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid document id")
		return
	}
	ref, err := s.deps.Documents.Delete(r.Context(), id, docID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ref)
}

// GetSettings handles GET /v1/indexes/{index}/settings.
func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	values, err := s.deps.Settings.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// UpdateSettings handles PATCH /v1/indexes/{index}/settings.
func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var values domset.Settings
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	ref, err := s.deps.Settings.Update(r.Context(), id, values)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ref)
}

// ResetSettings handles DELETE /v1/indexes/{index}/settings.
func (s *Server) ResetSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	ref, err := s.deps.Settings.Reset(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ref)
}

type syncItem struct {
	provision.Result
	Error string `json:"error,omitempty"`
}

// Sync handles POST /v1/sync?match=. Replies 207 when some indexes failed.
func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	var match *string
	if err := runtime.BindQueryParameter("form", true, false, "match", r.URL.Query(), &match); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid match parameter")
		return
	}

	outcomes := s.deps.Syncer.Sync(r.Context(), deref(match))
	items := make([]syncItem, len(outcomes))
	status := http.StatusOK
	failed := 0
	for i, o := range outcomes {
		items[i] = syncItem{Result: o.Result}
		if o.Err != nil {
			items[i].Error = safeDomainMessage(o.Err)
			status = http.StatusMultiStatus
			failed++
		}
	}
	writeJSON(w, status, map[string]any{"items": items, "total": len(items), "failed": failed})
}

func (s *Server) indexParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	if err := bindPath("index", chi.URLParam(r, "index"), &id); err != nil || id == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid index parameter")
		return "", false
	}
	return id, true
}

func bindPath(name, value string, dest any) error {
	return runtime.BindStyledParameterWithOptions("simple", name, value, dest, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
}

func decodeSearch(w http.ResponseWriter, r *http.Request) (*request.Parameters, bool) {
	params := request.New("")
	if err := json.NewDecoder(r.Body).Decode(params); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	return params, true
}

func decodeDocuments(r *http.Request) ([]map[string]any, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), domremote.ContentTypeNDJSON) {
		var docs []map[string]any
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var doc map[string]any
			if err := domremote.UnmarshalJSON(line, &doc); err != nil {
				return nil, fmt.Errorf("line %d: %w", len(docs)+1, err)
			}
			docs = append(docs, doc)
		}
		return docs, sc.Err()
	}

	var docs []map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var nf *domain.IndexNotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	var mpk *domain.MissingPrimaryKeyError
	if errors.As(err, &mpk) {
		return mpk.Error()
	}
	var tf *domain.TaskFailedError
	if errors.As(err, &tf) {
		return tf.Error()
	}
	var re *domremote.Error
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}

	sentinels := []error{
		domain.ErrGroupNotFound,
		domain.ErrNormalizerNotFound,
		domain.ErrNormalizationFailed,
		domain.ErrInvalidResult,
		domain.ErrGroupMismatch,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// remoteErrorHandler relays 4xx engine errors with their engine code; 5xx become 502.
func remoteErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var re *domremote.Error
	if !errors.As(err, &re) {
		return false
	}
	status := re.Status
	if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, ErrorResponse{
		Code:       ErrorCodeRemote,
		Message:    msg,
		RemoteCode: re.Code,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	l := logger.FromContext(r.Context(), s.logger)
	l.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	l.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternal, "internal error")
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
