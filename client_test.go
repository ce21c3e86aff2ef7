package meilifed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	ctype  string
	body   string
}

// engineStub is an httptest-backed engine answering by "METHOD path".
type engineStub struct {
	mu       sync.Mutex
	routes   map[string]func(w http.ResponseWriter)
	requests []recorded
}

func newEngineStub(t *testing.T) (*engineStub, *httptest.Server) {
	t.Helper()
	e := &engineStub{routes: map[string]func(http.ResponseWriter){}}
	e.json(http.MethodGet, "/health", http.StatusOK, `{"status":"available"}`)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return e, srv
}

func (e *engineStub) json(method, path string, status int, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[method+" "+path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (e *engineStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	e.mu.Lock()
	e.requests = append(e.requests, recorded{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		auth:   r.Header.Get("Authorization"),
		ctype:  r.Header.Get("Content-Type"),
		body:   string(body),
	})
	route, ok := e.routes[r.Method+" "+r.URL.Path]
	e.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"not_found","message":"no route","type":"invalid_request"}`)
		return
	}
	route(w)
}

func (e *engineStub) find(method, path string) []recorded {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []recorded
	for _, r := range e.requests {
		if r.method == method && r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func (e *engineStub) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithURL(srv.URL),
		WithKeys("search", "admin"),
		WithAffixes("t_", ""),
		WithRepositories(StaticRepository("catalog",
			map[string]Settings{
				"*":      {"rankingRules": []string{"words", "typo"}},
				"movies": {"searchableAttributes": []string{"title"}},
			},
			MustIndex("movies", "id", map[string]any{"locale": "en"}),
			MustIndex("books", "isbn", nil),
		)),
		WithGroup("media", Member("movies", 1), Member("books", 2)),
		WithTaskTimeouts(time.Second, 5*time.Millisecond),
	}
	c, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WithURL")
}

func TestNew_PingFailure(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodGet, "/health", http.StatusServiceUnavailable, `{"message":"starting"}`)

	_, err := New(context.Background(), WithURL(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine not ready")

	_, err = New(context.Background(), WithURL(srv.URL), WithoutPing())
	assert.NoError(t, err)
}

func TestNew_InvalidGroup(t *testing.T) {
	_, srv := newEngineStub(t)

	_, err := New(context.Background(), WithURL(srv.URL), WithGroup("bad", Member("movies", -1)))
	assert.ErrorIs(t, err, ErrInvalidGroup)
}

func TestSearch(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodPost, "/indexes/t_movies/search", http.StatusOK,
		`{"hits":[{"id":1,"title":"Heat","_rankingScore":0.7}],"query":"heat","processingTimeMs":2}`)
	c := newTestClient(t, srv)

	res, err := c.Search(context.Background(), Query("heat", On("movies"), Limit(3)))
	require.NoError(t, err)
	assert.Equal(t, "t_movies", res.IndexUID)
	require.Len(t, res.Hits, 1)

	sent := e.find(http.MethodPost, "/indexes/t_movies/search")
	require.Len(t, sent, 1)
	assert.Equal(t, "Bearer admin", sent[0].auth)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(sent[0].body), &body))
	assert.Equal(t, "heat", body["q"])
	assert.Equal(t, 3.0, body["limit"])
	assert.Equal(t, true, body["showRankingScore"])
	assert.NotContains(t, body, "indexUid")
	assert.NotContains(t, body, "filter")
}

func TestSearch_FilterBy(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodPost, "/indexes/t_movies/search", http.StatusOK, `{"hits":[],"query":"heat"}`)
	c := newTestClient(t, srv)

	genre, err := In("genre", "crime", "drama")
	require.NoError(t, err)
	decade, err := Between("year", 1990, 1999)
	require.NoError(t, err)
	expr, err := Where([]Condition{genre, decade}, nil, nil)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), Query("heat", On("movies"), FilterBy(expr)))
	require.NoError(t, err)

	sent := e.find(http.MethodPost, "/indexes/t_movies/search")
	require.Len(t, sent, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(sent[0].body), &body))
	assert.Equal(t, `genre IN ["crime", "drama"] AND year 1990 TO 1999`, body["filter"])
}

func TestSearch_UnmanagedIndexSendsNothing(t *testing.T) {
	e, srv := newEngineStub(t)
	c := newTestClient(t, srv)
	before := e.count()

	_, err := c.Search(context.Background(), Query("x", On("series")))
	assert.ErrorIs(t, err, ErrIndexNotFound)

	_, err = c.MultiSearch(context.Background(), Query("x", On("movies")), Query("x", On("series")))
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.Equal(t, before, e.count())
}

func TestGroupSearchMerged(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodPost, "/multi-search", http.StatusOK, `{"results":[
		{"indexUid":"t_movies","hits":[{"id":"a","_rankingScore":0.9},{"id":"b","_rankingScore":0.2}]},
		{"indexUid":"t_books","hits":[{"isbn":"c","_rankingScore":0.3}]}
	]}`)
	c := newTestClient(t, srv)

	hits, err := c.GroupSearchMerged(context.Background(), "media", Query("x"), false)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "movies", hits[0][FieldIndex])
	assert.Equal(t, "books", hits[1][FieldIndex])
	assert.InDelta(t, 0.6, hits[1][FieldRankingScore], 1e-9)
	assert.Equal(t, "b", hits[2]["id"])

	sent := e.find(http.MethodPost, "/multi-search")
	require.Len(t, sent, 1)
	var body struct {
		Queries []map[string]any `json:"queries"`
	}
	require.NoError(t, json.Unmarshal([]byte(sent[0].body), &body))
	require.Len(t, body.Queries, 2)
	assert.Equal(t, "t_movies", body.Queries[0]["indexUid"])
	assert.Equal(t, "t_books", body.Queries[1]["indexUid"])

	_, err = c.GroupSearch(context.Background(), "nope", Query("x"))
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

type movie struct {
	ID    int
	Title string
}

func TestBatcher_NormalizesAndFlushes(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodPost, "/indexes/t_movies/documents", http.StatusAccepted,
		`{"taskUid":11,"indexUid":"t_movies","status":"enqueued"}`)

	var seenLocale any
	c := newTestClient(t, srv, WithNormalizers(NormalizeFunc(func(_ context.Context, m movie, nctx Context) (Record, error) {
		seenLocale = nctx["locale"]
		return Record{"id": m.ID, "title": m.Title}, nil
	})))

	b := c.Batcher()
	ctx := context.Background()
	require.NoError(t, b.Add(ctx, "movies", movie{ID: 1, Title: "Heat"}))
	require.NoError(t, b.Add(ctx, "movies", movie{ID: 2, Title: "Ronin"}))
	require.NoError(t, b.Add(ctx, "movies", movie{ID: 1, Title: "Heat (1995)"}))
	assert.Equal(t, 2, b.Pending())
	assert.Equal(t, "en", seenLocale)

	refs, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), refs["movies"].TaskUID)
	assert.Zero(t, b.Pending())

	sent := e.find(http.MethodPost, "/indexes/t_movies/documents")
	require.Len(t, sent, 1)
	assert.Equal(t, "primaryKey=id", sent[0].query)
	assert.Equal(t, "application/x-ndjson", sent[0].ctype)
	lines := strings.Split(sent[0].body, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Heat (1995)")
	assert.Contains(t, lines[1], "Ronin")
}

func TestBatcher_Errors(t *testing.T) {
	_, srv := newEngineStub(t)
	c := newTestClient(t, srv)
	b := c.Batcher()
	ctx := context.Background()

	err := b.Add(ctx, "books", map[string]any{"title": "Dune"})
	var mpk *MissingPrimaryKeyError
	require.ErrorAs(t, err, &mpk)
	assert.Equal(t, "isbn", mpk.Field)

	assert.ErrorIs(t, b.Add(ctx, "books", movie{ID: 1}), ErrNormalizerNotFound)
	assert.ErrorIs(t, b.Add(ctx, "series", map[string]any{"id": 1}), ErrIndexNotFound)

	refs, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSync_CreatesAndConfigures(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodGet, "/indexes/t_movies", http.StatusOK, `{"uid":"t_movies","primaryKey":"id"}`)
	e.json(http.MethodPatch, "/indexes/t_movies/settings", http.StatusAccepted, `{"taskUid":1}`)
	e.json(http.MethodPost, "/indexes", http.StatusAccepted, `{"taskUid":2,"status":"enqueued"}`)
	e.json(http.MethodGet, "/tasks/2", http.StatusOK, `{"uid":2,"status":"failed","error":{"message":"invalid primary key","code":"invalid_index_primary_key"}}`)
	c := newTestClient(t, srv)

	outcomes, err := c.Sync(context.Background(), "")
	require.Len(t, outcomes, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvisioningTaskFailed)

	assert.Equal(t, State("ready"), outcomes[0].State)
	assert.True(t, outcomes[0].SettingsUpdated)
	assert.Equal(t, State("failed"), outcomes[1].State)

	patch := e.find(http.MethodPatch, "/indexes/t_movies/settings")
	require.Len(t, patch, 1)
	var settings map[string]any
	require.NoError(t, json.Unmarshal([]byte(patch[0].body), &settings))
	assert.Contains(t, settings, "rankingRules")
	assert.Contains(t, settings, "searchableAttributes")
}

func TestEnsure_Unmanaged(t *testing.T) {
	_, srv := newEngineStub(t)
	c := newTestClient(t, srv)

	_, err := c.Ensure(context.Background(), "series", EnsureOptions{})
	var nf *IndexNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestResolve_CachesHandle(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodGet, "/indexes/t_books", http.StatusOK, `{"uid":"t_books","primaryKey":"isbn"}`)
	c := newTestClient(t, srv)

	for range 3 {
		h, err := c.Resolve(context.Background(), "books")
		require.NoError(t, err)
		assert.Equal(t, "t_books", h.UID)
	}
	assert.Len(t, e.find(http.MethodGet, "/indexes/t_books"), 1)
}

func TestRemoteErrorsPropagate(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodPost, "/indexes/t_movies/search", http.StatusBadRequest,
		`{"message":"Attribute year is not filterable","code":"invalid_search_filter","type":"invalid_request"}`)
	c := newTestClient(t, srv)

	_, err := c.Search(context.Background(), Query("x", On("movies"), Filter("year > 2000")))
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "invalid_search_filter", re.Code)
	assert.False(t, IsNotFound(err))
}

func TestIdentifiers(t *testing.T) {
	_, srv := newEngineStub(t)
	c := newTestClient(t, srv)

	assert.Equal(t, "t_movies", c.RemoteUID("movies"))
	assert.Equal(t, "movies", c.LogicalID("t_movies"))
	assert.True(t, c.IsManaged("books"))
	require.NoError(t, c.RegisterIndex(MustIndex("series", "id", nil)))
	assert.ErrorIs(t, c.RegisterIndex(MustIndex("series", "id", nil)), ErrDuplicateIndex)
	assert.Len(t, c.Indexes().Configured("*s"), 3)
}

func TestWithPrometheus(t *testing.T) {
	e, srv := newEngineStub(t)
	e.json(http.MethodPost, "/indexes/t_movies/search", http.StatusOK, `{"hits":[]}`)
	reg := prometheus.NewRegistry()
	c := newTestClient(t, srv, WithPrometheus(reg))

	_, err := c.Search(context.Background(), Query("x", On("movies")))
	require.NoError(t, err)
	_, err = c.Search(context.Background(), Query("x", On("series")))
	require.Error(t, err)
	require.NoError(t, c.Ping(context.Background()))

	ops := c.obs.metrics.operations
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("ping", "ok")))

	// A second client on the same registry reuses the collectors.
	c2 := newTestClient(t, srv, WithPrometheus(reg))
	assert.Same(t, c.obs.metrics.operations, c2.obs.metrics.operations)
}

func TestStaticRepository_Settings(t *testing.T) {
	repo := StaticRepository("r", map[string]Settings{
		"*": {"a": 1, "b": 1},
		"x": {"b": 2},
	}, MustIndex("x", "id", nil), MustIndex("y", "id", nil))

	s, err := repo.Settings(context.Background(), MustIndex("x", "id", nil))
	require.NoError(t, err)
	assert.Equal(t, Settings{"a": 1, "b": 2}, s)

	s, err = repo.Settings(context.Background(), MustIndex("y", "id", nil))
	require.NoError(t, err)
	assert.Equal(t, Settings{"a": 1, "b": 1}, s)

	_, err = repo.Settings(context.Background(), MustIndex("z", "id", nil))
	assert.ErrorIs(t, err, ErrIndexNotFound)
}
