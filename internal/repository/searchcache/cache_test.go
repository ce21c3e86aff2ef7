package searchcache

import (
	"context"
	"errors"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/meilifed/internal/db"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
)

type fakeRemote struct {
	calls []remote.Request
	body  string
	err   error
	// routes overrides body by "METHOD path".
	routes map[string]string
}

func (f *fakeRemote) Do(_ context.Context, req remote.Request) (remote.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return remote.Response{}, f.err
	}
	if body, ok := f.routes[req.Method+" "+req.Path]; ok {
		return remote.Response{Status: http.StatusOK, Body: []byte(body)}, nil
	}
	return remote.Response{Status: http.StatusOK, Body: []byte(f.body)}, nil
}

func (f *fakeRemote) count(method, p string) int {
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == p {
			n++
		}
	}
	return n
}

type memStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	broken bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

var errStoreDown = errors.New("store down")

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.broken {
		return nil, errStoreDown
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.broken {
		return errStoreDown
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if m.broken {
		return nil, errStoreDown
	}
	var out []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func searchReq(uid, q string) remote.Request {
	req, _ := remote.NewJSON(http.MethodPost, "/indexes/"+uid+"/search", map[string]any{"q": q})
	return req
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_search_cache_total"}, []string{"result"})
}

func TestCache_HitAfterMiss(t *testing.T) {
	inner := &fakeRemote{body: `{"hits":[]}`}
	st := newMemStore()
	counter := newCounter()
	c := New(inner, st, time.Minute, counter, nil)

	for range 2 {
		resp, err := c.Do(context.Background(), searchReq("app_movies", "heat"))
		require.NoError(t, err)
		assert.Equal(t, `{"hits":[]}`, string(resp.Body))
		assert.Equal(t, http.StatusOK, resp.Status)
	}

	assert.Len(t, inner.calls, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("hit")))
	for _, ttl := range st.ttls {
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestCache_DistinctBodiesDistinctKeys(t *testing.T) {
	inner := &fakeRemote{body: `{}`}
	c := New(inner, newMemStore(), time.Minute, nil, nil)

	_, _ = c.Do(context.Background(), searchReq("app_movies", "heat"))
	_, _ = c.Do(context.Background(), searchReq("app_movies", "ronin"))

	assert.Len(t, inner.calls, 2)
}

func TestCache_WritePurgesIndexAndMultiSearch(t *testing.T) {
	inner := &fakeRemote{body: `{}`}
	st := newMemStore()
	c := New(inner, st, time.Minute, nil, nil)
	ctx := context.Background()

	multi, _ := remote.NewJSON(http.MethodPost, "/multi-search", map[string]any{"queries": []any{}})
	_, _ = c.Do(ctx, searchReq("app_movies", "heat"))
	_, _ = c.Do(ctx, searchReq("app_books", "dune"))
	_, _ = c.Do(ctx, multi)
	require.Len(t, st.data, 3)

	write := remote.Request{Method: http.MethodPost, Path: "/indexes/app_movies/documents", Body: []byte(`{"id":1}`)}
	_, err := c.Do(ctx, write)
	require.NoError(t, err)

	require.Len(t, st.data, 1)
	for k := range st.data {
		assert.Contains(t, k, KeyPrefix+"app_books:")
	}
}

func TestCache_GlobalWritePurgesAll(t *testing.T) {
	inner := &fakeRemote{body: `{}`}
	st := newMemStore()
	c := New(inner, st, time.Minute, nil, nil)
	ctx := context.Background()

	_, _ = c.Do(ctx, searchReq("app_movies", "heat"))
	_, _ = c.Do(ctx, searchReq("app_books", "dune"))

	_, err := c.Do(ctx, remote.Request{Method: http.MethodPost, Path: "/swap-indexes"})
	require.NoError(t, err)
	assert.Empty(t, st.data)
}

func TestCache_PendingWriteBypassesCache(t *testing.T) {
	inner := &fakeRemote{body: `{"hits":["old"]}`, routes: map[string]string{
		"POST /indexes/app_movies/documents": `{"taskUid":5,"status":"enqueued"}`,
		"GET /tasks/5":                       `{"uid":5,"status":"processing"}`,
	}}
	st := newMemStore()
	counter := newCounter()
	c := New(inner, st, time.Minute, counter, nil)
	ctx := context.Background()
	multi, _ := remote.NewJSON(http.MethodPost, "/multi-search", map[string]any{"queries": []any{}})

	_, _ = c.Do(ctx, searchReq("app_movies", "heat"))
	require.Len(t, st.data, 1)

	_, err := c.Do(ctx, remote.Request{Method: http.MethodPost, Path: "/indexes/app_movies/documents", Body: []byte(`{"id":1}`)})
	require.NoError(t, err)
	require.Empty(t, st.data)

	// The engine still answers with pre-write results while the task runs.
	resp, err := c.Do(ctx, searchReq("app_movies", "heat"))
	require.NoError(t, err)
	assert.Equal(t, `{"hits":["old"]}`, string(resp.Body))
	_, _ = c.Do(ctx, multi)
	assert.Empty(t, st.data, "nothing is cached while the write is pending")
	assert.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues("bypass")))

	// Other indexes keep caching.
	_, _ = c.Do(ctx, searchReq("app_books", "dune"))
	assert.Len(t, st.data, 1)

	inner.routes["GET /tasks/5"] = `{"uid":5,"status":"succeeded"}`
	inner.body = `{"hits":["new"]}`
	resp, err = c.Do(ctx, searchReq("app_movies", "heat"))
	require.NoError(t, err)
	assert.Equal(t, `{"hits":["new"]}`, string(resp.Body))

	tasksChecked := inner.count(http.MethodGet, "/tasks/5")
	resp, err = c.Do(ctx, searchReq("app_movies", "heat"))
	require.NoError(t, err)
	assert.Equal(t, `{"hits":["new"]}`, string(resp.Body))
	assert.Equal(t, tasksChecked, inner.count(http.MethodGet, "/tasks/5"), "finished tasks are forgotten")
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("hit")))
}

func TestCache_PendingWriteForgottenWhenTaskUnknown(t *testing.T) {
	inner := &fakeRemote{body: `{}`, routes: map[string]string{
		"DELETE /indexes/app_movies/documents": `{"taskUid":9,"status":"enqueued"}`,
	}}
	st := newMemStore()
	c := New(inner, st, time.Minute, nil, nil)
	ctx := context.Background()

	_, err := c.Do(ctx, remote.Delete("/indexes/app_movies/documents"))
	require.NoError(t, err)

	inner.routes = nil
	inner.err = &remote.Error{Status: http.StatusNotFound, Code: "task_not_found"}
	_, _ = c.Do(ctx, searchReq("app_movies", "heat"))

	inner.err = nil
	_, _ = c.Do(ctx, searchReq("app_movies", "heat"))
	assert.Len(t, st.data, 1)
}

func TestCache_FailedWriteKeepsEntries(t *testing.T) {
	inner := &fakeRemote{body: `{}`}
	st := newMemStore()
	c := New(inner, st, time.Minute, nil, nil)
	ctx := context.Background()

	_, _ = c.Do(ctx, searchReq("app_movies", "heat"))
	inner.err = errors.New("boom")
	_, err := c.Do(ctx, remote.Delete("/indexes/app_movies"))
	require.Error(t, err)
	assert.Len(t, st.data, 1)
}

func TestCache_StoreFailureNeverFailsSearch(t *testing.T) {
	inner := &fakeRemote{body: `{"hits":[]}`}
	st := newMemStore()
	st.broken = true
	c := New(inner, st, time.Minute, nil, nil)

	resp, err := c.Do(context.Background(), searchReq("app_movies", "heat"))
	require.NoError(t, err)
	assert.Equal(t, `{"hits":[]}`, string(resp.Body))

	_, err = c.Do(context.Background(), remote.Delete("/indexes/app_movies"))
	require.NoError(t, err)
}

func TestCache_SearchErrorNotCached(t *testing.T) {
	inner := &fakeRemote{err: &remote.Error{Status: http.StatusBadRequest}}
	st := newMemStore()
	c := New(inner, st, time.Minute, nil, nil)

	_, err := c.Do(context.Background(), searchReq("app_movies", "heat"))
	require.Error(t, err)
	assert.Empty(t, st.data)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		method, path string
		scope        string
		kind         requestKind
	}{
		{http.MethodPost, "/indexes/app_movies/search", "app_movies", kindSearch},
		{http.MethodGet, "/indexes/app_movies/search", "app_movies", kindSearch},
		{http.MethodPost, "/multi-search", multiScope, kindSearch},
		{http.MethodGet, "/indexes/app_movies", "app_movies", kindPassthrough},
		{http.MethodPost, "/indexes/app_movies/documents/fetch", "app_movies", kindPassthrough},
		{http.MethodPost, "/indexes/app_movies/documents", "app_movies", kindWrite},
		{http.MethodPatch, "/indexes/app_movies/settings", "app_movies", kindWrite},
		{http.MethodPost, "/indexes", "", kindWrite},
		{http.MethodGet, "/tasks/3", "", kindPassthrough},
		{http.MethodGet, "/health", "", kindPassthrough},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			scope, kind := classify(remote.Request{Method: tt.method, Path: tt.path})
			assert.Equal(t, tt.scope, scope)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
