package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/settings"
	"github.com/kailas-cloud/meilifed/internal/registry"
)

// fakeEngine is an in-memory stand-in for the engine's index and task endpoints.
type fakeEngine struct {
	mu sync.Mutex

	indexes map[string]index.Remote
	// taskStatus is returned by GET /tasks/{uid}; "" means the task stays enqueued.
	taskStatus string
	taskError  string
	noTaskUID  bool
	// createLazily defers index creation until the task is polled successfully.
	createLazily bool
	getErr       error

	calls []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{indexes: make(map[string]index.Remote), taskStatus: "succeeded"}
}

func (f *fakeEngine) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeEngine) Do(_ context.Context, req remote.Request) (remote.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Method+" "+req.Path)

	switch {
	case req.Method == http.MethodGet && strings.HasPrefix(req.Path, "/indexes/"):
		if f.getErr != nil {
			return remote.Response{}, f.getErr
		}
		uid := strings.TrimPrefix(req.Path, "/indexes/")
		idx, ok := f.indexes[uid]
		if !ok {
			return remote.Response{}, &remote.Error{Status: http.StatusNotFound, Code: "index_not_found"}
		}
		return reply(idx), nil

	case req.Method == http.MethodPost && req.Path == "/indexes":
		var body struct {
			UID        string `json:"uid"`
			PrimaryKey string `json:"primaryKey"`
		}
		_ = json.Unmarshal(req.Body, &body)
		if !f.createLazily {
			f.indexes[body.UID] = index.Remote{UID: body.UID, PrimaryKey: body.PrimaryKey}
		}
		if f.noTaskUID {
			return remote.Response{Status: http.StatusAccepted, Body: []byte(`{}`)}, nil
		}
		return reply(map[string]any{"taskUid": 99, "status": "enqueued"}), nil

	case req.Method == http.MethodGet && strings.HasPrefix(req.Path, "/tasks/"):
		t := map[string]any{"uid": 99, "status": f.taskStatus}
		if f.taskStatus == "" {
			t["status"] = "enqueued"
		}
		if f.taskError != "" {
			t["status"] = "failed"
			t["error"] = map[string]any{"message": f.taskError, "code": "index_creation_failed"}
		}
		return reply(t), nil

	case req.Method == http.MethodPatch && strings.HasSuffix(req.Path, "/settings"):
		return reply(map[string]any{"taskUid": 100}), nil
	}
	return remote.Response{}, fmt.Errorf("unexpected request %s %s", req.Method, req.Path)
}

func reply(v any) remote.Response {
	data, _ := json.Marshal(v)
	return remote.Response{Status: http.StatusOK, Body: data}
}

type settingsRepo struct {
	indexes  []index.Index
	settings settings.Settings
}

func (r *settingsRepo) Name() string           { return "test" }
func (r *settingsRepo) Indexes() []index.Index { return r.indexes }
func (r *settingsRepo) Settings(context.Context, index.Index) (settings.Settings, error) {
	return r.settings, nil
}

func setup(t *testing.T, engine *fakeEngine) (*Provisioner, *registry.Indexes, index.Index) {
	t.Helper()
	movies := index.MustNew("movies", "", nil)
	reg := registry.NewIndexes()
	repo := &settingsRepo{
		indexes:  []index.Index{movies, index.MustNew("books", "isbn", nil)},
		settings: settings.Settings{"filterableAttributes": []string{"year"}},
	}
	if err := reg.LoadRepository(repo); err != nil {
		t.Fatalf("load repository: %v", err)
	}
	return New(engine, reg, affix.New("app_", ""), nil), reg, movies
}
