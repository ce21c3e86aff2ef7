package index

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain"
	domidx "github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/registry"
)

// --- Mocks ---

type mockRemote struct {
	reply string
	err   error
	last  remote.Request
	calls int
}

func (m *mockRemote) Do(_ context.Context, req remote.Request) (remote.Response, error) {
	m.last = req
	m.calls++
	if m.err != nil {
		return remote.Response{}, m.err
	}
	reply := m.reply
	if reply == "" {
		reply = `{"taskUid":8,"status":"enqueued"}`
	}
	return remote.Response{Status: http.StatusOK, Body: []byte(reply)}, nil
}

type mockForgetter struct{ forgotten []string }

func (m *mockForgetter) Forget(id string) { m.forgotten = append(m.forgotten, id) }

func newService(t *testing.T, r *mockRemote) (*Service, *registry.Indexes) {
	t.Helper()
	reg := registry.NewIndexes()
	for _, id := range []string{"blog_posts", "blog_tags", "movies"} {
		if err := reg.Register(domidx.MustNew(id, "", nil)); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return New(r, reg, affix.New("app_", ""), nil), reg
}

// --- Tests ---

func TestConfigured(t *testing.T) {
	svc, _ := newService(t, &mockRemote{})

	got := svc.Configured("blog_*")
	if len(got) != 2 {
		t.Fatalf("got %d indexes, want 2", len(got))
	}
	if got[0].Index.ID() != "blog_posts" || got[0].RemoteUID != "app_blog_posts" {
		t.Errorf("unexpected first entry: %s / %s", got[0].Index.ID(), got[0].RemoteUID)
	}
	if len(svc.Configured("")) != 3 {
		t.Error("empty pattern should match every index")
	}
}

func TestListRemote(t *testing.T) {
	r := &mockRemote{reply: `{"results":[{"uid":"app_movies","primaryKey":"id"},{"uid":"legacy"}],"offset":0,"limit":20,"total":2}`}
	svc, _ := newService(t, r)

	list, err := svc.ListRemote(context.Background(), 0, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Total != 2 || list.Results[1].UID != "legacy" {
		t.Errorf("unexpected list: %+v", list)
	}
	if r.last.Path != "/indexes" || r.last.Query.Get("limit") != "20" || r.last.Query.Has("offset") {
		t.Errorf("unexpected request %s ?%s", r.last.Path, r.last.Query.Encode())
	}
}

func TestCreate(t *testing.T) {
	r := &mockRemote{}
	svc, _ := newService(t, r)

	ref, err := svc.Create(context.Background(), "movies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.TaskUID != 8 {
		t.Errorf("task uid = %d", ref.TaskUID)
	}
	if r.last.Path != "/indexes" || string(r.last.Body) != `{"primaryKey":"id","uid":"app_movies"}` {
		t.Errorf("unexpected request %s %s", r.last.Path, r.last.Body)
	}
}

func TestUpdate(t *testing.T) {
	r := &mockRemote{}
	svc, _ := newService(t, r)

	if _, err := svc.Update(context.Background(), "movies", ""); err == nil {
		t.Error("expected error for empty primary key")
	}
	if _, err := svc.Update(context.Background(), "movies", "uid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.last.Method != http.MethodPatch || r.last.Path != "/indexes/app_movies" {
		t.Errorf("unexpected request %s %s", r.last.Method, r.last.Path)
	}
}

func TestDrop_RemovesFromRegistry(t *testing.T) {
	r := &mockRemote{}
	svc, reg := newService(t, r)
	f := &mockForgetter{}
	svc.WithForgetter(f)

	if _, err := svc.Drop(context.Background(), "movies"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.last.Method != http.MethodDelete || r.last.Path != "/indexes/app_movies" {
		t.Errorf("unexpected request %s %s", r.last.Method, r.last.Path)
	}
	if reg.IsManaged("movies") {
		t.Error("movies should be removed from the registry")
	}
	if len(f.forgotten) != 1 || f.forgotten[0] != "movies" {
		t.Errorf("forgotten = %v", f.forgotten)
	}

	if _, err := svc.Drop(context.Background(), "movies"); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestDrop_RemoteFailureKeepsRegistry(t *testing.T) {
	r := &mockRemote{err: &remote.Error{Status: http.StatusForbidden}}
	svc, reg := newService(t, r)

	if _, err := svc.Drop(context.Background(), "movies"); err == nil {
		t.Fatal("expected error")
	}
	if !reg.IsManaged("movies") {
		t.Error("failed drop must keep the index registered")
	}
}

func TestDeleteRemote(t *testing.T) {
	r := &mockRemote{}
	svc, _ := newService(t, r)

	if _, err := svc.DeleteRemote(context.Background(), ""); err == nil {
		t.Error("expected error for empty uid")
	}
	if _, err := svc.DeleteRemote(context.Background(), "legacy"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.last.Path != "/indexes/legacy" {
		t.Errorf("path = %q", r.last.Path)
	}
}

func TestGet(t *testing.T) {
	r := &mockRemote{reply: `{"uid":"app_movies","primaryKey":"id","createdAt":"2024-01-01T00:00:00Z"}`}
	svc, _ := newService(t, r)

	got, err := svc.Get(context.Background(), "movies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UID != "app_movies" || got.PrimaryKey != "id" {
		t.Errorf("unexpected remote index: %+v", got)
	}
}
