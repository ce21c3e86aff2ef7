package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain/group"
	"github.com/kailas-cloud/meilifed/internal/domain/index"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/registry"
)

type fakeRemote struct {
	reply    string
	err      error
	requests []remote.Request
}

func (f *fakeRemote) Do(_ context.Context, req remote.Request) (remote.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return remote.Response{}, f.err
	}
	return remote.Response{Status: 200, Body: []byte(f.reply)}, nil
}

func (f *fakeRemote) body(t *testing.T, i int) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(f.requests[i].Body, &out); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return out
}

// fixture registers movies (pk "id"), books (pk "isbn") and series, and a
// "catalog" group of movies (weight 1) and books (weight 2).
func fixture(t *testing.T) (*registry.Indexes, *registry.Groups) {
	t.Helper()
	indexes := registry.NewIndexes()
	for _, idx := range []index.Index{
		index.MustNew("movies", "", nil),
		index.MustNew("books", "isbn", nil),
		index.MustNew("series", "", nil),
	} {
		if err := indexes.Register(idx); err != nil {
			t.Fatalf("register %s: %v", idx.ID(), err)
		}
	}

	groups := registry.NewGroups()
	if err := groups.Declare("catalog", []group.Entry{
		{Index: "movies"},
		{Index: "books", Weight: group.Weight(2)},
	}); err != nil {
		t.Fatalf("declare group: %v", err)
	}
	return indexes, groups
}

func newService(t *testing.T, r Remote) *Service {
	t.Helper()
	indexes, groups := fixture(t)
	return New(r, indexes, groups, affix.New("app_", ""), nil)
}
