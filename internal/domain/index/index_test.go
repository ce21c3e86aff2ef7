package index

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/meilifed/internal/domain"
)

func TestNew_DefaultPrimaryKey(t *testing.T) {
	idx, err := New("books", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.PrimaryKey() != DefaultPrimaryKey {
		t.Errorf("primary key = %q, want %q", idx.PrimaryKey(), DefaultPrimaryKey)
	}
}

func TestNew_EmptyID(t *testing.T) {
	_, err := New("", "id", nil)
	if !errors.Is(err, domain.ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestContext_IsCopied(t *testing.T) {
	src := map[string]any{"locale": "nl"}
	idx := MustNew("books", "isbn", src)

	src["locale"] = "en"
	if idx.Context()["locale"] != "nl" {
		t.Fatal("index context changed after mutating constructor input")
	}

	ctx := idx.Context()
	ctx["locale"] = "de"
	if idx.Context()["locale"] != "nl" {
		t.Fatal("index context changed after mutating returned copy")
	}
}

func TestEqual(t *testing.T) {
	a := MustNew("books", "isbn", map[string]any{"x": 1})
	b := MustNew("books", "isbn", map[string]any{"x": 1})
	c := MustNew("books", "id", map[string]any{"x": 1})

	if !a.Equal(b) {
		t.Error("expected equal indexes")
	}
	if a.Equal(c) {
		t.Error("expected different primary keys to compare unequal")
	}
}
