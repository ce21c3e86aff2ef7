package index

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/settings"
)

// DefaultPrimaryKey is used when an index does not declare its own primary key.
const DefaultPrimaryKey = "id"

// Index is the identity record of one logical search index (immutable value object).
type Index struct {
	id         string
	primaryKey string
	context    map[string]any
}

// New validates and creates an Index. An empty primary key falls back to DefaultPrimaryKey.
func New(id, primaryKey string, context map[string]any) (Index, error) {
	if id == "" {
		return Index{}, fmt.Errorf("index id is required: %w", domain.ErrInvalidIndex)
	}
	if primaryKey == "" {
		primaryKey = DefaultPrimaryKey
	}
	return Index{id: id, primaryKey: primaryKey, context: maps.Clone(context)}, nil
}

// MustNew is New for statically declared indexes; it panics on invalid input.
func MustNew(id, primaryKey string, context map[string]any) Index {
	idx, err := New(id, primaryKey, context)
	if err != nil {
		panic(err)
	}
	return idx
}

// ID returns the logical index id.
func (i Index) ID() string { return i.id }

// PrimaryKey returns the document field used as the stable identifier.
func (i Index) PrimaryKey() string { return i.primaryKey }

// Context returns a copy of the static normalization context.
func (i Index) Context() map[string]any { return maps.Clone(i.context) }

// IsZero reports whether the value was never initialized through New.
func (i Index) IsZero() bool { return i.id == "" }

// Equal compares two index values field by field.
func (i Index) Equal(o Index) bool {
	return i.id == o.id && i.primaryKey == o.primaryKey && reflect.DeepEqual(i.context, o.context)
}

// Repository owns a set of indexes and the settings that apply to them.
type Repository interface {
	Name() string
	Indexes() []Index
	Settings(ctx context.Context, idx Index) (settings.Settings, error)
}
