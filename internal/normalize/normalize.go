// Package normalize converts application objects into documents the search engine can index.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
)

// Record is a document ready to be serialized and sent to the engine.
type Record = map[string]any

// Context carries layered hints for a normalizer (locale, target index, ...).
type Context = map[string]any

// Normalizer converts one kind of object into a Record.
type Normalizer interface {
	Supports(obj any, nctx Context) bool
	Normalize(ctx context.Context, obj any, nctx Context) (Record, error)
}

// Documenter is implemented by objects that serialize themselves.
type Documenter interface {
	Document(nctx Context) (Record, error)
}

// Chain tries registered normalizers in order, then falls back to Documenter
// and json.Marshaler.
type Chain struct {
	mu          sync.RWMutex
	normalizers []Normalizer
}

// NewChain creates a chain with the given normalizers.
func NewChain(normalizers ...Normalizer) *Chain {
	return &Chain{normalizers: normalizers}
}

// Register appends a normalizer. Earlier registrations take precedence.
func (c *Chain) Register(n Normalizer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normalizers = append(c.normalizers, n)
}

// Supports reports whether any normalizer or fallback accepts obj.
func (c *Chain) Supports(obj any, nctx Context) bool {
	if c.find(obj, nctx) != nil {
		return true
	}
	switch obj.(type) {
	case Documenter, json.Marshaler:
		return true
	}
	return false
}

// Normalize converts obj with the first normalizer that supports it.
func (c *Chain) Normalize(ctx context.Context, obj any, nctx Context) (Record, error) {
	if n := c.find(obj, nctx); n != nil {
		rec, err := n.Normalize(ctx, obj, nctx)
		if err != nil {
			return nil, &domain.NormalizationError{Type: typeName(obj), Err: err}
		}
		return rec, nil
	}

	switch v := obj.(type) {
	case Documenter:
		rec, err := v.Document(nctx)
		if err != nil {
			return nil, &domain.NormalizationError{Type: typeName(obj), Err: err}
		}
		return rec, nil
	case json.Marshaler:
		rec, err := fromJSON(v)
		if err != nil {
			return nil, &domain.NormalizationError{Type: typeName(obj), Err: err}
		}
		return rec, nil
	}
	return nil, &domain.NormalizationError{Type: typeName(obj)}
}

func (c *Chain) find(obj any, nctx Context) Normalizer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.normalizers {
		if n.Supports(obj, nctx) {
			return n
		}
	}
	return nil
}

func fromJSON(m json.Marshaler) (Record, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := remote.UnmarshalJSON(data, &rec); err != nil {
		return nil, fmt.Errorf("json document is not an object: %w", err)
	}
	return rec, nil
}

func typeName(obj any) string {
	return fmt.Sprintf("%T", obj)
}

// MergeContext layers normalization contexts, the last source winning.
func MergeContext(sources ...Context) Context {
	return domain.MergeLayers(sources...)
}
