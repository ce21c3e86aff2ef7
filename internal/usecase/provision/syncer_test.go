package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/meilifed/internal/domain/index"
)

func TestSync_AllIndexes(t *testing.T) {
	engine := newFakeEngine()
	engine.indexes["app_books"] = index.Remote{UID: "app_books", PrimaryKey: "isbn"}
	p, reg, _ := setup(t, engine)

	s := NewSyncer(p, reg, Options{TaskTimeout: 100 * time.Millisecond, PollInterval: 5 * time.Millisecond}, nil).
		WithConcurrency(2)
	out := s.Sync(context.Background(), "*")
	require.Len(t, out, 2)

	assert.Equal(t, "movies", out[0].Index)
	assert.True(t, out[0].Created)
	assert.Equal(t, "books", out[1].Index)
	assert.False(t, out[1].Created)
	for _, o := range out {
		require.NoError(t, o.Err)
		assert.True(t, o.SettingsUpdated, "sync always pushes settings")
	}
}

func TestSync_Pattern(t *testing.T) {
	engine := newFakeEngine()
	p, reg, _ := setup(t, engine)

	out := NewSyncer(p, reg, Options{}, nil).Sync(context.Background(), "book*")
	require.Len(t, out, 1)
	assert.Equal(t, "books", out[0].Index)
	assert.Equal(t, 0, engine.count("GET /indexes/app_movies"))
}
