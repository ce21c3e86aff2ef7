package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockEngine struct{ err error }

func (m *mockEngine) Health(_ context.Context) error { return m.err }

type mockCache struct{ err error }

func (m *mockCache) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct{ err error }

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	fail := errors.New("down")

	tests := []struct {
		name      string
		engine    error
		cache     CachePinger
		embedding EmbeddingChecker
		want      Status
		checks    map[string]CheckResult
	}{
		{
			name:      "all healthy",
			cache:     &mockCache{},
			embedding: &mockEmbeddingChecker{},
			want:      Healthy,
			checks: map[string]CheckResult{
				ComponentEngine: CheckOK, ComponentCache: CheckOK, ComponentEmbedding: CheckOK,
			},
		},
		{
			name:   "engine only",
			want:   Healthy,
			checks: map[string]CheckResult{ComponentEngine: CheckOK},
		},
		{
			name:   "engine down",
			engine: fail,
			cache:  &mockCache{},
			want:   Unhealthy,
			checks: map[string]CheckResult{ComponentEngine: CheckError, ComponentCache: CheckOK},
		},
		{
			name:   "cache down",
			cache:  &mockCache{err: fail},
			want:   Degraded,
			checks: map[string]CheckResult{ComponentEngine: CheckOK, ComponentCache: CheckError},
		},
		{
			name:      "embedding down",
			embedding: &mockEmbeddingChecker{err: fail},
			want:      Degraded,
			checks:    map[string]CheckResult{ComponentEngine: CheckOK, ComponentEmbedding: CheckError},
		},
		{
			name:      "engine and cache down",
			engine:    fail,
			cache:     &mockCache{err: fail},
			embedding: &mockEmbeddingChecker{err: fail},
			want:      Unhealthy,
			checks: map[string]CheckResult{
				ComponentEngine: CheckError, ComponentCache: CheckError, ComponentEmbedding: CheckError,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&mockEngine{err: tt.engine}, tt.cache, tt.embedding)
			r := svc.Check(context.Background())

			if r.Status != tt.want {
				t.Errorf("status = %q, want %q", r.Status, tt.want)
			}
			if len(r.Checks) != len(tt.checks) {
				t.Fatalf("checks = %v, want %v", r.Checks, tt.checks)
			}
			for k, v := range tt.checks {
				if r.Checks[k] != v {
					t.Errorf("check %s = %q, want %q", k, r.Checks[k], v)
				}
			}
		})
	}
}
