// Package searchcache caches search responses of the remote engine in the key-value store.
package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/db"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/task"
	"github.com/kailas-cloud/meilifed/internal/logger"
)

// KeyPrefix namespaces cached responses in the store.
const KeyPrefix = "meilifed:search:"

// multiScope holds multi-search responses, which may span any index.
const multiScope = "_multi"

// globalScope tracks writes that are not bound to one index.
const globalScope = "*"

// Remote sends requests to the search engine.
type Remote interface {
	Do(ctx context.Context, req remote.Request) (remote.Response, error)
}

// store is the consumer interface for the response cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Cache is a Remote decorator: successful searches are served from the store until
// their TTL expires or a write touches the searched index.
//
// Engine writes are asynchronous. While a write task on a scope is still queued
// or processing, searches on that scope bypass the cache, and the scope is
// purged again once the task finishes.
type Cache struct {
	inner      Remote
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger

	mu       sync.Mutex
	inflight map[int64]string // task uid -> scope
}

// New wraps inner. cacheTotal is a counter vec with label "result", may be nil.
func New(inner Remote, s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, l *zap.Logger) *Cache {
	return &Cache{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger.OrNop(l),
		inflight:   make(map[int64]string),
	}
}

// Do serves cacheable searches from the store and purges stale entries after writes.
// Store failures are logged and never fail the request.
func (c *Cache) Do(ctx context.Context, req remote.Request) (remote.Response, error) {
	scope, kind := classify(req)
	switch kind {
	case kindSearch:
		return c.search(ctx, scope, req)
	case kindWrite:
		resp, err := c.inner.Do(ctx, req)
		if err == nil {
			c.purge(ctx, scope)
			c.track(scope, resp)
		}
		return resp, err
	default:
		return c.inner.Do(ctx, req)
	}
}

func (c *Cache) search(ctx context.Context, scope string, req remote.Request) (remote.Response, error) {
	if !c.settled(ctx, scope) {
		c.inc("bypass")
		return c.inner.Do(ctx, req)
	}
	key := cacheKey(scope, req)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.inc("hit")
		return remote.Response{Status: http.StatusOK, Body: data}, nil
	case !errors.Is(err, db.ErrKeyNotFound):
		c.logger.Warn("Failed to read cached search", zap.String("key", key), zap.Error(err))
	}
	c.inc("miss")

	resp, err := c.inner.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.Status == http.StatusOK && len(resp.Body) > 0 {
		if err := c.store.SetWithTTL(ctx, key, resp.Body, c.ttl); err != nil {
			c.logger.Warn("Failed to cache search", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

// purge drops the entries a write may have invalidated. An empty scope drops everything.
func (c *Cache) purge(ctx context.Context, scope string) {
	patterns := []string{KeyPrefix + "*"}
	if scope != "" {
		patterns = []string{KeyPrefix + scope + ":*", KeyPrefix + multiScope + ":*"}
	}
	for _, p := range patterns {
		keys, err := c.store.Scan(ctx, p)
		if err != nil {
			c.logger.Warn("Failed to scan cached searches", zap.String("pattern", p), zap.Error(err))
			continue
		}
		if err := c.store.Del(ctx, keys...); err != nil {
			c.logger.Warn("Failed to purge cached searches", zap.String("pattern", p), zap.Error(err))
		}
	}
}

// track remembers the task of an accepted write until it finishes.
func (c *Cache) track(scope string, resp remote.Response) {
	ref, err := resp.Task()
	if err != nil || (ref.Status != task.StatusEnqueued && ref.Status != task.StatusProcessing) {
		return
	}
	if scope == "" {
		scope = globalScope
	}
	c.mu.Lock()
	c.inflight[ref.TaskUID] = scope
	c.mu.Unlock()
}

// settled reports whether no tracked write can still change results for scope.
// Finished tasks are forgotten and their scope is purged once more, dropping
// anything cached while they ran.
func (c *Cache) settled(ctx context.Context, scope string) bool {
	c.mu.Lock()
	pending := make(map[int64]string)
	for uid, s := range c.inflight {
		if scope == multiScope || s == scope || s == globalScope {
			pending[uid] = s
		}
	}
	c.mu.Unlock()

	settled := true
	for uid, s := range pending {
		if !c.finished(ctx, uid) {
			settled = false
			continue
		}
		c.mu.Lock()
		delete(c.inflight, uid)
		c.mu.Unlock()
		if s == globalScope {
			s = ""
		}
		c.purge(ctx, s)
	}
	return settled
}

// finished asks the engine for a task's status. A task the engine no longer
// knows about counts as finished; any other failure counts as still running.
func (c *Cache) finished(ctx context.Context, uid int64) bool {
	resp, err := c.inner.Do(ctx, remote.Get("/tasks/"+strconv.FormatInt(uid, 10)))
	if err != nil {
		if remote.IsNotFound(err) {
			return true
		}
		c.logger.Debug("Failed to check write task", zap.Int64("task_uid", uid), zap.Error(err))
		return false
	}
	var t task.Task
	if err := resp.Decode(&t); err != nil {
		return false
	}
	return t.Status.Finished()
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

type requestKind int

const (
	kindPassthrough requestKind = iota
	kindSearch
	kindWrite
)

// classify returns the index uid a request targets (empty when it spans
// indexes or none) and whether it is a cacheable search, a write, or neither.
func classify(req remote.Request) (string, requestKind) {
	path := strings.Trim(req.Path, "/")
	parts := strings.Split(path, "/")

	if path == "multi-search" {
		if req.Method == http.MethodPost {
			return multiScope, kindSearch
		}
		return "", kindPassthrough
	}

	if parts[0] != "indexes" || len(parts) < 2 {
		if req.Method == http.MethodGet || parts[0] == "tasks" || parts[0] == "health" {
			return "", kindPassthrough
		}
		return "", kindWrite
	}

	uid := parts[1]
	rest := strings.Join(parts[2:], "/")
	switch {
	case rest == "search" && (req.Method == http.MethodPost || req.Method == http.MethodGet):
		return uid, kindSearch
	case req.Method == http.MethodGet:
		return uid, kindPassthrough
	case rest == "documents/fetch":
		return uid, kindPassthrough
	default:
		return uid, kindWrite
	}
}

func cacheKey(scope string, req remote.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s %s?%s\n", req.Method, req.Path, req.Query.Encode())
	h.Write(req.Body)
	return KeyPrefix + scope + ":" + hex.EncodeToString(h.Sum(nil))
}
