// Package meili is the HTTP transport to a Meilisearch-compatible engine.
package meili

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Config holds the engine connection settings.
type Config struct {
	URL       string
	SearchKey string
	AdminKey  string
	Timeout   time.Duration
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// GzipMinBytes compresses request bodies at or above this size; zero disables compression.
	GzipMinBytes int
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Client sends requests to the engine and maps non-2xx replies to *remote.Error.
type Client struct {
	base    *url.URL
	key     string
	admin   bool
	http    *http.Client
	limiter *rate.Limiter
	gzipMin int
	logger  *zap.Logger
}

// New creates a client for the engine at cfg.URL.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("meilisearch url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse meilisearch url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("meilisearch url %q: scheme must be http or https", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:    base,
		key:     cfg.SearchKey,
		http:    httpClient,
		gzipMin: cfg.GzipMinBytes,
		logger:  logger.OrNop(cfg.Logger),
	}
	if cfg.AdminKey != "" {
		c.key = cfg.AdminKey
		c.admin = true
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// IsAdmin reports whether requests are signed with the admin key.
func (c *Client) IsAdmin() bool { return c.admin }

// Do sends req and returns the raw reply. Non-2xx replies become *remote.Error.
func (c *Client) Do(ctx context.Context, req remote.Request) (remote.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return remote.Response{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return remote.Response{}, err
	}

	route := Route(req.Path)
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.RemoteRequestDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(req.Method, route, "error").Inc()
		logger.FromContext(ctx, c.logger).Debug("remote request failed",
			zap.String("method", req.Method), zap.String("path", req.Path), zap.Error(err))
		return remote.Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.Response{}, fmt.Errorf("read %s %s response: %w", req.Method, req.Path, err)
	}
	metrics.RemoteRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := remote.NewError(resp.StatusCode, body)
		logger.FromContext(ctx, c.logger).Debug("remote request rejected",
			zap.String("method", req.Method), zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode), zap.String("code", rerr.Code))
		return remote.Response{}, rerr
	}
	return remote.Response{Status: resp.StatusCode, Body: body}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req remote.Request) (*http.Request, error) {
	// req.Path arrives with its segments already escaped; keep that encoding
	// in RawPath so it is not escaped a second time.
	u := *c.base
	raw := strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.TrimLeft(req.Path, "/")
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	u.Path, u.RawPath = unescaped, raw
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var (
		body    io.Reader = http.NoBody
		encoded bool
	)
	if len(req.Body) > 0 {
		payload := req.Body
		if c.gzipMin > 0 && len(payload) >= c.gzipMin {
			compressed, err := compress(payload)
			if err != nil {
				return nil, err
			}
			payload = compressed
			encoded = true
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", remote.ContentTypeJSON)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if encoded {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if c.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.key)
	}
	return httpReq, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	return buf.Bytes(), nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string) (remote.Response, error) {
	return c.Do(ctx, remote.Get(path))
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (remote.Response, error) {
	return c.Do(ctx, remote.Delete(path))
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (remote.Response, error) {
	return c.send(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (remote.Response, error) {
	return c.send(ctx, http.MethodPut, path, body)
}

// Patch sends body as JSON.
func (c *Client) Patch(ctx context.Context, path string, body any) (remote.Response, error) {
	return c.send(ctx, http.MethodPatch, path, body)
}

func (c *Client) send(ctx context.Context, method, path string, body any) (remote.Response, error) {
	req, err := remote.NewJSON(method, path, body)
	if err != nil {
		return remote.Response{}, err
	}
	return c.Do(ctx, req)
}

// Health checks the engine's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("meilisearch health: %w", err)
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := resp.Decode(&status); err != nil {
		return fmt.Errorf("meilisearch health: %w", err)
	}
	if status.Status != "available" {
		return fmt.Errorf("meilisearch health: status %q", status.Status)
	}
	return nil
}

// Route collapses ids in a request path into placeholders for metric labels.
func Route(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch parts[0] {
	case "indexes":
		if len(parts) > 1 {
			parts[1] = "{uid}"
		}
		if len(parts) > 3 && parts[2] == "documents" && parts[3] != "fetch" && parts[3] != "delete-batch" {
			parts[3] = "{doc}"
		}
	case "tasks":
		if len(parts) > 1 {
			parts[1] = "{uid}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
