package meilifed

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type groupDecl struct {
	name    string
	entries []GroupEntry
}

type clientConfig struct {
	url        string
	searchKey  string
	adminKey   string
	httpClient *http.Client
	timeout    time.Duration

	prefix string
	suffix string

	repositories []Repository
	groups       []groupDecl
	normalizers  []Normalizer

	taskTimeout  time.Duration
	pollInterval time.Duration

	skipPing bool

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithURL sets the engine base URL, e.g. "http://localhost:7700". Required.
func WithURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.url = url
	})
}

// WithKeys sets the API keys. The admin key is used when set; index
// provisioning and settings need it.
func WithKeys(searchKey, adminKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.searchKey = searchKey
		c.adminKey = adminKey
	})
}

// WithHTTPClient replaces the HTTP client used to reach the engine.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithAffixes sets the prefix and suffix that turn logical ids into remote uids.
func WithAffixes(prefix, suffix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.prefix = prefix
		c.suffix = suffix
	})
}

// WithRepositories loads the indexes declared by each repository, in order.
func WithRepositories(repos ...Repository) Option {
	return optionFunc(func(c *clientConfig) {
		c.repositories = append(c.repositories, repos...)
	})
}

// WithGroup declares a search group. Members without a weight count as 1.
func WithGroup(name string, entries ...GroupEntry) Option {
	return optionFunc(func(c *clientConfig) {
		c.groups = append(c.groups, groupDecl{name: name, entries: entries})
	})
}

// WithNormalizers registers normalizers for non-map documents. Earlier ones take precedence.
func WithNormalizers(n ...Normalizer) Option {
	return optionFunc(func(c *clientConfig) {
		c.normalizers = append(c.normalizers, n...)
	})
}

// WithTaskTimeouts sets how long index creation is awaited and how often its task is polled.
// Defaults: 5s and 50ms.
func WithTaskTimeouts(timeout, pollInterval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.taskTimeout = timeout
		c.pollInterval = pollInterval
	})
}

// WithoutPing skips the engine health check in New.
func WithoutPing() Option {
	return optionFunc(func(c *clientConfig) {
		c.skipPing = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
