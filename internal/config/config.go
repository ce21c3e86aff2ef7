package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/meilifed/internal/domain/group"
)

// Config holds the meilifed configuration.
type Config struct {
	HTTP         HTTPConfig               `yaml:"http" toml:"http"`
	Meilisearch  MeilisearchConfig        `yaml:"meilisearch" toml:"meilisearch"`
	Indexes      AffixConfig              `yaml:"indexes" toml:"indexes"`
	Tasks        TasksConfig              `yaml:"tasks" toml:"tasks"`
	Batch        BatchConfig              `yaml:"batch" toml:"batch"`
	Groups       map[string][]group.Entry `yaml:"groups" toml:"groups"`
	Repositories []RepositoryConfig       `yaml:"repositories" toml:"repositories"`
	Cache        CacheConfig              `yaml:"cache" toml:"cache"`
	Embedding    EmbeddingConfig          `yaml:"embedding" toml:"embedding"`
	Auth         AuthConfig               `yaml:"auth" toml:"auth"`
	Logging      LoggingConfig            `yaml:"logging" toml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds gateway authentication settings. APIKeys grant full access;
// SearchKeys only allow searches and catalog reads. No keys disables auth.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys" toml:"api_keys"`
	SearchKeys []string `yaml:"search_keys" toml:"search_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port" toml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec" toml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec" toml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
}

// MeilisearchConfig holds the remote engine connection.
type MeilisearchConfig struct {
	URL            string  `yaml:"url" toml:"url"`
	SearchKey      string  `yaml:"search_key" toml:"search_key"`
	AdminKey       string  `yaml:"admin_key" toml:"admin_key"`
	TimeoutSec     int     `yaml:"timeout_sec" toml:"timeout_sec"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" toml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst int     `yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	GzipMinBytes   int     `yaml:"gzip_min_bytes" toml:"gzip_min_bytes"` // 0 = never compress
}

// AffixConfig holds the remote uid prefix and suffix.
type AffixConfig struct {
	Prefix string `yaml:"prefix" toml:"prefix"`
	Suffix string `yaml:"suffix" toml:"suffix"`
}

// TasksConfig holds engine task polling settings.
type TasksConfig struct {
	TimeoutMs  int `yaml:"timeout_ms" toml:"timeout_ms"`
	IntervalMs int `yaml:"interval_ms" toml:"interval_ms"`
}

// BatchConfig holds document batching settings.
type BatchConfig struct {
	FlushConcurrency int `yaml:"flush_concurrency" toml:"flush_concurrency"`
}

// RepositoryConfig declares a set of managed indexes.
type RepositoryConfig struct {
	Name     string         `yaml:"name" toml:"name"`
	Settings map[string]any `yaml:"settings" toml:"settings"` // shared by every index of the repository
	Indexes  []IndexConfig  `yaml:"indexes" toml:"indexes"`
}

// IndexConfig declares one managed index.
type IndexConfig struct {
	ID         string         `yaml:"id" toml:"id"`
	PrimaryKey string         `yaml:"primary_key" toml:"primary_key"`
	Context    map[string]any `yaml:"context" toml:"context"`
	Settings   map[string]any `yaml:"settings" toml:"settings"`
}

// CacheConfig holds the key-value store used for caching. An empty driver disables caching.
type CacheConfig struct {
	Driver           string   `yaml:"driver" toml:"driver"` // redis, valkey
	Addrs            []string `yaml:"addrs" toml:"addrs"`
	Password         string   `yaml:"password" toml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec" toml:"readiness_timeout_sec"`
	SearchTTLSec     int      `yaml:"search_ttl_sec" toml:"search_ttl_sec"`       // 0 = search cache off
	EmbeddingTTLSec  int      `yaml:"embedding_ttl_sec" toml:"embedding_ttl_sec"` // 0 = keep forever
}

// EmbeddingConfig holds `_vectors` enrichment settings.
type EmbeddingConfig struct {
	Provider    string              `yaml:"provider" toml:"provider"`
	APIKey      string              `yaml:"api_key" toml:"api_key"`
	BaseURL     string              `yaml:"base_url" toml:"base_url"`
	Model       string              `yaml:"model" toml:"model"`
	Dimensions  int                 `yaml:"dimensions" toml:"dimensions"`
	User        string              `yaml:"user" toml:"user"`
	Instruction string              `yaml:"instruction" toml:"instruction"`
	Embedder    string              `yaml:"embedder" toml:"embedder"` // Meilisearch embedder name
	Fields      map[string][]string `yaml:"fields" toml:"fields"`     // logical index id -> text fields
}

// Enabled reports whether any index is configured for enrichment.
func (e EmbeddingConfig) Enabled() bool {
	return e.Model != "" && len(e.Fields) > 0
}

// Enabled reports whether a cache store is configured.
func (c CacheConfig) Enabled() bool { return c.Driver != "" }

// TaskTimeout returns the provisioning task timeout.
func (t TasksConfig) TaskTimeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// PollInterval returns the provisioning task poll interval.
func (t TasksConfig) PollInterval() time.Duration {
	return time.Duration(t.IntervalMs) * time.Millisecond
}

// Load reads configuration by environment name (local, dev, prod) from
// config/{env}.yaml or config/{env}.toml.
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path. The format follows the extension.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data, formatOf(path))
}

// Format is a config file encoding.
type Format string

// Supported config formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes, expands, defaults and validates raw configuration.
func Parse(data []byte, format Format) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Meilisearch.TimeoutSec <= 0 {
		c.Meilisearch.TimeoutSec = 30
	}
	if c.Meilisearch.RateLimitRPS > 0 && c.Meilisearch.RateLimitBurst <= 0 {
		c.Meilisearch.RateLimitBurst = 1
	}
	if c.Tasks.TimeoutMs <= 0 {
		c.Tasks.TimeoutMs = 5000
	}
	if c.Tasks.IntervalMs <= 0 {
		c.Tasks.IntervalMs = 50
	}
	if c.Batch.FlushConcurrency <= 0 {
		c.Batch.FlushConcurrency = 4
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Embedder == "" {
		c.Embedding.Embedder = "default"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Meilisearch.URL == "" {
		return errors.New("meilisearch.url is required")
	}
	if u, err := url.Parse(c.Meilisearch.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("meilisearch.url must be an absolute URL, got %q", c.Meilisearch.URL)
	}

	switch c.Cache.Driver {
	case "":
	case "redis", "valkey":
		if len(c.Cache.Addrs) == 0 {
			return errors.New("cache.addrs is required when cache.driver is set")
		}
	default:
		return fmt.Errorf("cache.driver must be \"redis\" or \"valkey\", got %q", c.Cache.Driver)
	}

	if len(c.Embedding.Fields) > 0 && c.Embedding.Model == "" {
		return errors.New("embedding.model is required when embedding.fields is set")
	}

	if err := c.validateRepositories(); err != nil {
		return err
	}
	for name, entries := range c.Groups {
		if _, err := group.New(name, entries); err != nil {
			return fmt.Errorf("groups.%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateRepositories() error {
	names := make(map[string]struct{}, len(c.Repositories))
	ids := make(map[string]string)
	for i, r := range c.Repositories {
		if r.Name == "" {
			return fmt.Errorf("repositories[%d].name is required", i)
		}
		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("repositories[%d]: duplicate repository %q", i, r.Name)
		}
		names[r.Name] = struct{}{}
		for j, idx := range r.Indexes {
			if idx.ID == "" {
				return fmt.Errorf("repositories.%s.indexes[%d].id is required", r.Name, j)
			}
			if owner, dup := ids[idx.ID]; dup {
				return fmt.Errorf("repositories.%s: index %q already declared by %q", r.Name, idx.ID, owner)
			}
			ids[idx.ID] = r.Name
		}
	}
	return nil
}

// findConfigPath locates the config file, preferring YAML over TOML.
func findConfigPath(env string) string {
	candidates := []string{env + ".yaml", env + ".toml"}

	// 1. Check ./config/
	for _, name := range candidates {
		if path := filepath.Join("config", name); fileExists(path) {
			return path
		}
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	for _, name := range candidates {
		if path := filepath.Join(projectRoot, "config", name); fileExists(path) {
			return path
		}
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", candidates[0])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
