// Package config provides unified configuration for the weft service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the weft service.
type Config struct {
	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Schema document configuration
	Schema SchemaConfig `json:"schema" yaml:"schema"`

	// Query execution configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Datasources maps datasource names to backend configuration
	Datasources map[string]DatasourceConfig `json:"datasources" yaml:"datasources"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// SchemaConfig holds schema document source configuration.
type SchemaConfig struct {
	// Source is the document source type: local, s3
	Source string `json:"source" yaml:"source"`

	// Path is the local schema document path (for local source)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 source)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 schema document configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Key is the object key of the schema document
	Key string `json:"key" yaml:"key"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// QueryConfig holds query execution configuration.
type QueryConfig struct {
	// MaxConcurrentFetches bounds the backend fetches in flight per query
	MaxConcurrentFetches int `json:"max_concurrent_fetches" yaml:"max_concurrent_fetches"`

	// MaxRetries is the retry budget per backend fetch
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay is the first retry backoff; each retry doubles it
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`

	// Timeout is the overall deadline for one query
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// DefaultPageSize applies when a request omits page_size
	DefaultPageSize int `json:"default_page_size" yaml:"default_page_size"`

	// MaxPageSize caps the requested page_size
	MaxPageSize int `json:"max_page_size" yaml:"max_page_size"`

	// CacheMaxBytes bounds the dimension fetch cache (0 disables it)
	CacheMaxBytes int64 `json:"cache_max_bytes" yaml:"cache_max_bytes"`

	// CacheTTL is how long a cached dimension fetch stays valid
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DatasourceConfig holds configuration for one backend datasource.
type DatasourceConfig struct {
	// Type is the backend type: pinot, trino, sql
	Type string `json:"type" yaml:"type"`

	// URL is the backend base URL (pinot broker or trino coordinator)
	URL string `json:"url" yaml:"url"`

	// User is the backend user (trino X-Trino-User, sql DSN user)
	User string `json:"user" yaml:"user"`

	// Password is the backend password, if the backend requires auth
	Password string `json:"password" yaml:"password"`

	// Catalog is the trino catalog
	Catalog string `json:"catalog" yaml:"catalog"`

	// Schema is the trino schema or sql database name
	Schema string `json:"schema" yaml:"schema"`

	// Driver is the database/sql driver name (for sql type)
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the database/sql data source name (for sql type)
	DSN string `json:"dsn" yaml:"dsn"`

	// Tables maps entity names to physical table names; unmapped entities
	// use their own name
	Tables map[string]string `json:"tables" yaml:"tables"`
}

// TableFor returns the physical table name for an entity.
func (d DatasourceConfig) TableFor(entity string) string {
	if t, ok := d.Tables[entity]; ok {
		return t
	}
	for k, v := range d.Tables {
		if strings.EqualFold(k, entity) {
			return v
		}
	}
	return entity
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Schema: SchemaConfig{
			Source: "local",
			Path:   "./config/entities.yaml",
		},
		Query: QueryConfig{
			MaxConcurrentFetches: 8,
			MaxRetries:           3,
			RetryBaseDelay:       100 * time.Millisecond,
			Timeout:              30 * time.Second,
			DefaultPageSize:      100,
			MaxPageSize:          10000,
			CacheMaxBytes:        64 * 1024 * 1024,
			CacheTTL:             5 * time.Minute,
		},
		Datasources: map[string]DatasourceConfig{},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	switch c.Schema.Source {
	case "local":
		if c.Schema.Path == "" {
			return fmt.Errorf("schema.path is required when schema source is local")
		}
	case "s3":
		if c.Schema.S3.Bucket == "" {
			return fmt.Errorf("schema.s3.bucket is required when schema source is s3")
		}
		if c.Schema.S3.Key == "" {
			return fmt.Errorf("schema.s3.key is required when schema source is s3")
		}
	default:
		return fmt.Errorf("invalid schema source: %s (must be local or s3)", c.Schema.Source)
	}

	if c.Query.MaxConcurrentFetches < 1 {
		return fmt.Errorf("query.max_concurrent_fetches must be at least 1, got %d", c.Query.MaxConcurrentFetches)
	}
	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("query.max_retries must not be negative, got %d", c.Query.MaxRetries)
	}
	if c.Query.DefaultPageSize < 1 {
		return fmt.Errorf("query.default_page_size must be at least 1, got %d", c.Query.DefaultPageSize)
	}
	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return fmt.Errorf("query.max_page_size must be at least default_page_size, got %d", c.Query.MaxPageSize)
	}

	for name, ds := range c.Datasources {
		switch ds.Type {
		case "pinot", "trino":
			if ds.URL == "" {
				return fmt.Errorf("datasource %s: url is required for %s backends", name, ds.Type)
			}
		case "sql":
			if ds.Driver == "" || ds.DSN == "" {
				return fmt.Errorf("datasource %s: driver and dsn are required for sql backends", name)
			}
		default:
			return fmt.Errorf("datasource %s: invalid type %s (must be pinot, trino, or sql)", name, ds.Type)
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the WEFT_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("WEFT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Schema configuration
	if v := os.Getenv("WEFT_SCHEMA_SOURCE"); v != "" {
		cfg.Schema.Source = v
	}
	if v := os.Getenv("WEFT_SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}
	if v := os.Getenv("WEFT_SCHEMA_S3_BUCKET"); v != "" {
		cfg.Schema.S3.Bucket = v
	}
	if v := os.Getenv("WEFT_SCHEMA_S3_KEY"); v != "" {
		cfg.Schema.S3.Key = v
	}
	if v := os.Getenv("WEFT_SCHEMA_S3_REGION"); v != "" {
		cfg.Schema.S3.Region = v
	}
	if v := os.Getenv("WEFT_SCHEMA_S3_ENDPOINT"); v != "" {
		cfg.Schema.S3.Endpoint = v
	}

	// Query configuration
	if v := os.Getenv("WEFT_QUERY_MAX_CONCURRENT_FETCHES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.MaxConcurrentFetches)
	}
	if v := os.Getenv("WEFT_QUERY_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.MaxRetries)
	}
	if v := os.Getenv("WEFT_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.Timeout = d
		}
	}
	if v := os.Getenv("WEFT_QUERY_DEFAULT_PAGE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.DefaultPageSize)
	}
	if v := os.Getenv("WEFT_QUERY_MAX_PAGE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.MaxPageSize)
	}
	if v := os.Getenv("WEFT_QUERY_CACHE_MAX_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.CacheMaxBytes)
	}
}
