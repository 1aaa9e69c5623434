// Package config loads and validates the process-wide configuration for the
// SP-API tool core.
//
// DESIGN: All configuration comes from a YAML file plus environment variable
// expansion, grounded on the teacher's config.Load/LoadFromBytes pattern.
// Knobs the YAML leaves at their zero value are filled in by applyBaselines
// (default marketplace, default rate-limit bucket, credential safety margin,
// dispatcher timeout/retry/backoff, filter-engine limits, logging, and the
// operation deadline). Credential endpoints, secrets, and overrides get no
// default. The per-endpoint rate-limit table and the marketplace table ship
// as built-in baselines in the ratelimit and marketplace packages, which
// YAML may override or extend (spec.md §3/§4.3).
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the core.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Marketplace   MarketplaceConfig   `yaml:"marketplaces"`
	RateLimits    RateLimitConfig     `yaml:"rate_limits"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	FilterCatalog FilterCatalogConfig `yaml:"filter_catalog"`
	FilterEngine  FilterEngineConfig  `yaml:"filter_engine"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
}

// ServerConfig carries process-wide tunables unrelated to any one component.
type ServerConfig struct {
	// OperationDeadline bounds a single tool invocation end to end (spec.md
	// §5 "each operation honors an overall deadline").
	OperationDeadline time.Duration `yaml:"operation_deadline"`
}

// CredentialsConfig configures the dual-credential manager (C4).
type CredentialsConfig struct {
	// TokenEndpoint is the identity-provider refresh/token exchange URL.
	TokenEndpoint string `yaml:"token_endpoint"`
	RefreshToken  string `yaml:"refresh_token"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`

	// FederationEndpoint is parsed from the YAML but not read by the
	// credential manager; it has no effect on how signed credentials are
	// obtained.
	FederationEndpoint string `yaml:"federation_endpoint"`
	// AssumeRoleARN, when set, is the role the credential manager assumes
	// through its STS client to mint the short-lived signed-request
	// credential triple (spec.md §4.1 "delegated role"). Empty uses the
	// static pair.
	AssumeRoleARN   string `yaml:"assume_role_arn"`
	StaticKeyID     string `yaml:"static_key_id"`
	StaticSecretKey string `yaml:"static_secret_key"`

	// SafetyMargin is the minimum time-to-expiry a cached artifact must have
	// to be reused without refresh (spec.md §3 invariant, minimum 60s).
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

// MarketplaceConfig overlays the built-in marketplace table (spec.md §3).
type MarketplaceConfig struct {
	Default   string                 `yaml:"default"`
	Overrides map[string]Marketplace `yaml:"overrides"`
}

// Marketplace mirrors the spec.md §3 Marketplace record.
type Marketplace struct {
	ID           string `yaml:"id"`
	EndpointHost string `yaml:"endpoint_host"`
	Region       string `yaml:"region"`
	Currency     string `yaml:"currency"`
}

// RateLimitConfig overlays the built-in per-endpoint token-bucket table
// (spec.md §4.3).
type RateLimitConfig struct {
	Default  BucketConfig            `yaml:"default"`
	Prefixes map[string]BucketConfig `yaml:"prefixes"`
	// WaitOnSaturation selects between cooperative-wait and fail-fast
	// (RateLimitExceeded) admission behavior (spec.md §4.3/§4.4).
	WaitOnSaturation bool `yaml:"wait_on_saturation"`
}

// BucketConfig mirrors the spec.md §3 TokenBucket capacity/refillRate pair.
type BucketConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Capacity      float64 `yaml:"capacity"`
}

// DispatcherConfig configures retry/backoff and transport timeouts (C7).
type DispatcherConfig struct {
	TransportTimeout time.Duration `yaml:"transport_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
}

// FilterCatalogConfig configures the durable catalog store (C2).
type FilterCatalogConfig struct {
	// DSN is a database/sql data source name for modernc.org/sqlite, e.g.
	// "file:/var/lib/spapi-core/filters.db" or "file::memory:?cache=shared".
	DSN      string   `yaml:"dsn"`
	SeedDirs []string `yaml:"seed_dirs"`
}

// FilterEngineConfig configures the query-language evaluator's resource
// limits (spec.md §4.7 "Security").
type FilterEngineConfig struct {
	MaxDepth int `yaml:"max_depth"`
	MaxNodes int `yaml:"max_nodes"`
}

// MonitoringConfig configures structured logging.
type MonitoringConfig struct {
	LogLevel             string        `yaml:"log_level"`
	LogFormat            string        `yaml:"log_format"`
	LogOutput            string        `yaml:"log_output"`
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// expandEnvWithDefaults expands ${VAR} / ${VAR:-default} references.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes, expanding env vars
// and applying defaults for the baseline tables before validating.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyBaselines()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyBaselines fills in a baseline value for every knob below that the
// YAML left at its zero value.
func (c *Config) applyBaselines() {
	if c.Marketplace.Default == "" {
		c.Marketplace.Default = "UK"
	}
	if c.RateLimits.Default.RatePerSecond == 0 {
		c.RateLimits.Default = BucketConfig{RatePerSecond: 5, Capacity: 10}
	}
	if c.Credentials.SafetyMargin == 0 {
		c.Credentials.SafetyMargin = 60 * time.Second
	}
	if c.Dispatcher.TransportTimeout == 0 {
		c.Dispatcher.TransportTimeout = 30 * time.Second
	}
	if c.Dispatcher.MaxRetries == 0 {
		c.Dispatcher.MaxRetries = 3
	}
	if c.Dispatcher.BackoffBase == 0 {
		c.Dispatcher.BackoffBase = 500 * time.Millisecond
	}
	if c.Dispatcher.BackoffMax == 0 {
		c.Dispatcher.BackoffMax = 16 * time.Second
	}
	if c.FilterEngine.MaxDepth == 0 {
		c.FilterEngine.MaxDepth = 32
	}
	if c.FilterEngine.MaxNodes == 0 {
		c.FilterEngine.MaxNodes = 10000
	}
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = "info"
	}
	if c.Monitoring.LogOutput == "" {
		c.Monitoring.LogOutput = "stdout"
	}
	if c.Monitoring.HighLatencyThreshold == 0 {
		c.Monitoring.HighLatencyThreshold = 5 * time.Second
	}
	if c.Server.OperationDeadline == 0 {
		c.Server.OperationDeadline = 60 * time.Second
	}
}

// Validate checks invariants that the baseline fill-in cannot satisfy on its
// own (e.g. malformed overrides).
func (c *Config) Validate() error {
	if c.RateLimits.Default.Capacity <= 0 {
		return fmt.Errorf("rate_limits.default.capacity must be > 0")
	}
	for prefix, b := range c.RateLimits.Prefixes {
		if b.RatePerSecond <= 0 || b.Capacity <= 0 {
			return fmt.Errorf("rate_limits.prefixes[%s]: rate and capacity must be > 0", prefix)
		}
	}
	for id, mp := range c.Marketplace.Overrides {
		if mp.ID == "" || mp.EndpointHost == "" || mp.Region == "" || mp.Currency == "" {
			return fmt.Errorf("marketplaces.overrides[%s]: id, endpoint_host, region, currency are all required", id)
		}
	}
	if c.Credentials.SafetyMargin < 60*time.Second {
		return fmt.Errorf("credentials.safety_margin must be >= 60s per the credential-expiry invariant")
	}
	if c.FilterEngine.MaxDepth <= 0 || c.FilterEngine.MaxNodes <= 0 {
		return fmt.Errorf("filter_engine.max_depth and max_nodes must be > 0")
	}
	return nil
}
