// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metrics provider kinds
const (
	ProviderNone   = "none"
	ProviderHTTP   = "http"
	ProviderSearch = "search"
)

// Environment variables consulted when the matching field is empty
const (
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvMetricsProviderURL = "METRICS_PROVIDER_URL"
	EnvMetricsProviderKey = "METRICS_PROVIDER_KEY"
	EnvSearchAPIKey       = "GOOGLE_SEARCH_API_KEY"
	EnvSearchCX           = "GOOGLE_SEARCH_CX"
)

// Duration is a time.Duration that reads and writes strings such as "6h" or "30s"
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return fmt.Errorf("duration must be a string like \"30s\": %w", err)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Weights mirrors the scorer's component weights
type Weights struct {
	Volume      float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
	Competition float64 `json:"competition,omitempty" yaml:"competition,omitempty"`
	Difficulty  float64 `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Intent      float64 `json:"intent,omitempty" yaml:"intent,omitempty"`
}

// IsZero reports whether no weight is set
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults, env fallbacks or CLI flags.
type Config struct {
	// Generative service
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`         // Gemini API key
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`             // Override for the lite model tier
	RequireLLM bool   `json:"require_llm,omitempty" yaml:"require_llm,omitempty"` // Refuse to start without an API key

	// Metrics provider
	MetricsProvider    string `json:"metrics_provider,omitempty" yaml:"metrics_provider,omitempty"`         // none, http or search
	MetricsProviderURL string `json:"metrics_provider_url,omitempty" yaml:"metrics_provider_url,omitempty"` // Base URL for the http provider
	MetricsProviderKey string `json:"metrics_provider_key,omitempty" yaml:"metrics_provider_key,omitempty"` // Bearer token for the http provider
	SearchAPIKey       string `json:"search_api_key,omitempty" yaml:"search_api_key,omitempty"`             // Custom Search API key
	SearchCX           string `json:"search_cx,omitempty" yaml:"search_cx,omitempty"`                       // Custom Search engine ID

	// Cache
	CacheTTL           Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
	CacheMaxEntries    int      `json:"cache_max_entries,omitempty" yaml:"cache_max_entries,omitempty"`
	CacheSweepInterval Duration `json:"cache_sweep_interval,omitempty" yaml:"cache_sweep_interval,omitempty"`

	// Concurrency and timeouts
	Concurrency      int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`             // Candidates measured at once
	BatchConcurrency int      `json:"batch_concurrency,omitempty" yaml:"batch_concurrency,omitempty"` // Seeds researched at once
	RequestTimeout   Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`     // Deadline for one research request
	SeedTimeout      Duration `json:"seed_timeout,omitempty" yaml:"seed_timeout,omitempty"`           // Deadline for one batch seed

	// Outbound calls
	RetryMaxAttempts int      `json:"retry_max_attempts,omitempty" yaml:"retry_max_attempts,omitempty"`
	RetryBaseDelay   Duration `json:"retry_base_delay,omitempty" yaml:"retry_base_delay,omitempty"`
	RetryMaxDelay    Duration `json:"retry_max_delay,omitempty" yaml:"retry_max_delay,omitempty"`
	AttemptTimeout   Duration `json:"attempt_timeout,omitempty" yaml:"attempt_timeout,omitempty"`
	RateLimit        float64  `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // Outbound calls per second, 0 disables pacing
	RateBurst        int      `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`

	// Scoring
	VolumeCeiling int     `json:"volume_ceiling,omitempty" yaml:"volume_ceiling,omitempty"`
	Weights       Weights `json:"weights,omitempty" yaml:"weights,omitempty"`

	// Logging
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	Verbose  bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"` // Print detailed results

	// Server
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	CORSOrigin string `json:"cors_origin,omitempty" yaml:"cors_origin,omitempty"`
}

// Defaults returns the configuration used when nothing else is set
func Defaults() Config {
	return Config{
		MetricsProvider:    ProviderNone,
		CacheTTL:           Duration(6 * time.Hour),
		CacheMaxEntries:    1000,
		CacheSweepInterval: Duration(10 * time.Minute),
		Concurrency:        10,
		BatchConcurrency:   5,
		RequestTimeout:     Duration(2 * time.Minute),
		RetryMaxAttempts:   3,
		RetryBaseDelay:     Duration(500 * time.Millisecond),
		RetryMaxDelay:      Duration(8 * time.Second),
		AttemptTimeout:     Duration(30 * time.Second),
		RateBurst:          1,
		VolumeCeiling:      5000,
		LogLevel:           "info",
		Port:               8080,
		CORSOrigin:         "*",
	}
}

// LoadConfig loads configuration from a JSON file, or YAML when the file
// ends in .yaml or .yml. Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv fills empty secret fields from the environment using lookup.
// Pass os.Getenv in production.
func (c *Config) ApplyEnv(lookup func(string) string) {
	fill := func(field *string, env string) {
		if *field == "" {
			*field = lookup(env)
		}
	}
	fill(&c.APIKey, EnvGeminiAPIKey)
	fill(&c.MetricsProviderURL, EnvMetricsProviderURL)
	fill(&c.MetricsProviderKey, EnvMetricsProviderKey)
	fill(&c.SearchAPIKey, EnvSearchAPIKey)
	fill(&c.SearchCX, EnvSearchCX)
}

// Validate checks that the configuration has valid values.
// Zero values are accepted since MergeWithDefaults fills them.
func (c *Config) Validate() error {
	switch strings.ToLower(c.MetricsProvider) {
	case "", ProviderNone:
	case ProviderHTTP:
		if c.MetricsProviderURL == "" {
			return fmt.Errorf("config error: 'metrics_provider_url' is required for the http provider")
		}
	case ProviderSearch:
		if c.SearchAPIKey == "" || c.SearchCX == "" {
			return fmt.Errorf("config error: 'search_api_key' and 'search_cx' are required for the search provider")
		}
	default:
		return fmt.Errorf("config error: unknown metrics provider %q", c.MetricsProvider)
	}

	if c.RequireLLM && c.APIKey == "" {
		return fmt.Errorf("config error: 'require_llm' is set but no API key is configured (set %s)", EnvGeminiAPIKey)
	}

	counts := []struct {
		name string
		n    int
	}{
		{"cache_max_entries", c.CacheMaxEntries},
		{"concurrency", c.Concurrency},
		{"batch_concurrency", c.BatchConcurrency},
		{"retry_max_attempts", c.RetryMaxAttempts},
		{"rate_burst", c.RateBurst},
		{"volume_ceiling", c.VolumeCeiling},
		{"port", c.Port},
	}
	for _, f := range counts {
		if f.n < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", f.name)
		}
	}
	if c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be at most 65535")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config error: 'rate_limit' must be non-negative")
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"cache_ttl", c.CacheTTL},
		{"cache_sweep_interval", c.CacheSweepInterval},
		{"request_timeout", c.RequestTimeout},
		{"seed_timeout", c.SeedTimeout},
		{"retry_base_delay", c.RetryBaseDelay},
		{"retry_max_delay", c.RetryMaxDelay},
		{"attempt_timeout", c.AttemptTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", d.name)
		}
	}

	w := c.Weights
	if w.Volume < 0 || w.Competition < 0 || w.Difficulty < 0 || w.Intent < 0 {
		return fmt.Errorf("config error: scoring weights must be non-negative")
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
// This is used to apply config file values underneath CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	mergeString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	mergeInt := func(field *int, def int) {
		if *field == 0 {
			*field = def
		}
	}
	mergeDuration := func(field *Duration, def Duration) {
		if *field == 0 {
			*field = def
		}
	}

	mergeString(&result.APIKey, defaults.APIKey)
	mergeString(&result.Model, defaults.Model)
	mergeString(&result.MetricsProvider, defaults.MetricsProvider)
	mergeString(&result.MetricsProviderURL, defaults.MetricsProviderURL)
	mergeString(&result.MetricsProviderKey, defaults.MetricsProviderKey)
	mergeString(&result.SearchAPIKey, defaults.SearchAPIKey)
	mergeString(&result.SearchCX, defaults.SearchCX)
	mergeString(&result.LogLevel, defaults.LogLevel)
	mergeString(&result.LogFile, defaults.LogFile)
	mergeString(&result.CORSOrigin, defaults.CORSOrigin)

	mergeInt(&result.CacheMaxEntries, defaults.CacheMaxEntries)
	mergeInt(&result.Concurrency, defaults.Concurrency)
	mergeInt(&result.BatchConcurrency, defaults.BatchConcurrency)
	mergeInt(&result.RetryMaxAttempts, defaults.RetryMaxAttempts)
	mergeInt(&result.RateBurst, defaults.RateBurst)
	mergeInt(&result.VolumeCeiling, defaults.VolumeCeiling)
	mergeInt(&result.Port, defaults.Port)

	mergeDuration(&result.CacheTTL, defaults.CacheTTL)
	mergeDuration(&result.CacheSweepInterval, defaults.CacheSweepInterval)
	mergeDuration(&result.RequestTimeout, defaults.RequestTimeout)
	mergeDuration(&result.SeedTimeout, defaults.SeedTimeout)
	mergeDuration(&result.RetryBaseDelay, defaults.RetryBaseDelay)
	mergeDuration(&result.RetryMaxDelay, defaults.RetryMaxDelay)
	mergeDuration(&result.AttemptTimeout, defaults.AttemptTimeout)

	if result.RateLimit == 0 {
		result.RateLimit = defaults.RateLimit
	}
	if result.Weights.IsZero() {
		result.Weights = defaults.Weights
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
