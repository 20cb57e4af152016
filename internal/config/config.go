package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	MessageModePassthrough = "passthrough"
	MessageModePrompt      = "prompt"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	defaultPort              = 3000
	defaultModel             = "models/gemini-2.5-flash-lite"
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com"
	defaultGeminiAPIVersion  = "v1beta"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultSearchURL         = "https://api.tavily.com/search"
	defaultSearchMaxResults  = 3
	defaultMaxAttempts       = 5
	defaultRetryDelay        = 2 * time.Second
	defaultUpstreamTimeout   = 60 * time.Second
	defaultMetricsPath       = "/metrics"
)

// Config represents the application configuration. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Search     SearchConfig     `yaml:"search"`
	Retry      RetryConfig      `yaml:"retry"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sentinel   SentinelConfig   `yaml:"sentinel"`
}

// ServerConfig defines listener configuration and model defaults.
type ServerConfig struct {
	Port         int      `yaml:"port" validate:"min=1,max=65535"`
	DefaultModel string   `yaml:"default_model" validate:"required"`
	Models       []string `yaml:"models" validate:"dive,required"`
}

// GeminiConfig configures the primary generation provider.
type GeminiConfig struct {
	APIKey     string `yaml:"api_key" validate:"required"`
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	APIVersion string `yaml:"api_version" validate:"required"`
	// ModelVersions pins individual models to an API version, overriding APIVersion.
	ModelVersions map[string]string `yaml:"model_versions" validate:"dive,keys,required,endkeys,required"`
}

// OpenRouterConfig configures the aggregator provider reached through the
// "openrouter:" model prefix. An empty APIKey leaves it unregistered.
type OpenRouterConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url" validate:"required,url"`
	MessageMode string  `yaml:"message_mode" validate:"oneof=passthrough prompt"`
	Headers     Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// SearchConfig configures the optional web-search enrichment.
type SearchConfig struct {
	APIKey     string `yaml:"api_key"`
	URL        string `yaml:"url" validate:"required,url"`
	MaxResults int    `yaml:"max_results" validate:"min=1,max=20"`
}

// RetryConfig bounds the generation retry loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=10"`
	Delay       time.Duration `yaml:"delay" validate:"min=0"`

	// delaySet records an explicit delay in the file, including zero.
	delaySet bool
}

// UnmarshalYAML tracks whether delay was present so an explicit 0s is kept.
func (r *RetryConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxAttempts int            `yaml:"max_attempts"`
		Delay       *time.Duration `yaml:"delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	r.MaxAttempts = raw.MaxAttempts
	if raw.Delay != nil {
		r.Delay = *raw.Delay
		r.delaySet = true
	}
	return nil
}

// UpstreamConfig tunes the outbound HTTP client.
type UpstreamConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path" validate:"startswith=/"`
}

// On reports whether metrics are exposed. Unset means enabled.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// SentinelConfig holds the placeholder texts used when no real data is available.
type SentinelConfig struct {
	NoSearchResults string `yaml:"no_search_results"`
	GeminiNoAnswer  string `yaml:"gemini_no_answer"`
	GeminiFailed    string `yaml:"gemini_failed"`
	RouterNoAnswer  string `yaml:"openrouter_no_answer"`
	RouterFailed    string `yaml:"openrouter_failed"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration like Read and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read loads optional YAML configuration and applies defaults and
// environment overrides without validating it. An empty path skips the file.
func Read(path string) (Config, error) {
	var cfg Config

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg, os.LookupEnv)
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.DefaultModel == "" {
		cfg.Server.DefaultModel = defaultModel
	}
	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Gemini.APIVersion == "" {
		cfg.Gemini.APIVersion = defaultGeminiAPIVersion
	}
	if cfg.OpenRouter.BaseURL == "" {
		cfg.OpenRouter.BaseURL = defaultOpenRouterBaseURL
	}
	if cfg.OpenRouter.MessageMode == "" {
		cfg.OpenRouter.MessageMode = MessageModePassthrough
	}
	if cfg.Search.URL == "" {
		cfg.Search.URL = defaultSearchURL
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = defaultSearchMaxResults
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Retry.Delay == 0 && !cfg.Retry.delaySet {
		cfg.Retry.Delay = defaultRetryDelay
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = defaultUpstreamTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatText
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}

	s := &cfg.Sentinel
	if s.NoSearchResults == "" {
		s.NoSearchResults = "(no search results)"
	}
	if s.GeminiNoAnswer == "" {
		s.GeminiNoAnswer = "(no answer was returned by Gemini)"
	}
	if s.GeminiFailed == "" {
		s.GeminiFailed = "(an error occurred while calling Gemini)"
	}
	if s.RouterNoAnswer == "" {
		s.RouterNoAnswer = "(no answer was returned by OpenRouter)"
	}
	if s.RouterFailed == "" {
		s.RouterFailed = "(an error occurred while calling OpenRouter)"
	}
}

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies environment variables on top of file values.
// Environment variables always take precedence.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	if val, ok := lookup("PORT"); ok && val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
	if val, ok := lookup("GEMINI_MODEL"); ok && val != "" {
		cfg.Server.DefaultModel = val
	}
	if val, ok := lookup("GEMINI_API_KEY"); ok && val != "" {
		cfg.Gemini.APIKey = val
	}
	if val, ok := lookup("GEMINI_API_VERSION"); ok && val != "" {
		cfg.Gemini.APIVersion = val
	}
	if val, ok := lookup("OPENROUTER_API_KEY"); ok && val != "" {
		cfg.OpenRouter.APIKey = val
	}
	if val, ok := lookup("TAVILY_API_KEY"); ok && val != "" {
		cfg.Search.APIKey = val
	}
	if val, ok := lookup("LOG_LEVEL"); ok && val != "" {
		cfg.Log.Level = strings.ToLower(val)
	}
	if val, ok := lookup("LOG_FORMAT"); ok && val != "" {
		cfg.Log.Format = strings.ToLower(val)
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config %s: failed %q check (value %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}

	for headerKey := range c.OpenRouter.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("openrouter: header %q is not a valid canonical HTTP header", headerKey)
		}
	}
	return nil
}

// ExposedModels returns the model identifiers listed by GET /v1/models.
func (c Config) ExposedModels() []string {
	if len(c.Server.Models) == 0 {
		return []string{c.Server.DefaultModel}
	}
	out := make([]string, len(c.Server.Models))
	copy(out, c.Server.Models)
	return out
}

func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return strings.ToLower(rest)
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
