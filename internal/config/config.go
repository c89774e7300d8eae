// Package config handles ClaireVue configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL is how long a cached query document lives after its
// most recent write.
const DefaultCacheTTL = 72 * time.Hour

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./config.yaml, ~/.config/clairevue/config.yaml, /etc/clairevue/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "clairevue", "config.yaml"))
	}

	paths = append(paths, "/etc/clairevue/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all ClaireVue configuration.
type Config struct {
	Listen    ListenConfig  `yaml:"listen"`
	Search    SearchConfig  `yaml:"search"`
	Images    ImagesConfig  `yaml:"images"`
	YouTube   YouTubeConfig `yaml:"youtube"`
	LLM       LLMConfig     `yaml:"llm"`
	Cache     CacheConfig   `yaml:"cache"`
	Intent    IntentConfig  `yaml:"intent"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`

	// CORSOrigins lists the UI origins allowed to call the API.
	// Empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`
}

// SearchConfig selects and configures the mandatory web search provider.
type SearchConfig struct {
	Provider string        `yaml:"provider"` // brave (default) or searxng
	Count    int           `yaml:"count"`    // results per query (default 10)
	Brave    BraveConfig   `yaml:"brave"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
}

// BraveConfig holds a Brave Search API subscription token.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig points at a self-hosted SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// ImagesConfig configures image search. Brave issues image search
// tokens separately from web search ones.
type ImagesConfig struct {
	Brave BraveConfig `yaml:"brave"`
}

// YouTubeConfig configures the YouTube Data API client.
type YouTubeConfig struct {
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"` // default 12
}

// LLMConfig configures answer generation.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai (default) or anthropic

	// Model streams the grounded answer.
	Model string `yaml:"model"`

	// RelatedModel generates follow-up questions. Defaults to Model.
	RelatedModel string `yaml:"related_model"`

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`

	// MaxGroundingResults caps how many web results are numbered into
	// the answer prompt (default 8).
	MaxGroundingResults int `yaml:"max_grounding_results"`
}

// OpenAIConfig defines settings for any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // empty = api.openai.com
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// CacheConfig configures the query document cache.
type CacheConfig struct {
	// URL selects the backend: memory://, sqlite:///path/to/cache.db,
	// redis://host:6379/0 or rediss://... Empty means memory://.
	URL string `yaml:"url"`

	// TTL is refreshed on every write (default 72h).
	TTL time.Duration `yaml:"ttl"`

	// Compress stores documents zstd-compressed (default true).
	Compress *bool `yaml:"compress"`

	// MaxEntries bounds the in-memory backend (default 1000).
	MaxEntries int `yaml:"max_entries"`
}

// CompressEnabled reports whether cached documents are compressed.
func (c CacheConfig) CompressEnabled() bool {
	return c.Compress == nil || *c.Compress
}

// IntentConfig tunes the navigational intent heuristic. Zero values
// select the defaults.
type IntentConfig struct {
	MaxDistance  int `yaml:"max_distance"`   // default 2
	MinWordLen   int `yaml:"min_word_len"`   // words must be longer than this (default 2)
	MinJoinedLen int `yaml:"min_joined_len"` // joined query must be longer than this (default 3)
}

// Load reads configuration from a YAML file. A .env file next to the
// config file is loaded first so ${VAR} references can resolve from
// it; variables already set in the environment take precedence.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Default returns a default configuration. It runs with the in-memory
// cache and no provider credentials, so every query fails with a
// configuration error until a web search key is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "brave"
	}
	if c.Search.Count == 0 {
		c.Search.Count = 10
	}
	if c.YouTube.MaxResults == 0 {
		c.YouTube.MaxResults = 12
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.Model = "claude-3-5-haiku-latest"
		default:
			c.LLM.Model = "gpt-4o-mini"
		}
	}
	if c.LLM.RelatedModel == "" {
		c.LLM.RelatedModel = c.LLM.Model
	}
	if c.LLM.MaxGroundingResults == 0 {
		c.LLM.MaxGroundingResults = 8
	}
	if c.Cache.URL == "" {
		c.Cache.URL = "memory://"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Intent.MaxDistance == 0 {
		c.Intent.MaxDistance = 2
	}
	if c.Intent.MinWordLen == 0 {
		c.Intent.MinWordLen = 2
	}
	if c.Intent.MinJoinedLen == 0 {
		c.Intent.MinJoinedLen = 3
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks the configuration for values that cannot work.
// Missing credentials are not errors: they disable the capability
// they belong to.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}

	switch c.Search.Provider {
	case "brave":
	case "searxng":
		if c.Search.SearXNG.URL == "" {
			errs = append(errs, errors.New("search.searxng.url is required when search.provider is searxng"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown search.provider %q (valid: brave, searxng)", c.Search.Provider))
	}
	if c.Search.Count < 1 || c.Search.Count > 20 {
		errs = append(errs, fmt.Errorf("search.count %d out of range 1-20", c.Search.Count))
	}
	if c.YouTube.MaxResults < 1 || c.YouTube.MaxResults > 50 {
		errs = append(errs, fmt.Errorf("youtube.max_results %d out of range 1-50", c.YouTube.MaxResults))
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q (valid: openai, anthropic)", c.LLM.Provider))
	}
	if c.LLM.MaxGroundingResults < 1 {
		errs = append(errs, fmt.Errorf("llm.max_grounding_results must be positive"))
	}

	u, err := url.Parse(c.Cache.URL)
	if err != nil {
		errs = append(errs, fmt.Errorf("cache.url: %w", err))
	} else {
		switch u.Scheme {
		case "memory", "redis", "rediss":
		case "sqlite":
			if u.Path == "" {
				errs = append(errs, errors.New("cache.url: sqlite backend needs a path (sqlite:///path/to/cache.db)"))
			}
		default:
			errs = append(errs, fmt.Errorf("cache.url: unknown scheme %q (valid: memory, sqlite, redis, rediss)", u.Scheme))
		}
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}
