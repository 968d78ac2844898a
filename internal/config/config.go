package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/pagelens/pkg/dom"
)

// Config is the root configuration for pagelens.
type Config struct {
	Browser   BrowserConfig   `json:"browser" yaml:"browser"`
	Extract   ExtractConfig   `json:"extract" yaml:"extract"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	mu sync.RWMutex
}

// BrowserConfig controls how Chrome is launched or reached.
type BrowserConfig struct {
	Headless      bool   `json:"headless" yaml:"headless"`
	RemoteURL     string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	ExtraFlags    string `json:"extra_flags,omitempty" yaml:"extra_flags,omitempty"`
	TokenEncoding string `json:"token_encoding,omitempty" yaml:"token_encoding,omitempty"`
}

// ExtractConfig holds the filter thresholds and serializer defaults.
type ExtractConfig struct {
	Filters dom.Config  `json:"filters" yaml:"filters"`
	Options dom.Options `json:"options" yaml:"options"`
	// Compact drops structure lines with no indexed line below them.
	Compact  bool `json:"compact,omitempty" yaml:"compact,omitempty"`
	MaxChars int  `json:"max_chars" yaml:"max_chars"`
}

// GatewayConfig configures the WebSocket gateway.
type GatewayConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	Token          string `json:"token,omitempty" yaml:"token,omitempty"`
	RateLimitRPM   int    `json:"rate_limit_rpm,omitempty" yaml:"rate_limit_rpm,omitempty"`
	RateLimitBurst int    `json:"rate_limit_burst,omitempty" yaml:"rate_limit_burst,omitempty"`
}

// StoreConfig selects where identity records live between calls.
type StoreConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // "memory", "redis" or "sqlite"
	Capacity   int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	RedisURL   string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	KeyPrefix  string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{Headless: true},
		Extract: ExtractConfig{
			Filters:  dom.DefaultConfig(),
			Options:  dom.DefaultOptions(),
			MaxChars: 8000,
		},
		Gateway: GatewayConfig{
			Host:           "127.0.0.1",
			Port:           18790,
			RateLimitRPM:   600,
			RateLimitBurst: 20,
		},
		Store: StoreConfig{
			Backend:    StoreMemory,
			Capacity:   50,
			KeyPrefix:  "pagelens",
			TTLSeconds: 3600,
			SQLitePath: "~/.pagelens/identities.db",
		},
	}
}

// Load reads a config file on top of the defaults and applies env
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	default:
		if err := cfg.decode(path, data); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Store.KeyPrefix = NormalizeKeyPrefix(cfg.Store.KeyPrefix)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw JSON5 config text on top of the defaults.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := json5.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	cfg.Store.KeyPrefix = NormalizeKeyPrefix(cfg.Store.KeyPrefix)
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return json5.Unmarshal(data, c)
	}
}

// Save writes the config as indented JSON, or YAML for .yaml/.yml paths.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyEnvOverrides applies PAGELENS_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envBool("PAGELENS_HEADLESS", &c.Browser.Headless)
	envStr("PAGELENS_REMOTE_URL", &c.Browser.RemoteURL)
	envStr("PAGELENS_CHROME_FLAGS", &c.Browser.ExtraFlags)
	envStr("PAGELENS_HOST", &c.Gateway.Host)
	envInt("PAGELENS_PORT", &c.Gateway.Port)
	envStr("PAGELENS_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("PAGELENS_STORE_BACKEND", &c.Store.Backend)
	envStr("PAGELENS_REDIS_URL", &c.Store.RedisURL)
	envStr("PAGELENS_SQLITE_PATH", &c.Store.SQLitePath)
	envStr("PAGELENS_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	if c.Telemetry.Endpoint != "" && os.Getenv("PAGELENS_OTLP_ENDPOINT") != "" {
		c.Telemetry.Enabled = true
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f := c.Extract.Filters
	if f.ContainmentThreshold < 0 || f.ContainmentThreshold > 1 {
		return fmt.Errorf("extract.filters.containment_threshold must be within [0, 1], got %v", f.ContainmentThreshold)
	}
	if f.OcclusionThreshold < 0 || f.OcclusionThreshold > 1 {
		return fmt.Errorf("extract.filters.occlusion_threshold must be within [0, 1], got %v", f.OcclusionThreshold)
	}
	if c.Extract.Options.MaxTextLength < 0 {
		return fmt.Errorf("extract.options.max_text_length must not be negative")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("unknown telemetry.protocol %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// ExtractSettings returns a copy of the extraction settings.
func (c *Config) ExtractSettings() ExtractConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Extract
}

// ReplaceFrom copies every setting from other into c.
func (c *Config) ReplaceFrom(other *Config) {
	other.mu.RLock()
	browser, extract, gateway := other.Browser, other.Extract, other.Gateway
	store, telemetry := other.Store, other.Telemetry
	other.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Browser, c.Extract, c.Gateway = browser, extract, gateway
	c.Store, c.Telemetry = store, telemetry
}

// Hash returns a short content hash used for optimistic concurrency.
func (c *Config) Hash() string {
	c.mu.RLock()
	data, _ := json.Marshal(c)
	c.mu.RUnlock()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// MaskedCopy returns a copy safe to show to clients.
func (c *Config) MaskedCopy() *Config {
	cp := &Config{}
	cp.ReplaceFrom(c)
	cp.Gateway.Token = maskSecret(cp.Gateway.Token)
	cp.Store.RedisURL = maskURLPassword(cp.Store.RedisURL)
	if len(cp.Telemetry.Headers) > 0 {
		headers := make(map[string]string, len(cp.Telemetry.Headers))
		for k, v := range cp.Telemetry.Headers {
			headers[k] = maskSecret(v)
		}
		cp.Telemetry.Headers = headers
	}
	return cp
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	default:
		return "****"
	}
}

func maskURLPassword(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return u
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return u
	}
	return scheme + "://" + user + ":****@" + host
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
