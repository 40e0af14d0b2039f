// Package config loads the quest daemon's YAML configuration.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds daemon-wide configuration settings.
type Config struct {
	Quests  QuestsConfig  `yaml:"quests"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Bridge  BridgeConfig  `yaml:"bridge"`
}

// QuestsConfig locates quest definition files.
type QuestsConfig struct {
	// Directory containing one YAML document per quest.
	Directory string `yaml:"directory"`
}

// StorageConfig selects and configures the progress backend.
type StorageConfig struct {
	// Backend is one of "flatfile", "yamlfile", "sqlite", "postgres".
	Backend string `yaml:"backend"`

	// DataDir is used by the file backends and the sqlite backend.
	DataDir string `yaml:"data_dir"`

	// DSN is the connection string for the postgres backend.
	DSN string `yaml:"dsn"`

	// FlushInterval is how often dirty player state is written behind.
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// EngineConfig tunes the dispatch pipeline.
type EngineConfig struct {
	// Workers is the size of the trigger evaluation pool.
	Workers int `yaml:"workers"`

	// DedupWindowMillis collapses duplicate trigger fires per player.
	DedupWindowMillis int `yaml:"dedup_window_millis"`

	// ConditionTTLSeconds bounds staleness of cached condition results.
	ConditionTTLSeconds int `yaml:"condition_ttl_seconds"`

	// PlaceholderTTLSeconds bounds staleness of cached placeholder text.
	PlaceholderTTLSeconds int `yaml:"placeholder_ttl_seconds"`
}

// BridgeConfig configures the websocket event ingress.
type BridgeConfig struct {
	// Listen is the host:port the bridge binds to. Empty disables the bridge.
	Listen string `yaml:"listen"`

	// AllowedOrigins lists origins allowed to connect.
	// Empty enforces same-origin; "*" allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum websocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// AdminHash is the bcrypt hash admin connections must verify against.
	// Empty disables admin commands over the bridge.
	AdminHash string `yaml:"admin_hash"`
}

// Default returns a Config with working defaults for a local setup.
func Default() *Config {
	return &Config{
		Quests: QuestsConfig{
			Directory: "quests",
		},
		Storage: StorageConfig{
			Backend:              "sqlite",
			DataDir:              "data",
			FlushIntervalSeconds: 30,
		},
		Engine: EngineConfig{
			Workers:               4,
			DedupWindowMillis:     50,
			ConditionTTLSeconds:   2,
			PlaceholderTTLSeconds: 3,
		},
		Bridge: BridgeConfig{
			Listen:         "127.0.0.1:8190",
			MaxMessageSize: 8192,
		},
	}
}

// Load reads configuration from a YAML file. A missing file returns
// defaults; a malformed file returns defaults plus the parse error.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return Default(), err
	}

	config.normalize()
	return config, nil
}

// normalize clamps nonsense values back to defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = def.Engine.Workers
	}
	if c.Engine.DedupWindowMillis < 0 {
		c.Engine.DedupWindowMillis = def.Engine.DedupWindowMillis
	}
	if c.Engine.ConditionTTLSeconds <= 0 {
		c.Engine.ConditionTTLSeconds = def.Engine.ConditionTTLSeconds
	}
	if c.Engine.PlaceholderTTLSeconds <= 0 {
		c.Engine.PlaceholderTTLSeconds = def.Engine.PlaceholderTTLSeconds
	}
	if c.Storage.FlushIntervalSeconds <= 0 {
		c.Storage.FlushIntervalSeconds = def.Storage.FlushIntervalSeconds
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
}

// FlushInterval returns the write-behind interval as a duration.
func (c *StorageConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// DedupWindow returns the trigger dedup window as a duration.
func (c *EngineConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMillis) * time.Millisecond
}

// ConditionTTL returns the condition cache TTL as a duration.
func (c *EngineConfig) ConditionTTL() time.Duration {
	return time.Duration(c.ConditionTTLSeconds) * time.Second
}

// PlaceholderTTL returns the placeholder cache TTL as a duration.
func (c *EngineConfig) PlaceholderTTL() time.Duration {
	return time.Duration(c.PlaceholderTTLSeconds) * time.Second
}

// IsOriginAllowed checks whether a websocket origin may connect.
// Returns true if AllowedOrigins contains "*" or the exact origin, or
// if no origins are configured and the origin matches the request host.
func (c *BridgeConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// isSameOrigin checks if the origin matches the request host.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // non-browser client
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
