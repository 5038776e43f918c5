// Package config provides configuration management for the livemark preview
// server using Viper for flexible configuration loading from files,
// environment variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with a LIVEMARK_ prefix. It manages server settings, preview
// feature defaults, cache capacities, and the standalone file-watch mode.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Preview PreviewConfig `yaml:"preview"`
	Cache   CacheConfig   `yaml:"cache"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`

	// TargetFile is an optional markdown file given on the command line.
	// When set, the server watches it and re-renders on change.
	TargetFile string `yaml:"-"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Open           bool     `yaml:"open"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PreviewConfig holds the default feature flags applied to update requests
// that do not specify their own.
type PreviewConfig struct {
	Wikilinks bool `yaml:"wikilinks"`
	Latex     bool `yaml:"latex"`
	Sanitize  bool `yaml:"sanitize"`
}

type CacheConfig struct {
	RenderMaxBytes    int64         `yaml:"render_max_bytes"`
	InclusionMaxBytes int64         `yaml:"inclusion_max_bytes"`
	TTL               time.Duration `yaml:"ttl"`
}

type WatchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Debounce   time.Duration `yaml:"debounce"`
	Extensions []string      `yaml:"extensions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default capacities match the original preview server's modest footprint:
// a handful of rendered documents plus their included fragments.
const (
	DefaultRenderMaxBytes    = 8 << 20 // 8 MiB
	DefaultInclusionMaxBytes = 4 << 20 // 4 MiB
	DefaultCacheTTL          = time.Hour
)

// Load builds a Config from viper state, applying defaults for anything unset.
func Load() (*Config, error) {
	var config Config
	// Decode by the yaml tags so config-file keys like render_max_bytes land
	// on the right fields.
	err := viper.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.Server.Port == 0 {
		config.Server.Port = viper.GetInt("server.port")
	}
	if config.Server.Host == "" {
		config.Server.Host = viper.GetString("server.host")
	}
	applyDefaults(&config)

	// Viper bool handling: explicit false in the config file must win over
	// the defaults applied above.
	if viper.IsSet("preview.wikilinks") {
		config.Preview.Wikilinks = viper.GetBool("preview.wikilinks")
	}
	if viper.IsSet("preview.latex") {
		config.Preview.Latex = viper.GetBool("preview.latex")
	}
	if viper.IsSet("preview.sanitize") {
		config.Preview.Sanitize = viper.GetBool("preview.sanitize")
	}
	if viper.IsSet("watch.enabled") {
		config.Watch.Enabled = viper.GetBool("watch.enabled")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8765
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{
			fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
			fmt.Sprintf("localhost:%d", config.Server.Port),
			fmt.Sprintf("127.0.0.1:%d", config.Server.Port),
		}
	}

	config.Preview.Wikilinks = true
	config.Preview.Latex = true
	config.Preview.Sanitize = true

	if config.Cache.RenderMaxBytes == 0 {
		config.Cache.RenderMaxBytes = DefaultRenderMaxBytes
	}
	if config.Cache.InclusionMaxBytes == 0 {
		config.Cache.InclusionMaxBytes = DefaultInclusionMaxBytes
	}
	if config.Cache.TTL == 0 {
		config.Cache.TTL = DefaultCacheTTL
	}

	config.Watch.Enabled = true
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 300 * time.Millisecond
	}
	if len(config.Watch.Extensions) == 0 {
		config.Watch.Extensions = []string{".md", ".markdown"}
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d: must be between 1 and 65535", c.Server.Port)
	}
	if c.Cache.RenderMaxBytes < 0 {
		return fmt.Errorf("invalid cache.render_max_bytes %d: must be non-negative", c.Cache.RenderMaxBytes)
	}
	if c.Cache.InclusionMaxBytes < 0 {
		return fmt.Errorf("invalid cache.inclusion_max_bytes %d: must be non-negative", c.Cache.InclusionMaxBytes)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("invalid watch.debounce %s: must be non-negative", c.Watch.Debounce)
	}
	return nil
}
