// Package config loads planetview configuration.
//
// Values are layered with koanf: built-in defaults, then an optional YAML
// file, then PLANETVIEW_* environment variables. The merged result is
// validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. PLANETVIEW_SERVER_PORT.
const EnvPrefix = "PLANETVIEW_"

// PathEnvVar names the config file explicitly.
const PathEnvVar = EnvPrefix + "CONFIG"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"planetview.yaml",
	"config.yaml",
	"/etc/planetview/config.yaml",
}

// Catalog source kinds.
const (
	SourceEmbedded = "embedded"
	SourceDir      = "dir"
	SourceHTTP     = "http"
)

// Config is the full planetview configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Catalog CatalogConfig `koanf:"catalog"`
	View    ViewConfig    `koanf:"view"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ServerConfig configures the HTTP and websocket listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CatalogConfig selects where planet data comes from.
type CatalogConfig struct {
	Source  string        `koanf:"source" validate:"oneof=embedded dir http"`
	Dir     string        `koanf:"dir" validate:"required_if=Source dir"`
	BaseURL string        `koanf:"base_url" validate:"required_if=Source http,omitempty,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// ViewConfig configures the headless map view.
type ViewConfig struct {
	Planet           string  `koanf:"planet" validate:"required"`
	Width            float64 `koanf:"width" validate:"gt=0"`
	Height           float64 `koanf:"height" validate:"gt=0"`
	DevicePixelRatio float64 `koanf:"device_pixel_ratio" validate:"gt=0"`
	TileFormat       string  `koanf:"tile_format" validate:"oneof=svg png"`
	FrameRate        int     `koanf:"frame_rate" validate:"gte=1,lte=240"`
	Mask             bool    `koanf:"mask"`
}

// FrameInterval returns the frame period for FrameRate.
func (v ViewConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(v.FrameRate)
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true,omitempty,startswith=/"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8085,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Catalog: CatalogConfig{
			Source:  SourceEmbedded,
			Timeout: 10 * time.Second,
		},
		View: ViewConfig{
			Planet:           "mars",
			Width:            1280,
			Height:           720,
			DevicePixelRatio: 1,
			TileFormat:       "svg",
			FrameRate:        60,
			Mask:             true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ErrNotFound is returned by Load when an explicitly named file is missing.
var ErrNotFound = errors.New("config: file not found")

// Load builds the configuration. An empty path falls back to PathEnvVar and
// then DefaultPaths; when nothing is found only defaults and the environment
// apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	path, err := findFile(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func findFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return path, nil
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// envKey maps PLANETVIEW_SECTION_FIELD_NAME to section.field_name. Variables
// without a section are ignored.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok || field == "" {
		return ""
	}
	return section + "." + field
}
