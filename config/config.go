package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/freightmatch/core/metrics"
	"github.com/kilianp07/freightmatch/infra/mqtt"
)

type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Database   DatabaseConfig   `json:"database"`
	Geocoder   GeocoderConfig   `json:"geocoder"`
	Cache      CacheConfig      `json:"cache"`
	Models     ModelsConfig     `json:"models"`
	Training   TrainingConfig   `json:"training"`
	Normalizer NormalizerConfig `json:"normalizer"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Metrics    metrics.Config   `json:"metrics"`
	Logging    LoggingConfig    `json:"logging"`
	Sentry     SentryConfig     `json:"sentry"`
}

// Load reads a YAML or JSON file, applies K_ prefixed environment overrides
// (K_DATABASE__DSN sets database.dsn), fills defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Database.SetDefaults()
	c.Geocoder.SetDefaults()
	c.Cache.SetDefaults()
	c.Models.SetDefaults()
	c.Training.SetDefaults()
	c.Logging.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate reports every invalid section at once.
func (c Config) Validate() error {
	return errors.Join(
		c.HTTP.Validate(),
		c.Database.Validate(),
		c.Geocoder.Validate(),
		c.Cache.Validate(),
		c.Training.Validate(),
		c.MQTT.Validate(),
		c.Logging.Validate(),
	)
}
