// Package config handles loading and validating gateway configuration,
// layering a YAML file, GATEWAY_-prefixed environment variables, and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the gateway binary.
type Config struct {
	Server   ServerConfig              `koanf:"server"`
	Router   RouterConfig              `koanf:"router"`
	Backends map[string]BackendConfig  `koanf:"backends"`
	Cache    CacheConfig               `koanf:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// RouterConfig mirrors pkg/router.Config's recognized options.
type RouterConfig struct {
	Strategy        string        `koanf:"strategy"`
	FallbackOnError bool          `koanf:"fallback_on_error"`
	Threshold       int           `koanf:"threshold"`
	Cooldown        time.Duration `koanf:"cooldown"`
	HealthCheck     HealthCheckConfig `koanf:"health_check"`
}

// HealthCheckConfig controls the router's optional background probe.
type HealthCheckConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// BackendConfig holds the settings for a single backend provider.
type BackendConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// CacheConfig holds the model cache's refresh policy.
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// EnvPrefix is the environment variable prefix koanf layers over the YAML
// file, e.g. GATEWAY_SERVER_PORT overrides server.port.
const EnvPrefix = "GATEWAY_"

// Load reads configuration from a YAML file, layers GATEWAY_ environment
// variable overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	for name, b := range cfg.Backends {
		b.APIKey = expandEnv(b.APIKey)
		cfg.Backends[name] = b
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnv resolves a ${VAR_NAME} placeholder to its environment value;
// any other string is returned unchanged.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Router.Strategy == "" {
		cfg.Router.Strategy = "priority"
	}
	if cfg.Router.Threshold == 0 {
		cfg.Router.Threshold = 3
	}
	if cfg.Router.Cooldown == 0 {
		cfg.Router.Cooldown = 60 * time.Second
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
}
