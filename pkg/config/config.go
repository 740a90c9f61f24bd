// Package config loads service configuration from the environment, with an
// optional YAML file when CONFIG_PATH is set.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration.
type Config struct {
	Env      string `yaml:"env" env:"APP_ENV" env-default:"local"`
	Server   Server `yaml:"server"`
	GitHub   GitHub `yaml:"github"`
	Elastic  Elastic
	Pipeline Pipeline `yaml:"pipeline"`
}

// Server holds HTTP listener settings. The write timeout defaults to zero
// because the orchestration endpoint streams for the lifetime of a run.
type Server struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// GitHub holds GitHub client settings. Token may be empty; unauthenticated
// runs work against the anonymous quota.
type GitHub struct {
	Token       string        `yaml:"-" env:"GITHUB_TOKEN"`
	UseAppAuth  bool          `yaml:"app_auth" env:"GITHUB_APP_AUTH" env-default:"false"`
	AppID       string        `yaml:"-" env:"GITHUB_APP_ID"`
	AppKeyPath  string        `yaml:"-" env:"GITHUB_APP_KEY_PATH"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"GITHUB_HTTP_TIMEOUT" env-default:"30s"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"GITHUB_CACHE_TTL" env-default:"10m"`
}

// Elastic holds Elasticsearch connection settings.
type Elastic struct {
	URL         string `env:"ELASTICSEARCH_URL" env-required:"true"`
	APIKey      string `env:"ELASTICSEARCH_API_KEY"`
	InsecureTLS bool   `env:"ELASTICSEARCH_INSECURE_TLS" env-default:"true"`
}

// Pipeline holds orchestration tunables.
type Pipeline struct {
	MaxPRs   int           `yaml:"max_prs" env:"PIPELINE_MAX_PRS" env-default:"20"`
	Debounce time.Duration `yaml:"debounce" env:"PIPELINE_DEBOUNCE" env-default:"5m"`
}

// Load reads configuration from CONFIG_PATH when set, falling back to
// environment variables alone.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}
