// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"telegram-relay-bot/internal/domain"
)

const (
	StorageJSON     = "json"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"

	// DefaultEndpoint is the public Bot API endpoint format (token, method).
	DefaultEndpoint = "https://api.telegram.org/bot%s/%s"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"RELAY_BOT_LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"RELAY_BOT_LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                          // enable sampling in prod
}

type TransportConfig struct {
	Endpoint     string        `yaml:"endpoint" env:"RELAY_BOT_API_ENDPOINT"`
	Timeout      time.Duration `yaml:"timeout"`      // read/write timeout on top of the long poll
	PollTimeout  time.Duration `yaml:"poll_timeout"` // getUpdates long-poll duration
	Workers      int           `yaml:"workers" env:"RELAY_BOT_WORKERS"`
	RestartDelay time.Duration `yaml:"restart_delay"` // fixed backoff after a transport error
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"RELAY_BOT_REDIS_URL"`
	Password string `yaml:"password" env:"RELAY_BOT_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type PostgresConfig struct {
	URL      string `yaml:"url" env:"RELAY_BOT_POSTGRES_URL"`
	MaxConns int32  `yaml:"max_conns"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend" env:"RELAY_BOT_STORAGE_BACKEND"` // json | redis | postgres
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen" env:"RELAY_BOT_METRICS_LISTEN"`
}

// Messages holds the fixed reply templates. Literal "\n" and "\t" sequences
// are expanded by LoadConfig.
type Messages struct {
	Confirmation      string `yaml:"confirmation_message"`
	Banned            string `yaml:"banned_message"`
	BanConfirmation   string `yaml:"ban_confirmation_message"`
	UnbanConfirmation string `yaml:"unban_confirmation_message"`
	ResetConfirmation string `yaml:"resetmessages_confirmation_message"`
	Admin             string `yaml:"admin_message"`
	RestartStart      string `yaml:"restart_message_start"`
	RestartDone       string `yaml:"restart_message_done"`
}

// Expand returns a copy with template escapes expanded.
func (m Messages) Expand() Messages {
	return Messages{
		Confirmation:      ExpandEscapes(m.Confirmation),
		Banned:            ExpandEscapes(m.Banned),
		BanConfirmation:   ExpandEscapes(m.BanConfirmation),
		UnbanConfirmation: ExpandEscapes(m.UnbanConfirmation),
		ResetConfirmation: ExpandEscapes(m.ResetConfirmation),
		Admin:             ExpandEscapes(m.Admin),
		RestartStart:      ExpandEscapes(m.RestartStart),
		RestartDone:       ExpandEscapes(m.RestartDone),
	}
}

// Config mirrors the legacy flat config.json keys at the top level; the
// nested sections are optional.
type Config struct {
	APIKey          string `yaml:"api_key" env:"RELAY_BOT_API_KEY"`
	FormFile        string `yaml:"form_file" env:"RELAY_BOT_FORM_FILE"`
	LogsDir         string `yaml:"logs_dir" env:"RELAY_BOT_LOGS_DIR"`
	UsersDatabase   string `yaml:"users_database" env:"RELAY_BOT_USERS_DATABASE"`
	UserMaxMessages int    `yaml:"user_max_messages" env:"RELAY_BOT_USER_MAX_MESSAGES"`

	Messages Messages `yaml:",inline"`

	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

var escapeReplacer = strings.NewReplacer(`\n`, "\n", `\t`, "\t")

// ExpandEscapes turns literal \n and \t sequences into newline and tab.
func ExpandEscapes(s string) string {
	return escapeReplacer.Replace(s)
}

// LoadConfig reads the YAML (or JSON) file at path, applies environment
// overrides (an optional .env file is honoured), fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Messages = cfg.Messages.Expand()
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw config bytes without defaults or env overrides.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.LogsDir == "" {
		c.LogsDir = "logs"
	}
	if c.Transport.Endpoint == "" {
		c.Transport.Endpoint = DefaultEndpoint
	}
	if c.Transport.Timeout <= 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Transport.PollTimeout <= 0 {
		c.Transport.PollTimeout = 25 * time.Second
	}
	if c.Transport.Workers <= 0 {
		c.Transport.Workers = 8
	}
	if c.Transport.RestartDelay <= 0 {
		c.Transport.RestartDelay = 10 * time.Second
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageJSON
	}
	if c.Storage.Redis.Key == "" {
		c.Storage.Redis.Key = "relay_bot:users"
	}
	if c.Storage.Postgres.MaxConns <= 0 {
		c.Storage.Postgres.MaxConns = 4
	}
}

// Validate checks the fields the bot cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", domain.ErrInvalidConfig)
	}
	if c.FormFile == "" {
		return fmt.Errorf("%w: form_file is required", domain.ErrInvalidConfig)
	}
	if c.UserMaxMessages < 0 {
		return fmt.Errorf("%w: user_max_messages must not be negative", domain.ErrInvalidConfig)
	}
	switch c.Storage.Backend {
	case StorageJSON:
		if c.UsersDatabase == "" {
			return fmt.Errorf("%w: users_database is required for the json backend", domain.ErrInvalidConfig)
		}
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			return fmt.Errorf("%w: storage.redis.url is required", domain.ErrInvalidConfig)
		}
	case StoragePostgres:
		if c.Storage.Postgres.URL == "" {
			return fmt.Errorf("%w: storage.postgres.url is required", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", domain.ErrInvalidConfig, c.Storage.Backend)
	}
	return nil
}
