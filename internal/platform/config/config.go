// Package config loads service configuration from an optional YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Renderer RendererConfig `yaml:"renderer"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RendererConfig controls the external office-to-PDF conversion engine.
type RendererConfig struct {
	Binary       string        `yaml:"binary"`        // e.g. soffice
	Instances    int           `yaml:"instances"`     // engine pool size
	JobTimeout   time.Duration `yaml:"job_timeout"`   // hard per-conversion timeout
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // startup/restart health probe
	WorkDir      string        `yaml:"work_dir"`      // scratch + profile directories
}

// StorageConfig points the artifact store at its backing location.
// BaseURL is an afs URL, e.g. file:///var/lib/doc-approvals or s3://bucket/prefix.
type StorageConfig struct {
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads CONFIG_PATH (default config.yaml, missing file tolerated),
// applies defaults, then applies environment overrides.
func Load() (*Config, error) {
	cfg := defaults()

	path := envStr("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to parse config file")
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read config file")
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 {
		return nil, errors.InvalidInput("server.port", "must be positive")
	}
	if cfg.Renderer.Instances <= 0 {
		return nil, errors.InvalidInput("renderer.instances", "must be positive")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "doc-approvals",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "docapprovals",
			Database:    "docapprovals",
			SSLMode:     "disable",
			MaxConns:    10,
			MinConns:    2,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
			HealthCheck: time.Minute,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Enabled: false,
		},
		Renderer: RendererConfig{
			Binary:       "soffice",
			Instances:    1,
			JobTimeout:   45 * time.Second,
			ProbeTimeout: 10 * time.Second,
			WorkDir:      os.TempDir(),
		},
		Storage: StorageConfig{
			BaseURL: "file:///var/lib/doc-approvals/artifacts",
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	cfg.Service.Environment = envStr("ENVIRONMENT", cfg.Service.Environment)
	cfg.Server.Port = envInt("PORT", cfg.Server.Port)
	cfg.Database.Host = envStr("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = envStr("DB_USER", cfg.Database.User)
	cfg.Database.Password = envStr("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = envStr("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = envStr("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.NATS.URL = envStr("NATS_URL", cfg.NATS.URL)
	if v := os.Getenv("NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = v == "true" || v == "1"
	}
	cfg.Renderer.Binary = envStr("RENDERER_BIN", cfg.Renderer.Binary)
	cfg.Renderer.Instances = envInt("RENDERER_INSTANCES", cfg.Renderer.Instances)
	cfg.Renderer.WorkDir = envStr("RENDERER_WORK_DIR", cfg.Renderer.WorkDir)
	cfg.Storage.BaseURL = envStr("STORAGE_BASE_URL", cfg.Storage.BaseURL)
	cfg.Log.Level = envStr("LOG_LEVEL", cfg.Log.Level)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
