package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tgvtracker.dev/delays/model"
	"tgvtracker.dev/delays/storage"
)

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

var DefaultCORSOrigins = []string{
	"http://localhost:8002",
	"http://localhost:5173",
	"http://localhost:8080",
	"http://172.19.0.3:8002",
	"http://172.19.0.3:5173",
	"http://172.19.0.3:8080",
}

type ServerConfig struct {
	Addr        string   `yaml:"addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins" validate:"dive,required"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=rest postgres sqlite memory"`
	SupabaseURL string `yaml:"supabase_url" validate:"omitempty,url"`
	SupabaseKey string `yaml:"supabase_key"`
	DatabaseURL string `yaml:"database_url"`

	// Empty means an in-memory sqlite database.
	SQLiteDir string `yaml:"sqlite_dir"`

	TimeoutMS int `yaml:"timeout_ms" validate:"gte=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

type DelaysConfig struct {
	Table   string        `yaml:"table" validate:"required"`
	Service string        `yaml:"service" validate:"required"`
	Columns model.Columns `yaml:"columns" validate:"required"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server" validate:"required"`
	Storage StorageConfig `yaml:"storage" validate:"required"`
	Log     LogConfig     `yaml:"log" validate:"required"`
	Delays  DelaysConfig  `yaml:"delays" validate:"required"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: append([]string{}, DefaultCORSOrigins...),
		},
		Storage: StorageConfig{
			Backend:   BackendREST,
			TimeoutMS: 30000,
		},
		Log: LogConfig{
			Level: "info",
			File:  "tgv_tracker.log",
		},
		Delays: DelaysConfig{
			Table:   "tgv-data",
			Service: model.NationalService,
			Columns: model.DefaultColumns(),
		},
	}
}

// Loads configuration from defaults, then the YAML file at path (if
// path is non-empty), then the environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Storage.SupabaseURL, "SUPABASE_URL")
	set(&c.Storage.SupabaseKey, "SUPABASE_KEY")
	set(&c.Storage.DatabaseURL, "DATABASE_URL")
	set(&c.Storage.Backend, "TGV_BACKEND")
	set(&c.Storage.SQLiteDir, "TGV_SQLITE_DIR")
	set(&c.Server.Addr, "TGV_ADDR")
	set(&c.Log.Level, "TGV_LOG_LEVEL")
	set(&c.Log.File, "TGV_LOG_FILE")
	set(&c.Delays.Table, "TGV_TABLE")

	if v := getenv("TGV_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TGV_TIMEOUT_MS '%s': %w", v, err)
		}
		c.Storage.TimeoutMS = ms
	}

	if v := getenv("TGV_CORS_ORIGINS"); v != "" {
		origins := []string{}
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}

	return nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Storage.TimeoutMS) * time.Millisecond
}

// Opens the configured backend.
//
// Missing credentials or an unreachable database are not fatal: they
// are logged, and a storage.Unavailable is returned so the service
// can still start and report the condition per request.
func (c *Config) OpenStorage(logger *slog.Logger) (storage.Storage, error) {
	switch c.Storage.Backend {
	case BackendREST:
		s, err := storage.NewRESTStorage(storage.RESTConfig{
			URL:     c.Storage.SupabaseURL,
			Key:     c.Storage.SupabaseKey,
			Timeout: c.Timeout(),
		})
		if errors.Is(err, storage.ErrNotInitialized) {
			logger.Error("Supabase credentials not found in environment variables")
			return storage.Unavailable{Reason: "SUPABASE_URL and SUPABASE_KEY must be set"}, nil
		}
		if err != nil {
			return nil, err
		}
		logger.Info("Supabase client initialized", "url", c.Storage.SupabaseURL)
		return s, nil

	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			logger.Error("DATABASE_URL not set")
			return storage.Unavailable{Reason: "DATABASE_URL must be set"}, nil
		}
		s, err := storage.NewPSQLStorage(c.Storage.DatabaseURL)
		if storage.IsUnavailable(err) {
			logger.Error("database unreachable", "error", err)
			return storage.Unavailable{Reason: err.Error()}, nil
		}
		if err != nil {
			return nil, err
		}
		logger.Info("postgres client initialized")
		return s, nil

	case BackendSQLite:
		cfg := storage.SQLiteConfig{}
		if c.Storage.SQLiteDir != "" {
			cfg = storage.SQLiteConfig{OnDisk: true, Directory: c.Storage.SQLiteDir}
		}
		s, err := storage.NewSQLiteStorage(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendMemory:
		return storage.NewMemoryStorage(), nil
	}

	return nil, fmt.Errorf("unknown backend '%s'", c.Storage.Backend)
}
