/*
Package config loads server configuration.

PURPOSE:
  Collects every runtime setting in one struct. Values come from, in order
  of precedence: flags bound by the caller, LEDGER_* environment variables,
  a .env file, then defaults.

KEYS:
  env                DEV (default), TEST, QA, PROD
  port               HTTP port (8080)
  db_path            SQLite path, ":memory:" for an in-memory database
  redis_addr         Redis address for the catalog cache, empty disables it
  catalog_cache_ttl  How long the cached catalog lives (5m)
  catalog_file       JSON catalog loaded at startup, empty skips loading
  calendar_file      JSON academic year loaded at startup
  log_level          zerolog level name (info)
  cors_origins       Comma separated allowed origins
  seed_demo          Load the demo school on an empty database (DEV only)
  assign_interval    Period of the background assignment sweep (0, off)

ENVIRONMENT:
  Every key maps to LEDGER_<KEY>, e.g. LEDGER_DB_PATH. A .env.<env> file
  under the working directory is loaded first if it exists.

SEE ALSO:
  - cmd/server/main.go: Binds flags and builds the server from Config
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "LEDGER"

type Config struct {
	Env             string
	Port            int
	DBPath          string
	RedisAddr       string
	CatalogCacheTTL time.Duration
	CatalogFile     string
	CalendarFile    string
	LogLevel        string
	CORSOrigins     []string
	SeedDemo        bool
	AssignInterval  time.Duration
}

func (c Config) IsDev() bool { return c.Env == "DEV" }

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("env", "DEV")
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "ledger.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("catalog_cache_ttl", 5*time.Minute)
	v.SetDefault("catalog_file", "")
	v.SetDefault("calendar_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("seed_demo", true)
	v.SetDefault("assign_interval", time.Duration(0))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads .env.<env> from dir if it exists. Variables already set
// in the process environment win.
func LoadDotEnv(dir string) error {
	env := os.Getenv(EnvPrefix + "_ENV")
	if env == "" {
		env = "DEV"
	}
	path := filepath.Join(dir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config.Stat(%s): %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config.godotenv(%s): %w", path, err)
	}
	return nil
}

// Load reads the resolved values out of v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:             strings.ToUpper(v.GetString("env")),
		Port:            v.GetInt("port"),
		DBPath:          v.GetString("db_path"),
		RedisAddr:       v.GetString("redis_addr"),
		CatalogCacheTTL: v.GetDuration("catalog_cache_ttl"),
		CatalogFile:     v.GetString("catalog_file"),
		CalendarFile:    v.GetString("calendar_file"),
		LogLevel:        v.GetString("log_level"),
		SeedDemo:        v.GetBool("seed_demo"),
		AssignInterval:  v.GetDuration("assign_interval"),
	}
	for _, o := range strings.Split(v.GetString("cors_origins"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	switch cfg.Env {
	case "DEV", "TEST", "QA", "PROD":
	default:
		return Config{}, fmt.Errorf("config: unknown env %q", cfg.Env)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid port %d", cfg.Port)
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("config: db_path is required")
	}
	if cfg.CatalogCacheTTL <= 0 {
		return Config{}, fmt.Errorf("config: catalog_cache_ttl must be positive")
	}
	if !cfg.IsDev() {
		cfg.SeedDemo = false
	}
	return cfg, nil
}
