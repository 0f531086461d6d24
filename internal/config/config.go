package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

type Config struct {
	Addr    string `yaml:"addr" env:"API_ADDR" env-default:":1337" env-description:"HTTP listen address"`
	Backend string `yaml:"backend" env:"BACKEND" env-default:"scheduler" env-description:"backend to serve: calendar, gantt, grid, scheduler, schedulerpro or taskboard"`
	// Store
	StoreDriver      string        `yaml:"store-driver" env:"STORE_DRIVER" env-default:"sqlite" env-description:"record store: sqlite, postgres or memory"`
	SQLitePath       string        `yaml:"sqlite-path" env:"SQLITE_PATH" env-default:"./data/crudsync.sqlite3" env-description:"SQLite database file"`
	DatabaseURL      string        `yaml:"database-url" env:"DATABASE_URL" env-description:"PostgreSQL connection URL"`
	DBConnectTimeout time.Duration `yaml:"db-connect-timeout" env:"DB_CONNECT_TIMEOUT" env-default:"30s" env-description:"how long to retry the initial database connection"`
	// Redis - optional, revisions are kept in memory when empty
	RedisURL string `yaml:"redis-url" env:"REDIS_URL" env-description:"Redis URL for the revision counter"`
	// Search - optional, store scan fallback when empty
	MeiliURL       string `yaml:"meili-url" env:"MEILI_URL" env-description:"Meilisearch URL"`
	MeiliMasterKey string `yaml:"meili-master-key" env:"MEILI_MASTER_KEY" env-description:"Meilisearch API key"`
	CORSOrigin     string `yaml:"cors-origin" env:"CORS_ORIGIN" env-default:"*" env-description:"Access-Control-Allow-Origin value"`
	// Export - uploads disabled when the endpoint is empty
	ExportEndpoint  string `yaml:"export-endpoint" env:"EXPORT_ENDPOINT" env-description:"S3-compatible endpoint for snapshot exports"`
	ExportBucket    string `yaml:"export-bucket" env:"EXPORT_BUCKET" env-default:"crudsync-exports" env-description:"export bucket"`
	ExportAccessKey string `yaml:"export-access-key" env:"EXPORT_ACCESS_KEY" env-description:"export access key"`
	ExportSecretKey string `yaml:"export-secret-key" env:"EXPORT_SECRET_KEY" env-description:"export secret key"`
	ExportUseSSL    bool   `yaml:"export-use-ssl" env:"EXPORT_USE_SSL" env-default:"false" env-description:"use TLS for the export endpoint"`
	LogVerbosity    int    `yaml:"log-verbosity" env:"LOG_VERBOSITY" env-default:"0" env-description:"logr verbosity; 1 logs per-row detail"`
}

// Load reads the optional YAML file at path, then the environment.
// Environment variables win over the file.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config error: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and drivers.
func (c Config) Validate() error {
	if _, err := schema.Lookup(c.Backend); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("config error: unknown store driver %q", c.StoreDriver)
	}
	return nil
}

// StoreDSN is the data source name for the configured driver.
func (c Config) StoreDSN() string {
	if c.StoreDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// Usage describes every environment variable.
func Usage() string {
	var cfg Config
	usage, _ := cleanenv.GetDescription(&cfg, nil)
	return usage
}
