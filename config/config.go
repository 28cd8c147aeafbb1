// Package config loads the command line tool's configuration from a YAML file and
// MIGRATE_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/ledger/sqlledger"
	"github.com/getpup/pupsourcing-migrate/lock"
	"github.com/getpup/pupsourcing-migrate/lock/lease"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Lock backends.
const (
	LockNone     = "none"
	LockMemory   = "memory"
	LockAdvisory = "advisory"
	LockTable    = "table"
	LockRedis    = "redis"
)

// Config is the complete tool configuration.
type Config struct {
	Database         DatabaseConfig `yaml:"database"`
	MigrationsDir    string         `yaml:"migrations_dir"`
	SnapshotPath     string         `yaml:"snapshot_path"`
	LedgerTable      string         `yaml:"ledger_table"`
	MigrationTimeout time.Duration  `yaml:"migration_timeout"`
	Lock             LockConfig     `yaml:"lock"`
	Metrics          MetricsConfig  `yaml:"metrics"`
	Log              LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the database/sql driver and connection.
type DatabaseConfig struct {
	// Driver is the registered database/sql driver name: postgres, pgx, mysql, sqlite, sqlite3.
	Driver string `yaml:"driver"`

	// DSN is the driver's connection string.
	DSN string `yaml:"dsn"`

	// Dialect overrides the SQL dialect derived from Driver.
	Dialect string `yaml:"dialect"`
}

// LockConfig selects the lock serializing runs.
type LockConfig struct {
	// Backend is one of none, memory, advisory, table or redis. Empty picks advisory for
	// PostgreSQL and MySQL, and table for SQLite.
	Backend string `yaml:"backend"`

	Key   string        `yaml:"key"`
	Table string        `yaml:"table"`
	TTL   time.Duration `yaml:"ttl"`

	// Wait is how long to wait for a held lock. Zero fails immediately.
	Wait time.Duration `yaml:"wait"`

	RedisAddr string `yaml:"redis_addr"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables the /metrics server when set, for example ":9090".
	Addr string `yaml:"addr"`

	// Target labels every metric (default: the dialect name).
	Target string `yaml:"target"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for unset values.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		MigrationsDir:    "migrations",
		SnapshotPath:     "schema.yaml",
		LedgerTable:      sqlledger.DefaultTableConfig().LedgerTable,
		MigrationTimeout: 5 * time.Minute,
		Lock: LockConfig{
			Key:   lock.DefaultKey,
			Table: lease.DefaultTableConfig().LockTable,
			TTL:   30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (when not empty) over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var invalid []string

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d < 0 {
			invalid = append(invalid, name)
			return
		}
		*dst = d
	}

	str("MIGRATE_DATABASE_DRIVER", &cfg.Database.Driver)
	str("MIGRATE_DATABASE_DSN", &cfg.Database.DSN)
	str("MIGRATE_DATABASE_DIALECT", &cfg.Database.Dialect)
	str("MIGRATE_MIGRATIONS_DIR", &cfg.MigrationsDir)
	str("MIGRATE_SNAPSHOT_PATH", &cfg.SnapshotPath)
	str("MIGRATE_LEDGER_TABLE", &cfg.LedgerTable)
	dur("MIGRATE_MIGRATION_TIMEOUT", &cfg.MigrationTimeout)
	str("MIGRATE_LOCK_BACKEND", &cfg.Lock.Backend)
	str("MIGRATE_LOCK_KEY", &cfg.Lock.Key)
	str("MIGRATE_LOCK_TABLE", &cfg.Lock.Table)
	dur("MIGRATE_LOCK_TTL", &cfg.Lock.TTL)
	dur("MIGRATE_LOCK_WAIT", &cfg.Lock.Wait)
	str("MIGRATE_LOCK_REDIS_ADDR", &cfg.Lock.RedisAddr)
	str("MIGRATE_METRICS_ADDR", &cfg.Metrics.Addr)
	str("MIGRATE_METRICS_TARGET", &cfg.Metrics.Target)
	str("MIGRATE_LOG_LEVEL", &cfg.Log.Level)
	str("MIGRATE_LOG_FORMAT", &cfg.Log.Format)

	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid environment values: %s", ErrInvalidConfig, strings.Join(invalid, ", "))
	}
	return nil
}

// Validate reports every problem found in the configuration.
func (c Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case "postgres", "pgx", "mysql", "sqlite", "sqlite3":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	d, err := c.Dialect()
	if err != nil {
		problems = append(problems, err.Error())
	}
	if c.MigrationsDir == "" {
		problems = append(problems, "migrations_dir is required")
	}
	if err := (sqlledger.TableConfig{LedgerTable: c.LedgerTable}).Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.MigrationTimeout <= 0 {
		problems = append(problems, "migration_timeout must be positive")
	}

	switch c.Lock.Backend {
	case "", LockNone, LockMemory, LockTable:
	case LockAdvisory:
		if d != nil && d.Name() == dialect.SQLite.Name() {
			problems = append(problems, "lock.backend advisory is not available on sqlite")
		}
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			problems = append(problems, "lock.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("lock.backend %q is not supported", c.Lock.Backend))
	}
	if c.Lock.Key == "" {
		problems = append(problems, "lock.key is required")
	}
	if err := (lease.TableConfig{LockTable: c.Lock.Table}).Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Lock.TTL <= 0 {
		problems = append(problems, "lock.ttl must be positive")
	}

	if _, err := c.Log.level(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Dialect returns the configured dialect, or the one matching the driver.
func (c Config) Dialect() (dialect.Dialect, error) {
	name := c.Database.Dialect
	if name == "" {
		name = c.Database.Driver
	}
	return dialect.ByName(name)
}

// LockBackend returns the effective lock backend.
func (c Config) LockBackend() string {
	if c.Lock.Backend != "" {
		return c.Lock.Backend
	}
	if d, err := c.Dialect(); err == nil && d.Name() == dialect.SQLite.Name() {
		return LockTable
	}
	return LockAdvisory
}

// MetricsTarget returns the metrics target label.
func (c Config) MetricsTarget() string {
	if c.Metrics.Target != "" {
		return c.Metrics.Target
	}
	if d, err := c.Dialect(); err == nil {
		return d.Name()
	}
	return c.Database.Driver
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q is not a valid level", c.Level)
	}
	return level, nil
}
