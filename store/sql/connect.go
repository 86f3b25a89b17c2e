package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ConnectionConfig carries the database settings the vault needs to open its
// backing store. Postgres is the production driver; sqlite serves single-node
// deployments and tests.
type ConnectionConfig struct {
	Driver      string        `json:"driver" koanf:"driver"`
	DSN         string        `json:"dsn" koanf:"dsn"`
	Debug       bool          `json:"debug" koanf:"debug"`
	PingTimeout time.Duration `json:"ping_timeout" koanf:"ping_timeout"`
	TraceName   string        `json:"trace_name" koanf:"trace_name"`
}

func (c ConnectionConfig) GetDebug() bool    { return c.Debug }
func (c ConnectionConfig) GetDriver() string { return normalizeDriver(c.Driver) }
func (c ConnectionConfig) GetServer() string { return c.DSN }

func (c ConnectionConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c ConnectionConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.TraceName) == "" {
		return "go-sessionvault"
	}
	return c.TraceName
}

// Connect opens the configured database and wraps it in a persistence client
// ready for migration registration and store construction.
func Connect(cfg ConnectionConfig) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: connection dsn is required")
	}

	driver := normalizeDriver(cfg.Driver)
	var dialect schema.Dialect
	switch driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return client, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "pg", "postgresql":
		return DriverPostgres
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}
