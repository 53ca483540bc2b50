package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config selects and configures the storage backend.
type Config struct {
	// Driver forces a backend. Empty means detect from URL.
	Driver Driver

	// URL is DATABASE_URL. A postgres URL selects pgx; a sqlite URL or
	// path overrides SQLitePath.
	URL string

	// SQLitePath is the database file used when URL is empty.
	SQLitePath string

	// MaxConns caps the PostgreSQL pool size. Zero keeps the pgx default.
	MaxConns int
}

// Connection is an open storage backend. Repositories reach the concrete
// handle through the driver packages (sqlite.Connection.DB, postgres.Connection.Pool).
type Connection interface {
	Driver() Driver
	Ping(ctx context.Context) error
	Close() error
}

// Resolve fills in the driver and SQLite path.
func (c Config) Resolve() Config {
	if c.Driver == "" {
		c.Driver = DetectDriver(c.URL)
	}
	if c.Driver == DriverSQLite && c.URL != "" {
		c.SQLitePath = SQLitePathFromURL(c.URL)
	}
	if c.Driver == DriverSQLite && c.SQLitePath == "" {
		c.SQLitePath = DefaultSQLitePath()
	}
	return c
}

// Open connects to the configured backend. The driver package must be
// linked in, usually with a blank import.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	cfg = cfg.Resolve()

	var open func(context.Context, Config) (Connection, error)
	switch cfg.Driver {
	case DriverPostgres:
		open = openPostgres
	case DriverSQLite:
		open = openSQLite
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if open == nil {
		return nil, fmt.Errorf("database driver %s not registered", cfg.Driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns ~/.mtgate/mtgate.db.
func DefaultSQLitePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".mtgate", "mtgate.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o750)
}

var (
	openPostgres func(ctx context.Context, cfg Config) (Connection, error)
	openSQLite   func(ctx context.Context, cfg Config) (Connection, error)
)

// RegisterPostgresDriver installs the PostgreSQL opener.
func RegisterPostgresDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	openPostgres = fn
}

// RegisterSQLiteDriver installs the SQLite opener.
func RegisterSQLiteDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	openSQLite = fn
}
