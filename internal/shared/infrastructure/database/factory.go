package database

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Config selects and configures a backend.
type Config struct {
	// Driver is detected from URL when empty.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the database file used by the SQLite driver.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool. Zero keeps the pgxpool default.
	MaxConns int
}

type connector func(ctx context.Context, cfg Config) (Connection, error)

var connectors = map[Driver]connector{}

// Register installs the connection factory for a driver. The driver packages
// call it from init, so importing them for side effects is enough.
func Register(driver Driver, fn func(ctx context.Context, cfg Config) (Connection, error)) {
	connectors[driver] = fn
}

// NewConnection opens a connection for cfg.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDriver(cfg.URL)
	}

	fn, ok := connectors[driver]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDriver, "%q is not registered", driver)
	}
	return fn(ctx, cfg)
}

// DefaultSQLitePath is ~/.reservo/reservo.db.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".reservo", "reservo.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
