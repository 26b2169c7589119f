package database

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Driver represents a database backend type.
type Driver string

const (
	// DriverPostgres represents PostgreSQL.
	DriverPostgres Driver = "postgres"
	// DriverSQLite represents SQLite.
	DriverSQLite Driver = "sqlite"
)

// ErrUnknownDriver is returned when a driver name is not recognised.
var ErrUnknownDriver = errors.New("unknown database driver")

func (d Driver) String() string {
	return string(d)
}

// ParseDriver converts a configured driver name. An empty name or "auto" yields
// the empty Driver so NewConnection can detect it from the URL.
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return "", nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", errors.Wrapf(ErrUnknownDriver, "%q", name)
	}
}

// DetectDriver guesses the driver from a connection string.
// An empty URL selects SQLite so the CLI works without any setup.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}

	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}

	for _, prefix := range []string{"sqlite://", "file:"} {
		if strings.HasPrefix(url, prefix) {
			return DriverSQLite
		}
	}
	for _, suffix := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(url, suffix) {
			return DriverSQLite
		}
	}

	return DriverPostgres
}

// IsValid returns true if the driver is a known type.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}
