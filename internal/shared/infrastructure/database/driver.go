package database

import "strings"

// Driver names a storage backend.
type Driver string

const (
	// DriverPostgres is PostgreSQL via pgx.
	DriverPostgres Driver = "postgres"
	// DriverSQLite is the embedded pure Go SQLite.
	DriverSQLite Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// DetectDriver picks the backend from a DATABASE_URL value. An empty URL
// selects SQLite so a single host runs with no external database.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}

	for _, prefix := range []string{"sqlite://", "file:"} {
		if strings.HasPrefix(url, prefix) {
			return DriverSQLite
		}
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(url, ext) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}

// SQLitePathFromURL strips the sqlite:// or file: scheme from a SQLite URL.
// Query parameters are kept.
func SQLitePathFromURL(url string) string {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "file:"):
		return strings.TrimPrefix(url, "file:")
	default:
		return url
	}
}
