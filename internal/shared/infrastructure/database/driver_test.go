package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDriver(t *testing.T) {
	tests := map[string]Driver{
		"":                                      DriverSQLite,
		"postgres://mtgate:pw@db:5432/mtgate":   DriverPostgres,
		"postgresql://mtgate@db/mtgate":         DriverPostgres,
		"sqlite:///var/lib/mtgate/mtgate.db":    DriverSQLite,
		"file:/var/lib/mtgate/state?_txlock=1":  DriverSQLite,
		"/var/lib/mtgate/mtgate.db":             DriverSQLite,
		"./mtgate.sqlite":                       DriverSQLite,
		"mtgate.sqlite3":                        DriverSQLite,
		"db.internal:5432/mtgate?sslmode=false": DriverPostgres,
	}

	for url, expected := range tests {
		t.Run(url, func(t *testing.T) {
			assert.Equal(t, expected, DetectDriver(url))
		})
	}
}

func TestSQLitePathFromURL(t *testing.T) {
	assert.Equal(t, "/var/lib/mtgate.db", SQLitePathFromURL("sqlite:///var/lib/mtgate.db"))
	assert.Equal(t, "/tmp/x.db?cache=shared", SQLitePathFromURL("file:/tmp/x.db?cache=shared"))
	assert.Equal(t, "data.db", SQLitePathFromURL("data.db"))
}

func TestConfig_Resolve(t *testing.T) {
	cfg := Config{URL: "sqlite:///srv/mtgate.db"}.Resolve()
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "/srv/mtgate.db", cfg.SQLitePath)

	cfg = Config{SQLitePath: "/data/m.db"}.Resolve()
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "/data/m.db", cfg.SQLitePath)

	cfg = Config{URL: "postgres://u@h/db"}.Resolve()
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Empty(t, cfg.SQLitePath)

	cfg = Config{}.Resolve()
	assert.Equal(t, DefaultSQLitePath(), cfg.SQLitePath)
	assert.Equal(t, "sqlite", cfg.Driver.String())
}
