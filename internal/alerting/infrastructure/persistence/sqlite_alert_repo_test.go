package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	return db
}

func TestSQLiteAlertRepository_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteAlertRepository(setupTestDB(t))
	base := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)

	first := domain.NewAlert(domain.KindSoftLimit, domain.SeverityWarning, "40/50", base)
	second := domain.NewAlert(domain.KindProxyDown, domain.SeverityCritical, "down", base.Add(time.Minute))
	third := domain.NewAlert(domain.KindProxyRecovered, domain.SeverityInfo, "up", base.Add(2*time.Minute))
	for _, a := range []domain.Alert{first, second, third} {
		require.NoError(t, repo.Append(ctx, a))
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.ID, recent[0].ID)
	assert.Equal(t, domain.KindProxyRecovered, recent[0].Kind)
	assert.Equal(t, domain.SeverityInfo, recent[0].Severity)
	assert.Equal(t, "up", recent[0].Message)
	assert.True(t, third.CreatedAt.Equal(recent[0].CreatedAt))
	assert.Equal(t, second.ID, recent[1].ID)

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteAlertRepository_DuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteAlertRepository(setupTestDB(t))

	a := domain.NewAlert(domain.KindExpirations, domain.SeverityInfo, "2 expired", time.Now())
	require.NoError(t, repo.Append(ctx, a))
	assert.Error(t, repo.Append(ctx, a))
}
