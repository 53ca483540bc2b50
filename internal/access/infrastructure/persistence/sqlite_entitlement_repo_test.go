package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/mtgate/internal/access/domain"
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

func entitlement(id domain.SubscriberID, cred string, active bool, expires time.Time) *domain.Entitlement {
	return &domain.Entitlement{
		SubscriberID:   id,
		Username:       "user" + id.String(),
		Credential:     cred,
		ExpiresAt:      &expires,
		MaxConnections: 1,
		Active:         active,
	}
}

func TestSQLiteEntitlementRepository_GetNotFound(t *testing.T) {
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteEntitlementRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))
	expires := time.Date(2026, 11, 1, 12, 30, 0, 500, time.UTC)

	e := entitlement(7, "aa", true, expires)
	e.MaxConnections = 5
	e.TrialConsumed = true
	require.NoError(t, repo.InsertOrUpdate(ctx, e))

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberID(7), got.SubscriberID)
	assert.Equal(t, "user7", got.Username)
	assert.Equal(t, "aa", got.Credential)
	assert.Equal(t, 5, got.MaxConnections)
	assert.True(t, got.Active)
	assert.True(t, got.TrialConsumed)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteEntitlementRepository_UpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	e := entitlement(1, "aa", true, created.Add(24*time.Hour))
	e.CreatedAt = created
	require.NoError(t, repo.InsertOrUpdate(ctx, e))

	e.CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Credential = "bb"
	require.NoError(t, repo.InsertOrUpdate(ctx, e))

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bb", got.Credential)
	assert.True(t, created.Equal(got.CreatedAt))

	total, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSQLiteEntitlementRepository_DuplicateCredential(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))
	expires := time.Now().Add(time.Hour)

	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(1, "same", true, expires)))
	err := repo.InsertOrUpdate(ctx, entitlement(2, "same", true, expires))
	assert.ErrorIs(t, err, domain.ErrDuplicateCredential)

	_, err = repo.Get(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteEntitlementRepository_ActiveQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(3, "c", true, now.Add(-time.Minute))))
	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(1, "a", true, now.Add(time.Hour))))
	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(2, "b", false, now.Add(-time.Hour))))
	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(4, "d", true, now)))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, domain.SubscriberID(1), active[0].SubscriberID)
	assert.Equal(t, domain.SubscriberID(3), active[1].SubscriberID)
	assert.Equal(t, domain.SubscriberID(4), active[2].SubscriberID)

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	expired, err := repo.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.SubscriberID(3), expired[0].SubscriberID)
}

func TestSQLiteEntitlementRepository_SetActive(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))

	assert.ErrorIs(t, repo.SetActive(ctx, 9, false), domain.ErrNotFound)

	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(9, "x", true, time.Now().Add(time.Hour))))
	require.NoError(t, repo.SetActive(ctx, 9, false))

	got, err := repo.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "x", got.Credential)
}

func TestSQLiteEntitlementRepository_MarkTrialConsumed(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteEntitlementRepository(setupTestDB(t))

	assert.ErrorIs(t, repo.MarkTrialConsumed(ctx, 5), domain.ErrNotFound)

	require.NoError(t, repo.InsertOrUpdate(ctx, entitlement(5, "t", true, time.Now().Add(time.Hour))))
	require.NoError(t, repo.MarkTrialConsumed(ctx, 5))

	got, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, got.TrialConsumed)
}
