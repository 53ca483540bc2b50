package app

import (
	"context"
	"database/sql"
	"fmt"

	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	accessPersistence "github.com/felixgeelhaar/mtgate/internal/access/infrastructure/persistence"
	alertingDomain "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	alertingPersistence "github.com/felixgeelhaar/mtgate/internal/alerting/infrastructure/persistence"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryFactory builds the entitlement store and alert journal on one
// open connection, picking the pgx or database/sql implementation.
type RepositoryFactory struct {
	conn database.Connection
}

// NewRepositoryFactory creates a factory for conn.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// Migrate applies the embedded schema.
func (f *RepositoryFactory) Migrate(ctx context.Context) error {
	_, err := forDriver(f.conn,
		func(pool *pgxpool.Pool) (struct{}, error) {
			return struct{}{}, migrations.RunPostgresMigrations(ctx, pool)
		},
		func(db *sql.DB) (struct{}, error) {
			return struct{}{}, migrations.RunSQLiteMigrations(ctx, db)
		},
	)
	return err
}

// EntitlementRepository returns the entitlement store.
func (f *RepositoryFactory) EntitlementRepository() (accessDomain.Repository, error) {
	return forDriver(f.conn,
		func(pool *pgxpool.Pool) (accessDomain.Repository, error) {
			return accessPersistence.NewPostgresEntitlementRepository(pool), nil
		},
		func(db *sql.DB) (accessDomain.Repository, error) {
			return accessPersistence.NewSQLiteEntitlementRepository(db), nil
		},
	)
}

// AlertRepository returns the alert journal.
func (f *RepositoryFactory) AlertRepository() (alertingDomain.Repository, error) {
	return forDriver(f.conn,
		func(pool *pgxpool.Pool) (alertingDomain.Repository, error) {
			return alertingPersistence.NewPostgresAlertRepository(pool), nil
		},
		func(db *sql.DB) (alertingDomain.Repository, error) {
			return alertingPersistence.NewSQLiteAlertRepository(db), nil
		},
	)
}

// forDriver calls pg or lite with the handle the connection exposes.
func forDriver[T any](conn database.Connection, pg func(*pgxpool.Pool) (T, error), lite func(*sql.DB) (T, error)) (T, error) {
	switch c := conn.(type) {
	case interface{ Pool() *pgxpool.Pool }:
		return pg(c.Pool())
	case interface{ DB() *sql.DB }:
		return lite(c.DB())
	default:
		var zero T
		return zero, fmt.Errorf("unsupported %s connection %T", conn.Driver(), conn)
	}
}
