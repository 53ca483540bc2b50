package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/mtgate/internal/access/domain"
)

const uniqueViolation = "23505"

const postgresColumns = `subscriber_id, username, credential, expires_at, max_connections,
	active, trial_consumed, created_at, updated_at`

// PostgresEntitlementRepository implements domain.Repository with PostgreSQL.
type PostgresEntitlementRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEntitlementRepository creates a new repository.
func NewPostgresEntitlementRepository(pool *pgxpool.Pool) *PostgresEntitlementRepository {
	return &PostgresEntitlementRepository{pool: pool}
}

func (r *PostgresEntitlementRepository) Get(ctx context.Context, id domain.SubscriberID) (*domain.Entitlement, error) {
	query := `SELECT ` + postgresColumns + ` FROM entitlements WHERE subscriber_id = $1`

	e, err := scanPostgresEntitlement(r.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *PostgresEntitlementRepository) ListActive(ctx context.Context) ([]domain.Entitlement, error) {
	query := `SELECT ` + postgresColumns + ` FROM entitlements WHERE active ORDER BY subscriber_id`
	return r.list(ctx, query)
}

func (r *PostgresEntitlementRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Entitlement, error) {
	query := `SELECT ` + postgresColumns + ` FROM entitlements
		WHERE active AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY subscriber_id`
	return r.list(ctx, query, now)
}

func (r *PostgresEntitlementRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entitlements WHERE active`).Scan(&n)
	return n, err
}

func (r *PostgresEntitlementRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entitlements`).Scan(&n)
	return n, err
}

func (r *PostgresEntitlementRepository) InsertOrUpdate(ctx context.Context, e *domain.Entitlement) error {
	now := time.Now()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `
		INSERT INTO entitlements (` + postgresColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			username = EXCLUDED.username,
			credential = EXCLUDED.credential,
			expires_at = EXCLUDED.expires_at,
			max_connections = EXCLUDED.max_connections,
			active = EXCLUDED.active,
			trial_consumed = EXCLUDED.trial_consumed,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		int64(e.SubscriberID),
		e.Username,
		e.Credential,
		e.ExpiresAt,
		e.MaxConnections,
		e.Active,
		e.TrialConsumed,
		createdAt,
		updatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %w", domain.ErrDuplicateCredential, err)
		}
		return err
	}
	return nil
}

func (r *PostgresEntitlementRepository) SetActive(ctx context.Context, id domain.SubscriberID, active bool) error {
	return r.update(ctx, `UPDATE entitlements SET active = $1, updated_at = NOW() WHERE subscriber_id = $2`,
		active, int64(id))
}

func (r *PostgresEntitlementRepository) MarkTrialConsumed(ctx context.Context, id domain.SubscriberID) error {
	return r.update(ctx, `UPDATE entitlements SET trial_consumed = TRUE, updated_at = NOW() WHERE subscriber_id = $1`,
		int64(id))
}

func (r *PostgresEntitlementRepository) update(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresEntitlementRepository) list(ctx context.Context, query string, args ...any) ([]domain.Entitlement, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entitlement
	for rows.Next() {
		e, err := scanPostgresEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanPostgresEntitlement(row pgx.Row) (*domain.Entitlement, error) {
	var (
		id int64
		e  domain.Entitlement
	)
	if err := row.Scan(&id, &e.Username, &e.Credential, &e.ExpiresAt, &e.MaxConnections,
		&e.Active, &e.TrialConsumed, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.SubscriberID = domain.SubscriberID(id)
	return &e, nil
}

var _ domain.Repository = (*PostgresEntitlementRepository)(nil)
