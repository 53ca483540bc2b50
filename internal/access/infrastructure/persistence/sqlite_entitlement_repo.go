package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/access/domain"
)

// timeLayout is fixed-width so that stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteColumns = `subscriber_id, username, credential, expires_at, max_connections,
	active, trial_consumed, created_at, updated_at`

// SQLiteEntitlementRepository implements domain.Repository with SQLite.
type SQLiteEntitlementRepository struct {
	db *sql.DB
}

// NewSQLiteEntitlementRepository creates a new repository.
func NewSQLiteEntitlementRepository(db *sql.DB) *SQLiteEntitlementRepository {
	return &SQLiteEntitlementRepository{db: db}
}

// Get returns the subscriber's entitlement.
func (r *SQLiteEntitlementRepository) Get(ctx context.Context, id domain.SubscriberID) (*domain.Entitlement, error) {
	query := `SELECT ` + sqliteColumns + ` FROM entitlements WHERE subscriber_id = ?`

	e, err := scanSQLiteEntitlement(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListActive returns active entitlements ordered by subscriber id.
func (r *SQLiteEntitlementRepository) ListActive(ctx context.Context) ([]domain.Entitlement, error) {
	query := `SELECT ` + sqliteColumns + ` FROM entitlements WHERE active = 1 ORDER BY subscriber_id`
	return r.list(ctx, query)
}

// ListExpired returns active entitlements whose expiry is before now.
func (r *SQLiteEntitlementRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Entitlement, error) {
	query := `SELECT ` + sqliteColumns + ` FROM entitlements
		WHERE active = 1 AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY subscriber_id`
	return r.list(ctx, query, formatTime(now))
}

// CountActive counts active entitlements.
func (r *SQLiteEntitlementRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entitlements WHERE active = 1`).Scan(&n)
	return n, err
}

// CountAll counts every subscriber that ever held an entitlement.
func (r *SQLiteEntitlementRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entitlements`).Scan(&n)
	return n, err
}

// InsertOrUpdate upserts an entitlement by subscriber id.
func (r *SQLiteEntitlementRepository) InsertOrUpdate(ctx context.Context, e *domain.Entitlement) error {
	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `
		INSERT INTO entitlements (` + sqliteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			username = excluded.username,
			credential = excluded.credential,
			expires_at = excluded.expires_at,
			max_connections = excluded.max_connections,
			active = excluded.active,
			trial_consumed = excluded.trial_consumed,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		int64(e.SubscriberID),
		e.Username,
		e.Credential,
		formatNullableTime(e.ExpiresAt),
		e.MaxConnections,
		boolToInt(e.Active),
		boolToInt(e.TrialConsumed),
		formatTime(createdAt),
		formatTime(updatedAt),
	)
	if err != nil {
		if isSQLiteCredentialConflict(err) {
			return fmt.Errorf("%w: %w", domain.ErrDuplicateCredential, err)
		}
		return err
	}
	return nil
}

// SetActive flips the active flag.
func (r *SQLiteEntitlementRepository) SetActive(ctx context.Context, id domain.SubscriberID, active bool) error {
	query := `UPDATE entitlements SET active = ?, updated_at = ? WHERE subscriber_id = ?`
	return r.update(ctx, query, boolToInt(active), formatTime(time.Now()), int64(id))
}

// MarkTrialConsumed records that the subscriber used their trial.
func (r *SQLiteEntitlementRepository) MarkTrialConsumed(ctx context.Context, id domain.SubscriberID) error {
	query := `UPDATE entitlements SET trial_consumed = 1, updated_at = ? WHERE subscriber_id = ?`
	return r.update(ctx, query, formatTime(time.Now()), int64(id))
}

func (r *SQLiteEntitlementRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SQLiteEntitlementRepository) list(ctx context.Context, query string, args ...any) ([]domain.Entitlement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entitlement
	for rows.Next() {
		e, err := scanSQLiteEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntitlement(row scanner) (*domain.Entitlement, error) {
	var (
		id            int64
		e             domain.Entitlement
		expiresAt     sql.NullString
		active, trial int
		createdAt     string
		updatedAt     string
	)
	if err := row.Scan(&id, &e.Username, &e.Credential, &expiresAt, &e.MaxConnections,
		&active, &trial, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	e.SubscriberID = domain.SubscriberID(id)
	e.Active = active == 1
	e.TrialConsumed = trial == 1
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
		e.ExpiresAt = &t
	}
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &e, nil
}

func isSQLiteCredentialConflict(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed: entitlements.credential")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.Repository = (*SQLiteEntitlementRepository)(nil)
