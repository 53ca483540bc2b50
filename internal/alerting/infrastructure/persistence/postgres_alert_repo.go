package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
)

// PostgresAlertRepository journals operator alerts in PostgreSQL.
type PostgresAlertRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAlertRepository creates a new repository.
func NewPostgresAlertRepository(pool *pgxpool.Pool) *PostgresAlertRepository {
	return &PostgresAlertRepository{pool: pool}
}

func (r *PostgresAlertRepository) Append(ctx context.Context, alert domain.Alert) error {
	query := `INSERT INTO alerts (id, kind, severity, message, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query,
		alert.ID,
		string(alert.Kind),
		string(alert.Severity),
		alert.Message,
		alert.CreatedAt,
	)
	return err
}

func (r *PostgresAlertRepository) Recent(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	query := `SELECT id, kind, severity, message, created_at FROM alerts
		ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a         domain.Alert
			kind, sev string
		)
		if err := rows.Scan(&a.ID, &kind, &sev, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = domain.Kind(kind)
		a.Severity = domain.Severity(sev)
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ domain.Repository = (*PostgresAlertRepository)(nil)
