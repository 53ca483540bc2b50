package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// SQLiteAlertRepository journals operator alerts in SQLite.
type SQLiteAlertRepository struct {
	db *sql.DB
}

// NewSQLiteAlertRepository creates a new repository.
func NewSQLiteAlertRepository(db *sql.DB) *SQLiteAlertRepository {
	return &SQLiteAlertRepository{db: db}
}

// Append stores an alert.
func (r *SQLiteAlertRepository) Append(ctx context.Context, alert domain.Alert) error {
	query := `INSERT INTO alerts (id, kind, severity, message, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID.String(),
		string(alert.Kind),
		string(alert.Severity),
		alert.Message,
		alert.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent returns the newest alerts first.
func (r *SQLiteAlertRepository) Recent(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	query := `SELECT id, kind, severity, message, created_at FROM alerts
		ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a                    domain.Alert
			id, kind, sev, stamp string
		)
		if err := rows.Scan(&id, &kind, &sev, &a.Message, &stamp); err != nil {
			return nil, err
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse alert id: %w", err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		a.Kind = domain.Kind(kind)
		a.Severity = domain.Severity(sev)
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ domain.Repository = (*SQLiteAlertRepository)(nil)
