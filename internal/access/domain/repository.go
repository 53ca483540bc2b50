package domain

import (
	"context"
	"time"
)

// Repository defines access for entitlement persistence.
// Every method reflects committed state at call time.
type Repository interface {
	// Get returns the subject's entitlement or ErrNotFound.
	Get(ctx context.Context, id SubscriberID) (*Entitlement, error)

	// ListActive returns all active entitlements ordered by subscriber id.
	ListActive(ctx context.Context) ([]Entitlement, error)

	CountActive(ctx context.Context) (int, error)
	CountAll(ctx context.Context) (int, error)

	// InsertOrUpdate upserts by subscriber id. A credential collision with
	// another subscriber yields ErrDuplicateCredential.
	InsertOrUpdate(ctx context.Context, e *Entitlement) error

	// SetActive flips the active flag; ErrNotFound for unknown subjects.
	SetActive(ctx context.Context, id SubscriberID, active bool) error

	MarkTrialConsumed(ctx context.Context, id SubscriberID) error

	// ListExpired returns active entitlements whose expiry is before now.
	ListExpired(ctx context.Context, now time.Time) ([]Entitlement, error)
}
