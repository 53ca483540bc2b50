package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity classifies operator alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Kind identifies what an alert is about.
type Kind string

const (
	KindGrantNotConverged   Kind = "grant_not_converged"
	KindConvergenceFailed   Kind = "convergence_failed"
	KindResourceCritical    Kind = "resource_critical"
	KindResourceWarning     Kind = "resource_warning"
	KindResourceRecovered   Kind = "resource_recovered"
	KindProxyDown           Kind = "proxy_down"
	KindProxyRecovered      Kind = "proxy_recovered"
	KindProxyRecoveryFailed Kind = "proxy_recovery_failed"
	KindSoftLimit           Kind = "soft_limit"
	KindProbeFailing        Kind = "probe_failing"
	KindExpirations         Kind = "expirations"
	KindScheduledRestart    Kind = "scheduled_restart"
	KindSalesToggled        Kind = "sales_toggled"
)

// Alert is a single operator notification.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAlert creates an alert stamped with a fresh id and the given time.
func NewAlert(kind Kind, severity Severity, message string, now time.Time) Alert {
	return Alert{
		ID:        uuid.New(),
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		CreatedAt: now,
	}
}

// Notifier accepts alerts for delivery. Notify never blocks on delivery
// and never reports delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// Sink delivers alerts to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Repository is the alert journal.
type Repository interface {
	Append(ctx context.Context, alert Alert) error
	Recent(ctx context.Context, limit int) ([]Alert, error)
}

// NoopNotifier discards alerts.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, alert Alert) {}
