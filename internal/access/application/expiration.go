package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/mtgate/internal/access/domain"
	alerting "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"k8s.io/utils/clock"
)

// ExpiryMessenger tells a subscriber their entitlement has ended.
type ExpiryMessenger interface {
	NotifyExpired(ctx context.Context, e domain.Entitlement) error
}

// ExpirationReport is what a single tick demoted.
type ExpirationReport struct {
	Demoted   []domain.SubscriberID `json:"demoted"`
	Notified  int                   `json:"notified"`
	Converged bool                  `json:"converged"`
}

// ExpirationLoop demotes entitlements whose expiry has passed.
type ExpirationLoop struct {
	controller *Controller
	messenger  ExpiryMessenger
	notifier   alerting.Notifier
	clock      clock.PassiveClock
	logger     *slog.Logger
}

// NewExpirationLoop creates an expiration loop. The messenger may be nil.
func NewExpirationLoop(controller *Controller, messenger ExpiryMessenger) *ExpirationLoop {
	return &ExpirationLoop{
		controller: controller,
		messenger:  messenger,
		notifier:   controller.notifier,
		clock:      controller.clock,
		logger:     controller.logger.With("loop", "expiration"),
	}
}

// Tick demotes due entitlements, notifies their subscribers and converges once.
func (l *ExpirationLoop) Tick(ctx context.Context) (ExpirationReport, error) {
	var report ExpirationReport
	demoted, convergeErr := l.controller.ExpireDue(ctx, func(ctx context.Context, e domain.Entitlement) {
		report.Demoted = append(report.Demoted, e.SubscriberID)
		if l.messenger == nil {
			return
		}
		if err := l.messenger.NotifyExpired(ctx, e); err != nil {
			l.logger.Debug("expiry notice not delivered", "subscriber_id", e.SubscriberID, "error", err)
			return
		}
		report.Notified++
	})
	if len(demoted) == 0 {
		return ExpirationReport{}, convergeErr
	}
	report.Converged = convergeErr == nil

	l.logger.Info("expired entitlements demoted",
		"count", len(demoted),
		"notified", report.Notified,
		"converged", report.Converged,
	)

	if convergeErr != nil {
		l.notifier.Notify(ctx, alerting.NewAlert(alerting.KindExpirations, alerting.SeverityCritical,
			fmt.Sprintf("%d subscriptions expired, proxy update failed: %v", len(demoted), convergeErr),
			l.clock.Now()))
		return report, convergeErr
	}
	l.notifier.Notify(ctx, alerting.NewAlert(alerting.KindExpirations, alerting.SeverityInfo,
		fmt.Sprintf("%d subscriptions expired, subscribers notified, proxy updated.", len(demoted)),
		l.clock.Now()))
	return report, nil
}
