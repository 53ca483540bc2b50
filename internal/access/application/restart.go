package application

import (
	"context"
	"fmt"
	"log/slog"

	alerting "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
)

// RestartLoop periodically re-applies the credential set, restarting the proxy.
type RestartLoop struct {
	controller *Controller
	logger     *slog.Logger
}

// NewRestartLoop creates a scheduled restart loop.
func NewRestartLoop(controller *Controller) *RestartLoop {
	return &RestartLoop{
		controller: controller,
		logger:     controller.logger.With("loop", "restart"),
	}
}

// Tick converges once and alerts on failure.
func (l *RestartLoop) Tick(ctx context.Context) error {
	if err := l.controller.Converge(ctx); err != nil {
		l.controller.notifier.Notify(ctx, alerting.NewAlert(alerting.KindScheduledRestart, alerting.SeverityCritical,
			fmt.Sprintf("Scheduled proxy restart failed: %v", err), l.controller.clock.Now()))
		return err
	}
	l.logger.Info("scheduled proxy restart complete")
	return nil
}
