package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	alerting "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"k8s.io/utils/clock"
)

// SoftLimitBucket is the limiter bucket for soft-limit alerts.
const SoftLimitBucket = "soft_limit"

// ProxyProbe reports proxy liveness and host pressure with errors surfaced.
type ProxyProbe interface {
	ProbeRunning(ctx context.Context) (bool, error)
	SampleResourceUsage(ctx context.Context) (int, error)
}

// AlertLimiter throttles repeated alerts.
type AlertLimiter interface {
	Allow(ctx context.Context, bucket, key string) (bool, error)
}

// HealthConfig holds the thresholds the health loop reacts to.
type HealthConfig struct {
	WarnPercent           int
	StopPercent           int
	SoftLimit             int
	ProbeFailureThreshold int
}

// HealthReport is what a single tick observed and did.
type HealthReport struct {
	Usage       int      `json:"usage_percent"`
	UsageKnown  bool     `json:"usage_known"`
	Running     bool     `json:"running"`
	ActiveCount int      `json:"active_count"`
	Blocked     bool     `json:"blocked"`
	Actions     []string `json:"actions,omitempty"`
}

func (r *HealthReport) act(action string) {
	r.Actions = append(r.Actions, action)
}

// Health loop actions.
const (
	ActionSalesClosed      = "sales_closed"
	ActionResourceWarning  = "resource_warning"
	ActionSalesReopened    = "sales_reopened"
	ActionProxyRecovered   = "proxy_recovered"
	ActionRecoveryFailed   = "proxy_recovery_failed"
	ActionSoftLimitAlerted = "soft_limit_alerted"
)

// HealthLoop reacts to resource pressure and proxy crashes.
type HealthLoop struct {
	controller *Controller
	probe      ProxyProbe
	limiter    AlertLimiter
	notifier   alerting.Notifier
	metrics    observability.Metrics
	clock      clock.PassiveClock
	logger     *slog.Logger
	config     HealthConfig

	mu           sync.Mutex
	memFailures  int
	liveFailures int
}

// NewHealthLoop creates a health loop. The limiter may be nil, in which case
// soft-limit alerts are sent on every tick that crosses the threshold.
func NewHealthLoop(controller *Controller, probe ProxyProbe, limiter AlertLimiter, config HealthConfig) *HealthLoop {
	if config.ProbeFailureThreshold <= 0 {
		config.ProbeFailureThreshold = 3
	}
	return &HealthLoop{
		controller: controller,
		probe:      probe,
		limiter:    limiter,
		notifier:   controller.notifier,
		metrics:    controller.metrics,
		clock:      controller.clock,
		logger:     controller.logger.With("loop", "health"),
		config:     config,
	}
}

// Tick evaluates every rule once.
func (h *HealthLoop) Tick(ctx context.Context) HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	var report HealthReport

	usage, err := h.probe.SampleResourceUsage(ctx)
	if err != nil {
		h.probeFailed(ctx, "memory", &h.memFailures, err)
	} else {
		h.memFailures = 0
		report.Usage = usage
		report.UsageKnown = true
		h.metrics.Gauge(observability.MetricResourceUsage, float64(usage))
		h.applyPressure(ctx, usage, &report)
	}

	active, err := h.controller.repo.CountActive(ctx)
	if err != nil {
		h.logger.Error("failed to count active entitlements", "error", err)
	} else {
		report.ActiveCount = active
		h.metrics.Gauge(observability.MetricActiveCount, float64(active))
	}

	running, err := h.probe.ProbeRunning(ctx)
	if err != nil {
		h.probeFailed(ctx, "liveness", &h.liveFailures, err)
	} else {
		h.liveFailures = 0
	}
	report.Running = running && err == nil
	h.metrics.Gauge(observability.MetricProxyRunning, boolGauge(report.Running))

	if !report.Running && report.ActiveCount > 0 {
		h.recover(ctx, &report)
	}

	if h.inSoftLimitBand(report.ActiveCount) {
		h.alertSoftLimit(ctx, report.ActiveCount, &report)
	}

	report.Blocked = h.controller.IsBlocked()
	return report
}

func (h *HealthLoop) applyPressure(ctx context.Context, usage int, report *HealthReport) {
	switch {
	case usage > h.config.StopPercent:
		if h.controller.swapBlocked(true) {
			report.act(ActionSalesClosed)
			h.logger.Warn("sales closed on resource pressure", "usage_percent", usage)
			h.alert(ctx, alerting.KindResourceCritical, alerting.SeverityCritical,
				fmt.Sprintf("Memory at %d%% exceeds %d%%, new sales closed.", usage, h.config.StopPercent))
		}
	case usage > h.config.WarnPercent:
		report.act(ActionResourceWarning)
		h.alert(ctx, alerting.KindResourceWarning, alerting.SeverityWarning,
			fmt.Sprintf("Memory at %d%%, approaching the %d%% limit.", usage, h.config.StopPercent))
	case usage < h.config.WarnPercent:
		if h.controller.swapBlocked(false) {
			report.act(ActionSalesReopened)
			h.logger.Info("sales reopened", "usage_percent", usage)
			h.alert(ctx, alerting.KindResourceRecovered, alerting.SeverityInfo,
				fmt.Sprintf("Memory at %d%%, new sales reopened.", usage))
		}
	}
}

func (h *HealthLoop) recover(ctx context.Context, report *HealthReport) {
	h.logger.Warn("proxy down with active subscribers, converging", "active_count", report.ActiveCount)
	h.alert(ctx, alerting.KindProxyDown, alerting.SeverityCritical,
		fmt.Sprintf("Proxy is down with %d active subscribers, restarting.", report.ActiveCount))

	if err := h.controller.Converge(ctx); err != nil {
		report.act(ActionRecoveryFailed)
		h.alert(ctx, alerting.KindProxyRecoveryFailed, alerting.SeverityCritical,
			fmt.Sprintf("Proxy restart failed: %v", err))
		return
	}
	report.act(ActionProxyRecovered)
	h.alert(ctx, alerting.KindProxyRecovered, alerting.SeverityInfo, "Proxy restored.")
}

func (h *HealthLoop) inSoftLimitBand(active int) bool {
	return h.config.SoftLimit > 0 && active >= h.config.SoftLimit && active < h.controller.Ceiling()
}

func (h *HealthLoop) alertSoftLimit(ctx context.Context, active int, report *HealthReport) {
	if h.limiter != nil {
		ok, err := h.limiter.Allow(ctx, SoftLimitBucket, "operator")
		if err != nil {
			// Alert unthrottled rather than stay silent.
			h.logger.Warn("soft limit throttle unavailable", "error", err)
			ok = true
		}
		if !ok {
			return
		}
	}
	report.act(ActionSoftLimitAlerted)
	h.alert(ctx, alerting.KindSoftLimit, alerting.SeverityWarning,
		fmt.Sprintf("Active subscribers: %d/%d, approaching capacity.", active, h.controller.Ceiling()))
}

func (h *HealthLoop) probeFailed(ctx context.Context, probe string, counter *int, err error) {
	*counter++
	h.metrics.Counter(observability.MetricProbeFailures, 1, observability.T("probe", probe))
	h.logger.Warn("probe failed",
		"probe", probe,
		"consecutive_failures", *counter,
		"error", err,
	)
	if *counter == h.config.ProbeFailureThreshold {
		h.alert(ctx, alerting.KindProbeFailing, alerting.SeverityWarning,
			fmt.Sprintf("%s probe failed %d times in a row: %v", probe, *counter, err))
	}
}

func (h *HealthLoop) alert(ctx context.Context, kind alerting.Kind, severity alerting.Severity, message string) {
	h.notifier.Notify(ctx, alerting.NewAlert(kind, severity, message, h.clock.Now()))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
