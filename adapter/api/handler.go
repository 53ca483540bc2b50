package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	accessApp "github.com/felixgeelhaar/mtgate/internal/access/application"
	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	alertingDomain "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	proxyDomain "github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/scheduler"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"k8s.io/utils/clock"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// ProxyStatus reads the proxy's state with failures degraded to defaults.
type ProxyStatus interface {
	IsRunning(ctx context.Context) bool
	ResourceUsage(ctx context.Context) int
	Stats(ctx context.Context) *proxyDomain.Stats
}

// UpgradeFunc pulls the proxy image and recreates the proxy.
type UpgradeFunc func(ctx context.Context) (proxyDomain.UpgradeResult, error)

// Handler serves the controller API.
type Handler struct {
	controller *accessApp.Controller
	proxy      ProxyStatus
	upgrade    UpgradeFunc
	alerts     alertingDomain.Repository
	notifier   alertingDomain.Notifier
	jobs       *scheduler.Scheduler
	health     *observability.HealthRegistry
	metrics    http.Handler
	links      proxyDomain.LinkBuilder
	clock      clock.PassiveClock
	logger     *slog.Logger
}

// HandlerConfig holds dependencies for the handler. Alerts, Jobs, Health,
// Metrics and Upgrade are optional; their routes answer 404 when unset.
type HandlerConfig struct {
	Controller *accessApp.Controller
	Proxy      ProxyStatus
	Upgrade    UpgradeFunc
	Alerts     alertingDomain.Repository
	Notifier   alertingDomain.Notifier
	Jobs       *scheduler.Scheduler
	Health     *observability.HealthRegistry
	Metrics    http.Handler
	Links      proxyDomain.LinkBuilder
	Clock      clock.PassiveClock
	Logger     *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = alertingDomain.NoopNotifier{}
	}
	return &Handler{
		controller: cfg.Controller,
		proxy:      cfg.Proxy,
		upgrade:    cfg.Upgrade,
		alerts:     cfg.Alerts,
		notifier:   cfg.Notifier,
		jobs:       cfg.Jobs,
		health:     cfg.Health,
		metrics:    cfg.Metrics,
		links:      cfg.Links,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(observability.HealthStatusHealthy)})
		return
	}
	overall := h.health.GetOverallHealth(r.Context())
	status := http.StatusOK
	if overall.Status == observability.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, overall)
}

// Status handles GET /api/v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.controller.Snapshot(ctx)
	if err != nil {
		h.fail(w, r, "status", err)
		return
	}

	resp := StatusResponse{
		Active:  snap.Active,
		Total:   snap.Total,
		Ceiling: snap.Ceiling,
		Blocked: snap.Blocked,
	}
	if h.proxy != nil {
		resp.Running = h.proxy.IsRunning(ctx)
		resp.UsagePercent = h.proxy.ResourceUsage(ctx)
		resp.Connections = h.proxy.Stats(ctx)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSubscribers handles GET /api/v1/subscribers
func (h *Handler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	active, err := h.controller.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, "list subscribers", err)
		return
	}
	now := h.clock.Now()
	out := make([]Subscriber, 0, len(active))
	for i := range active {
		out = append(out, toSubscriber(&active[i], h.links, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSubscriber handles GET /api/v1/subscribers/{id}
func (h *Handler) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriberID(w, r)
	if !ok {
		return
	}
	ent, err := h.controller.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get subscriber", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriber(ent, h.links, h.clock.Now()))
}

// Admission handles GET /api/v1/subscribers/{id}/admission
func (h *Handler) Admission(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriberID(w, r)
	if !ok {
		return
	}
	decision, err := h.controller.Admit(r.Context(), id)
	if err != nil {
		h.fail(w, r, "admission", err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// Grant handles POST /api/v1/grants
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req accessApp.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrBadRequest.with("invalid JSON body: "+err.Error()))
		return
	}

	ent, err := h.controller.Grant(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, GrantResponse{
			Subscriber: toSubscriber(ent, h.links, h.clock.Now()),
			Converged:  true,
		})
	case errors.Is(err, accessDomain.ErrGrantedNotConverged) && ent != nil:
		h.logger.Warn("grant stored but proxy not converged",
			"subscriber_id", ent.SubscriberID,
			"error", err,
		)
		writeJSON(w, http.StatusAccepted, GrantResponse{
			Subscriber: toSubscriber(ent, h.links, h.clock.Now()),
			Converged:  false,
			Warning:    err.Error(),
		})
	default:
		h.fail(w, r, "grant", err)
	}
}

// Revoke handles POST /api/v1/subscribers/{id}/revoke
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "revoke", h.controller.Revoke)
}

// Reactivate handles POST /api/v1/subscribers/{id}/reactivate
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "reactivate", h.controller.Reactivate)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, accessDomain.SubscriberID) error) {
	id, ok := subscriberID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := fn(ctx, id); err != nil {
		h.fail(w, r, op, err)
		return
	}
	ent, err := h.controller.Get(ctx, id)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriber(ent, h.links, h.clock.Now()))
}

// Plans handles GET /api/v1/plans
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	plans := accessDomain.Plans()
	if trial := h.controller.Trial(); trial.Enabled() {
		plans = append(plans, trial.Plan())
	}
	writeJSON(w, http.StatusOK, plans)
}

// SetSales handles PUT /api/v1/sales
func (h *Handler) SetSales(w http.ResponseWriter, r *http.Request) {
	var req SalesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrBadRequest.with("invalid JSON body: "+err.Error()))
		return
	}

	changed := h.controller.IsBlocked() != req.Blocked
	h.controller.SetBlocked(req.Blocked)
	if changed {
		msg := "New sales reopened by operator."
		if req.Blocked {
			msg = "New sales closed by operator."
		}
		h.logger.Info("sales flag changed", "blocked", req.Blocked)
		h.notifier.Notify(r.Context(), alertingDomain.NewAlert(alertingDomain.KindSalesToggled,
			alertingDomain.SeverityInfo, msg, h.clock.Now()))
	}
	writeJSON(w, http.StatusOK, SalesRequest{Blocked: h.controller.IsBlocked()})
}

// RestartProxy handles POST /api/v1/proxy/restart
func (h *Handler) RestartProxy(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Converge(r.Context()); err != nil {
		h.fail(w, r, "restart proxy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restarted": true})
}

// UpgradeProxy handles POST /api/v1/proxy/upgrade
func (h *Handler) UpgradeProxy(w http.ResponseWriter, r *http.Request) {
	if h.upgrade == nil {
		writeError(w, ErrNotFound.with("proxy upgrade not available"))
		return
	}
	result, err := h.upgrade(r.Context())
	if err != nil {
		h.fail(w, r, "upgrade proxy", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecentAlerts handles GET /api/v1/alerts
func (h *Handler) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeError(w, ErrNotFound.with("alert journal not available"))
		return
	}
	limit := parseIntParam(r, "limit", defaultAlertLimit)
	if limit <= 0 || limit > maxAlertLimit {
		writeError(w, ErrBadRequest.with("limit must be within [1, "+strconv.Itoa(maxAlertLimit)+"]"))
		return
	}
	alerts, err := h.alerts.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "recent alerts", err)
		return
	}
	if alerts == nil {
		alerts = []alertingDomain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// ListJobs handles GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, ErrNotFound.with("scheduler not available"))
		return
	}
	writeJSON(w, http.StatusOK, h.jobs.Stats())
}

// RunJob handles POST /api/v1/jobs/{name}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, ErrNotFound.with("scheduler not available"))
		return
	}
	name := r.PathValue("name")
	if err := h.jobs.Run(r.Context(), name); err != nil {
		h.fail(w, r, "run job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"operation", op,
			"error", err,
			observability.CorrelationIDKey, observability.CorrelationIDFromContext(r.Context()),
		)
	} else {
		h.logger.Debug("request rejected", "operation", op, "error", err)
	}
	writeError(w, apiErr)
}

func subscriberID(w http.ResponseWriter, r *http.Request) (accessDomain.SubscriberID, bool) {
	id, err := accessDomain.ParseSubscriberID(r.PathValue("id"))
	if err != nil || id == 0 {
		writeError(w, ErrBadRequest.with("invalid subscriber id"))
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
