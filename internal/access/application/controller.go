package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/access/domain"
	alerting "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"k8s.io/utils/clock"
)

// DefaultCredentialAttempts bounds credential regeneration on collisions.
const DefaultCredentialAttempts = 3

// Converger brings the proxy process to a credential set.
type Converger interface {
	Converge(ctx context.Context, credentials []string) error
}

// ControllerConfig holds admission limits.
type ControllerConfig struct {
	Ceiling            int
	Trial              domain.TrialPlan
	CredentialAttempts int
}

// GrantRequest is a confirmed trial or paid entitlement request.
// When Plan is set it supplies Days and MaxConnections.
type GrantRequest struct {
	SubscriberID   domain.SubscriberID `json:"subscriber_id"`
	Username       string              `json:"username,omitempty"`
	Kind           domain.GrantKind    `json:"kind"`
	Plan           string              `json:"plan,omitempty"`
	Days           int                 `json:"days,omitempty"`
	MaxConnections int                 `json:"max_connections,omitempty"`
}

// Snapshot summarizes admission state.
type Snapshot struct {
	Active  int  `json:"active"`
	Total   int  `json:"total"`
	Ceiling int  `json:"ceiling"`
	Blocked bool `json:"blocked"`
}

// Controller serializes entitlement changes and keeps the proxy converged
// with the set of active entitlements.
type Controller struct {
	repo          domain.Repository
	proxy         Converger
	notifier      alerting.Notifier
	metrics       observability.Metrics
	clock         clock.PassiveClock
	logger        *slog.Logger
	newCredential domain.CredentialGenerator
	config        ControllerConfig

	// mu guards blocked and every read-decide-write-converge sequence.
	mu      sync.Mutex
	blocked bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock overrides the time source.
func WithClock(clk clock.PassiveClock) ControllerOption {
	return func(c *Controller) { c.clock = clk }
}

// WithNotifier sets the operator alert channel.
func WithNotifier(n alerting.Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithCredentialGenerator overrides credential generation.
func WithCredentialGenerator(g domain.CredentialGenerator) ControllerOption {
	return func(c *Controller) { c.newCredential = g }
}

// NewController creates a new entitlement controller.
func NewController(repo domain.Repository, proxy Converger, config ControllerConfig, opts ...ControllerOption) *Controller {
	if config.CredentialAttempts <= 0 {
		config.CredentialAttempts = DefaultCredentialAttempts
	}
	c := &Controller{
		repo:          repo,
		proxy:         proxy,
		notifier:      alerting.NoopNotifier{},
		metrics:       observability.NoopMetrics{},
		clock:         clock.RealClock{},
		logger:        slog.Default(),
		newCredential: domain.GenerateCredential,
		config:        config,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ceiling returns the configured active ceiling.
func (c *Controller) Ceiling() int {
	return c.config.Ceiling
}

// Trial returns the configured trial plan.
func (c *Controller) Trial() domain.TrialPlan {
	return c.config.Trial
}

// Grant admits or renews an entitlement and converges the proxy.
// When persistence succeeds but convergence fails, the persisted entitlement
// is returned together with an error matching ErrGrantedNotConverged.
func (c *Controller) Grant(ctx context.Context, req GrantRequest) (*domain.Entitlement, error) {
	req, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.logger.With("subscriber_id", req.SubscriberID, "kind", req.Kind)

	existing, err := c.find(ctx, req.SubscriberID)
	if err != nil {
		return nil, err
	}

	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if decision := domain.Admit(existing, snapshot); !decision.Allow {
		c.reject(req.Kind, decision.Reason)
		logger.Info("grant rejected",
			"reason", decision.Reason,
			"active_count", snapshot.ActiveCount,
			"ceiling", snapshot.Ceiling,
		)
		return nil, domain.ErrCapacityExceeded
	}

	if c.blocked {
		c.reject(req.Kind, domain.ReasonSalesBlocked)
		logger.Info("grant rejected", "reason", domain.ReasonSalesBlocked)
		return nil, domain.ErrSalesBlocked
	}

	if req.Kind == domain.KindTrial {
		if err := c.checkTrial(existing); err != nil {
			c.reject(req.Kind, "trial_unavailable")
			logger.Info("trial rejected", "error", err)
			return nil, err
		}
	}

	now := c.clock.Now()
	ent := buildEntitlement(existing, req, now)
	if req.Kind == domain.KindTrial {
		ent.TrialConsumed = true
	}

	// The row and its trial marker land in one upsert; from here on the
	// entitlement is active and must reach convergence.
	if err := c.persist(ctx, ent, existing == nil || !existing.Active); err != nil {
		return nil, err
	}

	c.metrics.Counter(observability.MetricGrants, 1, observability.T("kind", string(req.Kind)))
	logger.Info("entitlement granted",
		"expires_at", ent.ExpiresAt,
		"max_connections", ent.MaxConnections,
		"renewal", existing != nil && existing.Active,
	)

	if err := c.convergeLocked(ctx); err != nil {
		c.alertConvergence(ctx, "grant", req.SubscriberID, err)
		return ent, fmt.Errorf("%w: %w", domain.ErrGrantedNotConverged, err)
	}
	return ent, nil
}

func (c *Controller) resolve(req GrantRequest) (GrantRequest, error) {
	if req.SubscriberID == 0 {
		return req, fmt.Errorf("%w: subscriber id required", domain.ErrInvalidGrant)
	}
	if req.Kind == "" {
		req.Kind = domain.KindPaid
	}
	if !req.Kind.IsValid() {
		return req, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidGrant, req.Kind)
	}

	switch {
	case req.Kind == domain.KindTrial:
		if !c.config.Trial.Enabled() {
			return req, domain.ErrTrialUnavailable
		}
		trial := c.config.Trial.Plan()
		req.Plan = trial.ID
		req.Days = trial.Days
		req.MaxConnections = trial.MaxConnections
	case req.Plan != "":
		plan, err := domain.LookupPlan(req.Plan)
		if err != nil {
			return req, err
		}
		req.Days = plan.Days
		req.MaxConnections = plan.MaxConnections
	}

	if req.Days <= 0 {
		return req, fmt.Errorf("%w: days must be positive", domain.ErrInvalidGrant)
	}
	if req.MaxConnections <= 0 {
		req.MaxConnections = 1
	}
	return req, nil
}

func (c *Controller) checkTrial(existing *domain.Entitlement) error {
	if existing == nil {
		return nil
	}
	if existing.Active {
		return fmt.Errorf("%w: %w", domain.ErrTrialUnavailable, domain.ErrAlreadyActive)
	}
	return domain.ErrTrialUnavailable
}

func buildEntitlement(existing *domain.Entitlement, req GrantRequest, now time.Time) *domain.Entitlement {
	expires := domain.NextExpiry(existing, req.Days, now)
	ent := &domain.Entitlement{
		SubscriberID:   req.SubscriberID,
		Username:       req.Username,
		ExpiresAt:      &expires,
		MaxConnections: req.MaxConnections,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing == nil {
		return ent
	}

	ent.CreatedAt = existing.CreatedAt
	ent.TrialConsumed = existing.TrialConsumed
	if ent.Username == "" {
		ent.Username = existing.Username
	}
	if existing.MaxConnections > ent.MaxConnections {
		ent.MaxConnections = existing.MaxConnections
	}
	if existing.Active {
		ent.Credential = existing.Credential
	}
	return ent
}

// persist writes ent, regenerating its credential on collisions when fresh is set.
func (c *Controller) persist(ctx context.Context, ent *domain.Entitlement, fresh bool) error {
	attempts := 1
	if fresh {
		attempts = c.config.CredentialAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if fresh || ent.Credential == "" {
			cred, genErr := c.newCredential()
			if genErr != nil {
				return fmt.Errorf("generate credential: %w", genErr)
			}
			ent.Credential = cred
		}

		err = c.repo.InsertOrUpdate(ctx, ent)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateCredential) {
			break
		}
		c.logger.Warn("credential collision, regenerating",
			"subscriber_id", ent.SubscriberID,
			"attempt", i+1,
		)
	}
	return fmt.Errorf("persist entitlement: %w", err)
}

// Revoke deactivates the subject's entitlement. Revoking an inactive
// entitlement is a no-op and does not touch the proxy.
func (c *Controller) Revoke(ctx context.Context, id domain.SubscriberID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !existing.Active {
		return nil
	}

	if err := c.repo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate entitlement: %w", err)
	}
	c.metrics.Counter(observability.MetricRevocations, 1)
	c.logger.Info("entitlement revoked", "subscriber_id", id)

	if err := c.convergeLocked(ctx); err != nil {
		c.alertConvergence(ctx, "revoke", id, err)
		return err
	}
	return nil
}

// Reactivate re-admits an inactive entitlement whose expiry is still in the future.
func (c *Controller) Reactivate(ctx context.Context, id domain.SubscriberID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Active {
		return domain.ErrAlreadyActive
	}
	if existing.IsExpired(c.clock.Now()) {
		return domain.ErrExpired
	}

	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	if decision := domain.Admit(existing, snapshot); !decision.Allow {
		c.logger.Info("reactivation rejected",
			"subscriber_id", id,
			"reason", decision.Reason,
			"active_count", snapshot.ActiveCount,
		)
		return domain.ErrCapacityExceeded
	}

	if err := c.repo.SetActive(ctx, id, true); err != nil {
		return fmt.Errorf("activate entitlement: %w", err)
	}
	c.metrics.Counter(observability.MetricReactivations, 1)
	c.logger.Info("entitlement reactivated", "subscriber_id", id)

	if err := c.convergeLocked(ctx); err != nil {
		c.alertConvergence(ctx, "reactivate", id, err)
		return err
	}
	return nil
}

// Admit previews the admission decision for a subject without changing anything.
func (c *Controller) Admit(ctx context.Context, id domain.SubscriberID) (domain.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.find(ctx, id)
	if err != nil {
		return domain.Decision{}, err
	}
	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return domain.Decision{}, err
	}

	decision := domain.Admit(existing, snapshot)
	if decision.Allow && c.blocked {
		return domain.Decision{Allow: false, Reason: domain.ReasonSalesBlocked}, nil
	}
	return decision, nil
}

// Converge recomputes the credential set and applies it.
func (c *Controller) Converge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convergeLocked(ctx)
}

// WithCredentialSet runs fn with the current credential set while holding the
// controller lock, so no grant or revocation interleaves with it.
func (c *Controller) WithCredentialSet(ctx context.Context, fn func(ctx context.Context, credentials []string) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active: %w", err)
	}
	return fn(ctx, domain.CredentialSet(active))
}

// IsBlocked reports whether new sales are closed.
func (c *Controller) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// SetBlocked opens or closes new sales.
func (c *Controller) SetBlocked(blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setBlockedLocked(blocked)
}

// swapBlocked sets the flag and reports whether it changed.
func (c *Controller) swapBlocked(blocked bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocked == blocked {
		return false
	}
	c.setBlockedLocked(blocked)
	return true
}

func (c *Controller) setBlockedLocked(blocked bool) {
	c.blocked = blocked
	v := 0.0
	if blocked {
		v = 1
	}
	c.metrics.Gauge(observability.MetricSalesBlocked, v)
}

// Snapshot returns counts and the admission flag.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	active, err := c.repo.CountActive(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count active: %w", err)
	}
	total, err := c.repo.CountAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count all: %w", err)
	}
	return Snapshot{
		Active:  active,
		Total:   total,
		Ceiling: c.config.Ceiling,
		Blocked: c.IsBlocked(),
	}, nil
}

// Get returns the subject's entitlement.
func (c *Controller) Get(ctx context.Context, id domain.SubscriberID) (*domain.Entitlement, error) {
	return c.repo.Get(ctx, id)
}

// ListActive returns all active entitlements.
func (c *Controller) ListActive(ctx context.Context) ([]domain.Entitlement, error) {
	return c.repo.ListActive(ctx)
}

// ExpireDue demotes every active entitlement whose expiry has passed, calls
// notify for each demoted one and then, when any were demoted, converges once.
// notify may be nil. It returns the demoted entitlements even when
// convergence fails.
func (c *Controller) ExpireDue(ctx context.Context, notify func(context.Context, domain.Entitlement)) ([]domain.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired, err := c.repo.ListExpired(ctx, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}

	demoted := make([]domain.Entitlement, 0, len(expired))
	for _, e := range expired {
		if err := c.repo.SetActive(ctx, e.SubscriberID, false); err != nil {
			c.logger.Error("failed to demote expired entitlement",
				"subscriber_id", e.SubscriberID,
				"error", err,
			)
			continue
		}
		e.Active = false
		demoted = append(demoted, e)
	}
	if len(demoted) == 0 {
		return nil, nil
	}

	c.metrics.Counter(observability.MetricExpirations, int64(len(demoted)))
	if notify != nil {
		for _, e := range demoted {
			notify(ctx, e)
		}
	}
	if err := c.convergeLocked(ctx); err != nil {
		return demoted, err
	}
	return demoted, nil
}

func (c *Controller) find(ctx context.Context, id domain.SubscriberID) (*domain.Entitlement, error) {
	existing, err := c.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	return existing, nil
}

func (c *Controller) snapshot(ctx context.Context) (domain.CapacitySnapshot, error) {
	active, err := c.repo.CountActive(ctx)
	if err != nil {
		return domain.CapacitySnapshot{}, fmt.Errorf("count active: %w", err)
	}
	return domain.CapacitySnapshot{ActiveCount: active, Ceiling: c.config.Ceiling}, nil
}

// convergeLocked recomputes the credential set from committed state and applies it.
func (c *Controller) convergeLocked(ctx context.Context) error {
	active, err := c.repo.ListActive(ctx)
	if err != nil {
		c.metrics.Counter(observability.MetricConvergenceFailures, 1)
		return fmt.Errorf("list active: %w", err)
	}
	creds := domain.CredentialSet(active)
	c.metrics.Gauge(observability.MetricActiveCount, float64(len(active)))

	start := c.clock.Now()
	err = c.proxy.Converge(ctx, creds)
	c.metrics.Timing(observability.MetricConvergeDuration, c.clock.Since(start))
	if err != nil {
		c.metrics.Counter(observability.MetricConvergenceFailures, 1)
		c.logger.Error("proxy convergence failed", "credentials", len(creds), "error", err)
		return err
	}
	c.metrics.Counter(observability.MetricConvergences, 1)
	return nil
}

func (c *Controller) reject(kind domain.GrantKind, reason domain.DecisionReason) {
	c.metrics.Counter(observability.MetricGrantRejected, 1,
		observability.T("kind", string(kind)),
		observability.T("reason", string(reason)),
	)
}

func (c *Controller) alertConvergence(ctx context.Context, op string, id domain.SubscriberID, err error) {
	kind := alerting.KindConvergenceFailed
	if op == "grant" {
		kind = alerting.KindGrantNotConverged
	}
	c.notifier.Notify(ctx, alerting.NewAlert(kind, alerting.SeverityCritical,
		fmt.Sprintf("%s for subscriber %s saved but proxy not updated: %v", op, id, err),
		c.clock.Now(),
	))
}
