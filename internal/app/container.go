package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	accessApp "github.com/felixgeelhaar/mtgate/internal/access/application"
	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	alertingApp "github.com/felixgeelhaar/mtgate/internal/alerting/application"
	alertingDomain "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/internal/alerting/infrastructure/broker"
	"github.com/felixgeelhaar/mtgate/internal/alerting/infrastructure/telegram"
	proxyApp "github.com/felixgeelhaar/mtgate/internal/proxy/application"
	proxyDomain "github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/felixgeelhaar/mtgate/internal/proxy/infrastructure/docker"
	"github.com/felixgeelhaar/mtgate/internal/proxy/infrastructure/hostmem"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/ratelimit"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/scheduler"
	"github.com/felixgeelhaar/mtgate/pkg/config"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"
)

// Scheduled job names.
const (
	JobHealth     = "health"
	JobExpiration = "expiration"
	JobRestart    = "restart"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Publishers
	EventPublisher eventbus.Publisher

	// Observability
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Repositories
	EntitlementRepo accessDomain.Repository
	AlertRepo       alertingDomain.Repository

	// Proxy
	Runtime      proxyDomain.Runtime
	ProxyManager *proxyApp.Manager
	Links        proxyDomain.LinkBuilder

	// Alerting
	Dispatcher *alertingApp.Dispatcher
	Telegram   *telegram.Client

	// Access
	Controller     *accessApp.Controller
	HealthLoop     *accessApp.HealthLoop
	ExpirationLoop *accessApp.ExpirationLoop
	RestartLoop    *accessApp.RestartLoop

	Scheduler *scheduler.Scheduler

	clock clock.PassiveClock
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	runtime    proxyDomain.Runtime
	memory     proxyDomain.MemorySampler
	clock      clock.PassiveClock
	httpClient *http.Client
}

// WithRuntime replaces the docker runtime.
func WithRuntime(r proxyDomain.Runtime) Option {
	return func(o *options) { o.runtime = r }
}

// WithMemorySampler replaces the /proc memory sampler.
func WithMemorySampler(m proxyDomain.MemorySampler) Option {
	return func(o *options) { o.memory = m }
}

// WithClock replaces the wall clock.
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient sets the client used for the Telegram Bot API.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// NewContainer wires every component from configuration. Storage is
// migrated before the container is returned.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(),
		Health:  observability.NewHealthRegistry(),
		clock:   o.clock,
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initPublisher(); err != nil {
		c.Close()
		return nil, err
	}

	c.initProxy(o)
	c.initAlerting(o)
	c.initAccess(o)

	c.Scheduler = scheduler.New(logger,
		scheduler.WithMetrics(c.Metrics),
		scheduler.WithJobTimeout(cfg.ProxyPullTimeout+cfg.ProxyRestartTimeout),
	)
	if err := c.RegisterJobs(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	conn, err := database.Open(ctx, database.Config{
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath(),
		MaxConns:   c.Config.DatabaseMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()

	factory := NewRepositoryFactory(conn)
	if err := factory.Migrate(ctx); err != nil {
		c.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if c.EntitlementRepo, err = factory.EntitlementRepository(); err != nil {
		c.Close()
		return err
	}
	if c.AlertRepo, err = factory.AlertRepository(); err != nil {
		c.Close()
		return err
	}

	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))
	c.Logger.Info("connected to database", "driver", c.DBDriver.String())
	return nil
}

// initRedis connects the optional Redis client. In development an unreachable
// Redis degrades to the in-memory alert throttle.
func (c *Container) initRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, alert throttling will use in-memory fallback", "error", err)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, alert throttling will use in-memory fallback", "error", err)
		return nil
	}

	c.RedisClient = client
	c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) initPublisher() error {
	if c.Config.RabbitMQURL == "" {
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}

	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, eventbus.ExchangeName, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}

	c.EventPublisher = publisher
	c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(publisher.Check))
	return nil
}

func (c *Container) initProxy(o options) {
	cfg := c.Config

	runtime := o.runtime
	if runtime == nil {
		dockerCfg := docker.DefaultConfig()
		dockerCfg.Container = cfg.ProxyContainer
		dockerCfg.Port = cfg.ProxyPort
		dockerCfg.Tag = cfg.ProxyTag
		runtime = docker.NewRuntime(dockerCfg, nil, c.Metrics, c.Logger.With("component", "docker"))
	}
	memory := o.memory
	if memory == nil {
		memory = hostmem.NewSampler(hostmem.DefaultMountPoint)
	}

	c.Runtime = runtime
	c.ProxyManager = proxyApp.NewManager(runtime, memory, proxyApp.ManagerConfig{
		Image:          cfg.ProxyImage,
		RestartTimeout: cfg.ProxyRestartTimeout,
		ProbeTimeout:   cfg.ProxyProbeTimeout,
		PullTimeout:    cfg.ProxyPullTimeout,
	}, c.Logger.With("component", "proxy"))
	c.Links = proxyDomain.NewLinkBuilder(cfg.PublicServer(), cfg.ProxyPort)

	manager := c.ProxyManager
	c.Health.Register("proxy", func(ctx context.Context) observability.HealthCheckResult {
		running, err := manager.ProbeRunning(ctx)
		switch {
		case err != nil:
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusUnhealthy,
				Message: err.Error(),
			}
		case !running:
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusDegraded,
				Message: "proxy container not running",
			}
		default:
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusHealthy,
				Message: "proxy running",
			}
		}
	})
}

func (c *Container) initAlerting(o options) {
	cfg := c.Config
	logger := c.Logger.With("component", "alerts")

	sinks := []alertingDomain.Sink{alertingApp.NewLogSink(logger)}

	if cfg.TelegramBotToken != "" {
		c.Telegram = telegram.NewClient(telegram.Config{
			Token:   cfg.TelegramBotToken,
			APIURL:  cfg.TelegramAPIURL,
			AdminID: cfg.AdminID,
		}, o.httpClient, logger)
		sinks = append(sinks, c.Telegram)
	}

	if _, ok := c.EventPublisher.(*eventbus.NoopPublisher); !ok {
		sinks = append(sinks, broker.NewSink(c.EventPublisher, "mtgate", c.Metrics))
	}

	c.Dispatcher = alertingApp.NewDispatcher(sinks, logger,
		alertingApp.WithJournal(c.AlertRepo),
		alertingApp.WithMetrics(c.Metrics),
	)
}

func (c *Container) initAccess(o options) {
	cfg := c.Config

	c.Controller = accessApp.NewController(c.EntitlementRepo, c.ProxyManager, accessApp.ControllerConfig{
		Ceiling: cfg.MaxUsers,
		Trial: accessDomain.TrialPlan{
			Days:           cfg.TrialDays,
			MaxConnections: cfg.TrialMaxConnections,
		},
	},
		accessApp.WithClock(o.clock),
		accessApp.WithNotifier(c.Dispatcher),
		accessApp.WithMetrics(c.Metrics),
		accessApp.WithLogger(c.Logger.With("component", "access")),
	)

	limits := map[string]ratelimit.Limit{
		accessApp.SoftLimitBucket: {Limit: 1, Window: cfg.SoftLimitAlertWindow},
	}
	var limiter accessApp.AlertLimiter
	if c.RedisClient != nil {
		limiter = ratelimit.NewRedisLimiter(c.RedisClient, "mtgate:alerts", limits, o.clock)
	} else {
		limiter = ratelimit.NewMemoryLimiter(limits, o.clock)
	}

	c.HealthLoop = accessApp.NewHealthLoop(c.Controller, c.ProxyManager, limiter, accessApp.HealthConfig{
		WarnPercent:           cfg.RAMWarnPercent,
		StopPercent:           cfg.RAMStopPercent,
		SoftLimit:             cfg.SoftLimit,
		ProbeFailureThreshold: cfg.ProbeFailureThreshold,
	})

	var messenger accessApp.ExpiryMessenger
	if c.Telegram != nil && cfg.ExpiryNotices {
		messenger = c.Telegram
	}
	c.ExpirationLoop = accessApp.NewExpirationLoop(c.Controller, messenger)
	c.RestartLoop = accessApp.NewRestartLoop(c.Controller)
}

// RegisterJobs registers the health, expiration and daily restart jobs.
func (c *Container) RegisterJobs() error {
	jobs := []struct {
		name     string
		schedule string
		fn       scheduler.JobFunc
	}{
		{JobHealth, c.Config.HealthSchedule, func(ctx context.Context) error {
			report := c.HealthLoop.Tick(ctx)
			c.Logger.Debug("health tick",
				"usage_percent", report.Usage,
				"running", report.Running,
				"active_count", report.ActiveCount,
				"blocked", report.Blocked,
				"actions", report.Actions,
			)
			return nil
		}},
		{JobExpiration, c.Config.ExpirationSchedule, func(ctx context.Context) error {
			_, err := c.ExpirationLoop.Tick(ctx)
			return err
		}},
		{JobRestart, c.Config.RestartSchedule, c.RestartLoop.Tick},
	}

	for _, j := range jobs {
		if err := c.Scheduler.Register(j.name, j.schedule, j.fn); err != nil {
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
	}
	return nil
}

// ConvergeProxy applies the stored credential set to the proxy, alerting the
// operator when it fails. serve calls it once before the loops start.
func (c *Container) ConvergeProxy(ctx context.Context) error {
	if err := c.Controller.Converge(ctx); err != nil {
		c.Logger.Warn("startup convergence failed", "error", err)
		c.Dispatcher.Notify(ctx, alertingDomain.NewAlert(alertingDomain.KindConvergenceFailed, alertingDomain.SeverityCritical,
			fmt.Sprintf("Proxy update failed at startup: %v", err), c.clock.Now()))
		return err
	}
	return nil
}

// UpgradeProxy pulls the configured image and recreates the proxy when it
// changed. Grants wait until the upgrade finishes.
func (c *Container) UpgradeProxy(ctx context.Context) (proxyDomain.UpgradeResult, error) {
	var result proxyDomain.UpgradeResult
	err := c.Controller.WithCredentialSet(ctx, func(ctx context.Context, credentials []string) error {
		var err error
		result, err = c.ProxyManager.Upgrade(ctx, credentials)
		return err
	})
	if err != nil {
		c.Dispatcher.Notify(ctx, alertingDomain.NewAlert(alertingDomain.KindConvergenceFailed, alertingDomain.SeverityCritical,
			fmt.Sprintf("Proxy upgrade failed: %v", err), c.clock.Now()))
	}
	return result, err
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.Scheduler != nil && c.Scheduler.IsRunning() {
		c.Scheduler.Stop()
	}

	if c.Dispatcher != nil {
		c.Dispatcher.Wait()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver.String())
		}
	}
}
