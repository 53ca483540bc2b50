package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/proxy/domain"
)

// DefaultImage is used when neither the running container nor configuration names an image.
const DefaultImage = "ghcr.io/skrashevich/mtproxy:latest"

// ManagerConfig holds timeouts and defaults for the proxy manager.
type ManagerConfig struct {
	Image          string
	RestartTimeout time.Duration
	ProbeTimeout   time.Duration
	PullTimeout    time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Image:          DefaultImage,
		RestartTimeout: 30 * time.Second,
		ProbeTimeout:   5 * time.Second,
		PullTimeout:    2 * time.Minute,
	}
}

// Manager owns the lifecycle of the single proxy process.
type Manager struct {
	runtime domain.Runtime
	memory  domain.MemorySampler
	config  ManagerConfig
	logger  *slog.Logger

	mu sync.Mutex
}

// NewManager creates a new proxy manager.
func NewManager(runtime domain.Runtime, memory domain.MemorySampler, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultManagerConfig()
	if config.Image == "" {
		config.Image = defaults.Image
	}
	if config.RestartTimeout <= 0 {
		config.RestartTimeout = defaults.RestartTimeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.PullTimeout <= 0 {
		config.PullTimeout = defaults.PullTimeout
	}
	return &Manager{
		runtime: runtime,
		memory:  memory,
		config:  config,
		logger:  logger,
	}
}

// Converge applies the credential set with the fast-restart strategy.
// An empty set stops the process.
func (m *Manager) Converge(ctx context.Context, credentials []string) error {
	return m.ConvergeWith(ctx, domain.StrategyFastRestart, credentials)
}

// ConvergeWith applies the credential set with the given strategy.
func (m *Manager) ConvergeWith(ctx context.Context, strategy domain.Strategy, credentials []string) error {
	switch strategy {
	case domain.StrategyFastRestart:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.fastRestart(ctx, credentials)
	case domain.StrategyRecreate:
		_, err := m.Upgrade(ctx, credentials)
		return err
	default:
		return fmt.Errorf("%w: unknown strategy %q", domain.ErrConvergenceFailed, strategy)
	}
}

func (m *Manager) fastRestart(ctx context.Context, credentials []string) error {
	if len(credentials) == 0 {
		if err := m.withTimeout(ctx, m.config.RestartTimeout, m.runtime.Stop); err != nil {
			return fmt.Errorf("%w: stop: %w", domain.ErrConvergenceFailed, err)
		}
		m.logger.Info("proxy stopped, no active credentials")
		return nil
	}

	err := m.withTimeout(ctx, m.config.ProbeTimeout, func(ctx context.Context) error {
		return m.runtime.WriteSecrets(ctx, credentials)
	})
	if err != nil {
		return fmt.Errorf("%w: write secrets: %w", domain.ErrConvergenceFailed, err)
	}

	if err := m.withTimeout(ctx, m.config.RestartTimeout, m.runtime.Restart); err != nil {
		return fmt.Errorf("%w: restart: %w", domain.ErrConvergenceFailed, err)
	}

	m.logger.Info("proxy restarted", "credentials", len(credentials))
	return nil
}

// Upgrade pulls the image, replaces the container and applies the credential set.
// Updated reports whether the pulled image differs from the one present before.
func (m *Manager) Upgrade(ctx context.Context, credentials []string) (domain.UpgradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	image := m.currentImage(ctx)
	result := domain.UpgradeResult{Image: image}

	before := m.imageID(ctx, image)
	m.logger.Info("pulling proxy image", "image", image)
	err := m.withTimeout(ctx, m.config.PullTimeout, func(ctx context.Context) error {
		return m.runtime.Pull(ctx, image)
	})
	if err != nil {
		return result, fmt.Errorf("%w: pull %s: %w", domain.ErrConvergenceFailed, image, err)
	}
	result.Updated = before != m.imageID(ctx, image)

	// The container may not exist yet.
	if err := m.withTimeout(ctx, m.config.RestartTimeout, m.runtime.Stop); err != nil {
		m.logger.Debug("stop before recreate failed", "error", err)
	}
	if err := m.withTimeout(ctx, m.config.RestartTimeout, m.runtime.Remove); err != nil {
		m.logger.Debug("remove before recreate failed", "error", err)
	}

	if len(credentials) == 0 {
		m.logger.Info("proxy not started, no active credentials", "image", image)
		return result, nil
	}

	err = m.withTimeout(ctx, m.config.RestartTimeout, func(ctx context.Context) error {
		return m.runtime.Run(ctx, image)
	})
	if err != nil {
		return result, fmt.Errorf("%w: run %s: %w", domain.ErrConvergenceFailed, image, err)
	}
	if err := m.fastRestart(ctx, credentials); err != nil {
		return result, err
	}

	m.logger.Info("proxy recreated",
		"image", image,
		"updated", result.Updated,
		"credentials", len(credentials),
	)
	return result, nil
}

// IsRunning reports whether the proxy is up. Probe failures read as not running.
func (m *Manager) IsRunning(ctx context.Context) bool {
	running, err := m.ProbeRunning(ctx)
	if err != nil {
		m.logger.Warn("proxy liveness probe failed", "error", err)
		return false
	}
	return running
}

// ProbeRunning is IsRunning with the probe error surfaced.
func (m *Manager) ProbeRunning(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	running, err := m.runtime.Running(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: running: %w", domain.ErrProbeFailed, err)
	}
	return running, nil
}

// ResourceUsage returns host memory pressure in percent. Probe failures read as 0.
func (m *Manager) ResourceUsage(ctx context.Context) int {
	usage, err := m.SampleResourceUsage(ctx)
	if err != nil {
		m.logger.Warn("resource usage probe failed", "error", err)
		return 0
	}
	return usage
}

// SampleResourceUsage is ResourceUsage with the probe error surfaced.
func (m *Manager) SampleResourceUsage(ctx context.Context) (int, error) {
	if m.memory == nil {
		return 0, fmt.Errorf("%w: no memory sampler", domain.ErrProbeFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	usage, err := m.memory.UsedPercent(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: memory: %w", domain.ErrProbeFailed, err)
	}
	return clampPercent(usage), nil
}

// Stats reads connection counters, or nil when they cannot be read.
func (m *Manager) Stats(ctx context.Context) *domain.Stats {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	raw, err := m.runtime.StatsRaw(ctx)
	if err != nil {
		m.logger.Debug("proxy stats unavailable", "error", err)
		return nil
	}
	return domain.ParseStats(raw)
}

func (m *Manager) currentImage(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	image, err := m.runtime.CurrentImage(ctx)
	if err != nil || image == "" {
		return m.config.Image
	}
	return image
}

func (m *Manager) imageID(ctx context.Context, image string) string {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	id, err := m.runtime.ImageID(ctx, image)
	if err != nil {
		return ""
	}
	return id
}

func (m *Manager) withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
