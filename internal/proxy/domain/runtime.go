package domain

import (
	"context"
	"errors"
)

var (
	// ErrConvergenceFailed indicates the proxy could not be brought to the requested credential set.
	ErrConvergenceFailed = errors.New("proxy convergence failed")

	// ErrProbeFailed indicates a liveness, stats or resource probe could not be completed.
	ErrProbeFailed = errors.New("proxy probe failed")
)

// Runtime is the container runtime hosting the single proxy process.
// Implementations know nothing about subscribers.
type Runtime interface {
	// Running reports whether the proxy process is up.
	Running(ctx context.Context) (bool, error)

	// WriteSecrets replaces the credential list in the durable config volume.
	WriteSecrets(ctx context.Context, secrets []string) error

	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
	Remove(ctx context.Context) error

	// Run creates and starts a fresh proxy container from image.
	Run(ctx context.Context, image string) error

	Pull(ctx context.Context, image string) error

	// ImageID returns the local id of image, or "" when it is not present.
	ImageID(ctx context.Context, image string) (string, error)

	// CurrentImage returns the image reference of the existing container.
	CurrentImage(ctx context.Context) (string, error)

	// StatsRaw returns the proxy's raw stats page.
	StatsRaw(ctx context.Context) (string, error)
}

// MemorySampler samples host memory pressure.
type MemorySampler interface {
	// UsedPercent returns used memory as an integer percentage in [0, 100].
	UsedPercent(ctx context.Context) (int, error)
}

// Strategy is how a credential set is applied to the running process.
type Strategy string

const (
	// StrategyFastRestart rewrites the secret file and restarts in place.
	StrategyFastRestart Strategy = "fast_restart"

	// StrategyRecreate pulls the image and replaces the container.
	StrategyRecreate Strategy = "recreate"
)

// IsValid reports whether the strategy is known.
func (s Strategy) IsValid() bool {
	return s == StrategyFastRestart || s == StrategyRecreate
}

// UpgradeResult reports the outcome of a recreate.
type UpgradeResult struct {
	Updated bool   `json:"updated"`
	Image   string `json:"image"`
}
