// Package docker drives the proxy container through the docker CLI with circuit breaker protection.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the docker daemon is considered unavailable.
var ErrCircuitOpen = errors.New("docker circuit breaker open")

// SecretFile is the file the proxy image reads its comma-separated secrets from.
const SecretFile = "secret"

// Config configures the docker runtime.
type Config struct {
	Binary    string
	Container string
	Port      int
	Tag       string
	StatsURL  string

	// Breaker settings.
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Binary:           "docker",
		Container:        "mtproxy",
		Port:             443,
		StatsURL:         "http://localhost:2398/stats",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// CommandFunc runs a command and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandError is a command that ran and exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "exit status " + strconv.Itoa(e.ExitCode)
	}
	return fmt.Sprintf("%s: %s", strings.Join(e.Args, " "), msg)
}

// ExecCommand runs commands with os/exec.
func ExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return stdout.Bytes(), &CommandError{
				Args:     append([]string{name}, args...),
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Runtime implements domain.Runtime on the docker CLI.
type Runtime struct {
	config  Config
	run     CommandFunc
	breaker *gobreaker.CircuitBreaker[[]byte]
	metrics observability.Metrics
	logger  *slog.Logger
}

var _ domain.Runtime = (*Runtime)(nil)

// NewRuntime creates a docker runtime. A nil command func uses ExecCommand.
func NewRuntime(config Config, run CommandFunc, metrics observability.Metrics, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if run == nil {
		run = ExecCommand
	}
	defaults := DefaultConfig()
	if config.Binary == "" {
		config.Binary = defaults.Binary
	}
	if config.Container == "" {
		config.Container = defaults.Container
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.StatsURL == "" {
		config.StatsURL = defaults.StatsURL
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}

	r := &Runtime{
		config:  config,
		run:     run,
		metrics: metrics,
		logger:  logger,
	}

	settings := gobreaker.Settings{
		Name:        "docker",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		IsSuccessful: isDaemonHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Gauge(observability.MetricBreakerState, float64(to), observability.T("breaker", name))
		},
	}
	r.breaker = gobreaker.NewCircuitBreaker[[]byte](settings)
	return r
}

// isDaemonHealthy treats commands the daemon answered (even with a non-zero
// exit, e.g. "no such container") as successful for breaker accounting.
func isDaemonHealthy(err error) bool {
	if err == nil {
		return true
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return !strings.Contains(cmdErr.Stderr, "Cannot connect to the Docker daemon")
	}
	return false
}

func (r *Runtime) docker(ctx context.Context, op string, args ...string) (string, error) {
	start := time.Now()
	out, err := r.breaker.Execute(func() ([]byte, error) {
		return r.run(ctx, r.config.Binary, args...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s", ErrCircuitOpen, op)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.Timing(observability.MetricRuntimeCalls, time.Since(start),
		observability.T("op", op), observability.T("status", status))

	if err != nil {
		return "", fmt.Errorf("docker %s: %w", op, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Running inspects the container state.
func (r *Runtime) Running(ctx context.Context) (bool, error) {
	out, err := r.docker(ctx, "inspect", "inspect", "-f", "{{.State.Running}}", r.config.Container)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			// A missing container is simply not running.
			return false, nil
		}
		return false, err
	}
	return out == "true", nil
}

// WriteSecrets atomically replaces the secret file inside the /data volume.
func (r *Runtime) WriteSecrets(ctx context.Context, secrets []string) error {
	dir, err := r.dataDir(ctx)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, SecretFile), []byte(strings.Join(secrets, ",")))
}

func (r *Runtime) dataDir(ctx context.Context) (string, error) {
	const format = `{{range .Mounts}}{{if eq .Destination "/data"}}{{.Source}}{{end}}{{end}}`
	dir, err := r.docker(ctx, "inspect", "inspect", "-f", format, r.config.Container)
	if err == nil && dir != "" {
		return dir, nil
	}
	// Fall back to the named volume, which outlives the container.
	dir, verr := r.docker(ctx, "volume inspect", "volume", "inspect", "-f", "{{.Mountpoint}}", r.volume())
	if verr != nil {
		if err != nil {
			return "", errors.Join(err, verr)
		}
		return "", verr
	}
	if dir == "" {
		return "", fmt.Errorf("volume %s has no mountpoint", r.volume())
	}
	return dir, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp secret file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write secret file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod secret file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close secret file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace secret file: %w", err)
	}
	return nil
}

// Restart restarts the container with a one second grace period.
func (r *Runtime) Restart(ctx context.Context) error {
	_, err := r.docker(ctx, "restart", "restart", "-t", "1", r.config.Container)
	return err
}

// Stop stops the container.
func (r *Runtime) Stop(ctx context.Context) error {
	_, err := r.docker(ctx, "stop", "stop", "-t", "5", r.config.Container)
	if isMissingContainer(err) {
		r.logger.Debug("container absent, nothing to stop", "container", r.config.Container)
		return nil
	}
	return err
}

// Remove removes the container; its volume is kept.
func (r *Runtime) Remove(ctx context.Context) error {
	_, err := r.docker(ctx, "rm", "rm", r.config.Container)
	if isMissingContainer(err) {
		return nil
	}
	return err
}

func isMissingContainer(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(cmdErr.Stderr, "No such container") || strings.Contains(cmdErr.Stderr, "No such object")
}

// Run starts a fresh container from image.
func (r *Runtime) Run(ctx context.Context, image string) error {
	_, err := r.docker(ctx, "run", r.runArgs(image)...)
	return err
}

func (r *Runtime) runArgs(image string) []string {
	args := []string{
		"run", "-d",
		"--name=" + r.config.Container,
		"--restart=always",
		"-p", fmt.Sprintf("%d:443", r.config.Port),
		"-v", r.volume() + ":/data",
	}
	if r.config.Tag != "" {
		args = append(args, "-e", "TAG="+r.config.Tag)
	}
	return append(args, image)
}

// Pull pulls image.
func (r *Runtime) Pull(ctx context.Context, image string) error {
	_, err := r.docker(ctx, "pull", "pull", image)
	return err
}

// ImageID returns the local image id, or "" when the image is absent.
func (r *Runtime) ImageID(ctx context.Context, image string) (string, error) {
	out, err := r.docker(ctx, "image inspect", "image", "inspect", "-f", "{{.Id}}", image)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// CurrentImage returns the image the container was created from.
func (r *Runtime) CurrentImage(ctx context.Context) (string, error) {
	return r.docker(ctx, "inspect", "inspect", "-f", "{{.Config.Image}}", r.config.Container)
}

// StatsRaw fetches the stats page from inside the container.
func (r *Runtime) StatsRaw(ctx context.Context) (string, error) {
	return r.docker(ctx, "exec", "exec", r.config.Container, "curl", "-s", r.config.StatsURL)
}

func (r *Runtime) volume() string {
	return r.config.Container + "-config"
}
