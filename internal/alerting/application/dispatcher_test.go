package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []domain.Alert
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(ctx context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.err
}

func (s *recordingSink) Alerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.alerts...)
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Send(ctx context.Context, alert domain.Alert) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type memoryJournal struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (j *memoryJournal) Append(ctx context.Context, alert domain.Alert) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.alerts = append(j.alerts, alert)
	return nil
}

func (j *memoryJournal) Recent(ctx context.Context, limit int) ([]domain.Alert, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.Alert(nil), j.alerts...), nil
}

func TestDispatcher_FansOutAndJournals(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	failing := &recordingSink{name: "failing", err: errors.New("chat unreachable")}
	journal := &memoryJournal{}
	metrics := observability.NewInMemoryMetrics()

	d := NewDispatcher([]domain.Sink{ok, failing}, nil, WithJournal(journal), WithMetrics(metrics))
	alert := domain.NewAlert(domain.KindProxyDown, domain.SeverityCritical, "down", time.Now())

	d.Notify(context.Background(), alert)
	d.Wait()

	assert.Equal(t, []domain.Alert{alert}, ok.Alerts())
	assert.Equal(t, []domain.Alert{alert}, failing.Alerts())
	assert.Equal(t, []domain.Alert{alert}, journal.alerts)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricAlertsSent, observability.T("sink", "ok")))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricAlertsFailed, observability.T("sink", "failing")))
}

func TestDispatcher_NotifyDoesNotBlock(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher([]domain.Sink{sink}, nil)

	done := make(chan struct{})
	go func() {
		d.Notify(context.Background(), domain.NewAlert(domain.KindSoftLimit, domain.SeverityWarning, "x", time.Now()))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on delivery")
	}
	close(sink.release)
	d.Wait()
}

func TestDispatcher_CancelledCallerContext(t *testing.T) {
	sink := &recordingSink{name: "ok"}
	d := NewDispatcher([]domain.Sink{sink}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, domain.NewAlert(domain.KindExpirations, domain.SeverityInfo, "x", time.Now()))
	d.Wait()

	require.Len(t, sink.Alerts(), 1)
}

func TestDispatcher_SendTimeout(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	metrics := observability.NewInMemoryMetrics()
	d := NewDispatcher([]domain.Sink{sink}, nil, WithSendTimeout(10*time.Millisecond), WithMetrics(metrics))

	d.Notify(context.Background(), domain.NewAlert(domain.KindProxyDown, domain.SeverityCritical, "x", time.Now()))
	d.Wait()

	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricAlertsFailed, observability.T("sink", "blocking")))
}

func TestDispatcher_JournalFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDispatcher(nil, logger, WithJournal(&memoryJournal{err: errors.New("disk full")}))

	d.Notify(context.Background(), domain.NewAlert(domain.KindProxyDown, domain.SeverityCritical, "x", time.Now()))
	d.Wait()

	assert.Contains(t, buf.String(), "failed to journal alert")
	assert.Contains(t, buf.String(), "disk full")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	err := sink.Send(context.Background(), domain.NewAlert(domain.KindResourceCritical, domain.SeverityCritical, "ram 95%", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "log", sink.Name())
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "kind=resource_critical")
	assert.Contains(t, buf.String(), `message="ram 95%"`)
}
