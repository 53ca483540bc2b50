package domain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewAlert(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewAlert(KindProxyDown, SeverityCritical, "proxy is down", now)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, KindProxyDown, a.Kind)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, "proxy is down", a.Message)
	assert.Equal(t, now, a.CreatedAt)

	b := NewAlert(KindProxyDown, SeverityCritical, "proxy is down", now)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNoopNotifier(t *testing.T) {
	var n Notifier = NoopNotifier{}
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Alert{})
	})
}
