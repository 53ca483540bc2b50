package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	access "github.com/felixgeelhaar/mtgate/internal/access/domain"
	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
)

type botServer struct {
	mu       sync.Mutex
	paths    []string
	requests []sendMessageRequest
	reply    string
	status   int
}

func (b *botServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var req sendMessageRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.paths = append(b.paths, r.URL.Path)
	b.requests = append(b.requests, req)

	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	reply := b.reply
	if reply == "" {
		reply = `{"ok":true,"result":{}}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply))
}

func newTestClient(t *testing.T, bot *botServer, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(bot)
	t.Cleanup(srv.Close)
	cfg.APIURL = srv.URL + "/"
	return NewClient(cfg, srv.Client(), nil)
}

func TestClient_SendAlertToAdmin(t *testing.T) {
	bot := &botServer{}
	client := newTestClient(t, bot, Config{Token: "123:abc", AdminID: 42})

	alert := domain.NewAlert(domain.KindSoftLimit, domain.SeverityWarning, "Active subscribers: 40/50", time.Now())
	require.NoError(t, client.Send(context.Background(), alert))

	require.Len(t, bot.requests, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", bot.paths[0])
	assert.Equal(t, int64(42), bot.requests[0].ChatID)
	assert.Equal(t, "⚠️ Active subscribers: 40/50", bot.requests[0].Text)
}

func TestClient_NotifyExpired(t *testing.T) {
	bot := &botServer{}
	client := newTestClient(t, bot, Config{Token: "t", ExpiryText: "expired"})

	err := client.NotifyExpired(context.Background(), access.Entitlement{SubscriberID: 777})
	require.NoError(t, err)

	require.Len(t, bot.requests, 1)
	assert.Equal(t, int64(777), bot.requests[0].ChatID)
	assert.Equal(t, "expired", bot.requests[0].Text)
}

func TestClient_APIError(t *testing.T) {
	bot := &botServer{
		status: http.StatusForbidden,
		reply:  `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`,
	}
	client := newTestClient(t, bot, Config{Token: "t"})

	err := client.NotifyExpired(context.Background(), access.Entitlement{SubscriberID: 1})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.ErrorCode)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "blocked by the user")
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(Config{}, nil, nil)
	assert.ErrorIs(t, client.NotifyExpired(context.Background(), access.Entitlement{SubscriberID: 1}), ErrNotConfigured)

	client = NewClient(Config{Token: "t"}, nil, nil)
	alert := domain.NewAlert(domain.KindProxyDown, domain.SeverityCritical, "down", time.Now())
	assert.ErrorIs(t, client.Send(context.Background(), alert), ErrNotConfigured)
}

func TestClient_TransportErrorRedactsToken(t *testing.T) {
	client := NewClient(Config{Token: "secret-token", APIURL: "http://127.0.0.1:1"}, nil, nil)

	err := client.SendMessage(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestFormatAlert(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "🚨 down", FormatAlert(domain.NewAlert(domain.KindProxyDown, domain.SeverityCritical, "down", now)))
	assert.Equal(t, "ℹ️ ok", FormatAlert(domain.NewAlert(domain.KindProxyRecovered, domain.SeverityInfo, "ok", now)))
}
