package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessApp "github.com/felixgeelhaar/mtgate/internal/access/application"
	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	alertingDomain "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	proxyDomain "github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

func newTestClient(t *testing.T) (*Client, *harness) {
	t.Helper()
	h := newHarness(t)
	ts := httptest.NewServer(h.server.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL+"/", testToken, ts.Client()), h
}

func TestClient_GrantLifecycle(t *testing.T) {
	client, h := newTestClient(t)
	ctx := context.Background()

	resp, err := client.Grant(ctx, accessApp.GrantRequest{SubscriberID: 11, Username: "bob", Kind: accessDomain.KindPaid, Plan: accessDomain.PlanDay})
	require.NoError(t, err)
	assert.True(t, resp.Converged)
	assert.Equal(t, "bob", resp.Subscriber.Username)

	sub, err := client.GetSubscriber(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, resp.Subscriber.Credential, sub.Credential)

	subs, err := client.ListSubscribers(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	sub, err = client.Revoke(ctx, 11)
	require.NoError(t, err)
	assert.False(t, sub.Active)

	sub, err = client.Reactivate(ctx, 11)
	require.NoError(t, err)
	assert.True(t, sub.Active)

	decision, err := client.Admission(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, accessDomain.ReasonAlreadyActive, decision.Reason)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Active)
	assert.Equal(t, h.ctrl.Ceiling(), status.Ceiling)
}

func TestClient_PartialGrantIsNotAnError(t *testing.T) {
	client, h := newTestClient(t)
	h.proxy.fail(fmt.Errorf("%w: restart: timeout", proxyDomain.ErrConvergenceFailed))

	resp, err := client.Grant(context.Background(), accessApp.GrantRequest{SubscriberID: 12, Kind: accessDomain.KindPaid, Plan: accessDomain.PlanWeek})
	require.NoError(t, err)
	assert.False(t, resp.Converged)
	assert.Contains(t, resp.Warning, "not converged")
}

func TestClient_Errors(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetSubscriber(ctx, 404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	_, err = client.Grant(ctx, accessApp.GrantRequest{SubscriberID: 1, Kind: accessDomain.KindPaid, Plan: "forever"})
	assert.ErrorIs(t, err, ErrBadRequest)

	err = client.RunJob(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Unauthorized(t *testing.T) {
	_, h := newTestClient(t)
	ts := httptest.NewServer(h.server.Handler())
	defer ts.Close()

	client := NewClient(ts.URL, "wrong", ts.Client())
	_, err := client.Status(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "", ts.Client()).Status(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "http_502", apiErr.Code)
}

func TestClient_Operations(t *testing.T) {
	client, h := newTestClient(t)
	ctx := context.Background()

	blocked, err := client.SetSales(ctx, true)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, []alertingDomain.Kind{alertingDomain.KindSalesToggled}, h.notifier.kinds())

	plans, err := client.Plans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 4)

	require.NoError(t, client.RestartProxy(ctx))

	result, err := client.UpgradeProxy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "example/mtproxy:latest", result.Image)

	require.NoError(t, client.RunJob(ctx, "expiration"))
	jobs, err := client.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(1), jobs[0].Runs)

	alerts, err := client.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestClient_ForwardsCorrelationID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(CorrelationHeader)
		writeJSON(w, http.StatusOK, StatusResponse{})
	}))
	defer ts.Close()

	ctx := observability.NewRequestContext(context.Background(), "cli-run-1")
	_, err := NewClient(ts.URL, "", ts.Client()).Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cli-run-1", got)
}
