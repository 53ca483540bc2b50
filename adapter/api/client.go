package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	accessApp "github.com/felixgeelhaar/mtgate/internal/access/application"
	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	alertingDomain "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	proxyDomain "github.com/felixgeelhaar/mtgate/internal/proxy/domain"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/scheduler"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

// Client calls the controller API of a running serve process.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 6 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Status returns the capacity and proxy overview.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSubscribers returns all active subscribers.
func (c *Client) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	var out []Subscriber
	if err := c.do(ctx, http.MethodGet, "/api/v1/subscribers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSubscriber returns one subscriber's entitlement.
func (c *Client) GetSubscriber(ctx context.Context, id accessDomain.SubscriberID) (*Subscriber, error) {
	var out Subscriber
	if err := c.do(ctx, http.MethodGet, subscriberPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Admission previews whether a subscriber would be admitted.
func (c *Client) Admission(ctx context.Context, id accessDomain.SubscriberID) (*accessDomain.Decision, error) {
	var out accessDomain.Decision
	if err := c.do(ctx, http.MethodGet, subscriberPath(id, "/admission"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Grant admits or renews a subscriber. A grant that was stored but not yet
// applied to the proxy returns a response with Converged false and no error.
func (c *Client) Grant(ctx context.Context, req accessApp.GrantRequest) (*GrantResponse, error) {
	var out GrantResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/grants", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke deactivates a subscriber.
func (c *Client) Revoke(ctx context.Context, id accessDomain.SubscriberID) (*Subscriber, error) {
	var out Subscriber
	if err := c.do(ctx, http.MethodPost, subscriberPath(id, "/revoke"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reactivate re-admits an inactive, unexpired subscriber.
func (c *Client) Reactivate(ctx context.Context, id accessDomain.SubscriberID) (*Subscriber, error) {
	var out Subscriber
	if err := c.do(ctx, http.MethodPost, subscriberPath(id, "/reactivate"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Plans returns the purchasable catalog.
func (c *Client) Plans(ctx context.Context) ([]accessDomain.Plan, error) {
	var out []accessDomain.Plan
	if err := c.do(ctx, http.MethodGet, "/api/v1/plans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetSales closes or reopens new sales and returns the resulting flag.
func (c *Client) SetSales(ctx context.Context, blocked bool) (bool, error) {
	var out SalesRequest
	if err := c.do(ctx, http.MethodPut, "/api/v1/sales", SalesRequest{Blocked: blocked}, &out); err != nil {
		return false, err
	}
	return out.Blocked, nil
}

// RestartProxy re-applies the credential set.
func (c *Client) RestartProxy(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/proxy/restart", nil, nil)
}

// UpgradeProxy pulls the proxy image and recreates the container.
func (c *Client) UpgradeProxy(ctx context.Context) (*proxyDomain.UpgradeResult, error) {
	var out proxyDomain.UpgradeResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/proxy/upgrade", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentAlerts returns the newest journaled alerts.
func (c *Client) RecentAlerts(ctx context.Context, limit int) ([]alertingDomain.Alert, error) {
	path := "/api/v1/alerts"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out []alertingDomain.Alert
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Jobs returns scheduler statistics.
func (c *Client) Jobs(ctx context.Context) ([]scheduler.JobStats, error) {
	var out []scheduler.JobStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunJob runs a scheduled job immediately and waits for it.
func (c *Client) RunJob(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(name)+"/run", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", bearer(c.token))
	}
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(CorrelationHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_" + strconv.Itoa(resp.StatusCode)
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func subscriberPath(id accessDomain.SubscriberID, suffix string) string {
	return "/api/v1/subscribers/" + id.String() + suffix
}
