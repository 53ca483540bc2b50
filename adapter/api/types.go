package api

import (
	"time"

	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	proxyDomain "github.com/felixgeelhaar/mtgate/internal/proxy/domain"
)

// Subscriber is the wire form of an entitlement with its connection links.
type Subscriber struct {
	SubscriberID   accessDomain.SubscriberID `json:"subscriber_id"`
	Username       string                    `json:"username,omitempty"`
	Credential     string                    `json:"credential"`
	Link           string                    `json:"link"`
	WebLink        string                    `json:"web_link"`
	ExpiresAt      *time.Time                `json:"expires_at,omitempty"`
	DaysLeft       int                       `json:"days_left"`
	MaxConnections int                       `json:"max_connections"`
	Active         bool                      `json:"active"`
	TrialConsumed  bool                      `json:"trial_consumed"`
}

// GrantResponse is returned by POST /api/v1/grants. Converged is false when
// the entitlement was stored but the proxy has not picked it up yet.
type GrantResponse struct {
	Subscriber Subscriber `json:"subscriber"`
	Converged  bool       `json:"converged"`
	Warning    string     `json:"warning,omitempty"`
}

// StatusResponse is the operator overview.
type StatusResponse struct {
	Active       int                `json:"active"`
	Total        int                `json:"total"`
	Ceiling      int                `json:"ceiling"`
	Blocked      bool               `json:"blocked"`
	Running      bool               `json:"running"`
	UsagePercent int                `json:"usage_percent"`
	Connections  *proxyDomain.Stats `json:"connections,omitempty"`
}

// SalesRequest opens or closes new sales.
type SalesRequest struct {
	Blocked bool `json:"blocked"`
}

func toSubscriber(e *accessDomain.Entitlement, links proxyDomain.LinkBuilder, now time.Time) Subscriber {
	return Subscriber{
		SubscriberID:   e.SubscriberID,
		Username:       e.Username,
		Credential:     e.Credential,
		Link:           links.AppLink(e.Credential),
		WebLink:        links.WebLink(e.Credential),
		ExpiresAt:      e.ExpiresAt,
		DaysLeft:       e.DaysLeft(now),
		MaxConnections: e.MaxConnections,
		Active:         e.Active,
		TrialConsumed:  e.TrialConsumed,
	}
}
