package domain

import (
	"strconv"
	"time"
)

// SubscriberID is the stable external identity of a subscriber (the chat user id).
type SubscriberID int64

// String returns the decimal form of the id.
func (id SubscriberID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseSubscriberID parses a decimal subscriber id.
func ParseSubscriberID(s string) (SubscriberID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return SubscriberID(v), nil
}

// GrantKind distinguishes free trials from paid grants.
type GrantKind string

const (
	KindTrial GrantKind = "trial"
	KindPaid  GrantKind = "paid"
)

// IsValid reports whether the kind is known.
func (k GrantKind) IsValid() bool {
	return k == KindTrial || k == KindPaid
}

// Entitlement is a subscriber's right to use the proxy until ExpiresAt,
// bound to exactly one credential.
type Entitlement struct {
	SubscriberID   SubscriberID
	Username       string
	Credential     string
	ExpiresAt      *time.Time
	MaxConnections int
	Active         bool
	TrialConsumed  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether the entitlement has no expiry or its expiry is not after now.
func (e *Entitlement) IsExpired(now time.Time) bool {
	if e == nil || e.ExpiresAt == nil {
		return true
	}
	return !e.ExpiresAt.After(now)
}

// DaysLeft returns the whole days remaining until expiry, rounded up, never negative.
func (e *Entitlement) DaysLeft(now time.Time) int {
	if e == nil || e.ExpiresAt == nil {
		return 0
	}
	remaining := e.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := remaining / (24 * time.Hour)
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return int(days)
}

// NextExpiry computes the expiry after extending by days.
// Renewals of an active entitlement extend from max(current expiry, now) so they
// never shorten remaining time; everything else counts from now.
func NextExpiry(existing *Entitlement, days int, now time.Time) time.Time {
	base := now
	if existing != nil && existing.Active && existing.ExpiresAt != nil && existing.ExpiresAt.After(now) {
		base = *existing.ExpiresAt
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

// CredentialSet returns the credentials of the given entitlements that are active, in input order.
func CredentialSet(entitlements []Entitlement) []string {
	creds := make([]string, 0, len(entitlements))
	for _, e := range entitlements {
		if e.Active && e.Credential != "" {
			creds = append(creds, e.Credential)
		}
	}
	return creds
}
