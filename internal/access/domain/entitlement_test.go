package domain

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	t.Run("new subject counts from now", func(t *testing.T) {
		assert.Equal(t, now.Add(7*day), NextExpiry(nil, 7, now))
	})

	t.Run("active renewal extends from current expiry", func(t *testing.T) {
		expires := now.Add(day)
		existing := &Entitlement{Active: true, ExpiresAt: &expires}
		assert.Equal(t, now.Add(8*day), NextExpiry(existing, 7, now))
	})

	t.Run("inactive record counts from now", func(t *testing.T) {
		expires := now.Add(3 * day)
		existing := &Entitlement{Active: false, ExpiresAt: &expires}
		assert.Equal(t, now.Add(7*day), NextExpiry(existing, 7, now))
	})

	t.Run("active but already past expiry counts from now", func(t *testing.T) {
		expires := now.Add(-time.Hour)
		existing := &Entitlement{Active: true, ExpiresAt: &expires}
		assert.Equal(t, now.Add(7*day), NextExpiry(existing, 7, now))
	})

	t.Run("renewal never shortens", func(t *testing.T) {
		for _, offset := range []time.Duration{-day, 0, time.Minute, day, 30 * day} {
			expires := now.Add(offset)
			existing := &Entitlement{Active: true, ExpiresAt: &expires}
			next := NextExpiry(existing, 1, now)
			assert.False(t, next.Before(expires), "offset %s", offset)
			assert.True(t, next.After(now))
		}
	})
}

func TestEntitlement_IsExpiredAndDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var never *Entitlement
	assert.True(t, never.IsExpired(now))
	assert.Equal(t, 0, never.DaysLeft(now))

	e := &Entitlement{}
	assert.True(t, e.IsExpired(now))

	exp := now
	e.ExpiresAt = &exp
	assert.True(t, e.IsExpired(now))
	assert.Equal(t, 0, e.DaysLeft(now))

	exp = now.Add(36 * time.Hour)
	e.ExpiresAt = &exp
	assert.False(t, e.IsExpired(now))
	assert.Equal(t, 2, e.DaysLeft(now))

	exp = now.Add(48 * time.Hour)
	e.ExpiresAt = &exp
	assert.Equal(t, 2, e.DaysLeft(now))
}

func TestCredentialSet(t *testing.T) {
	set := CredentialSet([]Entitlement{
		{SubscriberID: 1, Credential: "a", Active: true},
		{SubscriberID: 2, Credential: "b", Active: false},
		{SubscriberID: 3, Credential: "", Active: true},
		{SubscriberID: 4, Credential: "d", Active: true},
	})
	assert.Equal(t, []string{"a", "d"}, set)
	assert.Empty(t, CredentialSet(nil))
}

func TestSubscriberID(t *testing.T) {
	id, err := ParseSubscriberID("123456789")
	require.NoError(t, err)
	assert.Equal(t, SubscriberID(123456789), id)
	assert.Equal(t, "123456789", id.String())

	_, err = ParseSubscriberID("abc")
	require.Error(t, err)
}

func TestGenerateCredential(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		c, err := GenerateCredential()
		require.NoError(t, err)
		assert.Len(t, c, 2*CredentialBytes)
		assert.Regexp(t, "^[0-9a-f]+$", c)
		_, dup := seen[c]
		assert.False(t, dup)
		seen[c] = struct{}{}
	}
}

func TestGenerateCredential_ShortRead(t *testing.T) {
	_, err := generateCredentialFrom(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)

	c, err := generateCredentialFrom(bytes.NewReader(bytes.Repeat([]byte{0xab}, CredentialBytes)))
	require.NoError(t, err)
	assert.Equal(t, "abababababababababababababababab", c)
}

func TestPlans(t *testing.T) {
	week, err := LookupPlan(PlanWeek)
	require.NoError(t, err)
	assert.Equal(t, Plan{ID: PlanWeek, Days: 7, MaxConnections: 5, Stars: 12}, week)

	_, err = LookupPlan("year")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGrant))

	catalog := Plans()
	require.Len(t, catalog, 3)
	assert.Equal(t, PlanDay, catalog[0].ID)
	assert.Equal(t, PlanMonth, catalog[2].ID)

	assert.False(t, TrialPlan{}.Enabled())
	trial := TrialPlan{Days: 3, MaxConnections: 1}
	assert.True(t, trial.Enabled())
	assert.Equal(t, Plan{ID: PlanTrial, Days: 3, MaxConnections: 1}, trial.Plan())
}
