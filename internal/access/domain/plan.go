package domain

import (
	"fmt"
	"sort"
)

// Plan is a purchasable access package.
type Plan struct {
	ID             string `json:"id"`
	Days           int    `json:"days"`
	MaxConnections int    `json:"max_connections"`
	Stars          int    `json:"stars"`
}

// Plan identifiers.
const (
	PlanDay   = "day"
	PlanWeek  = "week"
	PlanMonth = "month"
	PlanTrial = "trial"
)

var plans = map[string]Plan{
	PlanDay:   {ID: PlanDay, Days: 1, MaxConnections: 1, Stars: 2},
	PlanWeek:  {ID: PlanWeek, Days: 7, MaxConnections: 5, Stars: 12},
	PlanMonth: {ID: PlanMonth, Days: 30, MaxConnections: 5, Stars: 25},
}

// LookupPlan returns the paid plan with the given id.
func LookupPlan(id string) (Plan, error) {
	p, ok := plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: unknown plan %q", ErrInvalidGrant, id)
	}
	return p, nil
}

// Plans returns the paid catalog ordered by duration.
func Plans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out
}

// TrialPlan describes the free trial. Trials are disabled when Days is zero.
type TrialPlan struct {
	Days           int
	MaxConnections int
}

// Enabled reports whether trials are offered at all.
func (t TrialPlan) Enabled() bool {
	return t.Days > 0
}

// Plan returns the trial as a catalog entry.
func (t TrialPlan) Plan() Plan {
	return Plan{ID: PlanTrial, Days: t.Days, MaxConnections: t.MaxConnections}
}
