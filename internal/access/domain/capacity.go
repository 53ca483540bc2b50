package domain

// CapacitySnapshot is the admission state read immediately before a decision.
type CapacitySnapshot struct {
	ActiveCount int
	Ceiling     int
}

// Headroom returns how many new admissions the snapshot still allows.
func (s CapacitySnapshot) Headroom() int {
	if s.ActiveCount >= s.Ceiling {
		return 0
	}
	return s.Ceiling - s.ActiveCount
}

// DecisionReason explains an admission decision.
type DecisionReason string

const (
	ReasonAlreadyActive    DecisionReason = "already_active"
	ReasonHeadroom         DecisionReason = "headroom"
	ReasonCapacityExceeded DecisionReason = "capacity_exceeded"
	ReasonSalesBlocked     DecisionReason = "sales_blocked"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allow  bool           `json:"allow"`
	Reason DecisionReason `json:"reason"`
}

// Admit decides whether a subject may hold an active entitlement.
// Subjects that are already active never need fresh headroom; anyone else
// needs ActiveCount strictly below Ceiling. Admit has no side effects.
func Admit(existing *Entitlement, snapshot CapacitySnapshot) Decision {
	if existing != nil && existing.Active {
		return Decision{Allow: true, Reason: ReasonAlreadyActive}
	}
	if snapshot.ActiveCount < snapshot.Ceiling {
		return Decision{Allow: true, Reason: ReasonHeadroom}
	}
	return Decision{Allow: false, Reason: ReasonCapacityExceeded}
}
