package domain

import (
	"time"

	"example.com/progression/internal/progression"
)

// ActivityState tracks whether an activity's effect is currently applied.
type ActivityState string

const (
	ActivityStateLogged   ActivityState = "logged"
	ActivityStateReversed ActivityState = "reversed"
)

// ActivityAggregate is the persisted activity record. RecordedGains and
// RecordedEXP are stamped at logging time and stored verbatim so reversal
// never depends on the formula table staying unchanged.
type ActivityAggregate struct {
	ID            string
	TenantID      string
	UserID        string
	ActivityType  progression.ActivityType
	StartedAt     time.Time
	DurationMin   int
	Source        string
	Version       string
	RecordedEXP   float64
	RecordedGains map[progression.Attribute]float64
	State         ActivityState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Descriptor converts the aggregate into the engine-facing view.
func (a ActivityAggregate) Descriptor() progression.ActivityDescriptor {
	return progression.ActivityDescriptor{
		Type:            a.ActivityType,
		DurationMinutes: a.DurationMin,
		RecordedGains:   a.RecordedGains,
		RecordedEXP:     a.RecordedEXP,
	}
}

// Profile is the persisted per-user progression snapshot.
type Profile struct {
	TenantID             string
	UserID               string
	State                progression.UserState
	LastDegradationCheck *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Cursor models the keyset pagination token for activity listings.
type Cursor struct {
	StartedAt time.Time
	ID        string
}
