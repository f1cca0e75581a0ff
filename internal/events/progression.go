// Package events defines the event payloads emitted by the progression
// service for downstream consumers (notifications, projections, audit).
package events

import "time"

// ActivityLogged is emitted when an activity has been applied to a user's
// progression state.
type ActivityLogged struct {
	ActivityID   string             `json:"activity_id"`
	TenantID     string             `json:"tenant_id"`
	UserID       string             `json:"user_id"`
	ActivityType string             `json:"activity_type"`
	StartedAt    time.Time          `json:"started_at"`
	DurationMin  int                `json:"duration_min"`
	EXPAwarded   float64            `json:"exp_awarded"`
	StatGains    map[string]float64 `json:"stat_gains"`
	Source       string             `json:"source"`
	Version      string             `json:"version"`
}

// ActivityReversed is emitted when an activity's effect has been undone.
type ActivityReversed struct {
	ActivityID  string             `json:"activity_id"`
	TenantID    string             `json:"tenant_id"`
	UserID      string             `json:"user_id"`
	LeveledDown bool               `json:"leveled_down"`
	LevelsLost  int                `json:"levels_lost"`
	StatDeltas  map[string]float64 `json:"stat_deltas"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// LevelChanged is emitted whenever an EXP application crosses one or more
// thresholds in either direction.
type LevelChanged struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	PreviousLevel int       `json:"previous_level"`
	NewLevel      int       `json:"new_level"`
	LevelsChanged int       `json:"levels_changed"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StatsDegraded is emitted when inactivity decay has been applied to a
// category's attributes.
type StatsDegraded struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Category   string    `json:"category"`
	DaysMissed int       `json:"days_missed"`
	Penalty    float64   `json:"penalty"`
	OccurredAt time.Time `json:"occurred_at"`
}
