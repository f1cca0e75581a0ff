// Package progression implements the deterministic arithmetic behind the
// habit-tracking game loop: EXP thresholds and level cascades, per-activity
// stat growth, inactivity decay, and exact reversal of previously applied
// activities. Everything in this package is pure and synchronous; callers own
// the state snapshots and all I/O.
package progression

import (
	"fmt"
	"math"
	"time"
)

// Attribute is one of the six numeric progression axes.
type Attribute string

const (
	AttributeStrength     Attribute = "strength"
	AttributeAgility      Attribute = "agility"
	AttributeEndurance    Attribute = "endurance"
	AttributeIntelligence Attribute = "intelligence"
	AttributeFocus        Attribute = "focus"
	AttributeCharisma     Attribute = "charisma"
)

// Attributes returns all attributes in a stable order.
func Attributes() []Attribute {
	return []Attribute{
		AttributeStrength,
		AttributeAgility,
		AttributeEndurance,
		AttributeIntelligence,
		AttributeFocus,
		AttributeCharisma,
	}
}

// Category groups activity types for inactivity decay tracking.
type Category string

const (
	CategoryWorkout Category = "workout"
	CategoryStudy   Category = "study"
)

// ActivityType identifies one of the ten loggable activity kinds.
type ActivityType string

const (
	ActivityWorkoutWeights ActivityType = "workout_weights"
	ActivityWorkoutCardio  ActivityType = "workout_cardio"
	ActivityWorkoutYoga    ActivityType = "workout_yoga"
	ActivityStudySerious   ActivityType = "study_serious"
	ActivityStudyCasual    ActivityType = "study_casual"
	ActivityMeditation     ActivityType = "meditation"
	ActivitySocializing    ActivityType = "socializing"
	ActivitySleepTracking  ActivityType = "sleep_tracking"
	ActivityHealthyDiet    ActivityType = "healthy_diet"
	ActivityQuitBadHabit   ActivityType = "quit_bad_habit"
)

// Category reports which decay category the activity type feeds, if any.
// Meditation, socializing, sleep, diet, and quit-bad-habit belong to none.
func (t ActivityType) Category() (Category, bool) {
	switch t {
	case ActivityWorkoutWeights, ActivityWorkoutCardio, ActivityWorkoutYoga:
		return CategoryWorkout, true
	case ActivityStudySerious, ActivityStudyCasual:
		return CategoryStudy, true
	default:
		return "", false
	}
}

const (
	// StatFloor is the minimum permissible value for any stat.
	StatFloor = 1.0
	// SafeMaxStat bounds stats at storage/display boundaries. Growth itself is
	// unbounded; the clamp only kicks in when a value stops being
	// representable in a sane way.
	SafeMaxStat = 999_999.0
	// MaxQuestionnaireStat bounds onboarding questionnaire-derived stats.
	MaxQuestionnaireStat = 5.0
)

// UserState is a snapshot of a user's progression. Engine operations never
// mutate the snapshot they receive; they return a new one.
type UserState struct {
	Level        int
	CurrentEXP   float64
	Stats        map[Attribute]float64
	LastActivity map[Category]time.Time
}

// NewUserState returns the onboarding state: level 1, zero EXP, every stat at
// the floor.
func NewUserState() UserState {
	stats := make(map[Attribute]float64, 6)
	for _, attr := range Attributes() {
		stats[attr] = StatFloor
	}
	return UserState{
		Level:        1,
		CurrentEXP:   0,
		Stats:        stats,
		LastActivity: make(map[Category]time.Time),
	}
}

// NewUserStateWithStats builds an onboarding state from questionnaire-derived
// stat values, which must lie in [1, 5]. Attributes absent from initial start
// at the floor.
func NewUserStateWithStats(initial map[Attribute]float64) (UserState, error) {
	state := NewUserState()
	for attr, value := range initial {
		if math.IsNaN(value) || value < StatFloor || value > MaxQuestionnaireStat {
			return UserState{}, fmt.Errorf("%w: initial %s = %v, want [1, 5]", ErrInvalidStatValue, attr, value)
		}
		state.Stats[attr] = value
	}
	return state, nil
}

// Clone returns a deep copy of the state.
func (s UserState) Clone() UserState {
	cp := UserState{
		Level:        s.Level,
		CurrentEXP:   s.CurrentEXP,
		Stats:        make(map[Attribute]float64, len(s.Stats)),
		LastActivity: make(map[Category]time.Time, len(s.LastActivity)),
	}
	for attr, value := range s.Stats {
		cp.Stats[attr] = value
	}
	for category, ts := range s.LastActivity {
		cp.LastActivity[category] = ts
	}
	return cp
}

// Validate checks the storage contract: level >= 1, EXP within the current
// level's window, and every stat finite and at or above the floor.
func (s UserState) Validate() error {
	threshold, err := ThresholdForLevel(s.Level)
	if err != nil {
		return err
	}
	if math.IsNaN(s.CurrentEXP) || s.CurrentEXP < 0 || s.CurrentEXP >= threshold {
		return fmt.Errorf("%w: currentEXP %v outside [0, %v) at level %d", ErrInvalidDelta, s.CurrentEXP, threshold, s.Level)
	}
	for attr, value := range s.Stats {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < StatFloor {
			return fmt.Errorf("%w: %s = %v", ErrInvalidStatValue, attr, value)
		}
	}
	return nil
}

// ActivityDescriptor is the engine-facing view of a logged activity. Recorded
// gains and EXP are stamped at logging time and persisted verbatim so that a
// later reversal does not depend on the formula table still matching.
type ActivityDescriptor struct {
	Type            ActivityType
	DurationMinutes int
	RecordedGains   map[Attribute]float64
	RecordedEXP     float64
}

// LevelTransition reports the outcome of applying an EXP delta.
type LevelTransition struct {
	LeveledUp     bool
	LeveledDown   bool
	LevelsChanged int
	FinalLevel    int
	FinalEXP      float64
}

// ReversalOutcome reports the combined effect of undoing one activity.
type ReversalOutcome struct {
	LeveledDown bool
	LevelsLost  int
	StatDeltas  map[Attribute]float64
}

// DegradationWarning describes one category's decay penalty for an evaluation
// date. It has no persisted identity; it is recomputed on demand.
type DegradationWarning struct {
	Category       Category
	DaysMissed     int
	PenaltyApplied float64
}
