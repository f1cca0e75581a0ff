package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

func TestEvaluateDegradationActiveWindow(t *testing.T) {
	today := date(2026, time.August, 10)
	for daysAgo := 0; daysAgo < 3; daysAgo++ {
		last := map[Category]time.Time{CategoryWorkout: today.AddDate(0, 0, -daysAgo)}
		warnings := EvaluateDegradation(today, last, ModeStrict)
		require.Empty(t, warnings, "no penalty within %d days", daysAgo)
	}
}

func TestEvaluateDegradationStrictSevenDays(t *testing.T) {
	today := date(2026, time.August, 10)
	last := map[Category]time.Time{CategoryWorkout: today.AddDate(0, 0, -7)}

	warnings := EvaluateDegradation(today, last, ModeStrict)
	require.Len(t, warnings, 1)
	require.Equal(t, CategoryWorkout, warnings[0].Category)
	require.Equal(t, 7, warnings[0].DaysMissed)
	require.InDelta(t, -0.02, warnings[0].PenaltyApplied, 1e-12)
}

func TestEvaluateDegradationCap(t *testing.T) {
	today := date(2026, time.August, 20)

	for _, daysAgo := range []int{15, 18, 30, 365} {
		last := map[Category]time.Time{CategoryWorkout: today.AddDate(0, 0, -daysAgo)}
		warnings := EvaluateDegradation(today, last, ModeStrict)
		require.Len(t, warnings, 1)
		require.Equal(t, daysAgo, warnings[0].DaysMissed)
		require.Equal(t, -0.05, warnings[0].PenaltyApplied, "cap must hold exactly at %d days", daysAgo)
	}
}

func TestEvaluateDegradationRelaxedSkipsWeekends(t *testing.T) {
	// Monday Aug 3rd 2026 through Monday Aug 17th: 14 calendar days, 10 weekdays.
	last := map[Category]time.Time{CategoryWorkout: date(2026, time.August, 3)}
	today := date(2026, time.August, 17)

	strict := EvaluateDegradation(today, last, ModeStrict)
	require.Len(t, strict, 1)
	require.Equal(t, 14, strict[0].DaysMissed)
	require.InDelta(t, -0.04, strict[0].PenaltyApplied, 1e-12)

	relaxed := EvaluateDegradation(today, last, ModeRelaxed)
	require.Len(t, relaxed, 1)
	require.Equal(t, 10, relaxed[0].DaysMissed)
	require.InDelta(t, -0.03, relaxed[0].PenaltyApplied, 1e-12)
}

func TestEvaluateDegradationBothCategories(t *testing.T) {
	today := date(2026, time.August, 10)
	last := map[Category]time.Time{
		CategoryWorkout: today.AddDate(0, 0, -6),
		CategoryStudy:   today.AddDate(0, 0, -3),
	}

	warnings := EvaluateDegradation(today, last, ModeStrict)
	require.Len(t, warnings, 2)
	require.Equal(t, CategoryWorkout, warnings[0].Category)
	require.InDelta(t, -0.02, warnings[0].PenaltyApplied, 1e-12)
	require.Equal(t, CategoryStudy, warnings[1].Category)
	require.InDelta(t, -0.01, warnings[1].PenaltyApplied, 1e-12)
}

func TestEvaluateDegradationIsPure(t *testing.T) {
	today := date(2026, time.August, 10)
	lastSeen := today.AddDate(0, 0, -9)
	last := map[Category]time.Time{CategoryStudy: lastSeen}

	first := EvaluateDegradation(today, last, ModeStrict)
	second := EvaluateDegradation(today, last, ModeStrict)
	require.Equal(t, first, second, "same inputs must yield the same warnings")
	require.Equal(t, lastSeen, last[CategoryStudy], "inputs must not be mutated")
}

func TestApplyDegradationTouchesOnlyOwnedAttributes(t *testing.T) {
	state := NewUserState()
	for _, attr := range Attributes() {
		state.Stats[attr] = 2.0
	}
	state.Level = 4
	state.CurrentEXP = 321

	warnings := []DegradationWarning{{Category: CategoryWorkout, DaysMissed: 7, PenaltyApplied: -0.02}}
	next := ApplyDegradation(state, warnings)

	require.InDelta(t, 1.98, next.Stats[AttributeStrength], 1e-12)
	require.InDelta(t, 1.98, next.Stats[AttributeAgility], 1e-12)
	require.InDelta(t, 1.98, next.Stats[AttributeEndurance], 1e-12)
	require.Equal(t, 2.0, next.Stats[AttributeIntelligence])
	require.Equal(t, 2.0, next.Stats[AttributeFocus])
	require.Equal(t, 2.0, next.Stats[AttributeCharisma], "charisma is never degraded")

	// EXP and level are untouched by degradation.
	require.Equal(t, 4, next.Level)
	require.Equal(t, 321.0, next.CurrentEXP)
}

func TestApplyDegradationClampsToFloor(t *testing.T) {
	state := NewUserState()
	state.Stats[AttributeStrength] = 1.01

	next := ApplyDegradation(state, []DegradationWarning{
		{Category: CategoryWorkout, DaysMissed: 15, PenaltyApplied: -0.05},
	})
	require.Equal(t, StatFloor, next.Stats[AttributeStrength])
}

func TestMissedDaysIgnoresTimeOfDay(t *testing.T) {
	last := time.Date(2026, time.August, 9, 23, 59, 0, 0, time.UTC)
	today := time.Date(2026, time.August, 10, 0, 1, 0, 0, time.UTC)

	warnings := EvaluateDegradation(today, map[Category]time.Time{CategoryWorkout: last}, ModeStrict)
	require.Empty(t, warnings, "two minutes apart is one calendar day, not a missed streak")
}
