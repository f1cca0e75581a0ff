package progression

import "time"

// DegradationMode controls how weekend days count toward missed-day totals.
type DegradationMode string

const (
	// ModeStrict counts every calendar day.
	ModeStrict DegradationMode = "strict"
	// ModeRelaxed pauses the counter on Saturdays and Sundays.
	ModeRelaxed DegradationMode = "relaxed"
)

const (
	decayPeriodDays = 3
	decayPerPeriod  = 0.01
	decayCap        = 0.05
)

// categoryAttributes lists the stats owned by each decay category. Charisma
// belongs to neither and is never degraded.
var categoryAttributes = map[Category][]Attribute{
	CategoryWorkout: {AttributeStrength, AttributeAgility, AttributeEndurance},
	CategoryStudy:   {AttributeIntelligence, AttributeFocus},
}

// decayCategories is iterated instead of the map to keep output order stable.
var decayCategories = []Category{CategoryWorkout, CategoryStudy}

// EvaluateDegradation computes decay warnings for the evaluation date. It is
// a pure function of its inputs: it never reads the clock, never mutates
// lastActivity, and returns the same warnings for the same inputs every time.
// Idempotence across repeated calls in one day is the caller's policy.
//
// A category decays after three consecutive missed days, one penalty point
// (-0.01) per whole three-day period, capped at -0.05 per application. EXP
// and level are never affected.
func EvaluateDegradation(today time.Time, lastActivity map[Category]time.Time, mode DegradationMode) []DegradationWarning {
	warnings := make([]DegradationWarning, 0, len(decayCategories))
	for _, category := range decayCategories {
		last, ok := lastActivity[category]
		if !ok {
			continue
		}
		days := missedDays(today, last, mode)
		if days < decayPeriodDays {
			continue
		}
		periods := days / decayPeriodDays
		penalty := -decayPerPeriod * float64(periods)
		if penalty < -decayCap {
			penalty = -decayCap
		}
		warnings = append(warnings, DegradationWarning{
			Category:       category,
			DaysMissed:     days,
			PenaltyApplied: penalty,
		})
	}
	return warnings
}

// ApplyDegradation applies each warning's penalty to every attribute its
// category owns, clamping to the floor.
func ApplyDegradation(state UserState, warnings []DegradationWarning) UserState {
	next := state.Clone()
	for _, warning := range warnings {
		for _, attr := range categoryAttributes[warning.Category] {
			value := next.Stats[attr] + warning.PenaltyApplied
			if value < StatFloor {
				value = StatFloor
			}
			next.Stats[attr] = value
		}
	}
	return next
}

// missedDays counts whole local calendar days from last to today. Relaxed
// mode skips weekend dates entirely.
func missedDays(today, last time.Time, mode DegradationMode) int {
	from := dateOnly(last)
	to := dateOnly(today)
	if !to.After(from) {
		return 0
	}
	if mode == ModeRelaxed {
		days := 0
		for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			days++
		}
		return days
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

// dateOnly normalizes to the local calendar date, re-anchored in UTC so day
// arithmetic is immune to DST.
func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
