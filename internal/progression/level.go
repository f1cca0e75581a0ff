package progression

import (
	"fmt"
	"math"
)

// ApplyEXPDelta adds a (possibly negative) EXP delta to the state, cascading
// levels up or down as thresholds are crossed. The backward cascade restores
// lower-level thresholds in descending level order, the exact reverse of the
// forward walk, so applying +d then -d reproduces the original pair.
//
// Level 1 with zero EXP is a hard floor: a deficit larger than the state's
// total EXP clamps there instead of going into debt.
func ApplyEXPDelta(state UserState, delta float64) (UserState, LevelTransition, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return state, LevelTransition{}, fmt.Errorf("%w: got %v", ErrInvalidDelta, delta)
	}

	next := state.Clone()

	if delta >= 0 {
		next.CurrentEXP += delta
		levels := 0
		for {
			threshold, err := ThresholdForLevel(next.Level)
			if err != nil {
				return state, LevelTransition{}, err
			}
			if next.CurrentEXP < threshold {
				break
			}
			next.CurrentEXP -= threshold
			next.Level++
			levels++
		}
		return next, LevelTransition{
			LeveledUp:     levels > 0,
			LevelsChanged: levels,
			FinalLevel:    next.Level,
			FinalEXP:      next.CurrentEXP,
		}, nil
	}

	debit := -delta
	levels := 0
	clamped := false
	for debit > next.CurrentEXP {
		if next.Level == 1 {
			clamped = true
			break
		}
		next.Level--
		levels++
		threshold, err := ThresholdForLevel(next.Level)
		if err != nil {
			return state, LevelTransition{}, err
		}
		next.CurrentEXP += threshold
	}
	if clamped {
		next.CurrentEXP = 0
	} else {
		next.CurrentEXP -= debit
	}

	return next, LevelTransition{
		LeveledDown:   levels > 0,
		LevelsChanged: levels,
		FinalLevel:    next.Level,
		FinalEXP:      next.CurrentEXP,
	}, nil
}

// EXPAward returns the EXP granted for logging an activity: one point per
// minute for duration-based activities, a flat 60 for fixed-amount ones.
func EXPAward(table FormulaTable, activityType ActivityType, durationMinutes int) float64 {
	if table.FixedAmount(activityType) {
		return fixedEXPAward
	}
	return float64(durationMinutes)
}
