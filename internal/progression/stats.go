package progression

import (
	"fmt"
	"math"
)

// StatEngine computes and applies per-attribute stat changes for logged
// activities using an injected formula table.
type StatEngine struct {
	formulas FormulaTable
}

// NewStatEngine constructs a StatEngine. A nil table selects the default
// ruleset.
func NewStatEngine(table FormulaTable) StatEngine {
	if table == nil {
		table = DefaultFormulaTable()
	}
	return StatEngine{formulas: table}
}

// Formulas exposes the engine's table for award calculations.
func (e StatEngine) Formulas() FormulaTable {
	return e.formulas
}

// ComputeGains evaluates the formula table for one activity. Duration-based
// rows scale by durationMinutes/60; fixed rows grant their rate outright and
// tolerate any non-negative duration.
func (e StatEngine) ComputeGains(activityType ActivityType, durationMinutes int) (map[Attribute]float64, error) {
	rows, ok := e.formulas[activityType]
	if !ok {
		return nil, fmt.Errorf("no stat formula for activity type %q", activityType)
	}
	if e.formulas.FixedAmount(activityType) {
		if durationMinutes < 0 {
			return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, durationMinutes)
		}
	} else if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, durationMinutes)
	}

	gains := make(map[Attribute]float64, len(rows))
	for _, row := range rows {
		if row.Fixed {
			gains[row.Attribute] += row.Rate
		} else {
			gains[row.Attribute] += row.Rate * float64(durationMinutes) / minutesPerHourF
		}
	}
	return gains, nil
}

// ApplyGains adds the deltas to the state's stats, clamping each result to the
// floor. There is no upper bound; growth is open-ended. A delta that would
// produce NaN or infinity returns the input state untouched together with
// ErrInvalidStatValue.
func (e StatEngine) ApplyGains(state UserState, gains map[Attribute]float64) (UserState, error) {
	next := state.Clone()
	for attr, gain := range gains {
		if math.IsNaN(gain) || math.IsInf(gain, 0) {
			return state, fmt.Errorf("%w: delta for %s is %v", ErrInvalidStatValue, attr, gain)
		}
		value := next.Stats[attr] + gain
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return state, fmt.Errorf("%w: %s would become %v", ErrInvalidStatValue, attr, value)
		}
		if value < StatFloor {
			value = StatFloor
		}
		next.Stats[attr] = value
	}
	return next, nil
}

// ComputeReversal returns the stat deltas to subtract when undoing an
// activity. Recorded gains, when present, are returned verbatim; that is the
// exact path for anything this engine logged. Legacy records without recorded
// gains fall back to recomputing from the current table, which can diverge
// from the historical grant if rates were tuned in between.
func (e StatEngine) ComputeReversal(activityType ActivityType, durationMinutes int, recorded map[Attribute]float64) (map[Attribute]float64, error) {
	if len(recorded) > 0 {
		out := make(map[Attribute]float64, len(recorded))
		for attr, gain := range recorded {
			out[attr] = gain
		}
		return out, nil
	}
	return e.ComputeGains(activityType, durationMinutes)
}

// ValidateReversal reports whether the reversal can be applied to the state:
// every entry must be finite and reference an attribute the state carries.
func (e StatEngine) ValidateReversal(state UserState, reversal map[Attribute]float64) bool {
	for attr, delta := range reversal {
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return false
		}
		if _, ok := state.Stats[attr]; !ok {
			return false
		}
	}
	return true
}

// ApplyReversal subtracts the reversal deltas, clamping each stat to the
// floor. The clamp means a reversal is not a guaranteed algebraic inverse
// when something else dragged the stat near the floor in between.
func (e StatEngine) ApplyReversal(state UserState, reversal map[Attribute]float64) (UserState, error) {
	negated := make(map[Attribute]float64, len(reversal))
	for attr, delta := range reversal {
		negated[attr] = -delta
	}
	return e.ApplyGains(state, negated)
}

// SanitizeStat clamps a stat value into [StatFloor, SafeMaxStat] for storage,
// display, and export boundaries. NaN and negative infinity map to the floor;
// positive infinity maps to SafeMaxStat. The clamp lives at the boundary, not
// inside the growth formulas, so legitimate very large values survive until
// they stop being representable.
func SanitizeStat(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return StatFloor
	case math.IsInf(value, 1):
		return SafeMaxStat
	case math.IsInf(value, -1):
		return StatFloor
	case value < StatFloor:
		return StatFloor
	case value > SafeMaxStat:
		return SafeMaxStat
	default:
		return value
	}
}

// SanitizeStats returns a copy of the state with every stat passed through
// SanitizeStat. Missing attributes are filled in at the floor.
func SanitizeStats(state UserState) UserState {
	next := state.Clone()
	for _, attr := range Attributes() {
		next.Stats[attr] = SanitizeStat(next.Stats[attr])
	}
	return next
}
