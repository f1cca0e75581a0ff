package progression

import "fmt"

// ReversalCoordinator undoes one activity's combined stat and EXP effect.
// The only failure mode after validation is an invalid EXP delta, which
// cannot occur for EXP values this engine recorded, so the stats-then-EXP
// ordering never leaves a partially applied state under normal inputs.
type ReversalCoordinator struct {
	stats StatEngine
}

// NewReversalCoordinator constructs a coordinator over the given StatEngine.
func NewReversalCoordinator(stats StatEngine) ReversalCoordinator {
	return ReversalCoordinator{stats: stats}
}

// UndoActivity computes and applies the inverse of a previously applied
// activity. Validation happens before any mutation: on failure the input
// state is returned unchanged with ErrIrreversibleActivity.
func (c ReversalCoordinator) UndoActivity(state UserState, activity ActivityDescriptor) (UserState, ReversalOutcome, error) {
	reversal, err := c.stats.ComputeReversal(activity.Type, activity.DurationMinutes, activity.RecordedGains)
	if err != nil {
		return state, ReversalOutcome{}, err
	}

	if !c.stats.ValidateReversal(state, reversal) {
		return state, ReversalOutcome{}, fmt.Errorf("%w: reversal references missing or non-finite stats", ErrIrreversibleActivity)
	}

	afterStats, err := c.stats.ApplyReversal(state, reversal)
	if err != nil {
		return state, ReversalOutcome{}, err
	}

	afterEXP, transition, err := ApplyEXPDelta(afterStats, -activity.RecordedEXP)
	if err != nil {
		return state, ReversalOutcome{}, err
	}

	return afterEXP, ReversalOutcome{
		LeveledDown: transition.LeveledDown,
		LevelsLost:  transition.LevelsChanged,
		StatDeltas:  reversal,
	}, nil
}
