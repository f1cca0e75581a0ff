package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyEXPDeltaSingleLevelUp(t *testing.T) {
	state := NewUserState()

	next, transition, err := ApplyEXPDelta(state, 1500)
	require.NoError(t, err)

	// 1500 - threshold(1)=1000 leaves 500 inside level 2's 1200 window.
	require.Equal(t, 2, next.Level)
	require.Equal(t, 500.0, next.CurrentEXP)
	require.True(t, transition.LeveledUp)
	require.False(t, transition.LeveledDown)
	require.Equal(t, 1, transition.LevelsChanged)
	require.Equal(t, 2, transition.FinalLevel)
	require.Equal(t, 500.0, transition.FinalEXP)

	// Input snapshot stays untouched.
	require.Equal(t, 1, state.Level)
	require.Equal(t, 0.0, state.CurrentEXP)
}

func TestApplyEXPDeltaMultiLevelCascade(t *testing.T) {
	state := NewUserState()

	// 1000 + 1200 = 2200 crosses two thresholds exactly.
	next, transition, err := ApplyEXPDelta(state, 2300)
	require.NoError(t, err)
	require.Equal(t, 3, next.Level)
	require.InDelta(t, 100.0, next.CurrentEXP, 1e-9)
	require.Equal(t, 2, transition.LevelsChanged)
	require.True(t, transition.LeveledUp)
}

func TestApplyEXPDeltaExactThresholdRollsOver(t *testing.T) {
	state := NewUserState()

	next, transition, err := ApplyEXPDelta(state, 1000)
	require.NoError(t, err)
	require.Equal(t, 2, next.Level)
	require.Equal(t, 0.0, next.CurrentEXP)
	require.Equal(t, 1, transition.LevelsChanged)
}

func TestApplyEXPDeltaNegativeCascadesDown(t *testing.T) {
	state := NewUserState()
	state.Level = 3
	state.CurrentEXP = 50

	next, transition, err := ApplyEXPDelta(state, -100)
	require.NoError(t, err)
	require.Equal(t, 2, next.Level)
	require.InDelta(t, 1150.0, next.CurrentEXP, 1e-9)
	require.True(t, transition.LeveledDown)
	require.False(t, transition.LeveledUp)
	require.Equal(t, 1, transition.LevelsChanged)
}

func TestApplyEXPDeltaClampsAtFloor(t *testing.T) {
	state := NewUserState()
	state.Level = 2
	state.CurrentEXP = 5

	next, transition, err := ApplyEXPDelta(state, -50_000)
	require.NoError(t, err)
	require.Equal(t, 1, next.Level)
	require.Equal(t, 0.0, next.CurrentEXP)
	require.True(t, transition.LeveledDown)
	require.Equal(t, 1, transition.LevelsChanged)
}

func TestApplyEXPDeltaRoundTripIsExact(t *testing.T) {
	cases := []struct {
		name  string
		level int
		exp   float64
		delta float64
	}{
		{name: "single level", level: 1, exp: 0, delta: 1500},
		{name: "within level", level: 3, exp: 250.5, delta: 40},
		{name: "multi level", level: 2, exp: 100, delta: 12345},
		{name: "exact threshold", level: 1, exp: 0, delta: 1000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := NewUserState()
			state.Level = tc.level
			state.CurrentEXP = tc.exp

			up, _, err := ApplyEXPDelta(state, tc.delta)
			require.NoError(t, err)

			down, _, err := ApplyEXPDelta(up, -tc.delta)
			require.NoError(t, err)

			require.Equal(t, tc.level, down.Level)
			require.Equal(t, tc.exp, down.CurrentEXP, "round trip must restore EXP exactly")
		})
	}
}

func TestApplyEXPDeltaRejectsNonFiniteDelta(t *testing.T) {
	state := NewUserState()
	state.CurrentEXP = 42

	for _, delta := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		next, _, err := ApplyEXPDelta(state, delta)
		require.ErrorIs(t, err, ErrInvalidDelta)
		require.Equal(t, state.Level, next.Level)
		require.Equal(t, state.CurrentEXP, next.CurrentEXP)
	}
}

func TestEXPAwardPerMinuteAndFixed(t *testing.T) {
	table := DefaultFormulaTable()

	require.Equal(t, 60.0, EXPAward(table, ActivityWorkoutWeights, 60))
	require.Equal(t, 90.0, EXPAward(table, ActivityStudySerious, 90))

	// Fixed-amount activities grant exactly 60 regardless of duration.
	require.Equal(t, 60.0, EXPAward(table, ActivityQuitBadHabit, 1))
	require.Equal(t, 60.0, EXPAward(table, ActivityQuitBadHabit, 500))
}
