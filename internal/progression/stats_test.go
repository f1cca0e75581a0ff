package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeGainsScalesByHour(t *testing.T) {
	engine := NewStatEngine(nil)

	gains, err := engine.ComputeGains(ActivityWorkoutWeights, 60)
	require.NoError(t, err)
	require.Len(t, gains, 2)
	require.InDelta(t, 0.06, gains[AttributeStrength], 1e-12)
	require.InDelta(t, 0.04, gains[AttributeEndurance], 1e-12)

	half, err := engine.ComputeGains(ActivityWorkoutWeights, 30)
	require.NoError(t, err)
	require.InDelta(t, 0.03, half[AttributeStrength], 1e-12)
	require.InDelta(t, 0.02, half[AttributeEndurance], 1e-12)
}

func TestComputeGainsFixedAmountIgnoresDuration(t *testing.T) {
	engine := NewStatEngine(nil)

	short, err := engine.ComputeGains(ActivityQuitBadHabit, 1)
	require.NoError(t, err)
	long, err := engine.ComputeGains(ActivityQuitBadHabit, 500)
	require.NoError(t, err)

	require.Equal(t, short, long)
	require.InDelta(t, 0.03, short[AttributeFocus], 1e-12)

	// Fixed-amount activities tolerate a zero duration.
	zero, err := engine.ComputeGains(ActivityQuitBadHabit, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.03, zero[AttributeFocus], 1e-12)
}

func TestComputeGainsRejectsBadDuration(t *testing.T) {
	engine := NewStatEngine(nil)

	_, err := engine.ComputeGains(ActivityWorkoutCardio, 0)
	require.ErrorIs(t, err, ErrInvalidDuration)

	_, err = engine.ComputeGains(ActivityWorkoutCardio, -15)
	require.ErrorIs(t, err, ErrInvalidDuration)

	_, err = engine.ComputeGains(ActivityQuitBadHabit, -1)
	require.ErrorIs(t, err, ErrInvalidDuration)

	_, err = engine.ComputeGains(ActivityType("unknown"), 30)
	require.Error(t, err)
}

func TestApplyGainsThenReversalRoundTrips(t *testing.T) {
	engine := NewStatEngine(nil)
	state := NewUserState()
	state.Stats[AttributeStrength] = 2.5
	state.Stats[AttributeEndurance] = 3.75

	gains, err := engine.ComputeGains(ActivityWorkoutWeights, 90)
	require.NoError(t, err)

	applied, err := engine.ApplyGains(state, gains)
	require.NoError(t, err)
	require.Greater(t, applied.Stats[AttributeStrength], state.Stats[AttributeStrength])

	reversed, err := engine.ApplyReversal(applied, gains)
	require.NoError(t, err)
	for _, attr := range Attributes() {
		require.InDelta(t, state.Stats[attr], reversed.Stats[attr], 1e-9, "attribute %s", attr)
	}
}

func TestApplyReversalClampsToFloor(t *testing.T) {
	engine := NewStatEngine(nil)
	state := NewUserState()
	state.Stats[AttributeStrength] = 1.02

	reversed, err := engine.ApplyReversal(state, map[Attribute]float64{AttributeStrength: 0.06})
	require.NoError(t, err)
	require.Equal(t, StatFloor, reversed.Stats[AttributeStrength], "must clamp, never dip below the floor")
}

func TestApplyGainsRejectsNonFiniteAndLeavesStateAlone(t *testing.T) {
	engine := NewStatEngine(nil)
	state := NewUserState()
	state.Stats[AttributeFocus] = 7.5

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		next, err := engine.ApplyGains(state, map[Attribute]float64{AttributeFocus: bad})
		require.ErrorIs(t, err, ErrInvalidStatValue)
		require.Equal(t, 7.5, next.Stats[AttributeFocus])
	}
}

func TestComputeReversalPrefersRecordedGains(t *testing.T) {
	engine := NewStatEngine(nil)

	recorded := map[Attribute]float64{AttributeStrength: 0.123, AttributeEndurance: 0.456}
	reversal, err := engine.ComputeReversal(ActivityWorkoutWeights, 60, recorded)
	require.NoError(t, err)
	require.Equal(t, recorded, reversal)

	// Returned map is a copy, not an alias.
	reversal[AttributeStrength] = 99
	require.Equal(t, 0.123, recorded[AttributeStrength])
}

func TestComputeReversalFallsBackToFormulas(t *testing.T) {
	engine := NewStatEngine(nil)

	reversal, err := engine.ComputeReversal(ActivityWorkoutWeights, 60, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.06, reversal[AttributeStrength], 1e-12)
	require.InDelta(t, 0.04, reversal[AttributeEndurance], 1e-12)
}

func TestValidateReversal(t *testing.T) {
	engine := NewStatEngine(nil)
	state := NewUserState()

	require.True(t, engine.ValidateReversal(state, map[Attribute]float64{AttributeFocus: 0.05}))
	require.False(t, engine.ValidateReversal(state, map[Attribute]float64{AttributeFocus: math.NaN()}))
	require.False(t, engine.ValidateReversal(state, map[Attribute]float64{AttributeFocus: math.Inf(1)}))

	delete(state.Stats, AttributeFocus)
	require.False(t, engine.ValidateReversal(state, map[Attribute]float64{AttributeFocus: 0.05}))
}

func TestSanitizeStat(t *testing.T) {
	require.Equal(t, StatFloor, SanitizeStat(math.NaN()))
	require.Equal(t, SafeMaxStat, SanitizeStat(math.Inf(1)))
	require.Equal(t, StatFloor, SanitizeStat(math.Inf(-1)))
	require.Equal(t, StatFloor, SanitizeStat(0.2))
	require.Equal(t, SafeMaxStat, SanitizeStat(1e12))
	require.Equal(t, 123.456, SanitizeStat(123.456), "legitimate values pass through untouched")
}

func TestCustomFormulaTable(t *testing.T) {
	custom := FormulaTable{
		ActivityMeditation: {{Attribute: AttributeFocus, Rate: 0.10}},
	}
	engine := NewStatEngine(custom)

	gains, err := engine.ComputeGains(ActivityMeditation, 30)
	require.NoError(t, err)
	require.InDelta(t, 0.05, gains[AttributeFocus], 1e-12)

	_, err = engine.ComputeGains(ActivityWorkoutWeights, 30)
	require.Error(t, err, "activities outside the custom ruleset are unknown")
}
