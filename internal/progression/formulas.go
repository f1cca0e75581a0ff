package progression

// StatFormula is one attribute adjustment row for an activity type. Rate is
// per hour unless Fixed is set, in which case it is granted outright and
// duration is ignored.
type StatFormula struct {
	Attribute Attribute
	Rate      float64
	Fixed     bool
}

// FormulaTable maps activity types to their stat formulas. Tables are treated
// as immutable once constructed; alternate rulesets are expressed by building
// a different table and injecting it into a StatEngine.
type FormulaTable map[ActivityType][]StatFormula

// DefaultFormulaTable returns the stock ruleset. A fresh copy is returned on
// every call so no caller can mutate shared state.
func DefaultFormulaTable() FormulaTable {
	return FormulaTable{
		ActivityWorkoutWeights: {
			{Attribute: AttributeStrength, Rate: 0.06},
			{Attribute: AttributeEndurance, Rate: 0.04},
		},
		ActivityWorkoutCardio: {
			{Attribute: AttributeAgility, Rate: 0.06},
			{Attribute: AttributeEndurance, Rate: 0.04},
		},
		ActivityWorkoutYoga: {
			{Attribute: AttributeAgility, Rate: 0.05},
			{Attribute: AttributeFocus, Rate: 0.03},
		},
		ActivityStudySerious: {
			{Attribute: AttributeIntelligence, Rate: 0.06},
			{Attribute: AttributeFocus, Rate: 0.04},
		},
		ActivityStudyCasual: {
			{Attribute: AttributeIntelligence, Rate: 0.04},
			{Attribute: AttributeCharisma, Rate: 0.03},
		},
		ActivityMeditation: {
			{Attribute: AttributeFocus, Rate: 0.05},
		},
		ActivitySocializing: {
			{Attribute: AttributeCharisma, Rate: 0.05},
			{Attribute: AttributeFocus, Rate: 0.02},
		},
		ActivitySleepTracking: {
			{Attribute: AttributeEndurance, Rate: 0.02},
		},
		ActivityHealthyDiet: {
			{Attribute: AttributeEndurance, Rate: 0.03},
		},
		ActivityQuitBadHabit: {
			{Attribute: AttributeFocus, Rate: 0.03, Fixed: true},
		},
	}
}

// Knows reports whether the table has a ruleset for the activity type.
func (t FormulaTable) Knows(activityType ActivityType) bool {
	_, ok := t[activityType]
	return ok
}

// FixedAmount reports whether every formula for the activity type ignores
// duration.
func (t FormulaTable) FixedAmount(activityType ActivityType) bool {
	rows, ok := t[activityType]
	if !ok || len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		if !row.Fixed {
			return false
		}
	}
	return true
}
