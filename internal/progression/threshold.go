package progression

import (
	"fmt"
	"math"
)

const (
	baseThreshold    = 1000.0
	thresholdGrowth  = 1.2
	fixedEXPAward    = 60.0
	minutesPerHourF  = 60.0
)

// ThresholdForLevel returns the EXP required to complete the given level:
// 1000 * 1.2^(level-1). The curve is strictly increasing in level.
func ThresholdForLevel(level int) (float64, error) {
	if level < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}
	return baseThreshold * math.Pow(thresholdGrowth, float64(level-1)), nil
}
