package progression

import "errors"

var (
	// ErrInvalidLevel is returned for level values below 1.
	ErrInvalidLevel = errors.New("level must be >= 1")
	// ErrInvalidDelta is returned when an EXP delta is NaN or infinite.
	ErrInvalidDelta = errors.New("exp delta must be finite")
	// ErrInvalidDuration is returned when a duration cannot feed the gain formula.
	ErrInvalidDuration = errors.New("invalid activity duration")
	// ErrInvalidStatValue is returned when an operation would produce a
	// non-finite stat value.
	ErrInvalidStatValue = errors.New("invalid stat value")
	// ErrIrreversibleActivity is returned when a reversal fails validation
	// against the current state. The state is left untouched.
	ErrIrreversibleActivity = errors.New("activity cannot be reversed")
)
