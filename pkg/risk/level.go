// Package risk classifies numeric risk outputs into qualitative bands.
//
// Two classifications live here:
//   - LevelFor maps a normalised damage factor (1.0 ≈ nominal severity)
//     onto five ascending bands.
//   - Classify places a (probability, consequence) pair on the 5×5 risk
//     matrix and derives the recommended inspection interval.
package risk

import "math"

// Level is the qualitative band of a damage-factor style value.
type Level string

const (
	LevelLow      Level = "Low"
	LevelModerate Level = "Moderate"
	LevelHigh     Level = "High"
	LevelVeryHigh Level = "Very High"
	LevelCritical Level = "Critical"
)

// levelThresholds are exclusive upper bounds, ascending.
var levelThresholds = []struct {
	upper float64
	level Level
}{
	{0.5, LevelLow},
	{1.0, LevelModerate},
	{2.0, LevelHigh},
	{3.0, LevelVeryHigh},
}

// LevelFor returns the band for value. Every float64 maps to a band:
// negatives are Low, anything at or past the last threshold is Critical,
// and NaN is treated as Critical.
func LevelFor(value float64) Level {
	if math.IsNaN(value) {
		return LevelCritical
	}
	for _, t := range levelThresholds {
		if value < t.upper {
			return t.level
		}
	}
	return LevelCritical
}

// Rank orders levels from 0 (Low) to 4 (Critical). Unknown levels rank -1.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 0
	case LevelModerate:
		return 1
	case LevelHigh:
		return 2
	case LevelVeryHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether l is as severe as other or worse.
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

// Levels returns all bands from least to most severe.
func Levels() []Level {
	return []Level{LevelLow, LevelModerate, LevelHigh, LevelVeryHigh, LevelCritical}
}
