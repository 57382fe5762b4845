package model

// Tier is a discrete confidence label derived from a numeric score
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Selector accuracy thresholds
const (
	AccuracyHigh   = 0.95
	AccuracyMedium = 0.80
)

// Probe score thresholds
const (
	ProbeHigh   = 0.8
	ProbeMedium = 0.5
)

// AccuracyTier maps a selector match rate onto a tier
func AccuracyTier(score float64) Tier {
	switch {
	case score >= AccuracyHigh:
		return TierHigh
	case score >= AccuracyMedium:
		return TierMedium
	default:
		return TierLow
	}
}

// ProbeTier maps a pagination probe score onto a tier
func ProbeTier(score float64) Tier {
	switch {
	case score >= ProbeHigh:
		return TierHigh
	case score >= ProbeMedium:
		return TierMedium
	default:
		return TierLow
	}
}

// Rank orders tiers so they can be compared (high > medium > low)
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// ClampUnit bounds a score to [0,1]
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
