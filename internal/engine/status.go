package engine

import (
	"stratrack/internal/plan"
)

// Classify maps an achievement metric to a discrete status.
//
// TEXT_CONDITION is driven by the underlying qualitative label, not the
// numeric mapping. MILESTONE is binary: met or pending, never on-track or
// missed. For the numeric classes, zero achievement with contributions
// present means "not started", not "failed".
func Classify(achievementPercent float64, targetType plan.TargetType, latestLabel string) Status {
	switch targetType {
	case plan.TargetTextCondition:
		switch CanonicalLabel(latestLabel) {
		case LabelMet:
			return StatusMet
		case LabelInProgress:
			return StatusOnTrack
		case LabelNotMet:
			return StatusMissed
		}
		return StatusPending

	case plan.TargetMilestone:
		if achievementPercent == 100 {
			return StatusMet
		}
		return StatusPending
	}

	switch {
	case achievementPercent >= 100:
		return StatusMet
	case achievementPercent >= 80:
		return StatusOnTrack
	case achievementPercent > 0:
		return StatusMissed
	}
	return StatusPending
}
