package engine

import (
	"fmt"
	"math"
	"strings"

	"stratrack/internal/plan"
)

// NormalizeValue converts one raw activity record into a canonical scalar
// for the given target type. The second return reports validity: an
// invalid value (a percent over 100 reported with no denominator) is
// excluded entirely from later combination, not clamped and not counted
// as a zero peer.
func NormalizeValue(raw RawValue, targetType plan.TargetType) (float64, bool) {
	switch targetType.Class() {
	case plan.ClassAverage:
		if raw.Denominator != nil && *raw.Denominator > 0 {
			return raw.Reported / *raw.Denominator * 100, true
		}
		if raw.Reported >= 0 && raw.Reported <= 100 {
			return raw.Reported, true
		}
		return 0, false
	case plan.ClassSum:
		return raw.Reported, true
	case plan.ClassLatest:
		if targetType == plan.TargetSnapshot {
			return raw.Reported, true
		}
		// MILESTONE/BOOLEAN coerce to 0/1
		if raw.Reported != 0 {
			return 1, true
		}
		return 0, true
	case plan.ClassQualitative:
		return MapLabel(raw.Label), true
	}
	return 0, false
}

// ValidateReported checks one raw activity record against its target type
// before it is accepted. Hard errors reject the contribution outright;
// warnings accept it but flag it for review.
func ValidateReported(raw RawValue, targetType plan.TargetType) (errs, warns []string) {
	if !targetType.Valid() {
		return []string{fmt.Sprintf("unknown target type %q", string(targetType))}, nil
	}

	if math.IsNaN(raw.Reported) || math.IsInf(raw.Reported, 0) {
		errs = append(errs, "reported value is not a finite number")
		return errs, nil
	}
	if raw.Denominator != nil && (math.IsNaN(*raw.Denominator) || math.IsInf(*raw.Denominator, 0)) {
		errs = append(errs, "denominator is not a finite number")
		return errs, nil
	}

	switch targetType.Class() {
	case plan.ClassSum:
		if raw.Reported < 0 {
			errs = append(errs, fmt.Sprintf("negative value %v not allowed for %s", raw.Reported, targetType))
		}
	case plan.ClassAverage:
		if raw.Reported < 0 {
			errs = append(errs, fmt.Sprintf("negative value %v not allowed for %s", raw.Reported, targetType))
		}
		if raw.Denominator != nil && *raw.Denominator <= 0 {
			errs = append(errs, fmt.Sprintf("denominator must be positive, got %v", *raw.Denominator))
		}
		if raw.Denominator == nil && raw.Reported > 100 {
			warns = append(warns, fmt.Sprintf("percent value %v exceeds 100 with no denominator; excluded from combination pending review", raw.Reported))
		}
	case plan.ClassLatest:
		if targetType != plan.TargetSnapshot && raw.Reported != 0 && raw.Reported != 1 {
			errs = append(errs, fmt.Sprintf("%s value must be 0 or 1, got %v", targetType, raw.Reported))
		}
	case plan.ClassQualitative:
		if strings.TrimSpace(raw.Label) == "" {
			errs = append(errs, "qualitative contribution requires a label")
		} else if CanonicalLabel(raw.Label) == "" {
			warns = append(warns, fmt.Sprintf("unrecognized qualitative label %q; mapped to 0", raw.Label))
		}
	}

	return errs, warns
}
