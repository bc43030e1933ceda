package engine

import (
	"math"
	"testing"

	"stratrack/internal/plan"
)

func TestNormalizeValueByClass(t *testing.T) {
	d200 := 200.0
	cases := []struct {
		name      string
		raw       RawValue
		target    plan.TargetType
		wantValue float64
		wantValid bool
	}{
		{"count passthrough", RawValue{Reported: 42}, plan.TargetCount, 42, true},
		{"financial passthrough", RawValue{Reported: 1200.50}, plan.TargetFinancial, 1200.50, true},
		{"percent plain", RawValue{Reported: 85}, plan.TargetPercentage, 85, true},
		{"percent ratio", RawValue{Reported: 154, Denominator: &d200}, plan.TargetPercentage, 77, true},
		{"percent over 100 no denominator", RawValue{Reported: 154}, plan.TargetPercentage, 0, false},
		{"rate boundary 100", RawValue{Reported: 100}, plan.TargetRate, 100, true},
		{"milestone coerce", RawValue{Reported: 3}, plan.TargetMilestone, 1, true},
		{"boolean zero", RawValue{Reported: 0}, plan.TargetBoolean, 0, true},
		{"snapshot raw", RawValue{Reported: 7.5}, plan.TargetSnapshot, 7.5, true},
		{"qualitative met", RawValue{Label: "Met"}, plan.TargetTextCondition, 100, true},
		{"qualitative in progress", RawValue{Label: "in  progress"}, plan.TargetTextCondition, 50, true},
		{"qualitative unknown", RawValue{Label: "who knows"}, plan.TargetTextCondition, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, valid := NormalizeValue(tc.raw, tc.target)
			if value != tc.wantValue || valid != tc.wantValid {
				t.Fatalf("NormalizeValue = (%v, %v), want (%v, %v)", value, valid, tc.wantValue, tc.wantValid)
			}
		})
	}
}

func TestValidateReportedHardErrors(t *testing.T) {
	negDenom := -1.0
	cases := []struct {
		name   string
		raw    RawValue
		target plan.TargetType
	}{
		{"negative count", RawValue{Reported: -5}, plan.TargetCount},
		{"negative financial", RawValue{Reported: -100}, plan.TargetFinancial},
		{"negative percent", RawValue{Reported: -3}, plan.TargetPercentage},
		{"non-positive denominator", RawValue{Reported: 10, Denominator: &negDenom}, plan.TargetRate},
		{"milestone not binary", RawValue{Reported: 2}, plan.TargetMilestone},
		{"boolean not binary", RawValue{Reported: 0.5}, plan.TargetBoolean},
		{"qualitative missing label", RawValue{}, plan.TargetTextCondition},
		{"nan", RawValue{Reported: math.NaN()}, plan.TargetCount},
		{"inf", RawValue{Reported: math.Inf(1)}, plan.TargetSnapshot},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs, _ := ValidateReported(tc.raw, tc.target)
			if len(errs) == 0 {
				t.Fatalf("expected hard validation error for %+v", tc.raw)
			}
		})
	}
}

func TestValidateReportedSoftWarnings(t *testing.T) {
	errs, warns := ValidateReported(RawValue{Reported: 154}, plan.TargetPercentage)
	if len(errs) != 0 {
		t.Fatalf("over-100 percent with no denominator must not hard-fail: %v", errs)
	}
	if len(warns) != 1 {
		t.Fatalf("warnings = %v, want exactly one review flag", warns)
	}

	errs, warns = ValidateReported(RawValue{Label: "Partially Done"}, plan.TargetTextCondition)
	if len(errs) != 0 || len(warns) != 1 {
		t.Fatalf("unknown label: errs=%v warns=%v, want soft warning only", errs, warns)
	}
}

func TestValidateReportedAccepts(t *testing.T) {
	d := 200.0
	cases := []struct {
		raw    RawValue
		target plan.TargetType
	}{
		{RawValue{Reported: 0}, plan.TargetCount},
		{RawValue{Reported: 154, Denominator: &d}, plan.TargetPercentage},
		{RawValue{Reported: 1}, plan.TargetMilestone},
		{RawValue{Label: "Not Met"}, plan.TargetTextCondition},
	}
	for _, tc := range cases {
		errs, warns := ValidateReported(tc.raw, tc.target)
		if len(errs) != 0 || len(warns) != 0 {
			t.Fatalf("%+v/%s: errs=%v warns=%v, want clean", tc.raw, tc.target, errs, warns)
		}
	}
}
