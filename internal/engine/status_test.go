package engine

import (
	"testing"

	"stratrack/internal/plan"
)

func TestClassifyNumericBands(t *testing.T) {
	cases := []struct {
		achievement float64
		want        Status
	}{
		{130, StatusMet},
		{100, StatusMet},
		{99.99, StatusOnTrack},
		{80, StatusOnTrack},
		{79.99, StatusMissed},
		{0.01, StatusMissed},
		{0, StatusPending},
	}
	for _, tc := range cases {
		if got := Classify(tc.achievement, plan.TargetCount, ""); got != tc.want {
			t.Fatalf("Classify(%v) = %v, want %v", tc.achievement, got, tc.want)
		}
	}
}

func TestClassifyMilestoneBinary(t *testing.T) {
	if got := Classify(100, plan.TargetMilestone, ""); got != StatusMet {
		t.Fatalf("milestone at 100 = %v, want MET", got)
	}
	// Milestones are met or pending, never on-track or missed.
	for _, achievement := range []float64{0, 50, 80, 99} {
		if got := Classify(achievement, plan.TargetMilestone, ""); got != StatusPending {
			t.Fatalf("milestone at %v = %v, want PENDING", achievement, got)
		}
	}
}

func TestClassifyTextConditionByLabel(t *testing.T) {
	cases := []struct {
		label string
		want  Status
	}{
		{"Met", StatusMet},
		{"met", StatusMet},
		{"In Progress", StatusOnTrack},
		{"Not Met", StatusMissed},
		{"something else", StatusPending},
		{"", StatusPending},
	}
	for _, tc := range cases {
		// The label drives the status regardless of the numeric mapping.
		if got := Classify(MapLabel(tc.label), plan.TargetTextCondition, tc.label); got != tc.want {
			t.Fatalf("Classify(label=%q) = %v, want %v", tc.label, got, tc.want)
		}
	}
}
