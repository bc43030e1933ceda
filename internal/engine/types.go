// Package engine contains the pure aggregation core: value normalization,
// contribution combination, and status classification. Every function here
// is deterministic and performs no I/O; persistence and concurrency
// discipline live in the surrounding packages.
package engine

import (
	"strings"
	"time"
)

// Status is the discrete classification of a KPI-period's achievement.
type Status string

const (
	StatusMet     Status = "MET"
	StatusOnTrack Status = "ON_TRACK"
	StatusMissed  Status = "MISSED"
	StatusPending Status = "PENDING"
)

// RawValue is one extracted activity record before normalization.
// Denominator is present when the source reported a count/denominator pair
// for a percentage-class target. Label carries qualitative text.
type RawValue struct {
	Reported    float64
	Denominator *float64
	Label       string
}

// Contribution is one normalized data point toward a KPI-period, as seen
// by the combiner. Valid is false for values excluded from combination
// (a percent over 100 with no denominator); such contributions still count
// toward the audit trail but never toward the combined value.
// CreatedAt and Seq together form the explicit latest-wins ordering key:
// CreatedAt first, insertion sequence breaking ties.
type Contribution struct {
	Value     float64
	Label     string
	Valid     bool
	CreatedAt time.Time
	Seq       int64
}

// Result is the outcome of combining a contribution set against a target.
type Result struct {
	CombinedValue      float64
	AchievementPercent float64
	LatestLabel        string
}

// Qualitative label vocabulary. The original label is retained on the
// contribution for status classification; the numeric mapping feeds the
// combined value only.
const (
	LabelMet        = "Met"
	LabelInProgress = "In Progress"
	LabelNotMet     = "Not Met"
)

// MapLabel converts a qualitative label to its numeric contribution value.
func MapLabel(label string) float64 {
	switch CanonicalLabel(label) {
	case LabelMet:
		return 100
	case LabelInProgress:
		return 50
	}
	return 0
}

// CanonicalLabel resolves case and whitespace variants of the known
// qualitative labels; unrecognized labels map to "".
func CanonicalLabel(label string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(label), " "))
	switch normalized {
	case "met":
		return LabelMet
	case "in progress":
		return LabelInProgress
	case "not met":
		return LabelNotMet
	}
	return ""
}
