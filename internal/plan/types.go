package plan

import (
	"fmt"
	"strings"
)

// TargetType is the semantic kind of a KPI target. It determines how
// contributions for the same KPI-period combine into one achievement value.
type TargetType string

const (
	TargetCount         TargetType = "COUNT"
	TargetFinancial     TargetType = "FINANCIAL"
	TargetPercentage    TargetType = "PERCENTAGE"
	TargetRate          TargetType = "RATE"
	TargetMilestone     TargetType = "MILESTONE"
	TargetBoolean       TargetType = "BOOLEAN"
	TargetSnapshot      TargetType = "SNAPSHOT"
	TargetTextCondition TargetType = "TEXT_CONDITION"
)

// CombinationClass groups target types that share combination semantics.
type CombinationClass string

const (
	ClassSum         CombinationClass = "sum"
	ClassAverage     CombinationClass = "average"
	ClassLatest      CombinationClass = "latest"
	ClassQualitative CombinationClass = "qualitative"
)

// Class returns the combination class for a target type.
func (t TargetType) Class() CombinationClass {
	switch t {
	case TargetCount, TargetFinancial:
		return ClassSum
	case TargetPercentage, TargetRate:
		return ClassAverage
	case TargetMilestone, TargetBoolean, TargetSnapshot:
		return ClassLatest
	case TargetTextCondition:
		return ClassQualitative
	}
	return ""
}

// Valid reports whether t is a member of the closed enumeration.
func (t TargetType) Valid() bool {
	return t.Class() != ""
}

// targetTypeSynonyms maps loosely-typed source strings onto the closed
// enum. Plan documents and extraction payloads have historically used
// several spellings per type; they are resolved exactly once, at
// contribution-creation time, and never re-interpreted later.
var targetTypeSynonyms = map[string]TargetType{
	"COUNT":          TargetCount,
	"NUMBER":         TargetCount,
	"NUMERIC":        TargetCount,
	"QUANTITY":       TargetCount,
	"FINANCIAL":      TargetFinancial,
	"MONETARY":       TargetFinancial,
	"CURRENCY":       TargetFinancial,
	"BUDGET":         TargetFinancial,
	"AMOUNT":         TargetFinancial,
	"PERCENTAGE":     TargetPercentage,
	"PERCENT":        TargetPercentage,
	"PCT":            TargetPercentage,
	"RATE":           TargetRate,
	"RATIO":          TargetRate,
	"MILESTONE":      TargetMilestone,
	"BOOLEAN":        TargetBoolean,
	"BOOL":           TargetBoolean,
	"YES_NO":         TargetBoolean,
	"SNAPSHOT":       TargetSnapshot,
	"LEVEL":          TargetSnapshot,
	"TEXT_CONDITION": TargetTextCondition,
	"TEXT":           TargetTextCondition,
	"QUALITATIVE":    TargetTextCondition,
	"CONDITION":      TargetTextCondition,
}

// ParseTargetType resolves a raw target-type string into the closed enum.
func ParseTargetType(raw string) (TargetType, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(raw), "_"))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, "/", "_")
	if t, ok := targetTypeSynonyms[normalized]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown target type %q", raw)
}

// Target is one immutable KPI target seeded from a plan document.
type Target struct {
	Key         PeriodKey
	Value       float64
	Type        TargetType
	Description string
	Source      string
}

// NotFoundError reports that no KPI target exists for a requested key.
// A missing target is fatal for rollup recomputation and must surface to
// the caller rather than default silently.
type NotFoundError struct {
	Key PeriodKey
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("no target defined for %s", e.Key)
}
