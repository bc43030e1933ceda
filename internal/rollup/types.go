// Package rollup materializes, reads, and reconciles the per-period
// achievement projection. A rollup is always fully re-derivable from the
// target registry plus the contribution log; it is rebuilt wholesale on
// every write, never patched incrementally.
package rollup

import (
	"time"

	"stratrack/internal/engine"
	"stratrack/internal/plan"
	"stratrack/internal/store"
)

// Override is the administrative correction shadowing a computed rollup.
type Override struct {
	Value     float64   `json:"value"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the read model for one KPI-period. Computed fields always
// reflect the materialized rollup; when an override is present the
// Effective* accessors prefer it, while the computed fields stay
// inspectable for audit.
type Snapshot struct {
	Key                plan.PeriodKey  `json:"key"`
	CombinedValue      float64         `json:"combined_value"`
	SubmissionCount    int             `json:"submission_count"`
	TargetValue        float64         `json:"target_value"`
	TargetType         plan.TargetType `json:"target_type"`
	AchievementPercent float64         `json:"achievement_percent"`
	Status             engine.Status   `json:"status"`
	LatestLabel        string          `json:"latest_label,omitempty"`
	LastUpdated        time.Time       `json:"last_updated"`
	Override           *Override       `json:"override,omitempty"`
}

// EffectiveAchievement returns the override value when set, else the
// computed achievement percent.
func (s *Snapshot) EffectiveAchievement() float64 {
	if s.Override != nil {
		return s.Override.Value
	}
	return s.AchievementPercent
}

// EffectiveStatus classifies the effective achievement. Without an
// override it is the computed status; with one, the override value runs
// through the same classifier as a computed rollup. Overrides carry no
// label, so a text-condition override classifies on the numeric bands.
func (s *Snapshot) EffectiveStatus() engine.Status {
	if s.Override == nil {
		return s.Status
	}
	targetType := s.TargetType
	if targetType == plan.TargetTextCondition {
		targetType = plan.TargetPercentage
	}
	return engine.Classify(s.Override.Value, targetType, "")
}

func snapshotFromRow(row *store.RollupRow, override *store.OverrideRow) *Snapshot {
	snap := &Snapshot{
		Key:                row.Key,
		CombinedValue:      row.CombinedValue,
		SubmissionCount:    row.SubmissionCount,
		TargetValue:        row.TargetValue,
		TargetType:         plan.TargetType(row.TargetType),
		AchievementPercent: row.AchievementPercent,
		Status:             engine.Status(row.Status),
		LatestLabel:        row.LatestLabel,
		LastUpdated:        row.LastUpdated,
	}
	if override != nil {
		snap.Override = &Override{
			Value:     override.Value,
			Reason:    override.Reason,
			Actor:     override.Actor,
			CreatedAt: override.CreatedAt,
		}
	}
	return snap
}
