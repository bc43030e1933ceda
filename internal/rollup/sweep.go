package rollup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"stratrack/internal/audit"
	"stratrack/internal/plan"
	"stratrack/internal/store"
)

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Recomputed    int      `json:"recomputed"`
	Changed       int      `json:"changed"`
	Unchanged     int      `json:"unchanged"`
	MissingTarget []string `json:"missing_target,omitempty"`
	Diff          string   `json:"diff,omitempty"`
	DryRun        bool     `json:"dry_run"`
}

// Sweeper runs reconciliation sweeps: a full re-derivation of every known
// period key strictly from the current contribution set. Sweeps never
// revert contributions added concurrently by live traffic; a lost write
// just triggers a re-read via the materializer's retry.
type Sweeper struct {
	Materializer *Materializer
	Audit        *audit.Logger
}

// Sweep recomputes every key known to the registry or present in the
// contribution log. Keys with contributions but no target are reported,
// not fatal. With dryRun set, drift is computed and rendered but nothing
// is written.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (*SweepReport, error) {
	keys, err := s.collectKeys(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{DryRun: dryRun}
	var diffs []string

	for _, key := range keys {
		target, err := s.Materializer.Registry.Lookup(key)
		if err != nil {
			var nf plan.NotFoundError
			if errors.As(err, &nf) {
				report.MissingTarget = append(report.MissingTarget, key.String())
				continue
			}
			return nil, err
		}

		before, err := s.Materializer.Store.GetRollup(ctx, key)
		if err != nil {
			return nil, err
		}
		after, err := s.Materializer.computeRow(ctx, key, target)
		if err != nil {
			return nil, err
		}

		drift, err := renderDrift(key, before, after)
		if err != nil {
			return nil, err
		}

		if !dryRun {
			if _, err := s.Materializer.Recompute(ctx, key); err != nil {
				return nil, fmt.Errorf("sweep %s: %w", key, err)
			}
			report.Recomputed++
		}

		if drift != "" {
			report.Changed++
			diffs = append(diffs, drift)
		} else {
			report.Unchanged++
		}
	}

	report.Diff = strings.Join(diffs, "\n")

	if !dryRun {
		if err := s.Audit.LogEvent("system", audit.EventReconcileCompleted, map[string]any{
			"recomputed":     report.Recomputed,
			"changed":        report.Changed,
			"unchanged":      report.Unchanged,
			"missing_target": len(report.MissingTarget),
		}); err != nil {
			return nil, fmt.Errorf("audit reconcile: %w", err)
		}
	}

	return report, nil
}

// collectKeys unions registry keys with keys seen in the contribution
// log, deduplicated and deterministically ordered.
func (s *Sweeper) collectKeys(ctx context.Context) ([]plan.PeriodKey, error) {
	keys := s.Materializer.Registry.Keys()
	seen := make(map[plan.PeriodKey]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}

	logged, err := s.Materializer.Store.ListPeriodKeys(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range logged {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

// diffableRow is the drift-relevant projection of a rollup row:
// last_updated and version churn on every write and are excluded.
type diffableRow struct {
	CombinedValue      float64 `json:"combined_value"`
	SubmissionCount    int     `json:"submission_count"`
	TargetValue        float64 `json:"target_value"`
	TargetType         string  `json:"target_type"`
	AchievementPercent float64 `json:"achievement_percent"`
	Status             string  `json:"status"`
	LatestLabel        string  `json:"latest_label"`
}

func renderDrift(key plan.PeriodKey, before, after *store.RollupRow) (string, error) {
	beforeText, err := marshalDiffable(before)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	afterText, err := marshalDiffable(after)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	if beforeText == afterText {
		return "", nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(beforeText),
		B:        difflib.SplitLines(afterText),
		FromFile: fmt.Sprintf("stored/%s", key),
		ToFile:   fmt.Sprintf("recomputed/%s", key),
		Context:  3,
	}
	diffText, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", key, err)
	}
	return diffText, nil
}

func marshalDiffable(row *store.RollupRow) (string, error) {
	if row == nil {
		return "", nil
	}
	data, err := json.MarshalIndent(diffableRow{
		CombinedValue:      row.CombinedValue,
		SubmissionCount:    row.SubmissionCount,
		TargetValue:        row.TargetValue,
		TargetType:         row.TargetType,
		AchievementPercent: row.AchievementPercent,
		Status:             row.Status,
		LatestLabel:        row.LatestLabel,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
