package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stratrack/internal/engine"
	"stratrack/internal/notify"
	"stratrack/internal/plan"
	"stratrack/internal/store"
)

// maxRecomputeAttempts bounds optimistic retry on rollup version
// conflicts. Conflicts only occur when another writer refreshed the same
// key between our read and write, so a retry re-reads a strictly newer
// contribution set.
const maxRecomputeAttempts = 5

// Materializer recomputes and persists the derived per-period rollup from
// the full contribution set.
type Materializer struct {
	Store    *store.Store
	Registry *plan.Registry
	Notifier *notify.Notifier
}

// Recompute re-derives the rollup for one period key and upserts it.
// A missing target is fatal and surfaces as plan.NotFoundError. The
// operation is idempotent: repeated calls with no intervening writes
// change only last_updated. Version conflicts are retried internally and
// never surface to callers.
func (m *Materializer) Recompute(ctx context.Context, key plan.PeriodKey) (*Snapshot, error) {
	key = key.Canonical()

	target, err := m.Registry.Lookup(key)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		existing, err := m.Store.GetRollup(ctx, key)
		if err != nil {
			return nil, err
		}
		var expectedVersion int64
		var previousStatus engine.Status
		if existing != nil {
			expectedVersion = existing.Version
			previousStatus = engine.Status(existing.Status)
		}

		row, err := m.computeRow(ctx, key, target)
		if err != nil {
			return nil, err
		}

		err = m.Store.UpsertRollup(ctx, *row, expectedVersion)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// An unmaterialized key reads as PENDING, so the first write
		// only notifies when it leaves that state.
		if previousStatus == "" {
			previousStatus = engine.StatusPending
		}
		status := engine.Status(row.Status)
		if status != previousStatus {
			title, message := notify.FormatStatusChange(key.InitiativeID, string(previousStatus), string(status), row.CombinedValue, row.TargetValue)
			_ = m.Notifier.Send(title, message)
		}

		override, err := m.Store.GetOverride(ctx, key)
		if err != nil {
			return nil, err
		}
		return snapshotFromRow(row, override), nil
	}

	return nil, fmt.Errorf("recompute %s: gave up after %d version conflicts", key, maxRecomputeAttempts)
}

// computeRow derives a fresh rollup row from the current contribution set
// without writing it. The sweep uses it directly for dry runs.
func (m *Materializer) computeRow(ctx context.Context, key plan.PeriodKey, target plan.Target) (*store.RollupRow, error) {
	rows, err := m.Store.ListContributions(ctx, key)
	if err != nil {
		return nil, err
	}

	contribs := make([]engine.Contribution, 0, len(rows))
	for _, r := range rows {
		// Target types are resolved once at creation; a row that no
		// longer parses is corruption, not something to guess around.
		storedType := plan.TargetType(r.TargetType)
		if !storedType.Valid() {
			return nil, &engine.InconsistentStateError{
				ContributionID: r.ID,
				TargetType:     r.TargetType,
			}
		}
		contribs = append(contribs, engine.Contribution{
			Value:     r.Value,
			Label:     r.Label,
			Valid:     r.Valid,
			CreatedAt: r.CreatedAt,
			Seq:       r.Seq,
		})
	}

	result := engine.Combine(target.Type, target.Value, contribs)
	status := engine.Classify(result.AchievementPercent, target.Type, result.LatestLabel)

	return &store.RollupRow{
		Key:                key,
		CombinedValue:      result.CombinedValue,
		SubmissionCount:    len(rows),
		TargetValue:        target.Value,
		TargetType:         string(target.Type),
		AchievementPercent: result.AchievementPercent,
		Status:             string(status),
		LatestLabel:        result.LatestLabel,
		LastUpdated:        time.Now().UTC(),
	}, nil
}
