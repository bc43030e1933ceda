package rollup

import (
	"context"

	"stratrack/internal/engine"
	"stratrack/internal/plan"
	"stratrack/internal/store"
)

// Reader serves rollup snapshots to reporting consumers, applying the
// override layer on read.
type Reader struct {
	Store    *store.Store
	Registry *plan.Registry
}

// Get returns the snapshot for a key. If no rollup has been materialized
// yet but the target exists, a zero PENDING snapshot is returned; a key
// with no target yields plan.NotFoundError.
func (r *Reader) Get(ctx context.Context, key plan.PeriodKey) (*Snapshot, error) {
	key = key.Canonical()

	row, err := r.Store.GetRollup(ctx, key)
	if err != nil {
		return nil, err
	}
	override, err := r.Store.GetOverride(ctx, key)
	if err != nil {
		return nil, err
	}

	if row != nil {
		return snapshotFromRow(row, override), nil
	}

	target, err := r.Registry.Lookup(key)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Key:         key,
		TargetValue: target.Value,
		TargetType:  target.Type,
		Status:      engine.StatusPending,
	}
	if override != nil {
		snap.Override = &Override{
			Value:     override.Value,
			Reason:    override.Reason,
			Actor:     override.Actor,
			CreatedAt: override.CreatedAt,
		}
	}
	return snap, nil
}
