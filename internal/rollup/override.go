package rollup

import (
	"context"
	"fmt"
	"strings"

	"stratrack/internal/audit"
	"stratrack/internal/plan"
	"stratrack/internal/store"
)

// Overrides manages administrative corrections. An override shadows the
// computed rollup on read; the computed columns are never altered, so the
// underlying audit trail survives. Overrides persist until explicitly
// cleared.
type Overrides struct {
	Store *store.Store
	Audit *audit.Logger
}

// Set stores an override for a key. Reason and actor are mandatory:
// an unexplained correction is not auditable.
func (o *Overrides) Set(ctx context.Context, key plan.PeriodKey, value float64, reason, actor string) error {
	key = key.Canonical()
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("override reason is required")
	}
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("override actor is required")
	}

	if err := o.Store.SetOverride(ctx, store.OverrideRow{
		Key:    key,
		Value:  value,
		Reason: reason,
		Actor:  actor,
	}); err != nil {
		return err
	}

	if err := o.Audit.LogEvent(actor, audit.EventOverrideSet, map[string]any{
		"key":    key.String(),
		"value":  value,
		"reason": reason,
	}); err != nil {
		return fmt.Errorf("audit override: %w", err)
	}
	return nil
}

// Clear removes the override for a key.
func (o *Overrides) Clear(ctx context.Context, key plan.PeriodKey, actor string) error {
	key = key.Canonical()
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("override actor is required")
	}

	if err := o.Store.ClearOverride(ctx, key); err != nil {
		return err
	}

	if err := o.Audit.LogEvent(actor, audit.EventOverrideCleared, map[string]any{
		"key": key.String(),
	}); err != nil {
		return fmt.Errorf("audit override clear: %w", err)
	}
	return nil
}
