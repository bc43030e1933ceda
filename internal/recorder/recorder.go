// Package recorder validates and persists document-derived contributions
// and triggers rollup recomputation for every touched KPI-period.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stratrack/internal/audit"
	"stratrack/internal/engine"
	"stratrack/internal/notify"
	"stratrack/internal/plan"
	"stratrack/internal/rollup"
	"stratrack/internal/store"
)

// ExtractedRecord is one activity record supplied by the document
// analysis extractor for an approved document.
type ExtractedRecord struct {
	KRAID        string   `json:"kra_id"`
	InitiativeID string   `json:"initiative_id"`
	Reported     float64  `json:"reported"`
	Denominator  *float64 `json:"denominator,omitempty"`
	Label        string   `json:"label,omitempty"`
}

// Submission is the full set of extracted records for one approved
// document from one organizational unit.
type Submission struct {
	DocumentID string            `json:"document_id"`
	UnitID     string            `json:"unit_id"`
	Year       int               `json:"year"`
	Quarter    int               `json:"quarter"`
	ActorID    string            `json:"actor_id"`
	Records    []ExtractedRecord `json:"records"`
}

// Receipt reports what a successful Record call stored and recomputed.
type Receipt struct {
	ContributionIDs []string           `json:"contribution_ids"`
	FlaggedIDs      []string           `json:"flagged_ids,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	Rollups         []*rollup.Snapshot `json:"rollups"`
}

// Recorder validates, normalizes, and persists contributions.
type Recorder struct {
	Store        *store.Store
	Registry     *plan.Registry
	Materializer *rollup.Materializer
	Audit        *audit.Logger
	Notifier     *notify.Notifier
}

// Record processes one submission. Hard failures (unknown KRA, missing
// target, malformed values) reject the whole submission before anything
// is stored. Soft warnings (a percent over 100 with no denominator)
// accept the document: the record is stored flagged for review and its
// value is excluded from combination. Every touched period key is
// recomputed after the contributions commit.
func (r *Recorder) Record(ctx context.Context, sub Submission) (*Receipt, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	var problems []string
	var warnings []string
	rows := make([]*store.ContributionRow, 0, len(sub.Records))

	for idx, rec := range sub.Records {
		path := fmt.Sprintf("records[%d]", idx)

		key := plan.PeriodKey{
			KRAID:        plan.NormalizeKRA(rec.KRAID),
			InitiativeID: strings.TrimSpace(rec.InitiativeID),
			Year:         sub.Year,
			Quarter:      sub.Quarter,
		}
		if key.InitiativeID == "" {
			problems = append(problems, fmt.Sprintf("%s: initiative_id is required", path))
			continue
		}

		target, err := r.Registry.Lookup(key)
		if err != nil {
			var nf plan.NotFoundError
			if errors.As(err, &nf) {
				problems = append(problems, fmt.Sprintf("%s: %s", path, err))
				continue
			}
			return nil, err
		}

		raw := engine.RawValue{
			Reported:    rec.Reported,
			Denominator: rec.Denominator,
			Label:       rec.Label,
		}
		errs, warns := engine.ValidateReported(raw, target.Type)
		for _, e := range errs {
			problems = append(problems, fmt.Sprintf("%s: %s", path, e))
		}
		if len(errs) > 0 {
			continue
		}
		for _, w := range warns {
			warnings = append(warnings, fmt.Sprintf("%s: %s", path, w))
		}

		value, valid := engine.NormalizeValue(raw, target.Type)

		rows = append(rows, &store.ContributionRow{
			Key:              key,
			UnitID:           sub.UnitID,
			SourceDocumentID: sub.DocumentID,
			Value:            value,
			Valid:            valid,
			Label:            rec.Label,
			TargetType:       string(target.Type),
			Flagged:          len(warns) > 0,
		})
	}

	if len(problems) > 0 {
		return nil, &engine.ValidationError{Document: sub.DocumentID, Problems: problems}
	}

	if err := r.Store.InsertContributions(ctx, rows); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &engine.ValidationError{
				Document: sub.DocumentID,
				Problems: []string{err.Error()},
			}
		}
		return nil, err
	}

	receipt := &Receipt{Warnings: warnings}
	seen := make(map[plan.PeriodKey]struct{})
	var touched []plan.PeriodKey
	flaggedByInitiative := make(map[string]int)
	for _, row := range rows {
		receipt.ContributionIDs = append(receipt.ContributionIDs, row.ID)
		if row.Flagged {
			receipt.FlaggedIDs = append(receipt.FlaggedIDs, row.ID)
			flaggedByInitiative[row.Key.InitiativeID]++
		}
		if _, ok := seen[row.Key]; !ok {
			seen[row.Key] = struct{}{}
			touched = append(touched, row.Key)
		}
	}

	for _, key := range touched {
		snap, err := r.Materializer.Recompute(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("recompute after record: %w", err)
		}
		receipt.Rollups = append(receipt.Rollups, snap)
	}

	if err := r.Audit.LogEvent(sub.ActorID, audit.EventContributionRecorded, map[string]any{
		"document_id":   sub.DocumentID,
		"unit_id":       sub.UnitID,
		"year":          sub.Year,
		"quarter":       sub.Quarter,
		"contributions": len(rows),
		"flagged":       len(receipt.FlaggedIDs),
	}); err != nil {
		return nil, fmt.Errorf("audit record: %w", err)
	}

	for initiativeID, count := range flaggedByInitiative {
		title, message := notify.FormatReviewNeeded(initiativeID, sub.DocumentID, count)
		_ = r.Notifier.Send(title, message)
	}

	return receipt, nil
}

func validateSubmission(sub Submission) error {
	var problems []string
	if strings.TrimSpace(sub.DocumentID) == "" {
		problems = append(problems, "document_id is required")
	}
	if strings.TrimSpace(sub.UnitID) == "" {
		problems = append(problems, "unit_id is required")
	}
	if sub.Year <= 0 {
		problems = append(problems, "year must be positive")
	}
	if sub.Quarter < 1 || sub.Quarter > 4 {
		problems = append(problems, fmt.Sprintf("quarter %d out of range 1..4", sub.Quarter))
	}
	if len(sub.Records) == 0 {
		problems = append(problems, "submission has no records")
	}
	if len(problems) > 0 {
		return &engine.ValidationError{Document: sub.DocumentID, Problems: problems}
	}
	return nil
}
