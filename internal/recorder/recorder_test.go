package recorder

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"stratrack/internal/audit"
	"stratrack/internal/engine"
	"stratrack/internal/plan"
	"stratrack/internal/rollup"
	"stratrack/internal/store"
)

func testRecorder(t *testing.T, targets ...plan.Target) (*Recorder, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "engine.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry, err := plan.NewRegistry(targets)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	auditLog := audit.NewLogger(filepath.Join(dir, "events.sqlite"))
	materializer := &rollup.Materializer{Store: st, Registry: registry}

	return &Recorder{
		Store:        st,
		Registry:     registry,
		Materializer: materializer,
		Audit:        auditLog,
	}, st
}

func kpi9Target() plan.Target {
	return plan.Target{
		Key:   plan.PeriodKey{KRAID: "KRA 5", InitiativeID: "KRA5-KPI9", Year: 2026, Quarter: 1},
		Value: 73,
		Type:  plan.TargetPercentage,
	}
}

func ptr(v float64) *float64 { return &v }

func TestRecordDenominatorPairsEndToEnd(t *testing.T) {
	r, _ := testRecorder(t, kpi9Target())

	receipt, err := r.Record(context.Background(), Submission{
		DocumentID: "doc-1",
		UnitID:     "unit-a",
		Year:       2026,
		Quarter:    1,
		ActorID:    "approver-1",
		Records: []ExtractedRecord{
			{KRAID: "KRA5", InitiativeID: "KRA5-KPI9", Reported: 154, Denominator: ptr(200)},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// Second unit contributes the other half of the pair scenario.
	receipt, err = r.Record(context.Background(), Submission{
		DocumentID: "doc-2",
		UnitID:     "unit-b",
		Year:       2026,
		Quarter:    1,
		ActorID:    "approver-1",
		Records: []ExtractedRecord{
			{KRAID: "kra 5", InitiativeID: "KRA5-KPI9", Reported: 160, Denominator: ptr(200)},
		},
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}

	if len(receipt.Rollups) != 1 {
		t.Fatalf("rollups = %d, want 1", len(receipt.Rollups))
	}
	snap := receipt.Rollups[0]
	if snap.CombinedValue != 78.5 {
		t.Fatalf("combined = %v, want 78.5", snap.CombinedValue)
	}
	if math.Abs(snap.AchievementPercent-107.53) > 0.01 {
		t.Fatalf("achievement = %v, want ≈ 107.53", snap.AchievementPercent)
	}
	if snap.Status != engine.StatusMet {
		t.Fatalf("status = %v, want MET", snap.Status)
	}
}

func TestRecordUnknownKRARejectsWholeSubmission(t *testing.T) {
	r, st := testRecorder(t, kpi9Target())

	_, err := r.Record(context.Background(), Submission{
		DocumentID: "doc-1",
		UnitID:     "unit-a",
		Year:       2026,
		Quarter:    1,
		ActorID:    "approver-1",
		Records: []ExtractedRecord{
			{KRAID: "KRA5", InitiativeID: "KRA5-KPI9", Reported: 70},
			{KRAID: "KRA99", InitiativeID: "KRA99-KPI1", Reported: 5},
		},
	})
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	// Nothing stored, including the record that would have passed.
	rows, listErr := st.ListContributions(context.Background(), kpi9Target().Key)
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(rows) != 0 {
		t.Fatalf("hard failure leaked %d contributions", len(rows))
	}
}

func TestRecordSoftWarningFlagsButStores(t *testing.T) {
	r, st := testRecorder(t, kpi9Target())

	receipt, err := r.Record(context.Background(), Submission{
		DocumentID: "doc-1",
		UnitID:     "unit-a",
		Year:       2026,
		Quarter:    1,
		ActorID:    "approver-1",
		Records: []ExtractedRecord{
			{KRAID: "KRA5", InitiativeID: "KRA5-KPI9", Reported: 154},
		},
	})
	if err != nil {
		t.Fatalf("soft warning must not reject: %v", err)
	}
	if len(receipt.FlaggedIDs) != 1 || len(receipt.Warnings) != 1 {
		t.Fatalf("receipt = %+v, want one flag and one warning", receipt)
	}

	rows, err := st.ListContributions(context.Background(), kpi9Target().Key)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].Flagged || rows[0].Valid {
		t.Fatalf("stored row = %+v, want flagged and excluded", rows[0])
	}

	// Excluded entirely: combined 0, not clamped to 100.
	snap := receipt.Rollups[0]
	if snap.CombinedValue != 0 || snap.AchievementPercent != 0 {
		t.Fatalf("rollup = %+v, want zeros", snap)
	}
	if snap.Status != engine.StatusPending {
		t.Fatalf("status = %v, want PENDING", snap.Status)
	}
}

func TestRecordDuplicateDocumentActivity(t *testing.T) {
	r, _ := testRecorder(t, kpi9Target())
	ctx := context.Background()

	sub := Submission{
		DocumentID: "doc-1",
		UnitID:     "unit-a",
		Year:       2026,
		Quarter:    1,
		ActorID:    "approver-1",
		Records: []ExtractedRecord{
			{KRAID: "KRA5", InitiativeID: "KRA5-KPI9", Reported: 70},
		},
	}
	if _, err := r.Record(ctx, sub); err != nil {
		t.Fatalf("record: %v", err)
	}

	_, err := r.Record(ctx, sub)
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("re-recording same document: err = %v, want ValidationError", err)
	}
}

func TestRecordRejectsMalformedSubmission(t *testing.T) {
	r, _ := testRecorder(t, kpi9Target())
	ctx := context.Background()

	cases := []Submission{
		{UnitID: "u", Year: 2026, Quarter: 1, Records: []ExtractedRecord{{KRAID: "KRA5", InitiativeID: "KRA5-KPI9"}}},
		{DocumentID: "d", Year: 2026, Quarter: 1, Records: []ExtractedRecord{{KRAID: "KRA5", InitiativeID: "KRA5-KPI9"}}},
		{DocumentID: "d", UnitID: "u", Year: 2026, Quarter: 5, Records: []ExtractedRecord{{KRAID: "KRA5", InitiativeID: "KRA5-KPI9"}}},
		{DocumentID: "d", UnitID: "u", Year: 2026, Quarter: 1},
	}
	for i, sub := range cases {
		_, err := r.Record(ctx, sub)
		var ve *engine.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: err = %v, want ValidationError", i, err)
		}
	}
}

func TestRecordNegativeCountIsHardFailure(t *testing.T) {
	target := plan.Target{
		Key:   plan.PeriodKey{KRAID: "KRA 2", InitiativeID: "KRA2-KPI3", Year: 2026, Quarter: 2},
		Value: 50,
		Type:  plan.TargetCount,
	}
	r, st := testRecorder(t, target)

	_, err := r.Record(context.Background(), Submission{
		DocumentID: "doc-1",
		UnitID:     "unit-a",
		Year:       2026,
		Quarter:    2,
		ActorID:    "approver-1",
		Records: []ExtractedRecord{
			{KRAID: "KRA 2", InitiativeID: "KRA2-KPI3", Reported: -4},
		},
	})
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	rows, listErr := st.ListContributions(context.Background(), target.Key)
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(rows) != 0 {
		t.Fatalf("rejected value was stored")
	}
}
