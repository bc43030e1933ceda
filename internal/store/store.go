// Package store persists contributions, rollups, and overrides in SQLite.
//
// The contributions table is an append-only log: no UPDATE or DELETE
// statements touch it, corrections happen by superseding documents.
// Rollups are a materialized projection guarded by an optimistic version
// column; overrides shadow rollups on read and live in their own table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"stratrack/internal/plan"
)

// ErrConflict reports that a rollup write lost an optimistic concurrency
// race; callers retry the read-all-then-write sequence.
var ErrConflict = errors.New("rollup version conflict")

// ErrDuplicate reports that a contribution for the same document and
// activity already exists.
var ErrDuplicate = errors.New("contribution already recorded for this document and activity")

// Store manages engine state in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// ContributionRow is one stored contribution. Seq is assigned by SQLite
// on insert and is the tie-break half of the latest-wins ordering key.
type ContributionRow struct {
	Seq              int64
	ID               string
	Key              plan.PeriodKey
	UnitID           string
	SourceDocumentID string
	Value            float64
	Valid            bool
	Label            string
	TargetType       string
	Flagged          bool
	CreatedAt        time.Time
}

// RollupRow is the materialized projection for one period key.
type RollupRow struct {
	Key                plan.PeriodKey
	CombinedValue      float64
	SubmissionCount    int
	TargetValue        float64
	TargetType         string
	AchievementPercent float64
	Status             string
	LatestLabel        string
	LastUpdated        time.Time
	Version            int64
}

// OverrideRow is an administrative override shadowing a computed rollup.
type OverrideRow struct {
	Key       plan.PeriodKey
	Value     float64
	Reason    string
	Actor     string
	CreatedAt time.Time
}

// Open opens or creates the engine state database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	store := &Store{
		DBPath: absPath,
		db:     db,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS contributions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	kra_id TEXT NOT NULL,
	initiative_id TEXT NOT NULL,
	year INTEGER NOT NULL,
	quarter INTEGER NOT NULL,
	unit_id TEXT NOT NULL,
	source_document_id TEXT NOT NULL,
	value REAL NOT NULL,
	valid INTEGER NOT NULL DEFAULT 1,
	label TEXT NOT NULL DEFAULT '',
	target_type TEXT NOT NULL,
	flagged INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contributions_period
	ON contributions(kra_id, initiative_id, year, quarter, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_doc_activity
	ON contributions(source_document_id, initiative_id, year, quarter, unit_id);

CREATE TABLE IF NOT EXISTS rollups (
	kra_id TEXT NOT NULL,
	initiative_id TEXT NOT NULL,
	year INTEGER NOT NULL,
	quarter INTEGER NOT NULL,
	combined_value REAL NOT NULL,
	submission_count INTEGER NOT NULL,
	target_value REAL NOT NULL,
	target_type TEXT NOT NULL,
	achievement_percent REAL NOT NULL,
	status TEXT NOT NULL,
	latest_label TEXT NOT NULL DEFAULT '',
	last_updated TEXT NOT NULL,
	version INTEGER NOT NULL,
	PRIMARY KEY (kra_id, initiative_id, year, quarter)
);

CREATE TABLE IF NOT EXISTS overrides (
	kra_id TEXT NOT NULL,
	initiative_id TEXT NOT NULL,
	year INTEGER NOT NULL,
	quarter INTEGER NOT NULL,
	value REAL NOT NULL,
	reason TEXT NOT NULL,
	actor TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (kra_id, initiative_id, year, quarter)
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

// InsertContributions appends a batch of contributions atomically. If any
// row duplicates an existing (document, activity) pair the whole batch is
// rolled back with ErrDuplicate. Assigned ids and sequence numbers are
// written back into rows.
func (s *Store) InsertContributions(ctx context.Context, rows []*ContributionRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO contributions
				(id, kra_id, initiative_id, year, quarter, unit_id,
				 source_document_id, value, valid, label, target_type, flagged, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			row.ID, row.Key.KRAID, row.Key.InitiativeID, row.Key.Year, row.Key.Quarter,
			row.UnitID, row.SourceDocumentID, row.Value, boolToInt(row.Valid),
			row.Label, row.TargetType, boolToInt(row.Flagged),
			row.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				return fmt.Errorf("%s %s: %w", row.SourceDocumentID, row.Key, ErrDuplicate)
			}
			return fmt.Errorf("insert contribution: %w", execErr)
		}
		seq, seqErr := res.LastInsertId()
		if seqErr != nil {
			return fmt.Errorf("contribution sequence: %w", seqErr)
		}
		row.Seq = seq
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contributions: %w", err)
	}
	return nil
}

// ListContributions returns every contribution for a period key ordered
// by (created_at, seq).
func (s *Store) ListContributions(ctx context.Context, key plan.PeriodKey) ([]ContributionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kra_id, initiative_id, year, quarter, unit_id,
		       source_document_id, value, valid, label, target_type, flagged, created_at
		FROM contributions
		WHERE kra_id = ? AND initiative_id = ? AND year = ? AND quarter = ?
		ORDER BY created_at ASC, seq ASC
	`, key.KRAID, key.InitiativeID, key.Year, key.Quarter)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()

	var out []ContributionRow
	for rows.Next() {
		var row ContributionRow
		var valid, flagged int
		var createdAt string
		if err := rows.Scan(
			&row.Seq, &row.ID, &row.Key.KRAID, &row.Key.InitiativeID,
			&row.Key.Year, &row.Key.Quarter, &row.UnitID, &row.SourceDocumentID,
			&row.Value, &valid, &row.Label, &row.TargetType, &flagged, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		row.Valid = valid != 0
		row.Flagged = flagged != 0
		// created_at is the latest-wins ordering key; a row that no
		// longer parses must surface, not sort as the zero time.
		row.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse contribution created_at: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}

// ListPeriodKeys returns the distinct period keys present in the
// contribution log, in deterministic order. Reconciliation sweeps use it
// to reach keys whose target appeared after contributions did.
func (s *Store) ListPeriodKeys(ctx context.Context) ([]plan.PeriodKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT kra_id, initiative_id, year, quarter
		FROM contributions
		ORDER BY kra_id, initiative_id, year, quarter
	`)
	if err != nil {
		return nil, fmt.Errorf("query period keys: %w", err)
	}
	defer rows.Close()

	var keys []plan.PeriodKey
	for rows.Next() {
		var key plan.PeriodKey
		if err := rows.Scan(&key.KRAID, &key.InitiativeID, &key.Year, &key.Quarter); err != nil {
			return nil, fmt.Errorf("scan period key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate period keys: %w", err)
	}
	return keys, nil
}

// GetRollup returns the stored rollup row for a key, or nil if none has
// been materialized yet.
func (s *Store) GetRollup(ctx context.Context, key plan.PeriodKey) (*RollupRow, error) {
	var row RollupRow
	var lastUpdated string
	err := s.db.QueryRowContext(ctx, `
		SELECT kra_id, initiative_id, year, quarter, combined_value,
		       submission_count, target_value, target_type, achievement_percent,
		       status, latest_label, last_updated, version
		FROM rollups
		WHERE kra_id = ? AND initiative_id = ? AND year = ? AND quarter = ?
	`, key.KRAID, key.InitiativeID, key.Year, key.Quarter).Scan(
		&row.Key.KRAID, &row.Key.InitiativeID, &row.Key.Year, &row.Key.Quarter,
		&row.CombinedValue, &row.SubmissionCount, &row.TargetValue, &row.TargetType,
		&row.AchievementPercent, &row.Status, &row.LatestLabel, &lastUpdated, &row.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rollup: %w", err)
	}
	row.LastUpdated, err = time.Parse(time.RFC3339Nano, lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("parse rollup last_updated: %w", err)
	}
	return &row, nil
}

// UpsertRollup writes a rollup row guarded by an optimistic version
// check. expectedVersion 0 means the caller observed no existing row; the
// stored version becomes expectedVersion+1. A losing writer gets
// ErrConflict and must re-read before retrying.
func (s *Store) UpsertRollup(ctx context.Context, row RollupRow, expectedVersion int64) error {
	lastUpdated := row.LastUpdated.UTC().Format(time.RFC3339Nano)

	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO rollups
				(kra_id, initiative_id, year, quarter, combined_value,
				 submission_count, target_value, target_type, achievement_percent,
				 status, latest_label, last_updated, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(kra_id, initiative_id, year, quarter) DO NOTHING
		`,
			row.Key.KRAID, row.Key.InitiativeID, row.Key.Year, row.Key.Quarter,
			row.CombinedValue, row.SubmissionCount, row.TargetValue, row.TargetType,
			row.AchievementPercent, row.Status, row.LatestLabel, lastUpdated,
		)
		if err != nil {
			return fmt.Errorf("insert rollup: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert rollup: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%s: %w", row.Key, ErrConflict)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE rollups
		SET combined_value = ?,
		    submission_count = ?,
		    target_value = ?,
		    target_type = ?,
		    achievement_percent = ?,
		    status = ?,
		    latest_label = ?,
		    last_updated = ?,
		    version = version + 1
		WHERE kra_id = ? AND initiative_id = ? AND year = ? AND quarter = ?
		  AND version = ?
	`,
		row.CombinedValue, row.SubmissionCount, row.TargetValue, row.TargetType,
		row.AchievementPercent, row.Status, row.LatestLabel, lastUpdated,
		row.Key.KRAID, row.Key.InitiativeID, row.Key.Year, row.Key.Quarter,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update rollup: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rollup: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", row.Key, ErrConflict)
	}
	return nil
}

// SetOverride stores or replaces the administrative override for a key.
// Computed rollup columns are never touched.
func (s *Store) SetOverride(ctx context.Context, row OverrideRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO overrides
			(kra_id, initiative_id, year, quarter, value, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.Key.KRAID, row.Key.InitiativeID, row.Key.Year, row.Key.Quarter,
		row.Value, row.Reason, row.Actor, row.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set override: %w", err)
	}
	return nil
}

// GetOverride returns the override for a key, or nil if none is set.
func (s *Store) GetOverride(ctx context.Context, key plan.PeriodKey) (*OverrideRow, error) {
	var row OverrideRow
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT kra_id, initiative_id, year, quarter, value, reason, actor, created_at
		FROM overrides
		WHERE kra_id = ? AND initiative_id = ? AND year = ? AND quarter = ?
	`, key.KRAID, key.InitiativeID, key.Year, key.Quarter).Scan(
		&row.Key.KRAID, &row.Key.InitiativeID, &row.Key.Year, &row.Key.Quarter,
		&row.Value, &row.Reason, &row.Actor, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	row.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse override created_at: %w", err)
	}
	return &row, nil
}

// ClearOverride removes the override for a key. Clearing an absent
// override is a no-op.
func (s *Store) ClearOverride(ctx context.Context, key plan.PeriodKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM overrides
		WHERE kra_id = ? AND initiative_id = ? AND year = ? AND quarter = ?
	`, key.KRAID, key.InitiativeID, key.Year, key.Quarter)
	if err != nil {
		return fmt.Errorf("clear override: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
