package mission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// Fixed width so text ordering in SQLite matches time ordering.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// HistoryEntry is one row of the completed-mission log.
type HistoryEntry struct {
	ID int64 `json:"id"`
	Completed
	DurationMS    int64     `json:"duration_ms"`
	PlannedVolume float64   `json:"planned_volume"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// HistoryRepository stores and lists completed missions.
type HistoryRepository interface {
	RecordCompletedMission(ctx context.Context, c Completed) error
	List(ctx context.Context, limit int) ([]HistoryEntry, error)
	ListByValve(ctx context.Context, valveID, limit int) ([]HistoryEntry, error)
	Get(ctx context.Context, missionID string) (*HistoryEntry, error)
}

// SQLiteHistory implements HistoryRepository on the mission_history table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history repository backed by db.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// RecordCompletedMission appends c to the log. A mission without an ID
// is given one so the row stays addressable.
func (r *SQLiteHistory) RecordCompletedMission(ctx context.Context, c Completed) error {
	if c.Mission.ID == "" {
		c.Mission.ID = uuid.NewString()
	}

	missionJSON, err := json.Marshal(c.Mission)
	if err != nil {
		return fmt.Errorf("marshalling mission: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO mission_history (
			mission_id, valve_id, status, error, start_ts, end_ts,
			duration_ms, point_count, planned_volume, mission_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Mission.ID,
		c.Mission.ValveID,
		string(c.Status),
		nullableString(c.Error),
		c.StartTS.UTC().Format(timestampLayout),
		c.EndTS.UTC().Format(timestampLayout),
		c.Elapsed().Milliseconds(),
		len(c.Mission.FlowTrajectory),
		c.Mission.PlannedVolume(),
		string(missionJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting mission history: %w", err)
	}
	return nil
}

// List returns the most recently finished missions first.
// limit is clamped to [1, 500]; zero or negative selects the default of 50.
func (r *SQLiteHistory) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return r.query(ctx, `
		SELECT id, status, error, start_ts, end_ts, duration_ms, planned_volume, mission_json, created_at
		FROM mission_history
		ORDER BY end_ts DESC, id DESC
		LIMIT ?`, clampLimit(limit))
}

// ListByValve is List restricted to one valve.
func (r *SQLiteHistory) ListByValve(ctx context.Context, valveID, limit int) ([]HistoryEntry, error) {
	return r.query(ctx, `
		SELECT id, status, error, start_ts, end_ts, duration_ms, planned_volume, mission_json, created_at
		FROM mission_history
		WHERE valve_id = ?
		ORDER BY end_ts DESC, id DESC
		LIMIT ?`, valveID, clampLimit(limit))
}

// Get returns the entry for missionID or ErrHistoryNotFound.
func (r *SQLiteHistory) Get(ctx context.Context, missionID string) (*HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, error, start_ts, end_ts, duration_ms, planned_volume, mission_json, created_at
		FROM mission_history
		WHERE mission_id = ?`, missionID)

	entry, err := scanHistoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *SQLiteHistory) query(ctx context.Context, query string, args ...any) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mission history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		entry, scanErr := scanHistoryRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mission history: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryRow(row rowScanner) (*HistoryEntry, error) {
	var (
		entry                  HistoryEntry
		status, startTS, endTS string
		missionJSON, createdAt string
		errText                sql.NullString
	)
	if err := row.Scan(&entry.ID, &status, &errText, &startTS, &endTS,
		&entry.DurationMS, &entry.PlannedVolume, &missionJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning mission history: %w", err)
	}

	if err := json.Unmarshal([]byte(missionJSON), &entry.Mission); err != nil {
		return nil, fmt.Errorf("decoding mission %d: %w", entry.ID, err)
	}
	entry.Status = Status(status)
	entry.Error = errText.String

	var err error
	if entry.StartTS, err = time.Parse(time.RFC3339Nano, startTS); err != nil {
		return nil, fmt.Errorf("parsing start_ts: %w", err)
	}
	if entry.EndTS, err = time.Parse(time.RFC3339Nano, endTS); err != nil {
		return nil, fmt.Errorf("parsing end_ts: %w", err)
	}
	entry.RecordedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Column default is controlled by the migration

	return &entry, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
