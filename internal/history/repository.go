package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hamonitor/internal/monitor"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// SQLiteRepository stores poll history in the polls and offline_sightings
// tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository using db. The schema must have
// been migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record stores the summary of a snapshot and, for known snapshots, one
// sighting per offline device and entity.
func (r *SQLiteRepository) Record(ctx context.Context, snap *monitor.Snapshot) error {
	if snap == nil {
		return nil
	}

	deviceIDs := make([]string, 0, len(snap.Offline.Devices))
	for _, d := range snap.Offline.Devices {
		deviceIDs = append(deviceIDs, d.DeviceID)
	}
	entityIDs := make([]string, 0, len(snap.Offline.Entities))
	for _, e := range snap.Offline.Entities {
		entityIDs = append(entityIDs, e.EntityID)
	}
	devicesJSON, err := json.Marshal(deviceIDs)
	if err != nil {
		return fmt.Errorf("marshalling device ids: %w", err)
	}
	entitiesJSON, err := json.Marshal(entityIDs)
	if err != nil {
		return fmt.Errorf("marshalling entity ids: %w", err)
	}

	sum := snap.Summary()
	takenAt := snap.TakenAt.UnixNano()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO polls (id, seq, taken_at, known, error,
			offline_devices, offline_entities, core_updates, other_updates, low_balances,
			device_ids, entity_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, int64(snap.Seq), takenAt, boolToInt(snap.Known), nullString(snap.Error),
		sum.OfflineDevices, sum.OfflineEntities, sum.CoreUpdates, sum.OtherUpdates, sum.LowBalances,
		string(devicesJSON), string(entitiesJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting poll: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO offline_sightings (poll_id, kind, item_id, name, seen_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing sighting insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range snap.Offline.Devices {
		if _, err := stmt.ExecContext(ctx, snap.ID, string(KindDevice), d.DeviceID, d.Name, takenAt); err != nil {
			return fmt.Errorf("inserting device sighting: %w", err)
		}
	}
	for _, e := range snap.Offline.Entities {
		if _, err := stmt.ExecContext(ctx, snap.ID, string(KindEntity), e.EntityID, e.Name, takenAt); err != nil {
			return fmt.Errorf("inserting entity sighting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing poll: %w", err)
	}
	return nil
}

// Recent returns the latest polls, newest first.
//
// Parameters:
//   - limit: Maximum rows (default 50, max 500)
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]PollRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, taken_at, known, COALESCE(error, ''),
			offline_devices, offline_entities, core_updates, other_updates, low_balances,
			device_ids, entity_ids
		 FROM polls
		 ORDER BY taken_at DESC, seq DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying polls: %w", err)
	}
	defer rows.Close()

	out := make([]PollRecord, 0, limit)
	for rows.Next() {
		var (
			rec                   PollRecord
			seq, takenAt          int64
			known                 int
			devicesJSON, entsJSON string
		)
		if err := rows.Scan(&rec.ID, &seq, &takenAt, &known, &rec.Error,
			&rec.OfflineDevices, &rec.OfflineEntities, &rec.CoreUpdates, &rec.OtherUpdates, &rec.LowBalances,
			&devicesJSON, &entsJSON); err != nil {
			return nil, fmt.Errorf("scanning poll: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.TakenAt = time.Unix(0, takenAt).UTC()
		rec.Known = known != 0
		if err := json.Unmarshal([]byte(devicesJSON), &rec.DeviceIDs); err != nil {
			return nil, fmt.Errorf("unmarshalling device ids: %w", err)
		}
		if err := json.Unmarshal([]byte(entsJSON), &rec.EntityIDs); err != nil {
			return nil, fmt.Errorf("unmarshalling entity ids: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating polls: %w", err)
	}
	return out, nil
}

// FirstSeenOffline returns when the current offline run of an item began:
// the earliest sighting after the latest known poll that did not see it.
// ErrNotFound means it is not offline in the latest known poll, or was never
// seen offline within the retained window.
func (r *SQLiteRepository) FirstSeenOffline(ctx context.Context, kind Kind, itemID string) (time.Time, error) {
	if !kind.Valid() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	var first sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(s.seen_at) FROM offline_sightings s
		 WHERE s.kind = ? AND s.item_id = ?
		   AND s.seen_at > COALESCE((
			SELECT MAX(p.taken_at) FROM polls p
			WHERE p.known = 1 AND NOT EXISTS (
				SELECT 1 FROM offline_sightings x
				WHERE x.poll_id = p.id AND x.kind = ? AND x.item_id = ?)
		   ), -1)`,
		string(kind), itemID, string(kind), itemID,
	).Scan(&first)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("querying sightings: %w", err)
	}
	if !first.Valid {
		return time.Time{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, itemID)
	}
	return time.Unix(0, first.Int64).UTC(), nil
}

// Prune deletes polls (and their sightings) taken before now minus olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := now.Add(-olderThan).UnixNano()
	res, err := r.db.ExecContext(ctx, "DELETE FROM polls WHERE taken_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting polls: %w", err)
	}
	// Sightings go with their poll through ON DELETE CASCADE when foreign
	// keys are enabled; clear stragglers either way.
	if _, err := r.db.ExecContext(ctx, "DELETE FROM offline_sightings WHERE seen_at < ?", cutoff); err != nil {
		return 0, fmt.Errorf("deleting sightings: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
