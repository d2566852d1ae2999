package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mucfocus/mucfocus/internal/database/models"
)

// recordRepo implements ConferenceRecordRepository.
type recordRepo struct {
	db *DB
}

// NewConferenceRecordRepository creates a new ConferenceRecordRepository.
func NewConferenceRecordRepository(db *DB) ConferenceRecordRepository {
	return &recordRepo{db: db}
}

// Create inserts a new conference record. DurationSeconds is derived
// from the start and end timestamps.
func (r *recordRepo) Create(ctx context.Context, rec *models.ConferenceRecord) error {
	if rec.EndedAt.After(rec.StartedAt) {
		rec.DurationSeconds = int(rec.EndedAt.Sub(rec.StartedAt).Seconds())
	} else {
		rec.DurationSeconds = 0
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO conference_records (room_jid, bridge, conference_id,
		 started_at, ended_at, duration, peak_participants, disposition)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RoomJID, rec.Bridge, rec.ConferenceID,
		rec.StartedAt, rec.EndedAt, rec.DurationSeconds,
		rec.PeakParticipants, rec.Disposition,
	)
	if err != nil {
		return fmt.Errorf("inserting conference record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetByID returns a conference record by ID, or nil when none exists.
func (r *recordRepo) GetByID(ctx context.Context, id int64) (*models.ConferenceRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, room_jid, bridge, conference_id, started_at, ended_at,
		 duration, peak_participants, disposition
		 FROM conference_records WHERE id = ?`, id,
	))
}

// List returns records matching the filter, along with the total count.
func (r *recordRepo) List(ctx context.Context, filter RecordListFilter) ([]models.ConferenceRecord, int, error) {
	where := "1=1"
	args := []any{}

	if filter.Room != "" {
		where += " AND room_jid = ?"
		args = append(args, filter.Room)
	}
	if filter.Disposition != "" {
		where += " AND disposition = ?"
		args = append(args, filter.Disposition)
	}
	if filter.StartDate != "" {
		where += " AND started_at >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND started_at <= ?"
		args = append(args, filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM conference_records WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting conference records: %w", err)
	}

	query := `SELECT id, room_jid, bridge, conference_id, started_at, ended_at,
		 duration, peak_participants, disposition
		 FROM conference_records WHERE ` + where + ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing conference records: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// ListRecent returns the most recent records up to the given limit.
func (r *recordRepo) ListRecent(ctx context.Context, limit int) ([]models.ConferenceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_jid, bridge, conference_id, started_at, ended_at,
		 duration, peak_participants, disposition
		 FROM conference_records ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent conference records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountByDisposition returns record counts grouped by disposition.
func (r *recordRepo) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT disposition, COUNT(*) FROM conference_records GROUP BY disposition`)
	if err != nil {
		return nil, fmt.Errorf("counting records by disposition: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var disposition string
		var n int64
		if err := rows.Scan(&disposition, &n); err != nil {
			return nil, fmt.Errorf("scanning disposition count: %w", err)
		}
		counts[disposition] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating disposition counts: %w", err)
	}
	return counts, nil
}

// DeleteOlderThan removes records whose conference started before the
// given time. It returns the number of rows deleted.
func (r *recordRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM conference_records WHERE started_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("deleting expired conference records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted conference records: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]models.ConferenceRecord, error) {
	var recs []models.ConferenceRecord
	for rows.Next() {
		var rec models.ConferenceRecord
		if err := rows.Scan(&rec.ID, &rec.RoomJID, &rec.Bridge, &rec.ConferenceID,
			&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds,
			&rec.PeakParticipants, &rec.Disposition); err != nil {
			return nil, fmt.Errorf("scanning conference record row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conference record rows: %w", err)
	}
	return recs, nil
}

func (r *recordRepo) scanOne(row *sql.Row) (*models.ConferenceRecord, error) {
	var rec models.ConferenceRecord
	err := row.Scan(&rec.ID, &rec.RoomJID, &rec.Bridge, &rec.ConferenceID,
		&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds,
		&rec.PeakParticipants, &rec.Disposition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conference record: %w", err)
	}
	return &rec, nil
}
