package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mucfocus/mucfocus/internal/database/models"
	"github.com/mucfocus/mucfocus/internal/focus"
)

func TestOpenAndMigrate(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Verify database file was created.
	dbPath := filepath.Join(dir, "mucfocus.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	// Verify WAL mode is active.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	// Verify all tables exist.
	tables := []string{"schema_migrations", "conference_records"}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Errorf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}

	// Verify all migrations are recorded.
	var migrationCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&migrationCount); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if migrationCount != 1 {
		t.Errorf("migration count = %d, want 1", migrationCount)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	// Open twice to verify migrations don't fail on re-run.
	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	db1.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	db2.Close()
}

func TestConferenceRecordRepository(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := NewConferenceRecordRepository(db)

	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	rec := &models.ConferenceRecord{
		RoomJID:          "garden@chat.example.com",
		Bridge:           "jvb1.example.com",
		ConferenceID:     "conf-1",
		StartedAt:        started,
		EndedAt:          started.Add(45 * time.Minute),
		PeakParticipants: 5,
		Disposition:      "completed",
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if rec.ID == 0 {
		t.Error("Create() did not assign an ID")
	}
	if rec.DurationSeconds != 2700 {
		t.Errorf("DurationSeconds = %d, want 2700", rec.DurationSeconds)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() returned nil for an existing record")
	}
	if got.RoomJID != rec.RoomJID || got.Bridge != rec.Bridge || got.ConferenceID != rec.ConferenceID {
		t.Errorf("GetByID() = %+v, want fields of %+v", got, rec)
	}
	if got.StartedAt.Unix() != started.Unix() {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.PeakParticipants != 5 || got.Disposition != "completed" {
		t.Errorf("GetByID() peak/disposition = %d/%q, want 5/completed", got.PeakParticipants, got.Disposition)
	}

	missing, err := repo.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("GetByID(missing) error: %v", err)
	}
	if missing != nil {
		t.Errorf("GetByID(missing) = %+v, want nil", missing)
	}
}

func TestConferenceRecordList(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := NewConferenceRecordRepository(db)

	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	seed := []models.ConferenceRecord{
		{RoomJID: "garden@chat.example.com", StartedAt: base, EndedAt: base.Add(time.Hour), Disposition: "completed"},
		{RoomJID: "garden@chat.example.com", StartedAt: base.Add(2 * time.Hour), EndedAt: base.Add(3 * time.Hour), Disposition: "bridge-failed"},
		{RoomJID: "lobby@chat.example.com", StartedAt: base.Add(4 * time.Hour), EndedAt: base.Add(5 * time.Hour), Disposition: "completed"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create(%d) error: %v", i, err)
		}
	}

	all, total, err := repo.List(ctx, RecordListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("List() = %d rows, total %d, want 3/3", len(all), total)
	}
	// Newest first.
	if all[0].RoomJID != "lobby@chat.example.com" {
		t.Errorf("List()[0].RoomJID = %q, want the newest record", all[0].RoomJID)
	}

	garden, total, err := repo.List(ctx, RecordListFilter{Room: "garden@chat.example.com", Limit: 10})
	if err != nil {
		t.Fatalf("List(room) error: %v", err)
	}
	if total != 2 || len(garden) != 2 {
		t.Errorf("List(room) = %d rows, total %d, want 2/2", len(garden), total)
	}

	failed, total, err := repo.List(ctx, RecordListFilter{Disposition: "bridge-failed", Limit: 10})
	if err != nil {
		t.Fatalf("List(disposition) error: %v", err)
	}
	if total != 1 || len(failed) != 1 {
		t.Fatalf("List(disposition) = %d rows, total %d, want 1/1", len(failed), total)
	}
	if failed[0].RoomJID != "garden@chat.example.com" {
		t.Errorf("List(disposition)[0].RoomJID = %q, want garden@chat.example.com", failed[0].RoomJID)
	}

	page, total, err := repo.List(ctx, RecordListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List(page) error: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Errorf("List(page) = %d rows, total %d, want 2 rows of 3", len(page), total)
	}

	// Date bounds apply to started_at.
	none, total, err := repo.List(ctx, RecordListFilter{EndDate: "2020-01-01", Limit: 10})
	if err != nil {
		t.Fatalf("List(end date) error: %v", err)
	}
	if total != 0 || len(none) != 0 {
		t.Errorf("List(end date) = %d rows, total %d, want none", len(none), total)
	}
	since, _, err := repo.List(ctx, RecordListFilter{StartDate: "2020-01-01", Limit: 10})
	if err != nil {
		t.Fatalf("List(start date) error: %v", err)
	}
	if len(since) != 3 {
		t.Errorf("List(start date) = %d rows, want 3", len(since))
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent() = %d rows, want 2", len(recent))
	}
	if recent[0].RoomJID != "lobby@chat.example.com" {
		t.Errorf("ListRecent()[0].RoomJID = %q, want the newest record", recent[0].RoomJID)
	}

	counts, err := repo.CountByDisposition(ctx)
	if err != nil {
		t.Fatalf("CountByDisposition() error: %v", err)
	}
	if counts["completed"] != 2 || counts["bridge-failed"] != 1 {
		t.Errorf("CountByDisposition() = %v, want completed:2 bridge-failed:1", counts)
	}
}

func TestRecorderWritesInBackground(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	repo := NewConferenceRecordRepository(db)
	rec := NewRecorder(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rec.Record(focus.ConferenceRecord{
		RoomJID:          "garden@chat.example.com",
		Bridge:           "jvb1.example.com",
		ConferenceID:     "conf-7",
		StartedAt:        started,
		EndedAt:          started.Add(10 * time.Minute),
		PeakParticipants: 3,
		Disposition:      "completed",
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, err := repo.ListRecent(context.Background(), 1)
		if err != nil {
			t.Fatalf("ListRecent() error: %v", err)
		}
		if len(rows) == 1 {
			got := rows[0]
			if got.ConferenceID != "conf-7" || got.PeakParticipants != 3 {
				t.Errorf("stored record = %+v, want conf-7 with peak 3", got)
			}
			if got.DurationSeconds != 600 {
				t.Errorf("DurationSeconds = %d, want 600", got.DurationSeconds)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("record never reached the database")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
	repo := NewConferenceRecordRepository(db)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, started := range []time.Time{base, base.Add(24 * time.Hour), base.Add(48 * time.Hour)} {
		rec := models.ConferenceRecord{
			RoomJID:     "garden@chat.example.com",
			StartedAt:   started,
			EndedAt:     started.Add(time.Hour),
			Disposition: "completed",
		}
		if err := repo.Create(context.Background(), &rec); err != nil {
			t.Fatalf("seeding record %d: %v", i, err)
		}
	}

	n, err := repo.DeleteOlderThan(context.Background(), base.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	rows, err := repo.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("remaining = %d, want 1", len(rows))
	}
	if !rows[0].StartedAt.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("survivor started at %s, want the newest record", rows[0].StartedAt)
	}
}

func TestCleanupTickerPrunes(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
	repo := NewConferenceRecordRepository(db)

	old := models.ConferenceRecord{
		RoomJID:     "garden@chat.example.com",
		StartedAt:   time.Now().Add(-time.Hour),
		EndedAt:     time.Now().Add(-30 * time.Minute),
		Disposition: "completed",
	}
	if err := repo.Create(context.Background(), &old); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartCleanupTicker(ctx, repo, time.Minute, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, err := repo.ListRecent(context.Background(), 1)
		if err != nil {
			t.Fatalf("ListRecent() error: %v", err)
		}
		if len(rows) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("expired record never pruned")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCleanupTickerDisabled(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
	repo := NewConferenceRecordRepository(db)

	old := models.ConferenceRecord{
		RoomJID:     "garden@chat.example.com",
		StartedAt:   time.Now().Add(-time.Hour),
		EndedAt:     time.Now().Add(-30 * time.Minute),
		Disposition: "completed",
	}
	if err := repo.Create(context.Background(), &old); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartCleanupTicker(ctx, repo, 0, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	rows, err := repo.ListRecent(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(rows) != 1 {
		t.Error("zero retention must keep records forever")
	}
}
