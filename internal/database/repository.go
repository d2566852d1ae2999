package database

import (
	"context"
	"time"

	"github.com/mucfocus/mucfocus/internal/database/models"
)

// RecordListFilter specifies filtering and pagination for conference
// record list queries. Zero values leave a dimension unfiltered.
type RecordListFilter struct {
	Limit       int
	Offset      int
	Room        string // exact room JID
	Disposition string // "completed", "bridge-failed", or "" for all
	StartDate   string // RFC3339 or YYYY-MM-DD, applied to started_at
	EndDate     string // RFC3339 or YYYY-MM-DD, applied to started_at
}

// ConferenceRecordRepository manages conference history rows.
type ConferenceRecordRepository interface {
	Create(ctx context.Context, rec *models.ConferenceRecord) error
	GetByID(ctx context.Context, id int64) (*models.ConferenceRecord, error)
	List(ctx context.Context, filter RecordListFilter) ([]models.ConferenceRecord, int, error)
	ListRecent(ctx context.Context, limit int) ([]models.ConferenceRecord, error)
	CountByDisposition(ctx context.Context) (map[string]int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
