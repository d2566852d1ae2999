package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/mucfocus/mucfocus/internal/database/models"
	"github.com/mucfocus/mucfocus/internal/focus"
)

const recorderQueueSize = 64

// Recorder folds finished conferences into the history table. The
// focus hands records over while holding its own lock, so Record never
// blocks; rows are queued and written by a background goroutine.
type Recorder struct {
	log   *slog.Logger
	repo  ConferenceRecordRepository
	queue chan models.ConferenceRecord
}

func NewRecorder(repo ConferenceRecordRepository) *Recorder {
	return &Recorder{
		log:   slog.Default().With("component", "recorder"),
		repo:  repo,
		queue: make(chan models.ConferenceRecord, recorderQueueSize),
	}
}

// Record queues one conference for persistence. When the queue is full
// the record is dropped with a warning rather than stalling the focus.
func (r *Recorder) Record(rec focus.ConferenceRecord) {
	row := models.ConferenceRecord{
		RoomJID:          rec.RoomJID,
		Bridge:           rec.Bridge,
		ConferenceID:     rec.ConferenceID,
		StartedAt:        rec.StartedAt,
		EndedAt:          rec.EndedAt,
		PeakParticipants: rec.PeakParticipants,
		Disposition:      rec.Disposition,
	}
	select {
	case r.queue <- row:
	default:
		r.log.Warn("record queue full, conference record dropped", "room", rec.RoomJID)
	}
}

// Run writes queued records until ctx is cancelled, then drains
// whatever is still pending.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case row := <-r.queue:
			r.write(row)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case row := <-r.queue:
			r.write(row)
		default:
			return
		}
	}
}

func (r *Recorder) write(row models.ConferenceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.repo.Create(ctx, &row); err != nil {
		r.log.Error("writing conference record failed", "room", row.RoomJID, "error", err)
		return
	}
	r.log.Debug("conference record written",
		"room", row.RoomJID,
		"disposition", row.Disposition,
		"duration", row.DurationSeconds)
}
