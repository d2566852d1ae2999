package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mucfocus/mucfocus/internal/database"
	"github.com/mucfocus/mucfocus/internal/database/models"
)

// recordResponse is the JSON response for a single conference record.
type recordResponse struct {
	ID               int64  `json:"id"`
	RoomJID          string `json:"room_jid"`
	Bridge           string `json:"bridge,omitempty"`
	ConferenceID     string `json:"conference_id,omitempty"`
	StartedAt        string `json:"started_at"`
	EndedAt          string `json:"ended_at"`
	DurationSeconds  int    `json:"duration_seconds"`
	PeakParticipants int    `json:"peak_participants"`
	Disposition      string `json:"disposition"`
}

// toRecordResponse converts a models.ConferenceRecord to the API response.
func toRecordResponse(rec *models.ConferenceRecord) recordResponse {
	return recordResponse{
		ID:               rec.ID,
		RoomJID:          rec.RoomJID,
		Bridge:           rec.Bridge,
		ConferenceID:     rec.ConferenceID,
		StartedAt:        rec.StartedAt.Format(time.RFC3339),
		EndedAt:          rec.EndedAt.Format(time.RFC3339),
		DurationSeconds:  rec.DurationSeconds,
		PeakParticipants: rec.PeakParticipants,
		Disposition:      rec.Disposition,
	}
}

// handleListRecords returns conference history with pagination and
// optional filters. Query params: limit, offset, room, disposition,
// start_date, end_date.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	q := r.URL.Query()
	disposition := q.Get("disposition")
	if disposition != "" && disposition != "completed" && disposition != "bridge-failed" {
		writeError(w, http.StatusBadRequest, "disposition must be \"completed\" or \"bridge-failed\"")
		return
	}

	filter := database.RecordListFilter{
		Limit:       pg.Limit,
		Offset:      pg.Offset,
		Room:        q.Get("room"),
		Disposition: disposition,
		StartDate:   q.Get("start_date"),
		EndDate:     q.Get("end_date"),
	}

	recs, total, err := s.records.List(r.Context(), filter)
	if err != nil {
		slog.Error("list records: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]recordResponse, len(recs))
	for i := range recs {
		items[i] = toRecordResponse(&recs[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetRecord returns a single conference record by ID.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec, err := s.records.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get record: failed to query", "error", err, "record_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}
