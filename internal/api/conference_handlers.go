package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListConferences returns a summary of every occupied room.
func (s *Server) handleListConferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conferences.Conferences())
}

// handleGetConference returns the full state of one room, addressed by
// its bare JID.
func (s *Server) handleGetConference(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	detail, ok := s.conferences.Conference(room)
	if !ok {
		writeError(w, http.StatusNotFound, "conference not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
