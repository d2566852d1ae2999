package api

import (
	"net/http"

	"github.com/mucfocus/mucfocus/internal/bridge"
)

// bridgesResponse summarizes the selector's bridge table.
type bridgesResponse struct {
	Known   int           `json:"known"`
	Live    int           `json:"live"`
	Bridges []bridge.Info `json:"bridges"`
}

// handleListBridges returns every known bridge with its last reported
// stats and liveness.
func (s *Server) handleListBridges(w http.ResponseWriter, r *http.Request) {
	known, live := s.bridges.Counts()
	writeJSON(w, http.StatusOK, bridgesResponse{
		Known:   known,
		Live:    live,
		Bridges: s.bridges.Snapshot(),
	})
}
