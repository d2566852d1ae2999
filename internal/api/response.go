package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// defaultLimit is the page size when the query does not specify one.
const defaultLimit = 20

// maxLimit caps the page size regardless of what the query asks for.
const maxLimit = 100

// pagination carries validated limit/offset query values.
type pagination struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps list results with paging metadata.
type PaginatedResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePagination reads limit and offset query parameters. It returns a
// user-facing error message on invalid input, empty string on success.
func parsePagination(r *http.Request) (pagination, string) {
	p := pagination{Limit: defaultLimit}
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, "limit must be a positive integer"
		}
		if n > maxLimit {
			n = maxLimit
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, "offset must be a non-negative integer"
		}
		p.Offset = n
	}
	return p, ""
}
