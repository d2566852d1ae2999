package models

import "time"

// ConferenceRecord is one row of conference history: a single media
// lifetime of a room, from the first bridge allocation to teardown. A
// room that goes quiet and later fills up again produces a new record.
type ConferenceRecord struct {
	ID               int64
	RoomJID          string
	Bridge           string
	ConferenceID     string
	StartedAt        time.Time
	EndedAt          time.Time
	DurationSeconds  int
	PeakParticipants int
	Disposition      string // "completed" | "bridge-failed"
}
