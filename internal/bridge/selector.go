// Package bridge tracks per-bridge statistics from the stats feed and
// picks the bridge for new conferences.
package bridge

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mellium.im/xmpp/jid"
)

// ErrNoBridge is returned when no bridge is live and no default bridge
// is configured.
var ErrNoBridge = errors.New("no live bridge and no default bridge configured")

// Stats is the last reported load of one bridge.
type Stats struct {
	UploadBitrate   float64 `json:"upload_bitrate"`
	DownloadBitrate float64 `json:"download_bitrate"`
	CPU             float64 `json:"cpu"`
	Participants    int     `json:"participants"`

	// Clock is the publisher-supplied wall clock string, kept verbatim.
	Clock string `json:"clock,omitempty"`
	// Updated is the local arrival time of the report; staleness is
	// judged against it.
	Updated time.Time `json:"updated"`
}

func (s Stats) load() float64 {
	return s.UploadBitrate + s.DownloadBitrate
}

// Info is one selector table row, used by the admin surface.
type Info struct {
	JID   string `json:"jid"`
	Live  bool   `json:"live"`
	Stats Stats  `json:"stats"`
}

// Selector holds the bridge stats table. A bridge is live while its last
// report is younger than the liveness window; selection prefers the
// least-loaded live bridge and falls back to the configured default.
type Selector struct {
	mu       sync.RWMutex
	log      *slog.Logger
	window   time.Duration
	fallback jid.JID
	bridges  map[string]Stats
}

// NewSelector creates a selector with the given default bridge and
// liveness window.
func NewSelector(fallback jid.JID, window time.Duration) *Selector {
	return &Selector{
		log:      slog.Default().With("component", "bridge"),
		window:   window,
		fallback: fallback,
		bridges:  make(map[string]Stats),
	}
}

// Update records a stats report for a bridge.
func (s *Selector) Update(bridge jid.JID, st Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridges[bridge.String()] = st
	s.log.Debug("bridge stats updated",
		"bridge", bridge.String(),
		"upload", st.UploadBitrate,
		"download", st.DownloadBitrate,
		"participants", st.Participants)
}

// MarkFailed ages a bridge's stats out so it cannot win selection again
// until a fresh report arrives.
func (s *Selector) MarkFailed(bridge jid.JID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.bridges[bridge.String()]
	if !ok {
		return
	}
	st.Updated = time.Time{}
	s.bridges[bridge.String()] = st
	s.log.Warn("bridge marked failed", "bridge", bridge.String())
}

// Select picks the live bridge with the lowest upload+download load,
// breaking ties by participant count and then lexicographic id. With no
// live bridge the configured default is returned; without one, ErrNoBridge.
func (s *Selector) Select() (jid.JID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	best := ""
	var bestStats Stats
	for id, st := range s.bridges {
		if !s.live(st, now) {
			continue
		}
		if best == "" || better(id, st, best, bestStats) {
			best, bestStats = id, st
		}
	}
	if best != "" {
		j, err := jid.Parse(best)
		if err == nil {
			return j, nil
		}
		s.log.Warn("stored bridge id unparseable", "bridge", best, "error", err)
	}

	if s.fallback.Equal(jid.JID{}) {
		return jid.JID{}, ErrNoBridge
	}
	return s.fallback, nil
}

func better(id string, st Stats, bestID string, best Stats) bool {
	if st.load() != best.load() {
		return st.load() < best.load()
	}
	if st.Participants != best.Participants {
		return st.Participants < best.Participants
	}
	return id < bestID
}

func (s *Selector) live(st Stats, now time.Time) bool {
	return !st.Updated.IsZero() && now.Sub(st.Updated) < s.window
}

// Counts returns the number of known and currently live bridges.
func (s *Selector) Counts() (known, live int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for _, st := range s.bridges {
		known++
		if s.live(st, now) {
			live++
		}
	}
	return known, live
}

// Snapshot returns the stats table sorted by bridge id.
func (s *Selector) Snapshot() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()

	out := make([]Info, 0, len(s.bridges))
	for id, st := range s.bridges {
		out = append(out, Info{JID: id, Live: s.live(st, now), Stats: st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}
