package focus

import (
	"sort"

	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/ns"
)

// Features lists the service discovery features the focus advertises on
// its room host.
func Features() []string {
	return []string{
		ns.Jingle,
		ns.JingleICEUDP,
		ns.JingleRTP,
		ns.JingleDTLS,
		ns.MMUC,
	}
}

// ConferenceSummary is the read-only view of one tracked room.
type ConferenceSummary struct {
	Room         string `json:"room"`
	State        string `json:"state"`
	Bridge       string `json:"bridge,omitempty"`
	ConferenceID string `json:"conference_id,omitempty"`
	Participants int    `json:"participants"`
	Capable      int    `json:"capable"`
	Sessions     int    `json:"sessions"`
}

// MemberDetail is the read-only view of one room occupant.
type MemberDetail struct {
	Nick     string                `json:"nick"`
	Address  string                `json:"address"`
	Bridged  bool                  `json:"bridged"`
	Session  bool                  `json:"session"`
	Channels map[string]string     `json:"channels,omitempty"`
	Streams  map[string]MediaState `json:"streams,omitempty"`
}

// ConferenceDetail is a summary plus the member list.
type ConferenceDetail struct {
	ConferenceSummary
	Members []MemberDetail `json:"members"`
}

// RoomCount reports the number of tracked rooms.
func (c *Controller) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// ActiveConferences reports the number of rooms with live conference
// state.
func (c *Controller) ActiveConferences() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.rooms {
		if r.mediaActive() {
			n++
		}
	}
	return n
}

// ActiveSessions reports the number of Jingle sessions across all rooms.
func (c *Controller) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.rooms {
		n += len(r.sessions)
	}
	return n
}

// Occupants reports the total tracked occupant count.
func (c *Controller) Occupants() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.rooms {
		n += len(r.order)
	}
	return n
}

// PendingAllocations reports the number of bridge requests awaiting a
// reply.
func (c *Controller) PendingAllocations() int {
	return c.corr.size()
}

// Conferences returns summaries of every tracked room, sorted by room
// address.
func (c *Controller) Conferences() []ConferenceSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ConferenceSummary, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, summarize(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Conference returns the detail view of one room by bare address.
func (c *Controller) Conference(room string) (*ConferenceDetail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.rooms[room]
	if r == nil {
		return nil, false
	}
	detail := &ConferenceDetail{
		ConferenceSummary: summarize(r),
		Members:           make([]MemberDetail, 0, len(r.order)),
	}
	for _, nick := range r.order {
		p := r.participants[nick]
		_, session := r.sessions[nick]
		m := MemberDetail{
			Nick:    nick,
			Address: p.RealJID.String(),
			Bridged: p.Bridged,
			Session: session,
		}
		if len(p.Channels) > 0 {
			m.Channels = make(map[string]string, len(p.Channels))
			for content, id := range p.Channels {
				m.Channels[content] = id
			}
		}
		if len(p.MSIDs) > 0 {
			m.Streams = make(map[string]MediaState, len(p.MSIDs))
			for msid, st := range p.MSIDs {
				m.Streams[msid] = *st
			}
		}
		detail.Members = append(detail.Members, m)
	}
	return detail, true
}

func summarize(r *Room) ConferenceSummary {
	s := ConferenceSummary{
		Room:         r.JID.String(),
		State:        r.State(),
		ConferenceID: r.ConferenceID,
		Participants: len(r.order),
		Capable:      r.capableCount(),
		Sessions:     len(r.sessions),
	}
	if !r.Bridge.Equal(jid.JID{}) {
		s.Bridge = r.Bridge.String()
	}
	return s
}
