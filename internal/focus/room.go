package focus

import (
	"context"
	"log/slog"
	"time"

	"github.com/looplab/fsm"
	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/colibri"
	"github.com/mucfocus/mucfocus/internal/jingle"
)

// Conference allocation states of a room.
const (
	StateAbsent   = "absent"
	StatePending  = "pending"
	StateAssigned = "assigned"
)

// Conference state machine events.
const (
	eventAllocate = "allocate"
	eventConfirm  = "confirm"
	eventReset    = "reset"
	eventTeardown = "teardown"
)

// MediaState is the advertised state of one stream per medium: "true"
// for flowing, "muted", or empty when the medium is not part of the
// stream.
type MediaState struct {
	Audio string `json:"audio,omitempty"`
	Video string `json:"video,omitempty"`
}

// Participant is the focus view of one room occupant.
type Participant struct {
	Nick    string
	RealJID jid.JID
	Bridged bool

	// Media state, populated once a session exists.
	SID      string
	Accepted bool
	Alloc    *colibri.EndpointAllocation
	Channels map[string]string
	Sources  map[string]jingle.SourceList
	MSIDs    map[string]*MediaState
}

func (p *Participant) resetMedia() {
	p.SID = ""
	p.Accepted = false
	p.Alloc = nil
	p.Channels = make(map[string]string)
	p.Sources = make(map[string]jingle.SourceList)
	p.MSIDs = make(map[string]*MediaState)
}

// channelRefs lists the participant's allocated channels for expiry.
// The map carries the SCTP connection under the data content, so one
// pass covers every medium.
func (p *Participant) channelRefs() []colibri.ChannelRef {
	var refs []colibri.ChannelRef
	for content, id := range p.Channels {
		refs = append(refs, colibri.ChannelRef{Content: content, ID: id, Endpoint: p.Nick})
	}
	return refs
}

// Room is the per-room conference record. The roster mirrors the MUC
// occupants; the media fields live and die with the bridge conference.
type Room struct {
	JID jid.JID
	log *slog.Logger
	fsm *fsm.FSM

	ConferenceID string
	Bridge       jid.JID

	order        []string
	participants map[string]*Participant
	sessions     map[string]struct{}
	pendingJoin  []string

	// pendingRequest is the id of the allocation currently in flight.
	pendingRequest string
	// retried flags that the current failure episode already reissued
	// the allocation once.
	retried bool

	lingerTimer *time.Timer
	confStarted time.Time
	peak        int
}

func newRoom(roomJID jid.JID, log *slog.Logger) *Room {
	r := &Room{
		JID:          roomJID,
		log:          log.With("room", roomJID.String()),
		participants: make(map[string]*Participant),
		sessions:     make(map[string]struct{}),
	}
	r.fsm = fsm.NewFSM(
		StateAbsent,
		fsm.Events{
			{Name: eventAllocate, Src: []string{StateAbsent, StateAssigned}, Dst: StatePending},
			{Name: eventConfirm, Src: []string{StatePending}, Dst: StateAssigned},
			{Name: eventReset, Src: []string{StatePending}, Dst: StateAbsent},
			{Name: eventTeardown, Src: []string{StatePending, StateAssigned}, Dst: StateAbsent},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				r.log.Debug("conference state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
	return r
}

// State returns the current conference allocation state.
func (r *Room) State() string {
	return r.fsm.Current()
}

func (r *Room) transition(event string) error {
	return r.fsm.Event(context.Background(), event)
}

// mediaActive reports whether there is conference state worth tearing
// down.
func (r *Room) mediaActive() bool {
	return !r.fsm.Is(StateAbsent) || len(r.sessions) > 0 || r.ConferenceID != ""
}

func (r *Room) addParticipant(nick string, realJID jid.JID, bridged bool) *Participant {
	if p, ok := r.participants[nick]; ok {
		p.RealJID = realJID
		p.Bridged = bridged
		return p
	}
	p := &Participant{Nick: nick, RealJID: realJID, Bridged: bridged}
	p.resetMedia()
	r.participants[nick] = p
	r.order = append(r.order, nick)
	if len(r.order) > r.peak {
		r.peak = len(r.order)
	}
	return p
}

func (r *Room) dropParticipant(nick string) {
	delete(r.participants, nick)
	delete(r.sessions, nick)
	for i, n := range r.order {
		if n == nick {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.dropQueued(nick)
}

func (r *Room) dropQueued(nick string) {
	for i, n := range r.pendingJoin {
		if n == nick {
			r.pendingJoin = append(r.pendingJoin[:i], r.pendingJoin[i+1:]...)
			break
		}
	}
}

func (r *Room) queued(nick string) bool {
	for _, n := range r.pendingJoin {
		if n == nick {
			return true
		}
	}
	return false
}

// participantByRealJID resolves the sender of a client stanza.
func (r *Room) participantByRealJID(real jid.JID) *Participant {
	for _, nick := range r.order {
		if p := r.participants[nick]; p.RealJID.Equal(real) {
			return p
		}
	}
	return nil
}

func (r *Room) capableCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Bridged {
			n++
		}
	}
	return n
}

// capableWithoutSession returns, in join order, the capable participants
// that have no active session yet.
func (r *Room) capableWithoutSession() []string {
	var nicks []string
	for _, nick := range r.order {
		p := r.participants[nick]
		if !p.Bridged {
			continue
		}
		if _, ok := r.sessions[nick]; ok {
			continue
		}
		nicks = append(nicks, nick)
	}
	return nicks
}

// sessionMembers returns the session holders in join order.
func (r *Room) sessionMembers() []*Participant {
	var members []*Participant
	for _, nick := range r.order {
		if _, ok := r.sessions[nick]; ok {
			members = append(members, r.participants[nick])
		}
	}
	return members
}

// remoteSources merges the advertised sources of every session member
// except the excluded one, per content.
func (r *Room) remoteSources(exclude string) map[string]jingle.SourceList {
	out := make(map[string]jingle.SourceList)
	for _, member := range r.sessionMembers() {
		if member.Nick == exclude {
			continue
		}
		for content, sl := range member.Sources {
			out[content] = out[content].Merge(sl)
		}
	}
	return out
}

// allChannelRefs lists every allocated channel in the room for a
// conference-wide expire.
func (r *Room) allChannelRefs() []colibri.ChannelRef {
	var refs []colibri.ChannelRef
	for _, nick := range r.order {
		refs = append(refs, r.participants[nick].channelRefs()...)
	}
	return refs
}

func (r *Room) cancelLinger() {
	if r.lingerTimer != nil {
		r.lingerTimer.Stop()
		r.lingerTimer = nil
	}
}
