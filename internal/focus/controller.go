// Package focus implements the per-room conference coordinator: it
// consumes room events and inbound stanzas, drives channel allocation on
// the media bridge, fans source advertisements out between participants
// and sequences teardown. All event handling is serialized on one mutex;
// a handler runs to completion before the next event enters, and every
// outbound send is a non-blocking enqueue on the host.
package focus

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/bridge"
	"github.com/mucfocus/mucfocus/internal/colibri"
	"github.com/mucfocus/mucfocus/internal/jingle"
	"github.com/mucfocus/mucfocus/internal/stanza"
)

// FocusResource is the room resource the focus signs Jingle traffic
// with; participants address the focus as room@domain/focus.
const FocusResource = "focus"

// Conference record dispositions.
const (
	DispositionCompleted    = "completed"
	DispositionBridgeFailed = "bridge-failed"
)

// Host is the focus view of the room host: an outbound stanza stream
// plus the occupant operations the focus drives.
type Host interface {
	// Send enqueues a stanza on the component stream without blocking.
	Send(v any)
	// BroadcastMessage fans a groupchat message out to a room's
	// occupants.
	BroadcastMessage(room jid.JID, msg *stanza.Message)
	// RepublishPresence re-broadcasts an occupant's stored presence
	// stamped with the given media annotations. The streams are passed
	// in so the host never has to call back into the controller.
	RepublishPresence(room jid.JID, nick string, streams []stanza.MediaStream)
	// EvictOccupant removes an occupant whose media session ended. The
	// eviction must not fire room events back into the controller.
	EvictOccupant(room jid.JID, nick string)
}

// Recorder persists finished conference records. Implementations must
// not block the calling goroutine on storage.
type Recorder interface {
	Record(rec ConferenceRecord)
}

// ConferenceRecord summarizes one bridged conference for persistence.
type ConferenceRecord struct {
	RoomJID          string
	Bridge           string
	ConferenceID     string
	StartedAt        time.Time
	EndedAt          time.Time
	PeakParticipants int
	Disposition      string
}

// Config carries the focus behavior settings.
type Config struct {
	MinParticipants   int
	LingerTime        time.Duration
	AllocationTimeout time.Duration
	Options           colibri.Options
}

// Controller owns the room registry and runs the conference state
// machine.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	log      *slog.Logger
	host     Host
	selector *bridge.Selector
	recorder Recorder
	corr     *correlator
	rooms    map[string]*Room
}

// NewController creates a controller; BindHost must be called before the
// first event is delivered.
func NewController(cfg Config, selector *bridge.Selector, recorder Recorder) *Controller {
	if cfg.MinParticipants <= 0 {
		cfg.MinParticipants = 2
	}
	return &Controller{
		cfg:      cfg,
		log:      slog.Default().With("component", "focus"),
		selector: selector,
		recorder: recorder,
		corr:     newCorrelator(),
		rooms:    make(map[string]*Room),
	}
}

// BindHost attaches the room host the controller speaks through.
func (c *Controller) BindHost(h Host) {
	c.host = h
}

// PreJoin runs before an occupant is admitted. It announces the room
// mode the join leads to and vetoes a second session from the same real
// address with a modify/resource-constraint error.
func (c *Controller) PreJoin(room, realJID jid.JID, p *stanza.Presence) *stanza.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bare := room.Bare()
	r := c.rooms[bare.String()]
	if r != nil {
		for _, member := range r.sessionMembers() {
			if member.RealJID.Equal(realJID) {
				r.log.Warn("second session from same address rejected", "address", realJID.String())
				return stanza.NewError("modify", "resource-constraint")
			}
		}
	}

	capable := 0
	if r != nil {
		capable = r.capableCount()
	}
	if p.Conf.BridgedCapable() {
		capable++
	}
	mode := stanza.ModeP2P
	if capable >= c.cfg.MinParticipants {
		mode = stanza.ModeRelay
	}

	msg := modeMessage(bare, mode)
	c.host.BroadcastMessage(bare, msg)
	unicast := *msg
	unicast.To = realJID
	c.host.Send(&unicast)
	return nil
}

// Joined records the new occupant and, when enough capable participants
// are present, requests bridge channels for everyone still without a
// session. Joins arriving while an allocation is in flight are queued.
func (c *Controller) Joined(room jid.JID, nick string, realJID jid.JID, p *stanza.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bare := room.Bare()
	r := c.rooms[bare.String()]
	if r == nil {
		r = newRoom(bare, c.log)
		c.rooms[bare.String()] = r
		r.log.Info("room opened")
	}
	part := r.addParticipant(nick, realJID, p.Conf.BridgedCapable())
	r.log.Info("participant joined", "endpoint", nick, "bridged", part.Bridged)

	if !part.Bridged {
		return
	}
	if r.capableCount() < c.cfg.MinParticipants {
		return
	}
	r.cancelLinger()
	if r.fsm.Is(StatePending) {
		if !r.queued(nick) {
			r.pendingJoin = append(r.pendingJoin, nick)
			r.log.Info("join queued during allocation", "endpoint", nick)
		}
		return
	}
	c.allocateLocked(r, r.capableWithoutSession())
}

// Left removes an occupant: their sources are withdrawn from the other
// members, their channels expired, and the conference torn down when the
// capable count falls below the minimum.
func (c *Controller) Left(room jid.JID, nick string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.rooms[room.Bare().String()]
	if r == nil {
		return
	}
	r.log.Info("participant left", "endpoint", nick)
	c.removeParticipantLocked(r, nick, false)
}

// DecoratePresence strips stale mediastream annotations from an outgoing
// presence and re-stamps them from the authoritative msid state.
func (c *Controller) DecoratePresence(room jid.JID, nick string, p *stanza.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.MediaStreams = nil
	r := c.rooms[room.Bare().String()]
	if r == nil {
		return
	}
	part := r.participants[nick]
	if part == nil {
		return
	}
	p.MediaStreams = streamsFor(part)
}

// HandleIQ consumes bridge replies and client Jingle traffic. It reports
// whether the stanza was consumed.
func (c *Controller) HandleIQ(iq *stanza.IQ) bool {
	switch iq.Type {
	case stanza.TypeResult, stanza.TypeError:
		if c.corr.has(iq.ID) {
			c.handleBridgeReply(iq)
			return true
		}
		if iq.Conference != nil {
			c.log.Debug("stale conference reply dropped", "id", iq.ID, "from", iq.From.String())
			return true
		}
		return false
	case stanza.TypeSet:
		if iq.Jingle != nil {
			c.handleJingle(iq)
			return true
		}
	}
	return false
}

// Shutdown tears down every active conference so bridges are not left
// holding orphaned channels.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, r := range c.rooms {
		c.destroyMediaLocked(r, DispositionCompleted)
		delete(c.rooms, key)
	}
	c.log.Info("all conferences torn down")
}

// allocateLocked requests channels for the given endpoints, selecting a
// bridge first if the room has none. State moves to pending only after a
// successful build.
func (c *Controller) allocateLocked(r *Room, nicks []string) {
	if len(nicks) == 0 {
		return
	}
	if r.Bridge.Equal(jid.JID{}) {
		b, err := c.selector.Select()
		if err != nil {
			r.log.Error("bridge selection failed", "error", err)
			return
		}
		r.Bridge = b
		r.log.Info("bridge selected", "bridge", b.String())
	}
	from, err := EncodeRoomAddr(r.JID)
	if err != nil {
		r.log.Error("room address encode failed", "error", err)
		return
	}

	reqID := uuid.NewString()
	iq := colibri.BuildAllocate(reqID, r.Bridge, from, r.ConferenceID, nicks, c.cfg.Options)
	if err := r.transition(eventAllocate); err != nil {
		r.log.Error("allocate transition failed", "state", r.State(), "error", err)
		return
	}
	r.pendingRequest = reqID
	c.corr.install(reqID, r.JID, nicks, c.cfg.AllocationTimeout, c.allocationExpired)
	c.host.Send(iq)
	r.log.Info("channels requested",
		"request", reqID,
		"bridge", r.Bridge.String(),
		"conference", r.ConferenceID,
		"endpoints", nicks)
}

// allocationExpired fires when a bridge reply misses its deadline.
func (c *Controller) allocationExpired(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roomJID, _, ok := c.corr.take(id)
	if !ok {
		return
	}
	r := c.rooms[roomJID.String()]
	if r == nil {
		return
	}
	if r.pendingRequest == id {
		r.pendingRequest = ""
	}
	r.log.Warn("allocation timed out", "request", id, "bridge", r.Bridge.String())
	c.allocationFailedLocked(r)
}

// allocationFailedLocked downgrades the bridge and either reissues the
// allocation once on a fresh selection or, with live sessions that
// cannot be migrated, tears the conference down.
func (c *Controller) allocationFailedLocked(r *Room) {
	c.selector.MarkFailed(r.Bridge)

	if len(r.sessions) > 0 {
		c.destroyMediaLocked(r, DispositionBridgeFailed)
		return
	}
	if err := r.transition(eventReset); err != nil {
		r.log.Warn("reset transition failed", "error", err)
	}
	r.ConferenceID = ""
	r.Bridge = jid.JID{}
	r.pendingJoin = nil

	if r.retried {
		r.retried = false
		r.log.Error("allocation failed twice, waiting for next join")
		return
	}
	r.retried = true
	c.allocateLocked(r, r.capableWithoutSession())
}

// handleBridgeReply matches a COLIBRI reply against the correlation
// table, installs the assigned conference, initiates sessions for the
// allocated endpoints and flushes the pending-join queue.
func (c *Controller) handleBridgeReply(iq *stanza.IQ) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roomJID, nicks, ok := c.corr.take(iq.ID)
	if !ok {
		return
	}
	r := c.rooms[roomJID.String()]
	if r == nil {
		c.log.Debug("reply for closed room dropped", "id", iq.ID, "room", roomJID.String())
		return
	}
	if r.pendingRequest == iq.ID {
		r.pendingRequest = ""
	}

	if iq.Type == stanza.TypeError {
		r.log.Warn("allocation rejected by bridge",
			"request", iq.ID,
			"bridge", iq.From.String(),
			"condition", iq.Error.ConditionName())
		c.allocationFailedLocked(r)
		return
	}
	conf := iq.Conference
	if conf == nil {
		r.log.Warn("allocation reply without conference payload", "request", iq.ID)
		c.allocationFailedLocked(r)
		return
	}
	if decoded, err := DecodeRoomAddr(iq.To); err != nil || !decoded.Equal(r.JID) {
		r.log.Warn("reply address does not match room", "to", iq.To.String())
	}

	firstAssign := r.ConferenceID == ""
	if conf.ID != "" {
		r.ConferenceID = conf.ID
	}
	if err := r.transition(eventConfirm); err != nil {
		r.log.Warn("confirm transition failed", "error", err)
	}
	r.retried = false
	if firstAssign {
		r.confStarted = time.Now()
		r.log.Info("conference assigned", "conference", r.ConferenceID, "bridge", r.Bridge.String())
	}

	reply := colibri.ParseReply(conf)
	var orphaned []colibri.ChannelRef
	for _, nick := range nicks {
		alloc := reply.Endpoints[nick]
		p := r.participants[nick]
		if p == nil || !p.Bridged {
			// Left during the allocation round trip; their channels must
			// not leak.
			if alloc != nil {
				orphaned = append(orphaned, refsForAlloc(nick, alloc)...)
			}
			continue
		}
		if alloc == nil {
			r.log.Warn("no channels allocated for endpoint", "endpoint", nick)
			continue
		}

		p.Alloc = alloc
		p.Channels = make(map[string]string)
		for content, ch := range alloc.Channels {
			p.Channels[content] = ch.ID
		}
		if alloc.SCTP != nil {
			p.Channels[colibri.ContentData] = alloc.SCTP.ID
		}

		sid := uuid.NewString()
		offer := jingle.Offer{
			SID:           sid,
			Initiator:     c.focusAddr(r.JID),
			Alloc:         alloc,
			RemoteSources: r.remoteSources(nick),
			Options:       c.cfg.Options,
		}
		c.sendJingleLocked(r, p, jingle.BuildSessionInitiate(offer))
		p.SID = sid
		r.sessions[nick] = struct{}{}
		r.log.Info("session initiated", "endpoint", nick, "sid", sid)
	}
	if len(orphaned) > 0 {
		c.sendExpireLocked(r, orphaned)
	}

	if len(r.pendingJoin) > 0 {
		var queued []string
		for _, nick := range r.pendingJoin {
			p := r.participants[nick]
			if p == nil || !p.Bridged {
				continue
			}
			if _, ok := r.sessions[nick]; ok {
				continue
			}
			queued = append(queued, nick)
		}
		r.pendingJoin = nil
		if len(queued) > 0 {
			c.allocateLocked(r, queued)
		}
	}
}

// handleJingle dispatches client signalling for a tracked room.
func (c *Controller) handleJingle(iq *stanza.IQ) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := iq.Jingle
	r := c.rooms[iq.To.Bare().String()]
	if r == nil {
		c.log.Debug("jingle for unknown room dropped", "to", iq.To.String(), "action", j.Action)
		return
	}
	p := r.participantByRealJID(iq.From)
	if p == nil || p.SID == "" {
		r.log.Debug("jingle from non-session sender dropped", "from", iq.From.String(), "action", j.Action)
		return
	}

	switch j.Action {
	case stanza.ActionSessionAccept, stanza.ActionSourceAdd, stanza.ActionSourceRemove:
		c.handleSourceUpdate(r, p, iq)
	case stanza.ActionSessionInfo:
		c.handleSessionInfo(r, p, iq)
	case stanza.ActionSessionTerminate:
		c.host.Send(iq.Result())
		r.log.Info("session terminated by participant", "endpoint", p.Nick)
		c.removeParticipantLocked(r, p.Nick, true)
	default:
		c.host.Send(iq.ErrorReply("cancel", "bad-request"))
	}
}

// handleSourceUpdate applies a session-accept, source-add or
// source-remove: sender state is replaced, presence re-stamped, the
// bridge updated, and the delta fanned out to every other member.
func (c *Controller) handleSourceUpdate(r *Room, p *Participant, iq *stanza.IQ) {
	j := iq.Jingle
	if j.Action != stanza.ActionSessionAccept && !p.Accepted {
		// Nothing advertised yet, so there is nothing to add to or
		// remove from.
		c.host.Send(iq.Result())
		return
	}

	parsed := jingle.ParseContents(j.Contents)
	var fanAction string
	switch j.Action {
	case stanza.ActionSessionAccept:
		if p.Accepted {
			// Duplicate accept carries nothing new.
			c.host.Send(iq.Result())
			return
		}
		p.Accepted = true
		p.Sources = parsed.Sources
		p.MSIDs = make(map[string]*MediaState)
		recomputeMSIDs(p)
		fanAction = stanza.ActionSourceAdd
	case stanza.ActionSourceAdd:
		for content, sl := range parsed.Sources {
			p.Sources[content] = p.Sources[content].Merge(sl)
		}
		recomputeMSIDs(p)
		fanAction = stanza.ActionSourceAdd
	case stanza.ActionSourceRemove:
		if sourcesEmpty(parsed.Sources) {
			c.host.Send(iq.Result())
			return
		}
		for content, sl := range parsed.Sources {
			p.Sources[content] = p.Sources[content].Subtract(sl)
		}
		recomputeMSIDs(p)
		fanAction = stanza.ActionSourceRemove
	}

	c.host.RepublishPresence(r.JID, p.Nick, streamsFor(p))

	if r.ConferenceID != "" {
		from, err := EncodeRoomAddr(r.JID)
		if err == nil {
			c.host.Send(colibri.BuildChannelUpdate(
				uuid.NewString(), r.Bridge, from, r.ConferenceID,
				p.Nick, p.Channels, j.Contents))
		}
	}

	if !sourcesEmpty(parsed.Sources) {
		for _, member := range r.sessionMembers() {
			if member.Nick == p.Nick {
				continue
			}
			c.sendJingleLocked(r, member, jingle.BuildSourceDelta(fanAction, member.SID, parsed.Sources))
		}
	}

	c.host.Send(iq.Result())
}

// handleSessionInfo applies mute state to the sender's msids and
// republishes their presence. No signalling is fanned out; observers
// learn mute state from presence.
func (c *Controller) handleSessionInfo(r *Room, p *Participant, iq *stanza.IQ) {
	j := iq.Jingle
	var state string
	var info *stanza.MuteInfo
	switch {
	case j.Mute != nil:
		info, state = j.Mute, "muted"
	case j.Unmute != nil:
		info, state = j.Unmute, "true"
	default:
		c.host.Send(iq.Result())
		return
	}

	restrict := make(map[string]bool)
	for _, ms := range info.MediaStreams {
		restrict[ms.MSID] = true
	}
	for _, ms := range j.MediaStreams {
		restrict[ms.MSID] = true
	}

	for msid, st := range p.MSIDs {
		if len(restrict) > 0 && !restrict[msid] {
			continue
		}
		if (info.Name == "" || info.Name == jingle.MediaAudio) && st.Audio != "" {
			st.Audio = state
		}
		if (info.Name == "" || info.Name == jingle.MediaVideo) && st.Video != "" {
			st.Video = state
		}
	}

	c.host.RepublishPresence(r.JID, p.Nick, streamsFor(p))
	c.host.Send(iq.Result())
}

// removeParticipantLocked is the shared tail of room leaves and received
// session-terminates.
func (c *Controller) removeParticipantLocked(r *Room, nick string, evict bool) {
	p := r.participants[nick]
	if p == nil {
		r.dropQueued(nick)
		return
	}
	_, hadSession := r.sessions[nick]

	if hadSession && !sourcesEmpty(p.Sources) {
		for _, member := range r.sessionMembers() {
			if member.Nick == nick {
				continue
			}
			c.sendJingleLocked(r, member, jingle.BuildSourceDelta(
				stanza.ActionSourceRemove, member.SID, p.Sources))
		}
	}
	c.sendExpireLocked(r, p.channelRefs())

	r.dropParticipant(nick)
	if evict {
		c.host.EvictOccupant(r.JID, nick)
	}

	if len(r.order) == 0 {
		c.destroyMediaLocked(r, DispositionCompleted)
		delete(c.rooms, r.JID.String())
		r.log.Info("room closed")
		return
	}
	if r.capableCount() < c.cfg.MinParticipants && r.mediaActive() {
		if c.cfg.LingerTime > 0 {
			c.scheduleLingerLocked(r)
		} else {
			c.destroyMediaLocked(r, DispositionCompleted)
		}
	}
}

// scheduleLingerLocked defers teardown; the precondition is re-checked
// when the timer fires so a rejoin in the window keeps the conference.
func (c *Controller) scheduleLingerLocked(r *Room) {
	r.cancelLinger()
	roomKey := r.JID.String()
	r.log.Info("teardown deferred", "linger", c.cfg.LingerTime)
	r.lingerTimer = time.AfterFunc(c.cfg.LingerTime, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		rr := c.rooms[roomKey]
		if rr == nil {
			return
		}
		rr.lingerTimer = nil
		if rr.capableCount() >= c.cfg.MinParticipants {
			rr.log.Info("teardown cancelled, capable count recovered")
			return
		}
		c.destroyMediaLocked(rr, DispositionCompleted)
	})
}

// destroyMediaLocked tears down the room's conference: p2p announcement,
// session-terminate to every member, one conference-wide expire, then a
// clean media slate. The roster survives; only media state is cleared.
// Calling it on a room without media is a no-op, which makes teardown
// idempotent.
func (c *Controller) destroyMediaLocked(r *Room, disposition string) {
	if !r.mediaActive() {
		return
	}
	r.log.Info("tearing down conference", "conference", r.ConferenceID, "disposition", disposition)

	c.host.BroadcastMessage(r.JID, modeMessage(r.JID, stanza.ModeP2P))
	for _, member := range r.sessionMembers() {
		c.sendJingleLocked(r, member, jingle.BuildSessionTerminate(member.SID, jingle.TerminateSuccess))
	}
	c.sendExpireLocked(r, r.allChannelRefs())

	c.corr.dropRoom(r.JID)
	r.cancelLinger()
	r.pendingRequest = ""
	r.pendingJoin = nil
	r.retried = false

	if c.recorder != nil && !r.confStarted.IsZero() {
		c.recorder.Record(ConferenceRecord{
			RoomJID:          r.JID.String(),
			Bridge:           r.Bridge.String(),
			ConferenceID:     r.ConferenceID,
			StartedAt:        r.confStarted,
			EndedAt:          time.Now(),
			PeakParticipants: r.peak,
			Disposition:      disposition,
		})
	}

	for _, p := range r.participants {
		p.resetMedia()
	}
	r.sessions = make(map[string]struct{})
	r.ConferenceID = ""
	r.Bridge = jid.JID{}
	r.confStarted = time.Time{}
	r.peak = len(r.order)
	if !r.fsm.Is(StateAbsent) {
		if err := r.transition(eventTeardown); err != nil {
			r.log.Warn("teardown transition failed", "error", err)
		}
	}
}

// sendExpireLocked issues a single expire for the given channels, if the
// room still has an assigned conference to expire them from.
func (c *Controller) sendExpireLocked(r *Room, refs []colibri.ChannelRef) {
	if len(refs) == 0 || r.ConferenceID == "" || r.Bridge.Equal(jid.JID{}) {
		return
	}
	from, err := EncodeRoomAddr(r.JID)
	if err != nil {
		r.log.Error("room address encode failed", "error", err)
		return
	}
	c.host.Send(colibri.BuildExpire(uuid.NewString(), r.Bridge, from, r.ConferenceID, refs))
}

// sendJingleLocked wraps a jingle payload in a set IQ from the room's
// focus address to the participant's real address.
func (c *Controller) sendJingleLocked(r *Room, p *Participant, j *stanza.Jingle) {
	if j.Initiator == "" {
		j.Initiator = c.focusAddr(r.JID).String()
	}
	c.host.Send(&stanza.IQ{
		Type:   stanza.TypeSet,
		ID:     uuid.NewString(),
		From:   c.focusAddr(r.JID),
		To:     p.RealJID,
		Jingle: j,
	})
}

func (c *Controller) focusAddr(room jid.JID) jid.JID {
	addr, err := jid.New(room.Localpart(), room.Domainpart(), FocusResource)
	if err != nil {
		return room
	}
	return addr
}

func refsForAlloc(endpoint string, alloc *colibri.EndpointAllocation) []colibri.ChannelRef {
	var refs []colibri.ChannelRef
	for content, ch := range alloc.Channels {
		refs = append(refs, colibri.ChannelRef{Content: content, ID: ch.ID, Endpoint: endpoint})
	}
	if alloc.SCTP != nil {
		refs = append(refs, colibri.ChannelRef{
			Content:  colibri.ContentData,
			ID:       alloc.SCTP.ID,
			Endpoint: endpoint,
		})
	}
	return refs
}

func modeMessage(room jid.JID, mode string) *stanza.Message {
	return &stanza.Message{
		Type: stanza.TypeGroupchat,
		From: room,
		Conf: &stanza.Conf{Mode: mode},
	}
}

func sourcesEmpty(m map[string]jingle.SourceList) bool {
	for _, sl := range m {
		if !sl.Empty() {
			return false
		}
	}
	return true
}

// streamsFor renders a participant's msid state as presence
// annotations, sorted for stable output.
func streamsFor(p *Participant) []stanza.MediaStream {
	if len(p.MSIDs) == 0 {
		return nil
	}
	msids := make([]string, 0, len(p.MSIDs))
	for msid := range p.MSIDs {
		msids = append(msids, msid)
	}
	sort.Strings(msids)
	out := make([]stanza.MediaStream, 0, len(msids))
	for _, msid := range msids {
		st := p.MSIDs[msid]
		out = append(out, stanza.MediaStream{MSID: msid, Audio: st.Audio, Video: st.Video})
	}
	return out
}

// recomputeMSIDs rebuilds the msid map from the participant's current
// sources, preserving the mute state of media that survive.
func recomputeMSIDs(p *Participant) {
	fresh := make(map[string]*MediaState)
	for content, sl := range p.Sources {
		for _, src := range sl.Sources {
			msid := src.MSID()
			if msid == "" {
				continue
			}
			st := fresh[msid]
			if st == nil {
				st = &MediaState{}
				fresh[msid] = st
			}
			old := p.MSIDs[msid]
			switch content {
			case jingle.MediaAudio:
				st.Audio = "true"
				if old != nil && old.Audio == "muted" {
					st.Audio = "muted"
				}
			case jingle.MediaVideo:
				st.Video = "true"
				if old != nil && old.Video == "muted" {
					st.Video = "muted"
				}
			}
		}
	}
	p.MSIDs = fresh
}
