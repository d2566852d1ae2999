// Package muc hosts the multi-user rooms the focus coordinates: an
// occupant registry with presence fan-out, groupchat relay and service
// discovery. Rooms come into being on first join and vanish with their
// last occupant.
//
// Lock discipline: the service mutex is never held across a call into
// the focus hooks. The focus calls back into the host methods while
// holding its own lock, so the only lock order that ever occurs is
// focus before muc.
package muc

import (
	"log/slog"
	"sync"

	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/ns"
	"github.com/mucfocus/mucfocus/internal/stanza"
)

// Sender pushes stanzas onto the component stream.
type Sender interface {
	Send(v any)
}

// Focus receives the room lifecycle events the conference controller
// acts on. PreJoin may veto an admission by returning an error.
type Focus interface {
	PreJoin(room, real jid.JID, p *stanza.Presence) *stanza.Error
	Joined(room jid.JID, nick string, real jid.JID, p *stanza.Presence)
	Left(room jid.JID, nick string)
	DecoratePresence(room jid.JID, nick string, p *stanza.Presence)
}

// Config carries the room host settings.
type Config struct {
	// Domain is the room host address, e.g. conference.example.com.
	Domain jid.JID
	// ServiceName labels the disco#info identity.
	ServiceName string
	// Features is advertised on disco#info next to the MUC core.
	Features []string
}

type occupant struct {
	nick string
	real jid.JID
	// last is the stored join presence; replaced whole, never mutated,
	// so snapshots may share the pointer.
	last *stanza.Presence
}

// occupantView is an immutable snapshot row used outside the lock.
type occupantView struct {
	nick string
	real jid.JID
	last *stanza.Presence
}

type room struct {
	jid       jid.JID
	order     []string
	occupants map[string]*occupant
}

func (r *room) snapshot() []occupantView {
	out := make([]occupantView, 0, len(r.order))
	for _, nick := range r.order {
		if o := r.occupants[nick]; o != nil {
			out = append(out, occupantView{nick: o.nick, real: o.real, last: o.last})
		}
	}
	return out
}

func (r *room) remove(nick string) {
	delete(r.occupants, nick)
	for i, n := range r.order {
		if n == nick {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Service is the room host.
type Service struct {
	cfg    Config
	log    *slog.Logger
	sender Sender
	focus  Focus

	mu    sync.Mutex
	rooms map[string]*room
}

func NewService(cfg Config, sender Sender, focus Focus) *Service {
	return &Service{
		cfg:    cfg,
		log:    slog.Default().With("component", "muc"),
		sender: sender,
		focus:  focus,
		rooms:  make(map[string]*room),
	}
}

// HandlePresence consumes presence addressed to a room occupant slot on
// the service domain. It reports whether the stanza was consumed.
func (s *Service) HandlePresence(p *stanza.Presence) bool {
	if p.To.Localpart() == "" || p.To.Resourcepart() == "" {
		return false
	}
	if p.To.Domainpart() != s.cfg.Domain.Domainpart() {
		return false
	}
	switch p.Type {
	case "":
		s.handleJoin(p)
		return true
	case stanza.TypeUnavailable:
		s.handleLeave(p)
		return true
	case stanza.TypeError:
		// Bounced broadcast; nothing to reflect back.
		return true
	}
	return false
}

// HandleMessage relays groupchat from a joined occupant to the room.
func (s *Service) HandleMessage(m *stanza.Message) bool {
	if m.Type != stanza.TypeGroupchat || m.To.Localpart() == "" {
		return false
	}
	if m.To.Domainpart() != s.cfg.Domain.Domainpart() {
		return false
	}
	roomJID := m.To.Bare()

	s.mu.Lock()
	var from jid.JID
	var recipients []occupantView
	if r := s.rooms[roomJID.String()]; r != nil {
		recipients = r.snapshot()
		for _, o := range recipients {
			if o.real.Equal(m.From) {
				from = occupantJID(roomJID, o.nick)
				break
			}
		}
	}
	s.mu.Unlock()

	if from.Equal(jid.JID{}) {
		s.sender.Send(&stanza.Message{
			Type:  stanza.TypeError,
			From:  m.To,
			To:    m.From,
			ID:    m.ID,
			Error: stanza.NewError("modify", "not-acceptable"),
		})
		return true
	}
	for _, rcpt := range recipients {
		out := *m
		out.From = from
		out.To = rcpt.real
		s.sender.Send(&out)
	}
	return true
}

// HandleIQ answers service discovery for the domain and its rooms.
func (s *Service) HandleIQ(iq *stanza.IQ) bool {
	if iq.Type != stanza.TypeGet || iq.DiscoInfo == nil {
		return false
	}
	if iq.To.Domainpart() != s.cfg.Domain.Domainpart() {
		return false
	}

	res := iq.Result()
	query := &stanza.DiscoQuery{
		Node: iq.DiscoInfo.Node,
		Identities: []stanza.DiscoIdentity{{
			Category: "conference",
			Type:     "text",
			Name:     s.cfg.ServiceName,
		}},
		Features: []stanza.DiscoFeature{
			{Var: ns.DiscoInfo},
			{Var: ns.MUC},
		},
	}
	for _, f := range s.cfg.Features {
		query.Features = append(query.Features, stanza.DiscoFeature{Var: f})
	}
	res.DiscoInfo = query
	s.sender.Send(res)
	return true
}

func (s *Service) handleJoin(p *stanza.Presence) {
	roomJID := p.To.Bare()
	nick := p.To.Resourcepart()
	real := p.From

	s.mu.Lock()
	rejoin := false
	if r := s.rooms[roomJID.String()]; r != nil {
		if o := r.occupants[nick]; o != nil {
			if !o.real.Equal(real) {
				s.mu.Unlock()
				s.presenceError(p, stanza.NewError("cancel", "conflict"))
				return
			}
			rejoin = true
		}
	}
	s.mu.Unlock()

	if !rejoin {
		if veto := s.focus.PreJoin(roomJID, real, p); veto != nil {
			s.presenceError(p, veto)
			return
		}
	}

	stored := clonePresence(p)

	s.mu.Lock()
	r := s.rooms[roomJID.String()]
	if r == nil {
		r = &room{jid: roomJID, occupants: make(map[string]*occupant)}
		s.rooms[roomJID.String()] = r
		s.log.Info("room created", "room", roomJID.String())
	}
	if o := r.occupants[nick]; o != nil && !o.real.Equal(real) {
		// Lost the nick while the admission check ran.
		s.mu.Unlock()
		s.presenceError(p, stanza.NewError("cancel", "conflict"))
		return
	}
	o := r.occupants[nick]
	if o == nil {
		o = &occupant{nick: nick, real: real}
		r.occupants[nick] = o
		r.order = append(r.order, nick)
	}
	o.last = stored
	recipients := r.snapshot()
	s.mu.Unlock()

	if !rejoin {
		// The newcomer first learns who is already in the room.
		for _, other := range recipients {
			if other.nick == nick {
				continue
			}
			echo := broadcastPresence(roomJID, other, real, false)
			s.focus.DecoratePresence(roomJID, other.nick, echo)
			s.sender.Send(echo)
		}
	}

	self := occupantView{nick: nick, real: real, last: stored}
	for _, rcpt := range recipients {
		out := broadcastPresence(roomJID, self, rcpt.real, rcpt.nick == nick)
		s.focus.DecoratePresence(roomJID, nick, out)
		s.sender.Send(out)
	}

	if !rejoin {
		s.log.Info("occupant joined", "room", roomJID.String(), "nick", nick)
		s.focus.Joined(roomJID, nick, real, p)
	}
}

func (s *Service) handleLeave(p *stanza.Presence) {
	roomJID := p.To.Bare()
	nick := p.To.Resourcepart()

	s.mu.Lock()
	r := s.rooms[roomJID.String()]
	if r == nil {
		s.mu.Unlock()
		return
	}
	o := r.occupants[nick]
	if o == nil || !o.real.Equal(p.From) {
		s.mu.Unlock()
		return
	}
	real := o.real
	r.remove(nick)
	remaining := r.snapshot()
	if len(r.occupants) == 0 {
		delete(s.rooms, roomJID.String())
		s.log.Info("room removed", "room", roomJID.String())
	}
	s.mu.Unlock()

	s.departureBroadcast(roomJID, nick, real, remaining)
	s.log.Info("occupant left", "room", roomJID.String(), "nick", nick)
	s.focus.Left(roomJID, nick)
}

// Send implements the focus host by delegating to the component stream.
func (s *Service) Send(v any) {
	s.sender.Send(v)
}

// BroadcastMessage fans a message out to a room's occupants.
func (s *Service) BroadcastMessage(roomJID jid.JID, msg *stanza.Message) {
	s.mu.Lock()
	var recipients []occupantView
	if r := s.rooms[roomJID.String()]; r != nil {
		recipients = r.snapshot()
	}
	s.mu.Unlock()

	for _, rcpt := range recipients {
		out := *msg
		out.To = rcpt.real
		s.sender.Send(&out)
	}
}

// RepublishPresence rebroadcasts an occupant's stored presence with the
// given media annotations, and stores the annotated copy so later
// joiners see it too.
func (s *Service) RepublishPresence(roomJID jid.JID, nick string, streams []stanza.MediaStream) {
	s.mu.Lock()
	r := s.rooms[roomJID.String()]
	if r == nil {
		s.mu.Unlock()
		return
	}
	o := r.occupants[nick]
	if o == nil {
		s.mu.Unlock()
		return
	}
	stamped := clonePresence(o.last)
	stamped.MediaStreams = append([]stanza.MediaStream(nil), streams...)
	o.last = stamped
	self := occupantView{nick: o.nick, real: o.real, last: stamped}
	recipients := r.snapshot()
	s.mu.Unlock()

	for _, rcpt := range recipients {
		out := broadcastPresence(roomJID, self, rcpt.real, rcpt.nick == nick)
		s.sender.Send(out)
	}
}

// EvictOccupant force-removes an occupant whose media session ended. No
// room event fires back into the focus; the caller already accounted
// for the removal.
func (s *Service) EvictOccupant(roomJID jid.JID, nick string) {
	s.mu.Lock()
	r := s.rooms[roomJID.String()]
	if r == nil {
		s.mu.Unlock()
		return
	}
	o := r.occupants[nick]
	if o == nil {
		s.mu.Unlock()
		return
	}
	real := o.real
	r.remove(nick)
	remaining := r.snapshot()
	if len(r.occupants) == 0 {
		delete(s.rooms, roomJID.String())
		s.log.Info("room removed", "room", roomJID.String())
	}
	s.mu.Unlock()

	s.departureBroadcast(roomJID, nick, real, remaining)
	s.log.Info("occupant evicted", "room", roomJID.String(), "nick", nick)
}

// departureBroadcast sends the unavailable presence for a removed
// occupant to the remaining occupants and to the occupant themselves.
func (s *Service) departureBroadcast(roomJID jid.JID, nick string, real jid.JID, remaining []occupantView) {
	targets := append(remaining, occupantView{nick: nick, real: real})
	for _, rcpt := range targets {
		out := &stanza.Presence{
			Type: stanza.TypeUnavailable,
			From: occupantJID(roomJID, nick),
			To:   rcpt.real,
			MUCUser: &stanza.MUCUser{
				Items: []stanza.MUCItem{{Affiliation: "member", Role: "none", JID: real}},
			},
		}
		if rcpt.nick == nick {
			out.MUCUser.Statuses = []stanza.MUCStatus{{Code: stanza.StatusSelfPresence}}
		}
		s.sender.Send(out)
	}
}

func (s *Service) presenceError(p *stanza.Presence, e *stanza.Error) {
	s.sender.Send(&stanza.Presence{
		Type:  stanza.TypeError,
		From:  p.To,
		To:    p.From,
		ID:    p.ID,
		Error: e,
	})
}

// broadcastPresence builds the room's outgoing copy of an occupant's
// presence for one recipient.
func broadcastPresence(roomJID jid.JID, o occupantView, to jid.JID, self bool) *stanza.Presence {
	out := clonePresence(o.last)
	out.From = occupantJID(roomJID, o.nick)
	out.To = to
	out.ID = ""
	out.Type = ""
	out.MUC = nil
	user := &stanza.MUCUser{
		Items: []stanza.MUCItem{{Affiliation: "member", Role: "participant", JID: o.real}},
	}
	if self {
		user.Statuses = []stanza.MUCStatus{{Code: stanza.StatusSelfPresence}}
	}
	out.MUCUser = user
	return out
}

func clonePresence(p *stanza.Presence) *stanza.Presence {
	out := *p
	out.MediaStreams = append([]stanza.MediaStream(nil), p.MediaStreams...)
	return &out
}

func occupantJID(room jid.JID, nick string) jid.JID {
	j, err := jid.New(room.Localpart(), room.Domainpart(), nick)
	if err != nil {
		return room
	}
	return j
}
