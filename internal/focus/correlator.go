package focus

import (
	"sync"
	"time"

	"mellium.im/xmpp/jid"
)

// correlator tracks outstanding bridge requests: request id to the room
// and the ordered nicknames whose channels the request allocates. Entries
// are installed at send time and removed on the first matching reply, on
// deadline expiry, or when the room's conference is torn down.
type correlator struct {
	mu      sync.Mutex
	entries map[string]*correlation
}

type correlation struct {
	room  jid.JID
	nicks []string
	timer *time.Timer
}

func newCorrelator() *correlator {
	return &correlator{entries: make(map[string]*correlation)}
}

// install registers an outstanding request. With a positive timeout,
// expired is invoked with the request id once the deadline passes and the
// entry is still installed.
func (c *correlator) install(id string, room jid.JID, nicks []string, timeout time.Duration, expired func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &correlation{room: room, nicks: append([]string(nil), nicks...)}
	if timeout > 0 && expired != nil {
		e.timer = time.AfterFunc(timeout, func() { expired(id) })
	}
	c.entries[id] = e
}

// take removes and returns the entry for a reply. Replies without an
// entry are stale; callers drop them.
func (c *correlator) take(id string) (jid.JID, []string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return jid.JID{}, nil, false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(c.entries, id)
	return e.room, e.nicks, true
}

// has reports whether a request id is outstanding.
func (c *correlator) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// dropRoom removes every entry of a room.
func (c *correlator) dropRoom(room jid.JID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		if e.room.Equal(room) {
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(c.entries, id)
		}
	}
}

// size returns the number of outstanding requests.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
