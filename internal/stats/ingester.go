// Package stats ingests the bridge statistics feed: a pub/sub
// subscription on the videobridge node whose published items carry
// per-bridge load reports. Reports are folded into the selector; the
// arrival time of a report doubles as the bridge's liveness signal.
package stats

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/bridge"
	"github.com/mucfocus/mucfocus/internal/stanza"
)

// Node is the default pub/sub node bridges publish their stats on.
const Node = "videobridge"

// SubscribeDelay is the grace period between authenticating and issuing
// the subscription, so the hosts on the other side have time to come up.
const SubscribeDelay = 2 * time.Second

// Sender pushes stanzas onto the component stream.
type Sender interface {
	Send(v any)
}

// Ingester subscribes to the stats feed and folds incoming reports into
// the bridge selector.
type Ingester struct {
	log      *slog.Logger
	sender   Sender
	selector *bridge.Selector
	service  jid.JID
	from     jid.JID
	node     string
	delay    time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewIngester creates an ingester that subscribes from the given
// address to the pub/sub service. An empty node selects the default.
func NewIngester(service, from jid.JID, node string, sender Sender, selector *bridge.Selector) *Ingester {
	if node == "" {
		node = Node
	}
	return &Ingester{
		log:      slog.Default().With("component", "stats"),
		sender:   sender,
		selector: selector,
		service:  service,
		from:     from,
		node:     node,
		delay:    SubscribeDelay,
	}
}

// SubscribeSoon schedules the subscription after the grace period.
// Calling it again resets the pending timer, so a quick reconnect ends
// in a single request.
func (i *Ingester) SubscribeSoon() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timer != nil {
		i.timer.Stop()
	}
	i.timer = time.AfterFunc(i.delay, i.Subscribe)
}

// Subscribe issues the pub/sub subscription request for the stats node.
func (i *Ingester) Subscribe() {
	i.sender.Send(&stanza.IQ{
		Type: stanza.TypeSet,
		ID:   uuid.NewString(),
		From: i.from,
		To:   i.service,
		PubSub: &stanza.PubSub{
			Subscribe: &stanza.PubSubSubscribe{Node: i.node, JID: i.from},
		},
	})
	i.log.Info("stats subscription requested", "service", i.service.String(), "node", i.node)
}

// HandleMessage consumes pub/sub event notifications on the stats node.
// It reports whether the message was consumed.
func (i *Ingester) HandleMessage(m *stanza.Message) bool {
	if m.Event == nil || m.Event.Items == nil {
		return false
	}
	if m.Event.Items.Node != i.node {
		return false
	}

	for _, item := range m.Event.Items.Items {
		if item.Stats == nil {
			continue
		}
		publisher := m.From
		if item.Publisher != "" {
			if j, err := jid.Parse(item.Publisher); err == nil {
				publisher = j
			}
		}
		st := parseStats(item.Stats)
		st.Updated = time.Now()
		i.selector.Update(publisher, st)
	}
	return true
}

func parseStats(bs *stanza.BridgeStats) bridge.Stats {
	var st bridge.Stats
	for _, s := range bs.Stats {
		switch s.Name {
		case "bit_rate_upload":
			st.UploadBitrate = parseFloat(s.Value)
		case "bit_rate_download":
			st.DownloadBitrate = parseFloat(s.Value)
		case "cpu_usage":
			st.CPU = parseFloat(s.Value)
		case "participants":
			st.Participants = int(parseFloat(s.Value))
		case "current_timestamp":
			st.Clock = s.Value
		}
	}
	return st
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
