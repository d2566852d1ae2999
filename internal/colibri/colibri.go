// Package colibri builds the conference control stanzas the focus sends
// to a media bridge and parses the bridge's replies. Builders are pure;
// they never touch room state, so a failed build leaves nothing to roll
// back.
package colibri

import (
	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/stanza"
)

// Content names used on the bridge leg.
const (
	ContentAudio = "audio"
	ContentVideo = "video"
	ContentData  = "data"
)

// SctpPort is the fixed SCTP port requested for data channels.
const SctpPort = 5000

// Options mirror the focus feature toggles that shape bridge requests.
type Options struct {
	UseBundle       bool
	UseDataChannels bool
	UseRTX          bool
}

// BuildAllocate builds a conference create or update that requests
// audio/video channels (and SCTP connections when data channels are on)
// for every endpoint, in order. An empty confID asks the bridge to create
// a new conference; otherwise the request extends the existing one.
func BuildAllocate(reqID string, bridge, from jid.JID, confID string, endpoints []string, opts Options) *stanza.IQ {
	conf := &stanza.Conference{ID: confID}

	audio := stanza.Content{Name: ContentAudio}
	video := stanza.Content{Name: ContentVideo}
	for _, ep := range endpoints {
		ch := stanza.Channel{Endpoint: ep, Initiator: true}
		if opts.UseBundle {
			ch.ChannelBundleID = ep
		}
		audio.Channels = append(audio.Channels, ch)
		video.Channels = append(video.Channels, ch)
	}
	conf.Contents = []stanza.Content{audio, video}

	if opts.UseDataChannels {
		data := stanza.Content{Name: ContentData}
		for _, ep := range endpoints {
			data.SctpConnections = append(data.SctpConnections, stanza.SctpConnection{
				Endpoint:  ep,
				Initiator: true,
				Port:      SctpPort,
			})
		}
		conf.Contents = append(conf.Contents, data)
	}

	return &stanza.IQ{
		Type:       stanza.TypeSet,
		ID:         reqID,
		From:       from,
		To:         bridge,
		Conference: conf,
	}
}

// BuildChannelUpdate translates a participant's Jingle contents into a
// conference update for their already-allocated channels: payload types,
// transport, header extensions, rtcp-mux and source groups. Contents
// without a matching channel id are skipped; data contents update the
// SCTP connection under its bridge-assigned id.
func BuildChannelUpdate(reqID string, bridge, from jid.JID, confID, endpoint string, channels map[string]string, contents []stanza.JingleContent) *stanza.IQ {
	conf := &stanza.Conference{ID: confID}

	for _, jc := range contents {
		name := jc.Name
		if jc.Description != nil && jc.Description.Media == "application" {
			name = ContentData
		}
		if name == ContentData {
			id := channels[ContentData]
			if id == "" {
				continue
			}
			sc := stanza.SctpConnection{
				ID:        id,
				Endpoint:  endpoint,
				Port:      SctpPort,
				Transport: jc.Transport,
			}
			conf.Contents = append(conf.Contents, stanza.Content{
				Name:            ContentData,
				SctpConnections: []stanza.SctpConnection{sc},
			})
			continue
		}

		id, ok := channels[name]
		if !ok || jc.Description == nil {
			continue
		}
		ch := stanza.Channel{
			ID:           id,
			Endpoint:     endpoint,
			PayloadTypes: jc.Description.PayloadTypes,
			HdrExts:      jc.Description.HdrExts,
			RTCPMux:      jc.Description.RTCPMux,
			Transport:    jc.Transport,
			Sources:      jc.Description.Sources,
			SSRCGroups:   jc.Description.SSRCGroups,
		}
		conf.Contents = append(conf.Contents, stanza.Content{
			Name:     name,
			Channels: []stanza.Channel{ch},
		})
	}

	return &stanza.IQ{
		Type:       stanza.TypeSet,
		ID:         reqID,
		From:       from,
		To:         bridge,
		Conference: conf,
	}
}

// ChannelRef names one allocated channel for expiry.
type ChannelRef struct {
	Content  string
	ID       string
	Endpoint string
}

// BuildExpire builds a minimal update that expires the given channels.
func BuildExpire(reqID string, bridge, from jid.JID, confID string, refs []ChannelRef) *stanza.IQ {
	conf := &stanza.Conference{ID: confID}
	byContent := make(map[string]int)

	for _, ref := range refs {
		idx, ok := byContent[ref.Content]
		if !ok {
			conf.Contents = append(conf.Contents, stanza.Content{Name: ref.Content})
			idx = len(conf.Contents) - 1
			byContent[ref.Content] = idx
		}
		if ref.Content == ContentData {
			conf.Contents[idx].SctpConnections = append(conf.Contents[idx].SctpConnections, stanza.SctpConnection{
				ID:       ref.ID,
				Endpoint: ref.Endpoint,
				Expire:   "0",
			})
			continue
		}
		conf.Contents[idx].Channels = append(conf.Contents[idx].Channels, stanza.Channel{
			ID:     ref.ID,
			Expire: "0",
		})
	}

	return &stanza.IQ{
		Type:       stanza.TypeSet,
		ID:         reqID,
		From:       from,
		To:         bridge,
		Conference: conf,
	}
}

// EndpointAllocation is a reply's worth of bridge resources for one
// endpoint.
type EndpointAllocation struct {
	Channels        map[string]stanza.Channel
	SCTP            *stanza.SctpConnection
	BundleTransport *stanza.Transport
}

// Transport returns the transport to advertise for a content: the
// channel's own, or the endpoint's bundle transport when the channel
// carries none.
func (a *EndpointAllocation) Transport(content string) *stanza.Transport {
	if ch, ok := a.Channels[content]; ok && ch.Transport != nil {
		return ch.Transport
	}
	if content == ContentData && a.SCTP != nil && a.SCTP.Transport != nil {
		return a.SCTP.Transport
	}
	return a.BundleTransport
}

// Reply is a parsed conference result grouped by endpoint.
type Reply struct {
	ID        string
	Endpoints map[string]*EndpointAllocation
}

// ParseReply groups a conference reply's channels, SCTP connections and
// channel bundles by endpoint. Channels without an endpoint attribute are
// ignored; the focus cannot attribute them.
func ParseReply(conf *stanza.Conference) *Reply {
	r := &Reply{ID: conf.ID, Endpoints: make(map[string]*EndpointAllocation)}

	alloc := func(ep string) *EndpointAllocation {
		a, ok := r.Endpoints[ep]
		if !ok {
			a = &EndpointAllocation{Channels: make(map[string]stanza.Channel)}
			r.Endpoints[ep] = a
		}
		return a
	}

	for _, content := range conf.Contents {
		for _, ch := range content.Channels {
			if ch.Endpoint == "" {
				continue
			}
			alloc(ch.Endpoint).Channels[content.Name] = ch
		}
		for _, sc := range content.SctpConnections {
			if sc.Endpoint == "" {
				continue
			}
			c := sc
			alloc(sc.Endpoint).SCTP = &c
		}
	}
	for _, cb := range conf.ChannelBundles {
		if cb.ID == "" || cb.Transport == nil {
			continue
		}
		alloc(cb.ID).BundleTransport = cb.Transport
	}
	return r
}
