package stanza

import "encoding/xml"

// Jingle action attribute values used by the focus.
const (
	ActionSessionInitiate  = "session-initiate"
	ActionSessionAccept    = "session-accept"
	ActionSessionInfo      = "session-info"
	ActionSessionTerminate = "session-terminate"
	ActionSourceAdd        = "source-add"
	ActionSourceRemove     = "source-remove"
)

// Jingle is the jingle element of a signalling IQ.
type Jingle struct {
	XMLName   xml.Name `xml:"urn:xmpp:jingle:1 jingle"`
	Action    string   `xml:"action,attr"`
	Initiator string   `xml:"initiator,attr,omitempty"`
	SID       string   `xml:"sid,attr"`

	Group    *Group          `xml:"urn:xmpp:jingle:apps:grouping:0 group"`
	Contents []JingleContent `xml:"content"`
	Reason   *Reason         `xml:"reason"`

	// session-info payloads
	Mute   *MuteInfo `xml:"urn:xmpp:jingle:apps:rtp:info:1 mute"`
	Unmute *MuteInfo `xml:"urn:xmpp:jingle:apps:rtp:info:1 unmute"`

	// Some senders scope a mute to streams with mediastream children on
	// the jingle element rather than on the info payload.
	MediaStreams []MediaStream `xml:"http://andyet.net/xmlns/mmuc mediastream"`
}

// JingleContent is one content block: a media description plus its
// transport.
type JingleContent struct {
	Creator string `xml:"creator,attr,omitempty"`
	Name    string `xml:"name,attr"`
	Senders string `xml:"senders,attr,omitempty"`

	Description *RTPDescription `xml:"urn:xmpp:jingle:apps:rtp:1 description"`
	Transport   *Transport      `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport"`
}

// RTPDescription is the rtp description of a content. Data contents use
// media "application" with an empty description.
type RTPDescription struct {
	Media string `xml:"media,attr,omitempty"`

	PayloadTypes []PayloadType `xml:"payload-type"`
	HdrExts      []HdrExt      `xml:"urn:xmpp:jingle:apps:rtp:rtp-hdrext:0 rtp-hdrext"`
	RTCPMux      *RTCPMux      `xml:"rtcp-mux"`
	Sources      []Source      `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 source"`
	SSRCGroups   []SSRCGroup   `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 ssrc-group"`
}

// Group is the grouping element tying bundled contents together.
type Group struct {
	Semantics string         `xml:"semantics,attr"`
	Contents  []GroupContent `xml:"content"`
}

// GroupContent names one content inside a group.
type GroupContent struct {
	Name string `xml:"name,attr"`
}

// Reason carries the termination reason of a session-terminate.
type Reason struct {
	Condition Condition `xml:",any"`
}

// NewReason builds a reason with the given defined condition, e.g.
// "success".
func NewReason(condition string) *Reason {
	return &Reason{Condition: Condition{XMLName: xml.Name{Local: condition}}}
}

// MuteInfo is the mute/unmute session-info payload. Name selects the
// medium; mediastream children narrow the mutation to specific streams.
type MuteInfo struct {
	Creator      string        `xml:"creator,attr,omitempty"`
	Name         string        `xml:"name,attr,omitempty"`
	MediaStreams []MediaStream `xml:"http://andyet.net/xmlns/mmuc mediastream"`
}
