package stanza

import "encoding/xml"

// Conference is the COLIBRI conference element sent between focus and
// bridge. An empty ID requests creation; replies echo the bridge-assigned
// id, which all later updates must carry.
type Conference struct {
	XMLName  xml.Name  `xml:"http://jitsi.org/protocol/colibri conference"`
	ID       string    `xml:"id,attr,omitempty"`
	Contents []Content `xml:"content"`

	// ChannelBundles appear in replies when bundling: one shared
	// transport per endpoint.
	ChannelBundles []ChannelBundle `xml:"channel-bundle"`
}

// Content groups the channels of one medium (audio, video, data).
type Content struct {
	Name            string           `xml:"name,attr"`
	Channels        []Channel        `xml:"channel"`
	SctpConnections []SctpConnection `xml:"sctpconnection"`
}

// Channel is one bridge-side RTP channel. Ids are assigned by the bridge;
// requests for new channels carry only the endpoint.
type Channel struct {
	ID              string `xml:"id,attr,omitempty"`
	Endpoint        string `xml:"endpoint,attr,omitempty"`
	Initiator       bool   `xml:"initiator,attr,omitempty"`
	ChannelBundleID string `xml:"channel-bundle-id,attr,omitempty"`
	Direction       string `xml:"direction,attr,omitempty"`

	// Expire is a string so that the meaningful value "0" survives
	// marshaling; empty means unset.
	Expire string `xml:"expire,attr,omitempty"`

	PayloadTypes []PayloadType `xml:"payload-type"`
	HdrExts      []HdrExt      `xml:"rtp-hdrext"`
	RTCPMux      *RTCPMux      `xml:"rtcp-mux"`
	Transport    *Transport    `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport"`
	Sources      []Source      `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 source"`
	SSRCGroups   []SSRCGroup   `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 ssrc-group"`
}

// SctpConnection is the data-channel analog of a Channel.
type SctpConnection struct {
	ID        string     `xml:"id,attr,omitempty"`
	Endpoint  string     `xml:"endpoint,attr,omitempty"`
	Initiator bool       `xml:"initiator,attr,omitempty"`
	Port      int        `xml:"port,attr,omitempty"`
	Expire    string     `xml:"expire,attr,omitempty"`
	Transport *Transport `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport"`
}

// ChannelBundle carries the shared transport of one endpoint in a
// bundled conference reply.
type ChannelBundle struct {
	ID        string     `xml:"id,attr"`
	Transport *Transport `xml:"urn:xmpp:jingle:transports:ice-udp:1 transport"`
}

// BridgeStats is the statistics block a bridge publishes on the stats
// feed, reusing the COLIBRI namespace.
type BridgeStats struct {
	XMLName xml.Name `xml:"http://jitsi.org/protocol/colibri stats"`
	Stats   []Stat   `xml:"stat"`
}

// Stat is a single named statistic.
type Stat struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}
