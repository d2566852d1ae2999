package stanza

import "mellium.im/xmpp/jid"

// MUC status codes stamped on broadcast presence.
const (
	// StatusSelfPresence marks the presence a room reflects back to the
	// occupant it describes.
	StatusSelfPresence = 110
)

// MUCJoin is the bare muc x element a client includes when joining.
type MUCJoin struct{}

// MUCUser is the muc#user x element added to broadcast presence.
type MUCUser struct {
	Items    []MUCItem   `xml:"item"`
	Statuses []MUCStatus `xml:"status"`
}

// MUCItem describes the occupant a broadcast presence is about.
type MUCItem struct {
	Affiliation string  `xml:"affiliation,attr,omitempty"`
	Role        string  `xml:"role,attr,omitempty"`
	JID         jid.JID `xml:"jid,attr"`
}

// MUCStatus is a numeric status code on a muc#user element.
type MUCStatus struct {
	Code int `xml:"code,attr"`
}

// Conf is the mmuc conf element. On a join presence the bridged attribute
// is the capability probe; on a groupchat message the mode attribute
// announces relay or p2p operation.
type Conf struct {
	Bridged string `xml:"bridged,attr,omitempty"`
	Mode    string `xml:"mode,attr,omitempty"`
}

// BridgedCapable reports whether the capability probe opts in to bridged
// media.
func (c *Conf) BridgedCapable() bool {
	if c == nil {
		return false
	}
	return c.Bridged == "1" || c.Bridged == "true"
}

// MediaStream is the mmuc mediastream annotation: one advertised stream
// with its per-medium mute state ("true" active, "muted", or absent).
type MediaStream struct {
	MSID  string `xml:"msid,attr"`
	Audio string `xml:"audio,attr,omitempty"`
	Video string `xml:"video,attr,omitempty"`
}

// Room operation modes announced over mmuc conf messages.
const (
	ModeRelay = "relay"
	ModeP2P   = "p2p"
)
