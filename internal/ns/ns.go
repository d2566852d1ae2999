// Package ns defines the XML namespace constants used on the wire.
package ns

const (
	// Component stream (XEP-0114)
	Component = "jabber:component:accept"
	Stream    = "http://etherx.jabber.org/streams"
	Stanzas   = "urn:ietf:params:xml:ns:xmpp-stanzas"

	// Service Discovery (XEP-0030)
	DiscoInfo  = "http://jabber.org/protocol/disco#info"
	DiscoItems = "http://jabber.org/protocol/disco#items"

	// Multi-User Chat (XEP-0045)
	MUC     = "http://jabber.org/protocol/muc"
	MUCUser = "http://jabber.org/protocol/muc#user"

	// Multimedia MUC extensions
	MMUC = "http://andyet.net/xmlns/mmuc"

	// Focus to bridge channel control
	COLIBRI = "http://jitsi.org/protocol/colibri"

	// Jingle (XEP-0166) and friends
	Jingle         = "urn:xmpp:jingle:1"
	JingleRTP      = "urn:xmpp:jingle:apps:rtp:1"
	JingleRTPInfo  = "urn:xmpp:jingle:apps:rtp:info:1"
	JingleHdrExt   = "urn:xmpp:jingle:apps:rtp:rtp-hdrext:0"
	JingleRTCPFB   = "urn:xmpp:jingle:apps:rtp:rtcp-fb:0"
	JingleSSMA     = "urn:xmpp:jingle:apps:rtp:ssma:0"
	JingleGrouping = "urn:xmpp:jingle:apps:grouping:0"
	JingleICEUDP   = "urn:xmpp:jingle:transports:ice-udp:1"
	JingleDTLS     = "urn:xmpp:jingle:apps:dtls:0"
	JingleSCTP     = "urn:xmpp:jingle:transports:dtls-sctp:1"

	// PubSub (XEP-0060), used for the bridge statistics feed
	PubSub      = "http://jabber.org/protocol/pubsub"
	PubSubEvent = "http://jabber.org/protocol/pubsub#event"
)
