package stanza

import (
	"encoding/xml"

	"mellium.im/xmpp/jid"
)

// PubSub is the pubsub element of a subscription IQ.
type PubSub struct {
	XMLName   xml.Name         `xml:"http://jabber.org/protocol/pubsub pubsub"`
	Subscribe *PubSubSubscribe `xml:"subscribe"`
}

// PubSubSubscribe requests delivery of a node's items.
type PubSubSubscribe struct {
	Node string  `xml:"node,attr"`
	JID  jid.JID `xml:"jid,attr"`
}

// PubSubEvent is the event payload of a headline message.
type PubSubEvent struct {
	XMLName xml.Name    `xml:"http://jabber.org/protocol/pubsub#event event"`
	Items   *EventItems `xml:"items"`
}

// EventItems carries the published items of one node.
type EventItems struct {
	Node  string      `xml:"node,attr,omitempty"`
	Items []EventItem `xml:"item"`
}

// EventItem is one published item; bridges publish their stats block and
// are identified by the publisher attribute.
type EventItem struct {
	ID        string       `xml:"id,attr,omitempty"`
	Publisher string       `xml:"publisher,attr,omitempty"`
	Stats     *BridgeStats `xml:"http://jitsi.org/protocol/colibri stats"`
}
