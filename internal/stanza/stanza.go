// Package stanza defines the typed XMPP stanzas exchanged by the focus:
// IQ, message and presence envelopes plus the payload elements of the
// COLIBRI, Jingle, MUC and pub/sub legs. Serialization is encoding/xml;
// element namespaces are carried in the struct tags so marshaled output
// is valid inside a component stream without further rewriting.
package stanza

import (
	"encoding/xml"

	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/ns"
)

// Stanza and IQ type attribute values.
const (
	TypeGet         = "get"
	TypeSet         = "set"
	TypeResult      = "result"
	TypeError       = "error"
	TypeGroupchat   = "groupchat"
	TypeUnavailable = "unavailable"
)

// IQ is an info/query stanza. Exactly one payload pointer is non-nil on a
// well-formed stanza; unknown payloads are dropped during decoding.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	From    jid.JID  `xml:"from,attr"`
	To      jid.JID  `xml:"to,attr"`
	ID      string   `xml:"id,attr"`
	Type    string   `xml:"type,attr"`

	Conference *Conference `xml:"http://jitsi.org/protocol/colibri conference"`
	Jingle     *Jingle     `xml:"urn:xmpp:jingle:1 jingle"`
	DiscoInfo  *DiscoQuery `xml:"http://jabber.org/protocol/disco#info query"`
	PubSub     *PubSub     `xml:"http://jabber.org/protocol/pubsub pubsub"`
	Error      *Error      `xml:"error"`
}

// Result builds an empty success reply to iq.
func (iq *IQ) Result() *IQ {
	return &IQ{Type: TypeResult, ID: iq.ID, From: iq.To, To: iq.From}
}

// ErrorReply builds an error reply to iq with the given type and
// defined condition.
func (iq *IQ) ErrorReply(errType, condition string) *IQ {
	return &IQ{
		Type:  TypeError,
		ID:    iq.ID,
		From:  iq.To,
		To:    iq.From,
		Error: NewError(errType, condition),
	}
}

// Message is a message stanza. The focus consumes pub/sub event payloads
// and emits mmuc mode notifications; everything else passes through the
// room fan-out untouched.
type Message struct {
	XMLName xml.Name `xml:"message"`
	From    jid.JID  `xml:"from,attr"`
	To      jid.JID  `xml:"to,attr"`
	ID      string   `xml:"id,attr,omitempty"`
	Type    string   `xml:"type,attr,omitempty"`

	Body  string       `xml:"body,omitempty"`
	Conf  *Conf        `xml:"http://andyet.net/xmlns/mmuc conf"`
	Event *PubSubEvent `xml:"http://jabber.org/protocol/pubsub#event event"`
	Error *Error       `xml:"error"`
}

// Presence is a presence stanza restricted to the parts the focus reads
// and stamps: mmuc capability and mediastream annotations plus the MUC
// user extension added on broadcast.
type Presence struct {
	XMLName xml.Name `xml:"presence"`
	From    jid.JID  `xml:"from,attr"`
	To      jid.JID  `xml:"to,attr"`
	ID      string   `xml:"id,attr,omitempty"`
	Type    string   `xml:"type,attr,omitempty"`

	Status       string        `xml:"status,omitempty"`
	MUC          *MUCJoin      `xml:"http://jabber.org/protocol/muc x"`
	MUCUser      *MUCUser      `xml:"http://jabber.org/protocol/muc#user x"`
	Conf         *Conf         `xml:"http://andyet.net/xmlns/mmuc conf"`
	MediaStreams []MediaStream `xml:"http://andyet.net/xmlns/mmuc mediastream"`
	Error        *Error        `xml:"error"`
}

// Error is a stanza-level error element.
type Error struct {
	XMLName   xml.Name  `xml:"error"`
	Type      string    `xml:"type,attr"`
	Condition Condition `xml:",any"`
}

// Condition is a defined-condition element; only its name matters.
type Condition struct {
	XMLName xml.Name
}

// NewError builds a stanza error of the given type ("cancel", "modify",
// ...) carrying a defined condition from the xmpp-stanzas namespace.
func NewError(errType, condition string) *Error {
	return &Error{
		Type:      errType,
		Condition: Condition{XMLName: xml.Name{Space: ns.Stanzas, Local: condition}},
	}
}

// ConditionName returns the local name of the error condition, or "" if
// the error carries none.
func (e *Error) ConditionName() string {
	if e == nil {
		return ""
	}
	return e.Condition.XMLName.Local
}
