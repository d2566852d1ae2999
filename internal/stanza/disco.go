package stanza

import "encoding/xml"

// DiscoQuery is a disco#info query or result.
type DiscoQuery struct {
	XMLName    xml.Name        `xml:"http://jabber.org/protocol/disco#info query"`
	Node       string          `xml:"node,attr,omitempty"`
	Identities []DiscoIdentity `xml:"identity"`
	Features   []DiscoFeature  `xml:"feature"`
}

// DiscoIdentity describes the answering entity.
type DiscoIdentity struct {
	Category string `xml:"category,attr"`
	Type     string `xml:"type,attr"`
	Name     string `xml:"name,attr,omitempty"`
}

// DiscoFeature advertises one supported namespace.
type DiscoFeature struct {
	Var string `xml:"var,attr"`
}
