package stanza

// RTP building blocks shared by the COLIBRI and Jingle payloads. The
// structs carry no XMLName so the embedding field decides the element
// namespace: plain tags inherit the parent namespace on the wire,
// namespaced tags force an xmlns attribute.

// PayloadType describes one RTP payload type of a media description or
// channel.
type PayloadType struct {
	ID         int            `xml:"id,attr"`
	Name       string         `xml:"name,attr,omitempty"`
	Clockrate  int            `xml:"clockrate,attr,omitempty"`
	Channels   int            `xml:"channels,attr,omitempty"`
	Parameters []Parameter    `xml:"parameter"`
	Feedback   []RTCPFeedback `xml:"urn:xmpp:jingle:apps:rtp:rtcp-fb:0 rtcp-fb"`
}

// Parameter is a name/value pair under a payload type or source element.
type Parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr,omitempty"`
}

// RTCPFeedback is an rtcp-fb element of a payload type.
type RTCPFeedback struct {
	Type    string `xml:"type,attr"`
	Subtype string `xml:"subtype,attr,omitempty"`
}

// HdrExt is an rtp-hdrext element mapping an extension URI to an id.
type HdrExt struct {
	ID  int    `xml:"id,attr"`
	URI string `xml:"uri,attr"`
}

// RTCPMux marks rtcp-mux support; presence of the element is the signal.
type RTCPMux struct{}

// Source is an ssma source advertisement. Parameters commonly carry
// cname and msid.
type Source struct {
	SSRC       string      `xml:"ssrc,attr,omitempty"`
	Parameters []Parameter `xml:"parameter"`
}

// MSID returns the stream identifier advertised by the source: the first
// whitespace-separated token of its msid parameter, or "".
func (s Source) MSID() string {
	for _, p := range s.Parameters {
		if p.Name != "msid" {
			continue
		}
		v := p.Value
		for i := 0; i < len(v); i++ {
			if v[i] == ' ' || v[i] == '\t' {
				return v[:i]
			}
		}
		return v
	}
	return ""
}

// SSRCGroup is an ssma ssrc-group element; FID semantics pair a media
// source with its repair (rtx) source.
type SSRCGroup struct {
	Semantics string        `xml:"semantics,attr"`
	Sources   []GroupSource `xml:"source"`
}

// GroupSource is a bare source reference inside an ssrc-group.
type GroupSource struct {
	SSRC string `xml:"ssrc,attr"`
}

// Transport is an ice-udp transport element, including the DTLS
// fingerprints and, for data channels, the sctpmap.
type Transport struct {
	Ufrag        string        `xml:"ufrag,attr,omitempty"`
	Pwd          string        `xml:"pwd,attr,omitempty"`
	Fingerprints []Fingerprint `xml:"urn:xmpp:jingle:apps:dtls:0 fingerprint"`
	Candidates   []Candidate   `xml:"candidate"`
	SctpMaps     []SctpMap     `xml:"urn:xmpp:jingle:transports:dtls-sctp:1 sctpmap"`
}

// Fingerprint is a DTLS fingerprint with its negotiation role.
type Fingerprint struct {
	Hash  string `xml:"hash,attr"`
	Setup string `xml:"setup,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Candidate is an ICE candidate of a transport.
type Candidate struct {
	Component  int    `xml:"component,attr"`
	Foundation string `xml:"foundation,attr"`
	Generation int    `xml:"generation,attr"`
	ID         string `xml:"id,attr,omitempty"`
	IP         string `xml:"ip,attr"`
	Network    int    `xml:"network,attr,omitempty"`
	Port       int    `xml:"port,attr"`
	Priority   uint32 `xml:"priority,attr"`
	Protocol   string `xml:"protocol,attr"`
	Type       string `xml:"type,attr"`
	RelAddr    string `xml:"rel-addr,attr,omitempty"`
	RelPort    int    `xml:"rel-port,attr,omitempty"`
}

// SctpMap declares an SCTP association on a transport.
type SctpMap struct {
	Number   int    `xml:"number,attr"`
	Protocol string `xml:"protocol,attr"`
	Streams  int    `xml:"streams,attr,omitempty"`
}
