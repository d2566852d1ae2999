package jingle

import "github.com/mucfocus/mucfocus/internal/stanza"

// The offer ships a fixed codec set; clients that honor the list pick
// from it and no renegotiation happens. Treat these tables as
// configuration, not negotiation state.

// RTXPayloadID is the payload type bound to VP8 retransmission when rtx
// is enabled.
const (
	VP8PayloadID = 100
	RTXPayloadID = 96
)

// AudioPayloadTypes returns the audio payload types of the fixed offer.
func AudioPayloadTypes() []stanza.PayloadType {
	return []stanza.PayloadType{
		{ID: 111, Name: "opus", Clockrate: 48000, Channels: 2, Parameters: []stanza.Parameter{
			{Name: "minptime", Value: "10"},
		}},
		{ID: 103, Name: "ISAC", Clockrate: 16000},
		{ID: 104, Name: "ISAC", Clockrate: 32000},
		{ID: 9, Name: "G722", Clockrate: 8000},
		{ID: 0, Name: "PCMU", Clockrate: 8000},
		{ID: 8, Name: "PCMA", Clockrate: 8000},
	}
}

// VideoPayloadTypes returns the video payload types of the fixed offer.
// With rtx enabled a retransmission payload type referencing VP8 is
// appended.
func VideoPayloadTypes(rtx bool) []stanza.PayloadType {
	pts := []stanza.PayloadType{
		{ID: VP8PayloadID, Name: "VP8", Clockrate: 90000, Feedback: []stanza.RTCPFeedback{
			{Type: "ccm", Subtype: "fir"},
			{Type: "nack"},
			{Type: "nack", Subtype: "pli"},
			{Type: "goog-remb"},
		}},
	}
	if rtx {
		pts = append(pts, stanza.PayloadType{
			ID: RTXPayloadID, Name: "rtx", Clockrate: 90000,
			Parameters: []stanza.Parameter{{Name: "apt", Value: "100"}},
		})
	}
	return pts
}

// AudioHdrExts returns the RTP header extensions offered for audio.
func AudioHdrExts() []stanza.HdrExt {
	return []stanza.HdrExt{
		{ID: 1, URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level"},
	}
}

// VideoHdrExts returns the RTP header extensions offered for video.
func VideoHdrExts() []stanza.HdrExt {
	return []stanza.HdrExt{
		{ID: 2, URI: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"},
	}
}
