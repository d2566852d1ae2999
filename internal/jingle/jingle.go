// Package jingle builds the signalling payloads the focus sends to
// participants and parses the media state participants send back.
// Builders are pure functions over typed inputs; the controller wraps
// their output in IQ envelopes.
package jingle

import (
	"sort"

	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/colibri"
	"github.com/mucfocus/mucfocus/internal/stanza"
)

// Media names on the client leg.
const (
	MediaAudio       = "audio"
	MediaVideo       = "video"
	MediaApplication = "application"
)

// Grouping semantics.
const (
	SemanticsBundle = "BUNDLE"
	SemanticsFID    = "FID"
)

// TerminateSuccess is the reason condition for an orderly close.
const TerminateSuccess = "success"

// Offer carries everything a session-initiate is composed from: the
// endpoint's bridge allocation, the other members' advertised sources,
// and the feature toggles.
type Offer struct {
	SID       string
	Initiator jid.JID
	Alloc     *colibri.EndpointAllocation

	// RemoteSources maps content name to the cumulative sources of every
	// other session member. The offer target's own sources must not
	// appear here.
	RemoteSources map[string]SourceList

	Options colibri.Options
}

// BuildSessionInitiate composes the fixed-codec offer for one endpoint.
func BuildSessionInitiate(o Offer) *stanza.Jingle {
	j := &stanza.Jingle{
		Action:    stanza.ActionSessionInitiate,
		Initiator: o.Initiator.String(),
		SID:       o.SID,
	}

	j.Contents = append(j.Contents,
		mediaContent(MediaAudio, o),
		mediaContent(MediaVideo, o),
	)
	if o.Options.UseDataChannels && o.Alloc != nil && o.Alloc.SCTP != nil {
		j.Contents = append(j.Contents, dataContent(o))
	}

	if o.Options.UseBundle {
		group := &stanza.Group{Semantics: SemanticsBundle}
		for _, c := range j.Contents {
			group.Contents = append(group.Contents, stanza.GroupContent{Name: c.Name})
		}
		j.Group = group
	}
	return j
}

func mediaContent(media string, o Offer) stanza.JingleContent {
	desc := &stanza.RTPDescription{Media: media, RTCPMux: &stanza.RTCPMux{}}
	switch media {
	case MediaAudio:
		desc.PayloadTypes = AudioPayloadTypes()
		desc.HdrExts = AudioHdrExts()
	case MediaVideo:
		desc.PayloadTypes = VideoPayloadTypes(o.Options.UseRTX)
		desc.HdrExts = VideoHdrExts()
	}

	remote := o.RemoteSources[media]
	desc.Sources = remote.Sources
	desc.SSRCGroups = remote.Groups

	var tr *stanza.Transport
	if o.Alloc != nil {
		tr = o.Alloc.Transport(media)
	}
	return stanza.JingleContent{
		Creator:     "initiator",
		Name:        media,
		Description: desc,
		Transport:   offerTransport(tr, false),
	}
}

func dataContent(o Offer) stanza.JingleContent {
	return stanza.JingleContent{
		Creator:     "initiator",
		Name:        colibri.ContentData,
		Description: &stanza.RTPDescription{Media: MediaApplication},
		Transport:   offerTransport(o.Alloc.Transport(colibri.ContentData), true),
	}
}

// offerTransport copies a bridge transport for the offer, forcing the
// DTLS role to actpass so the client picks its role, and declaring the
// SCTP association on data transports.
func offerTransport(t *stanza.Transport, data bool) *stanza.Transport {
	out := &stanza.Transport{}
	if t != nil {
		copied := *t
		out = &copied
		out.Fingerprints = make([]stanza.Fingerprint, len(t.Fingerprints))
		for i, fp := range t.Fingerprints {
			fp.Setup = "actpass"
			out.Fingerprints[i] = fp
		}
	}
	if data && len(out.SctpMaps) == 0 {
		out.SctpMaps = []stanza.SctpMap{{
			Number:   colibri.SctpPort,
			Protocol: "webrtc-datachannel",
			Streams:  1024,
		}}
	}
	return out
}

// BuildSourceDelta composes a source-add or source-remove carrying just
// the given delta. Content order is sorted by name so fan-out inside one
// turn is stable.
func BuildSourceDelta(action, sid string, delta map[string]SourceList) *stanza.Jingle {
	j := &stanza.Jingle{Action: action, SID: sid}

	names := make([]string, 0, len(delta))
	for name := range delta {
		if delta[name].Empty() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sl := delta[name]
		j.Contents = append(j.Contents, stanza.JingleContent{
			Creator: "initiator",
			Name:    name,
			Description: &stanza.RTPDescription{
				Media:      name,
				Sources:    sl.Sources,
				SSRCGroups: sl.Groups,
			},
		})
	}
	return j
}

// BuildSessionTerminate composes a terminate with the given reason
// condition.
func BuildSessionTerminate(sid, reason string) *stanza.Jingle {
	return &stanza.Jingle{
		Action: stanza.ActionSessionTerminate,
		SID:    sid,
		Reason: stanza.NewReason(reason),
	}
}
