package jingle

import (
	"strings"

	"github.com/mucfocus/mucfocus/internal/stanza"
)

// SourceList is the advertised sources of one content: ssma source
// elements plus their FID groupings.
type SourceList struct {
	Sources []stanza.Source
	Groups  []stanza.SSRCGroup
}

// Empty reports whether the list carries nothing.
func (sl SourceList) Empty() bool {
	return len(sl.Sources) == 0 && len(sl.Groups) == 0
}

// Merge returns sl with more applied: a source whose ssrc is already
// present replaces the old advertisement, new sources append, and new
// groups append unless an identical group exists.
func (sl SourceList) Merge(more SourceList) SourceList {
	out := SourceList{
		Sources: append([]stanza.Source(nil), sl.Sources...),
		Groups:  append([]stanza.SSRCGroup(nil), sl.Groups...),
	}

	for _, src := range more.Sources {
		replaced := false
		if src.SSRC != "" {
			for i, have := range out.Sources {
				if have.SSRC == src.SSRC {
					out.Sources[i] = src
					replaced = true
					break
				}
			}
		}
		if !replaced {
			out.Sources = append(out.Sources, src)
		}
	}

	for _, g := range more.Groups {
		exists := false
		for _, have := range out.Groups {
			if groupKey(have) == groupKey(g) {
				exists = true
				break
			}
		}
		if !exists {
			out.Groups = append(out.Groups, g)
		}
	}
	return out
}

// Subtract returns sl without the sources named in rm (matched by ssrc)
// and without groups that reference a removed ssrc.
func (sl SourceList) Subtract(rm SourceList) SourceList {
	removed := make(map[string]bool)
	for _, src := range rm.Sources {
		if src.SSRC != "" {
			removed[src.SSRC] = true
		}
	}
	for _, g := range rm.Groups {
		for _, s := range g.Sources {
			if s.SSRC != "" {
				removed[s.SSRC] = true
			}
		}
	}

	var out SourceList
	for _, src := range sl.Sources {
		if !removed[src.SSRC] {
			out.Sources = append(out.Sources, src)
		}
	}
groups:
	for _, g := range sl.Groups {
		for _, s := range g.Sources {
			if removed[s.SSRC] {
				continue groups
			}
		}
		out.Groups = append(out.Groups, g)
	}
	return out
}

func groupKey(g stanza.SSRCGroup) string {
	var b strings.Builder
	b.WriteString(g.Semantics)
	for _, s := range g.Sources {
		b.WriteByte(' ')
		b.WriteString(s.SSRC)
	}
	return b.String()
}

// MediaSeen records which media an msid was advertised with.
type MediaSeen struct {
	Audio bool
	Video bool
}

// Parsed is the media state extracted from a participant's contents.
type Parsed struct {
	// MSIDs maps each advertised stream id to the media it carries.
	MSIDs map[string]MediaSeen
	// Sources maps content name to the advertised source list.
	Sources map[string]SourceList
}

// ParseContents extracts msid metadata and per-content source lists from
// the contents of a session-accept, source-add or source-remove.
// Application (data) contents carry no sources and are skipped.
func ParseContents(contents []stanza.JingleContent) Parsed {
	p := Parsed{
		MSIDs:   make(map[string]MediaSeen),
		Sources: make(map[string]SourceList),
	}

	for _, c := range contents {
		if c.Description == nil {
			continue
		}
		media := c.Description.Media
		if media == "" {
			media = c.Name
		}
		if media == MediaApplication {
			continue
		}
		name := c.Name
		if name == "" {
			name = media
		}

		sl := p.Sources[name]
		sl.Sources = append(sl.Sources, c.Description.Sources...)
		sl.Groups = append(sl.Groups, c.Description.SSRCGroups...)
		p.Sources[name] = sl

		for _, src := range c.Description.Sources {
			msid := src.MSID()
			if msid == "" {
				continue
			}
			seen := p.MSIDs[msid]
			switch media {
			case MediaAudio:
				seen.Audio = true
			case MediaVideo:
				seen.Video = true
			}
			p.MSIDs[msid] = seen
		}
	}
	return p
}
