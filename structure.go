package seqroll

import (
	"slices"
)

type (
	// Structure is the whole arrangement: the timeline and the tracks.
	Structure struct {
		Timeline *TimelineMap
		tracks   []*Track
		bus      *Bus
	}

	// Cluster is a group of events sharing one real time, in milliseconds
	// from the start of the requested range.
	Cluster struct {
		Ms     float64
		Events []Event
	}

	// EventMap is a list of clusters in increasing time order.
	EventMap []Cluster
)

// degenerateMs is the span below which a single cluster without any note-on
// is considered to be nothing to play.
const degenerateMs = 10

// NewStructure returns an empty structure at 120 BPM in 4/4, 16 bars long.
func NewStructure() *Structure {
	bus := NewBus()
	tl := NewTimelineMap(120, 4, 4, 64)
	tl.bus = bus
	return &Structure{Timeline: tl, bus: bus}
}

// Bus returns the bus every notice of the structure is published on.
func (s *Structure) Bus() *Bus { return s.bus }

func (s *Structure) Tracks() []*Track { return slices.Clone(s.tracks) }

// AddTrack appends a new empty track.
func (s *Structure) AddTrack(channel int, label string) *Track {
	t := NewTrack(channel, label)
	s.InsertTrack(len(s.tracks), t)
	return t
}

// InsertTrack places t at index, clamped to the track list.
func (s *Structure) InsertTrack(index int, t *Track) {
	t.attach(s.bus)
	s.tracks = slices.Insert(s.tracks, clampInt(index, 0, len(s.tracks)), t)
	s.bus.Publish(TrackChanged{t})
}

func (s *Structure) RemoveTrack(t *Track) bool {
	i := slices.Index(s.tracks, t)
	if i < 0 {
		return false
	}
	s.tracks = slices.Delete(s.tracks, i, i+1)
	t.attach(nil)
	s.bus.Publish(TrackChanged{t})
	return true
}

func (s *Structure) BarFromBeat(beat float64) float64 { return s.Timeline.BarFromBeat(beat) }

func (s *Structure) BeatFromBarBeat(bar int, beatWithinBar float64) float64 {
	return s.Timeline.BeatFromBarBeat(bar, beatWithinBar)
}

func (s *Structure) MsFromBeat(beat float64) float64 { return s.Timeline.MsFromBeat(beat) }

func (s *Structure) SecondsFromBeat(beat float64) float64 { return s.Timeline.MsFromBeat(beat) / 1000 }

// bounds resolves a requested range; an end at or before start means the
// end marker.
func (s *Structure) bounds(start, end float64) (float64, float64) {
	start = max(start, 0)
	if end <= start {
		end = s.Timeline.End()
	}
	return start, end
}

// Events returns the events of all tracks within [start, end] at absolute
// beat-times, ordered with EventTimeComparison. Each pattern repetition
// contributes its own copy. Notes starting in [start, end) are included with
// their note-off moved to end if it would be later; parameter events
// exactly at end are included. Controller events take the channel of their
// track. An end at or before start means the end marker.
func (s *Structure) Events(start, end float64) []Event {
	start, end = s.bounds(start, end)
	var ret []Event
	for _, t := range s.tracks {
		ret = t.appendEvents(ret, start, end)
	}
	slices.SortStableFunc(ret, EventTimeComparison)
	return ret
}

// TrackEvents is like Events but only for the track t.
func (s *Structure) TrackEvents(t *Track, start, end float64) []Event {
	start, end = s.bounds(start, end)
	ret := t.appendEvents(nil, start, end)
	slices.SortStableFunc(ret, EventTimeComparison)
	return ret
}

func (t *Track) appendEvents(dst []Event, start, end float64) []Event {
	for _, p := range t.Patterns() {
		if p.start > end || p.End() < start {
			continue
		}
		evs := p.PatternEvents()
		for r := range p.repetitions {
			offset := p.start + float64(r)*p.length
			dst = appendWindow(dst, evs, offset, start, end, t.channel)
		}
	}
	return dst
}

// appendWindow adds the events of one repetition, shifted by offset, that
// fall into [start, end].
func appendWindow(dst, evs []Event, offset, start, end float64, channel uint8) []Event {
	sounding := map[uint8]int{} // pitch -> notes included and not yet released
	for _, ev := range evs {
		t := ev.Time + offset
		switch m := ev.Message.(type) {
		case NoteOn:
			if t < start || t >= end {
				continue
			}
			sounding[m.Note]++
		case NoteOff:
			if sounding[m.Note] == 0 {
				continue
			}
			sounding[m.Note]--
			t = min(t, end)
		case ControllerValue:
			if t < start || t > end {
				continue
			}
			m.Channel = channel
			ev.Message = m
		case SysexParameterValue:
			if t < start || t > end {
				continue
			}
		}
		ev.Time = t
		dst = append(dst, ev)
	}
	return dst
}

// MidiEvents returns the events within [start, end] grouped by real time in
// milliseconds, relative to start. An end at or before start means the end
// marker. If everything collapses into a single cluster shorter than 10 ms
// with no note-on in it, there is nothing worth playing and the result is
// empty.
func (s *Structure) MidiEvents(start, end float64) EventMap {
	start, end = s.bounds(start, end)
	evs := s.Events(start, end)
	if len(evs) == 0 {
		return nil
	}
	cur := s.Timeline.Cursor()
	base := cur.Ms(start)
	var ret EventMap
	for _, ev := range evs {
		ms := cur.Ms(ev.Time) - base
		if n := len(ret); n > 0 && ret[n-1].Ms == ms {
			ret[n-1].Events = append(ret[n-1].Events, ev)
			continue
		}
		ret = append(ret, Cluster{Ms: ms, Events: []Event{ev}})
	}
	if len(ret) == 1 && ret[0].Ms < degenerateMs && !ret.hasNoteOn() {
		return nil
	}
	return ret
}

func (m EventMap) hasNoteOn() bool {
	for _, c := range m {
		for _, ev := range c.Events {
			if _, ok := ev.Message.(NoteOn); ok {
				return true
			}
		}
	}
	return false
}

// Len returns the total number of events.
func (m EventMap) Len() int {
	n := 0
	for _, c := range m {
		n += len(c.Events)
	}
	return n
}
