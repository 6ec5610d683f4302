package seqroll

import (
	"cmp"
	"fmt"
	"slices"
)

type (
	// Region is an ordered collection of events inside a Pattern. Event times
	// are relative to the pattern start. A Region is either a *NoteRegion or
	// a *ParameterRegion.
	Region interface {
		Events() []*Event
		PatternEvents(length float64) []Event
		Len() int
		isRegion()
	}

	// NoteRegion holds the notes of a pattern. Every NoteOn is paired with
	// exactly one NoteOff that is at least MinimumLength later.
	NoteRegion struct {
		events []*Event
		pairs  map[*Event]*Event // note-on -> note-off and note-off -> note-on
		bus    *Bus
	}

	// Note is a NoteOn/NoteOff pair of a NoteRegion.
	Note struct {
		On, Off *Event
	}
)

func (*NoteRegion) isRegion()      {}
func (*ParameterRegion) isRegion() {}

func NewNoteRegion() *NoteRegion {
	return &NoteRegion{pairs: map[*Event]*Event{}}
}

func (n Note) Start() float64  { return n.On.Time }
func (n Note) End() float64    { return n.Off.Time }
func (n Note) Length() float64 { return n.Off.Time - n.On.Time }
func (n Note) Pitch() uint8    { return n.On.Message.(NoteOn).Note }
func (n Note) Velocity() uint8 { return n.On.Message.(NoteOn).Velocity }
func (n Note) Channel() uint8  { return n.On.Message.(NoteOn).Channel }

// Len returns the number of events, i.e. twice the number of notes.
func (r *NoteRegion) Len() int { return len(r.events) }

// Events returns the events of the region in time order. The slice is a copy
// but the events are shared.
func (r *NoteRegion) Events() []*Event { return slices.Clone(r.events) }

// Contains reports whether ev belongs to the region.
func (r *NoteRegion) Contains(ev *Event) bool {
	_, ok := r.pairs[ev]
	return ok
}

// AddNote adds a note. Pitch and velocity are clamped to 0..127, channel to
// 0..15, the start to be non-negative and the length to be at least
// MinimumLength.
func (r *NoteRegion) AddNote(note, velocity, channel int, start, length float64) Note {
	n, v, c := uint8(clampInt(note, 0, 127)), uint8(clampInt(velocity, 0, 127)), uint8(clampInt(channel, 0, 15))
	start = max(start, 0)
	on := &Event{Time: start, Message: NoteOn{Note: n, Velocity: v, Channel: c}}
	off := &Event{Time: start + max(length, MinimumLength), Message: NoteOff{Note: n, Channel: c}}
	r.insert(on, off)
	r.changed()
	return Note{on, off}
}

func (r *NoteRegion) insert(on, off *Event) {
	r.pairs[on] = off
	r.pairs[off] = on
	r.events = append(r.events, on, off)
	r.sort()
}

// Off returns the note-off paired with on. It panics if on has no partner,
// which means the region has been corrupted.
func (r *NoteRegion) Off(on *Event) *Event {
	off, ok := r.pairs[on]
	if !ok {
		panic(fmt.Sprintf("seqroll: note-on %v has no note-off", on))
	}
	return off
}

// On returns the note-on paired with off. It panics if off has no partner.
func (r *NoteRegion) On(off *Event) *Event {
	on, ok := r.pairs[off]
	if !ok {
		panic(fmt.Sprintf("seqroll: note-off %v has no note-on", off))
	}
	return on
}

// Note returns the note that ev, either end of a note, belongs to.
func (r *NoteRegion) Note(ev *Event) (Note, bool) {
	other, ok := r.pairs[ev]
	if !ok {
		return Note{}, false
	}
	if _, isOn := ev.Message.(NoteOn); isOn {
		return Note{ev, other}, true
	}
	return Note{other, ev}, true
}

// Notes returns all notes ordered by start, pitch and end.
func (r *NoteRegion) Notes() []Note {
	ret := make([]Note, 0, len(r.events)/2)
	for _, ev := range r.events {
		if _, ok := ev.Message.(NoteOn); ok {
			ret = append(ret, Note{ev, r.Off(ev)})
		}
	}
	slices.SortStableFunc(ret, compareNotes)
	return ret
}

func compareNotes(a, b Note) int {
	return cmp.Or(
		cmp.Compare(a.Start(), b.Start()),
		cmp.Compare(a.Pitch(), b.Pitch()),
		cmp.Compare(a.End(), b.End()),
	)
}

// selection resolves events, given as either end of a note, to unique notes.
// Events not in the region are ignored. An empty selection means all notes.
func (r *NoteRegion) selection(events []*Event) []Note {
	if len(events) == 0 {
		return r.Notes()
	}
	seen := map[*Event]bool{}
	var ret []Note
	for _, ev := range events {
		n, ok := r.Note(ev)
		if !ok || seen[n.On] {
			continue
		}
		seen[n.On] = true
		ret = append(ret, n)
	}
	slices.SortStableFunc(ret, compareNotes)
	return ret
}

// DeleteNotes removes the notes that the events belong to. Deleting either
// end of a note deletes the whole note.
func (r *NoteRegion) DeleteNotes(events ...*Event) {
	if len(events) == 0 {
		return
	}
	gone := map[*Event]bool{}
	for _, n := range r.selection(events) {
		gone[n.On], gone[n.Off] = true, true
		delete(r.pairs, n.On)
		delete(r.pairs, n.Off)
	}
	if len(gone) == 0 {
		return
	}
	r.events = slices.DeleteFunc(r.events, func(e *Event) bool { return gone[e] })
	r.changed()
}

// MoveNotesBy transposes and shifts the selected notes. The deltas are
// clamped for the whole batch so that no note starts before 0 and all
// pitches stay within 0..127; the notes keep their relative placement.
func (r *NoteRegion) MoveNotesBy(events []*Event, dPitch int, dBeat float64) {
	notes := r.selection(events)
	if len(notes) == 0 {
		return
	}
	minStart, lo, hi := notes[0].Start(), 127, 0
	for _, n := range notes {
		minStart = min(minStart, n.Start())
		lo, hi = min(lo, int(n.Pitch())), max(hi, int(n.Pitch()))
	}
	dBeat = max(dBeat, -minStart)
	dPitch = clampInt(dPitch, -lo, 127-hi)
	for _, n := range notes {
		n.On.Time += dBeat
		n.Off.Time += dBeat
		p := uint8(int(n.Pitch()) + dPitch)
		n.On.Message = withPitch(n.On.Message, p)
		n.Off.Message = withPitch(n.Off.Message, p)
	}
	r.sort()
	r.changed()
}

func withPitch(m Message, pitch uint8) Message {
	switch v := m.(type) {
	case NoteOn:
		v.Note = pitch
		return v
	case NoteOff:
		v.Note = pitch
		return v
	}
	return m
}

func (r *NoteRegion) mustNote(ev *Event) Note {
	n, ok := r.Note(ev)
	if !ok {
		panic(fmt.Sprintf("seqroll: event %v is not a note of this region", ev))
	}
	return n
}

// SetNoteStart moves the start of the note ev belongs to. The end is pushed
// later if the note would become shorter than MinimumLength.
func (r *NoteRegion) SetNoteStart(ev *Event, t float64) {
	n := r.mustNote(ev)
	n.On.Time = max(t, 0)
	n.Off.Time = max(n.Off.Time, n.On.Time+MinimumLength)
	r.sort()
	r.changed()
}

// SetNoteEnd moves the end of the note ev belongs to. The start is pulled
// earlier if the note would become shorter than MinimumLength.
func (r *NoteRegion) SetNoteEnd(ev *Event, t float64) {
	n := r.mustNote(ev)
	t = max(t, MinimumLength)
	n.Off.Time = t
	n.On.Time = min(n.On.Time, t-MinimumLength)
	r.sort()
	r.changed()
}

// SetNoteLength sets the length of the note ev belongs to, keeping its start.
func (r *NoteRegion) SetNoteLength(ev *Event, length float64) {
	n := r.mustNote(ev)
	n.Off.Time = n.On.Time + max(length, MinimumLength)
	r.sort()
	r.changed()
}

func (r *NoteRegion) SetVelocity(ev *Event, velocity int) {
	n := r.mustNote(ev)
	on := n.On.Message.(NoteOn)
	on.Velocity = uint8(clampInt(velocity, 0, 127))
	n.On.Message = on
	r.changed()
}

// QuantizeNotes snaps the selected notes, or all notes if none are given,
// according to q. Afterwards every note is still at least MinimumLength long.
func (r *NoteRegion) QuantizeNotes(q Quantization, selection ...*Event) {
	notes := r.selection(selection)
	if len(notes) == 0 || q.Mode == 0 {
		return
	}
	for _, n := range notes {
		n.On.Time, n.Off.Time = q.apply(n.Start(), n.End())
	}
	r.sort()
	r.changed()
}

// PatternEvents returns copies of the events of one pattern repetition.
// Notes starting at or after length are dropped and note-offs past length
// are moved to length.
func (r *NoteRegion) PatternEvents(length float64) []Event {
	ret := make([]Event, 0, len(r.events))
	for _, n := range r.Notes() {
		if n.Start() >= length {
			continue
		}
		ret = append(ret, *n.On, Event{Time: min(n.End(), length), Message: n.Off.Message})
	}
	slices.SortStableFunc(ret, EventTimeComparison)
	return ret
}

// Clone returns a deep copy of the region, not attached to any bus.
func (r *NoteRegion) Clone() *NoteRegion {
	ret := NewNoteRegion()
	r.copyInto(ret)
	return ret
}

func (r *NoteRegion) copyInto(dst *NoteRegion) {
	dst.events = dst.events[:0]
	clear(dst.pairs)
	for _, n := range r.Notes() {
		on, off := *n.On, *n.Off
		dst.pairs[&on] = &off
		dst.pairs[&off] = &on
		dst.events = append(dst.events, &on, &off)
	}
	dst.sort()
}

func (r *NoteRegion) sort() {
	slices.SortStableFunc(r.events, func(a, b *Event) int {
		return cmp.Or(EventTimeComparison(*a, *b), cmp.Compare(pitchOf(a.Message), pitchOf(b.Message)))
	})
}

func pitchOf(m Message) uint8 {
	switch v := m.(type) {
	case NoteOn:
		return v.Note
	case NoteOff:
		return v.Note
	}
	return 0
}

func (r *NoteRegion) changed() { r.bus.Publish(RegionChanged{Region: r}) }
