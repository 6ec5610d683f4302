package seqroll

import (
	"slices"
)

// Pattern is a block of events placed on a track. It always has a note
// region; its parameter regions follow the automation lanes of the track,
// reconciled lazily by EnsureRegion.
type Pattern struct {
	start       float64
	length      float64
	repetitions int
	notes       *NoteRegion
	params      []*ParameterRegion
	lanes       *lanes // shared with the owning track; nil when detached
	bus         *Bus
}

// NewPattern returns an empty pattern that belongs to no track.
func NewPattern(start, length float64) *Pattern {
	return &Pattern{
		start:       max(start, 0),
		length:      max(length, MinimumLength),
		repetitions: 1,
		notes:       NewNoteRegion(),
	}
}

func (p *Pattern) Start() float64   { return p.start }
func (p *Pattern) Length() float64  { return p.length }
func (p *Pattern) Repetitions() int { return p.repetitions }

// End returns the beat where the last repetition ends.
func (p *Pattern) End() float64 { return p.start + p.length*float64(p.repetitions) }

func (p *Pattern) Notes() *NoteRegion { return p.notes }

func (p *Pattern) SetStart(beat float64) {
	p.start = max(beat, 0)
	p.bus.Publish(PatternChanged{p})
}

func (p *Pattern) SetLength(length float64) {
	p.length = max(length, MinimumLength)
	p.bus.Publish(PatternChanged{p})
}

// SetRepetitions sets how many times the pattern plays back to back; values
// below 1 are raised to 1.
func (p *Pattern) SetRepetitions(n int) {
	n = max(n, 1)
	if n == p.repetitions {
		return
	}
	p.repetitions = n
	p.bus.Publish(RepetitionsChanged{Pattern: p, Repetitions: n})
}

// Regions returns the note region followed by the parameter regions.
func (p *Pattern) Regions() []Region {
	ret := make([]Region, 0, len(p.params)+1)
	ret = append(ret, p.notes)
	for _, r := range p.params {
		ret = append(ret, r)
	}
	return ret
}

func (p *Pattern) ParameterRegions() []*ParameterRegion { return slices.Clone(p.params) }

// Region returns the parameter region of key without creating one.
func (p *Pattern) Region(key AutomationKey) (*ParameterRegion, bool) {
	for _, r := range p.params {
		if r.key == key {
			return r, true
		}
	}
	return nil, false
}

// EnsureRegion returns the parameter region of key, creating it if needed.
// The parameter regions are first brought in line with the track's lanes:
// one region per known lane in lane order, reusing existing regions, followed
// by any regions whose lane is no longer known, in their previous order.
// Nothing is ever dropped.
func (p *Pattern) EnsureRegion(key AutomationKey) *ParameterRegion {
	p.reconcile()
	if r, ok := p.Region(key); ok {
		return r
	}
	r := p.newRegion(key)
	p.params = append(p.params, r)
	return r
}

func (p *Pattern) reconcile() {
	existing := make(map[AutomationKey]*ParameterRegion, len(p.params))
	for _, r := range p.params {
		existing[r.key] = r
	}
	keys := p.lanes.list()
	ret := make([]*ParameterRegion, 0, max(len(keys), len(p.params)))
	for _, k := range keys {
		if r, ok := existing[k]; ok {
			ret = append(ret, r)
			delete(existing, k)
		} else {
			ret = append(ret, p.newRegion(k))
		}
	}
	for _, r := range p.params {
		if _, leftover := existing[r.key]; leftover {
			ret = append(ret, r)
		}
	}
	p.params = ret
}

func (p *Pattern) newRegion(key AutomationKey) *ParameterRegion {
	r := NewParameterRegion(key)
	r.bus = p.bus
	return r
}

// Clone returns a deep copy of the pattern. The copy shares the lane
// registry of the original's track but is not placed on it.
func (p *Pattern) Clone() *Pattern {
	ret := &Pattern{
		start:       p.start,
		length:      p.length,
		repetitions: p.repetitions,
		notes:       p.notes.Clone(),
		params:      make([]*ParameterRegion, len(p.params)),
		lanes:       p.lanes,
	}
	for i, r := range p.params {
		ret.params[i] = r.Clone()
	}
	return ret
}

// CopyFrom replaces the length, repetitions and all regions of p with deep
// copies of other's. The start and track of p are kept.
func (p *Pattern) CopyFrom(other *Pattern) {
	if other == p {
		return
	}
	p.length = other.length
	p.repetitions = other.repetitions
	other.notes.copyInto(p.notes)
	p.params = make([]*ParameterRegion, len(other.params))
	for i, r := range other.params {
		c := r.Clone()
		c.bus = p.bus
		p.params[i] = c
	}
	p.bus.Publish(PatternChanged{p})
}

// Events returns the events of all regions, notes first, in region order.
func (p *Pattern) Events() []*Event {
	var ret []*Event
	for _, r := range p.Regions() {
		ret = append(ret, r.Events()...)
	}
	return ret
}

// PatternEvents returns copies of the events of one repetition, clipped to
// the pattern length and ordered with EventTimeComparison.
func (p *Pattern) PatternEvents() []Event {
	var ret []Event
	for _, r := range p.Regions() {
		ret = append(ret, r.PatternEvents(p.length)...)
	}
	slices.SortStableFunc(ret, EventTimeComparison)
	return ret
}

func (p *Pattern) attach(l *lanes, bus *Bus) {
	p.lanes, p.bus = l, bus
	p.notes.bus = bus
	for _, r := range p.params {
		r.bus = bus
	}
}
