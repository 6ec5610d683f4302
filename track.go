package seqroll

import (
	"cmp"
	"slices"
)

type (
	// Track is a MIDI channel worth of patterns. Its automation lanes are
	// the authoritative list of parameter regions its patterns should have.
	Track struct {
		channel  uint8
		label    string
		patterns []*Pattern
		lanes    *lanes
		bus      *Bus
	}

	// lanes is the automation lane registry of a track. Patterns hold a
	// pointer to it instead of a pointer to the track.
	lanes struct {
		keys []AutomationKey
	}
)

func (l *lanes) list() []AutomationKey {
	if l == nil {
		return nil
	}
	return slices.Clone(l.keys)
}

// NewTrack returns a track that is not part of any Structure.
func NewTrack(channel int, label string) *Track {
	return &Track{channel: uint8(clampInt(channel, 0, 15)), label: label, lanes: &lanes{}}
}

func (t *Track) Channel() uint8 { return t.channel }
func (t *Track) Label() string  { return t.label }

func (t *Track) SetChannel(channel int) {
	t.channel = uint8(clampInt(channel, 0, 15))
	t.bus.Publish(TrackChanged{t})
}

func (t *Track) SetLabel(label string) {
	t.label = label
	t.bus.Publish(TrackChanged{t})
}

// Automations returns the automation lanes in display order.
func (t *Track) Automations() []AutomationKey { return t.lanes.list() }

// AddAutomation appends a lane. It returns false if the lane already exists.
// Existing patterns get a region for the lane on their next EnsureRegion.
func (t *Track) AddAutomation(key AutomationKey) bool {
	if slices.Contains(t.lanes.keys, key) {
		return false
	}
	t.lanes.keys = append(t.lanes.keys, key)
	t.bus.Publish(TrackChanged{t})
	return true
}

// RemoveAutomation removes a lane from the track. Regions already created
// for it stay in the patterns.
func (t *Track) RemoveAutomation(key AutomationKey) bool {
	i := slices.Index(t.lanes.keys, key)
	if i < 0 {
		return false
	}
	t.lanes.keys = slices.Delete(t.lanes.keys, i, i+1)
	t.bus.Publish(TrackChanged{t})
	return true
}

// MoveAutomation moves a lane to index, clamped to the lane list.
func (t *Track) MoveAutomation(key AutomationKey, index int) bool {
	i := slices.Index(t.lanes.keys, key)
	if i < 0 {
		return false
	}
	t.lanes.keys = slices.Delete(t.lanes.keys, i, i+1)
	index = clampInt(index, 0, len(t.lanes.keys))
	t.lanes.keys = slices.Insert(t.lanes.keys, index, key)
	t.bus.Publish(TrackChanged{t})
	return true
}

// Patterns returns the patterns ordered by start.
func (t *Track) Patterns() []*Pattern {
	t.sort() // patterns may have been moved since
	return slices.Clone(t.patterns)
}

// AddPattern creates an empty pattern on the track.
func (t *Track) AddPattern(start, length float64) *Pattern {
	p := NewPattern(start, length)
	t.Insert(p)
	return p
}

// Insert places p, typically a clone or a pattern removed from another
// track, on the track. Its regions are kept and reconciled against this
// track's lanes on the next EnsureRegion.
func (t *Track) Insert(p *Pattern) {
	if slices.Contains(t.patterns, p) {
		return
	}
	p.attach(t.lanes, t.bus)
	t.patterns = append(t.patterns, p)
	t.sort()
	t.bus.Publish(TrackChanged{t})
}

func (t *Track) RemovePattern(p *Pattern) bool {
	i := slices.Index(t.patterns, p)
	if i < 0 {
		return false
	}
	t.patterns = slices.Delete(t.patterns, i, i+1)
	p.attach(nil, nil)
	t.bus.Publish(TrackChanged{t})
	return true
}

// DuplicatePattern places a deep copy of p offset beats later.
func (t *Track) DuplicatePattern(p *Pattern, offset float64) *Pattern {
	c := p.Clone()
	c.start = max(p.start+offset, 0)
	t.Insert(c)
	return c
}

// UnloopPattern replaces a repeated pattern by one pattern per repetition,
// each a deep copy playing once. The first one is p itself.
func (t *Track) UnloopPattern(p *Pattern) []*Pattern {
	if !slices.Contains(t.patterns, p) || p.repetitions == 1 {
		return []*Pattern{p}
	}
	n := p.repetitions
	p.repetitions = 1
	ret := []*Pattern{p}
	for i := 1; i < n; i++ {
		c := p.Clone()
		c.start = p.start + float64(i)*p.length
		c.attach(t.lanes, t.bus)
		t.patterns = append(t.patterns, c)
		ret = append(ret, c)
	}
	t.sort()
	t.bus.Publish(RepetitionsChanged{Pattern: p, Repetitions: 1})
	t.bus.Publish(TrackChanged{t})
	return ret
}

// PatternAt returns the pattern playing at beat, if any. When patterns
// overlap, the one starting last wins.
func (t *Track) PatternAt(beat float64) (*Pattern, bool) {
	ps := t.Patterns()
	for i := len(ps) - 1; i >= 0; i-- {
		if p := ps[i]; beat >= p.start && beat < p.End() {
			return p, true
		}
	}
	return nil, false
}

func (t *Track) sort() {
	slices.SortStableFunc(t.patterns, func(a, b *Pattern) int { return cmp.Compare(a.start, b.start) })
}

func (t *Track) attach(bus *Bus) {
	t.bus = bus
	for _, p := range t.patterns {
		p.attach(t.lanes, bus)
	}
}
