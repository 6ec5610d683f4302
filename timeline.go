package seqroll

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/viterin/vek"
)

type (
	// TempoSegment sets the tempo from StartBeat until the next segment.
	TempoSegment struct {
		StartBeat float64
		BPM       int
	}

	// MeterSegment sets the time signature from Bar until the next segment.
	MeterSegment struct {
		Bar         int
		Numerator   int
		Denominator int
	}

	Marker struct {
		Kind  MarkerKind
		Beat  float64
		Label string `yaml:",omitempty"`
	}

	MarkerKind int

	// BarBeat is a musical position: a zero-based bar and the beat within it,
	// counted in units of the bar's meter denominator.
	BarBeat struct {
		Bar  int
		Beat float64
	}

	// TimelineMap converts between beat-time, bars and real time. The first
	// tempo segment starts at beat 0 and the first meter segment at bar 0;
	// neither can be removed. There is always exactly one EndMarker.
	TimelineMap struct {
		tempos     []TempoSegment
		tempoMs    []float64 // ms at the start of each tempo segment
		meters     []MeterSegment
		meterBeats []float64 // beat at the start of each meter segment
		markers    []Marker
		bus        *Bus
	}

	// TempoCursor converts beat-times to ms, remembering the tempo segment of
	// the previous query. Queries in non-decreasing order cost amortized O(1).
	TempoCursor struct {
		m *TimelineMap
		i int
	}
)

const (
	PlainMarker MarkerKind = iota
	LoopStartMarker
	LoopEndMarker
	EndMarker
)

const (
	MinBPM = 30
	MaxBPM = 300

	MaxNumerator = 32

	// MinLoopLength is the shortest loop, in beats.
	MinLoopLength = 1.0
)

var denominators = []int{1, 2, 4, 8, 16}

func (s TempoSegment) MsPerBeat() float64  { return 60000 / float64(s.BPM) }
func (s TempoSegment) BeatsPerMs() float64 { return float64(s.BPM) / 60000 }

// BeatsPerBar returns the length of a bar in quarter-note beats.
func (s MeterSegment) BeatsPerBar() float64 {
	return float64(s.Numerator) / float64(s.Denominator) * 4
}

func clampBPM(bpm int) int { return clampInt(bpm, MinBPM, MaxBPM) }

func clampMeter(num, den int) (int, int) {
	best := denominators[0]
	for _, d := range denominators {
		if abs(d-den) < abs(best-den) {
			best = d
		}
	}
	return clampInt(num, 1, MaxNumerator), best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (k MarkerKind) String() string {
	switch k {
	case LoopStartMarker:
		return "loop start"
	case LoopEndMarker:
		return "loop end"
	case EndMarker:
		return "end"
	}
	return "marker"
}

// NewTimelineMap returns a map with a single tempo and meter and the end
// marker at end beats.
func NewTimelineMap(bpm, num, den int, end float64) *TimelineMap {
	num, den = clampMeter(num, den)
	m := &TimelineMap{
		tempos:  []TempoSegment{{0, clampBPM(bpm)}},
		meters:  []MeterSegment{{0, num, den}},
		markers: []Marker{{Kind: EndMarker, Beat: max(end, MinLoopLength)}},
	}
	m.rebuild()
	return m
}

func (m *TimelineMap) Tempos() []TempoSegment { return slices.Clone(m.tempos) }
func (m *TimelineMap) Meters() []MeterSegment { return slices.Clone(m.meters) }
func (m *TimelineMap) Markers() []Marker      { return slices.Clone(m.markers) }

// MeterBeat returns the beat where meter segment i starts.
func (m *TimelineMap) MeterBeat(i int) float64 { return m.meterBeats[i] }

func (m *TimelineMap) tempoIndex(beat float64) int {
	i := sort.Search(len(m.tempos), func(i int) bool { return m.tempos[i].StartBeat > beat })
	return max(i-1, 0)
}

func (m *TimelineMap) TempoAt(beat float64) TempoSegment { return m.tempos[m.tempoIndex(beat)] }

// SetTempo sets the tempo from beat on, replacing a segment starting at the
// same beat. BPM is clamped to MinBPM..MaxBPM. It returns the segment index.
func (m *TimelineMap) SetTempo(beat float64, bpm int) int {
	beat = max(beat, 0)
	bpm = clampBPM(bpm)
	i, found := slices.BinarySearchFunc(m.tempos, beat, func(s TempoSegment, b float64) int { return cmp.Compare(s.StartBeat, b) })
	if found {
		m.tempos[i].BPM = bpm
	} else {
		m.tempos = slices.Insert(m.tempos, i, TempoSegment{beat, bpm})
	}
	m.changed()
	return i
}

// RemoveTempo removes segment i. The first segment cannot be removed.
func (m *TimelineMap) RemoveTempo(i int) bool {
	if i <= 0 || i >= len(m.tempos) {
		return false
	}
	m.tempos = slices.Delete(m.tempos, i, i+1)
	m.changed()
	return true
}

// MoveTempo moves segment i to a new positive start beat. A segment already
// starting there is replaced. The first segment cannot be moved.
func (m *TimelineMap) MoveTempo(i int, beat float64) bool {
	if i <= 0 || i >= len(m.tempos) || beat <= 0 {
		return false
	}
	bpm := m.tempos[i].BPM
	m.tempos = slices.Delete(m.tempos, i, i+1)
	m.SetTempo(beat, bpm)
	return true
}

// MsFromBeat returns the real time in milliseconds at beat.
func (m *TimelineMap) MsFromBeat(beat float64) float64 {
	i := m.tempoIndex(beat)
	s := m.tempos[i]
	return m.tempoMs[i] + (beat-s.StartBeat)*s.MsPerBeat()
}

// BeatFromMs is the inverse of MsFromBeat.
func (m *TimelineMap) BeatFromMs(ms float64) float64 {
	i := sort.SearchFloat64s(m.tempoMs, math.Nextafter(ms, math.Inf(1)))
	i = max(i-1, 0)
	s := m.tempos[i]
	return s.StartBeat + (ms-m.tempoMs[i])*s.BeatsPerMs()
}

// Cursor returns a TempoCursor positioned at beat 0. It must not be used
// after the tempo map changes.
func (m *TimelineMap) Cursor() *TempoCursor { return &TempoCursor{m: m} }

// Ms returns the same value as MsFromBeat. Querying a beat earlier than the
// previous query rewinds the cursor.
func (c *TempoCursor) Ms(beat float64) float64 {
	t := c.m.tempos
	if c.i >= len(t) || beat < t[c.i].StartBeat {
		c.i = 0
	}
	for c.i+1 < len(t) && t[c.i+1].StartBeat <= beat {
		c.i++
	}
	return c.m.tempoMs[c.i] + (beat-t[c.i].StartBeat)*t[c.i].MsPerBeat()
}

func (m *TimelineMap) meterIndexForBar(bar int) int {
	i := sort.Search(len(m.meters), func(i int) bool { return m.meters[i].Bar > bar })
	return max(i-1, 0)
}

func (m *TimelineMap) meterIndexForBeat(beat float64) int {
	i := sort.SearchFloat64s(m.meterBeats, math.Nextafter(beat, math.Inf(1)))
	return max(i-1, 0)
}

func (m *TimelineMap) MeterAt(bar int) MeterSegment { return m.meters[m.meterIndexForBar(bar)] }

func (m *TimelineMap) nextFreeBar(bar, except int) int {
	for {
		i := slices.IndexFunc(m.meters, func(s MeterSegment) bool { return s.Bar == bar })
		if i < 0 || i == except {
			return bar
		}
		bar++
	}
}

// AddMeter adds a meter change at bar. If bar already has a meter change,
// the new one goes to the next free bar. It returns the segment index.
func (m *TimelineMap) AddMeter(bar, num, den int) int {
	num, den = clampMeter(num, den)
	bar = m.nextFreeBar(max(bar, 0), -1)
	m.meters = append(m.meters, MeterSegment{bar, num, den})
	m.changed()
	return slices.IndexFunc(m.meters, func(s MeterSegment) bool { return s.Bar == bar })
}

func (m *TimelineMap) ChangeMeter(i, num, den int) bool {
	if i < 0 || i >= len(m.meters) {
		return false
	}
	m.meters[i].Numerator, m.meters[i].Denominator = clampMeter(num, den)
	m.changed()
	return true
}

// MoveMeter moves segment i to bar, or the next free bar after it. The
// first segment cannot be moved.
func (m *TimelineMap) MoveMeter(i, bar int) bool {
	if i <= 0 || i >= len(m.meters) {
		return false
	}
	m.meters[i].Bar = m.nextFreeBar(max(bar, 1), i)
	m.changed()
	return true
}

func (m *TimelineMap) RemoveMeter(i int) bool {
	if i <= 0 || i >= len(m.meters) {
		return false
	}
	m.meters = slices.Delete(m.meters, i, i+1)
	m.changed()
	return true
}

// BarFromBeat returns the fractional zero-based bar at beat.
func (m *TimelineMap) BarFromBeat(beat float64) float64 {
	i := m.meterIndexForBeat(beat)
	s := m.meters[i]
	return float64(s.Bar) + (beat-m.meterBeats[i])/s.BeatsPerBar()
}

// BeatFromBarBeat returns the beat-time of a bar and a beat within it,
// counted in meter denominator units. The beat is kept inside the bar: at
// most the start of the bar's last beat.
func (m *TimelineMap) BeatFromBarBeat(bar int, beatWithinBar float64) float64 {
	i := m.meterIndexForBar(bar)
	s := m.meters[i]
	bpb := s.BeatsPerBar()
	base := m.meterBeats[i] + float64(bar-s.Bar)*bpb
	return base + min(beatWithinBar*4/float64(s.Denominator), bpb-bpb/float64(s.Numerator))
}

// BarBeat decomposes beat into a bar and a beat within the bar.
func (m *TimelineMap) BarBeat(beat float64) BarBeat {
	i := m.meterIndexForBeat(beat)
	s := m.meters[i]
	bpb := s.BeatsPerBar()
	rel := beat - m.meterBeats[i]
	bars := math.Floor(rel / bpb)
	return BarBeat{
		Bar:  s.Bar + int(bars),
		Beat: (rel - bars*bpb) * float64(s.Denominator) / 4,
	}
}

// BeatFromPosition is the inverse of BarBeat: the whole beats go through
// BeatFromBarBeat and the fraction is added on top.
func (m *TimelineMap) BeatFromPosition(p BarBeat) float64 {
	whole := math.Floor(p.Beat)
	den := m.MeterAt(p.Bar).Denominator
	return m.BeatFromBarBeat(p.Bar, whole) + (p.Beat-whole)*4/float64(den)
}

// End returns the beat of the end marker.
func (m *TimelineMap) End() float64 {
	return m.markers[m.markerIndex(EndMarker)].Beat
}

func (m *TimelineMap) markerIndex(kind MarkerKind) int {
	return slices.IndexFunc(m.markers, func(mk Marker) bool { return mk.Kind == kind })
}

// SetEnd moves the end marker; the song is at least MinLoopLength long.
func (m *TimelineMap) SetEnd(beat float64) {
	m.markers[m.markerIndex(EndMarker)].Beat = max(beat, MinLoopLength)
	m.changed()
}

// Loop returns the loop range, if a loop is set.
func (m *TimelineMap) Loop() (start, end float64, ok bool) {
	s, e := m.markerIndex(LoopStartMarker), m.markerIndex(LoopEndMarker)
	if s < 0 || e < 0 {
		return 0, 0, false
	}
	return m.markers[s].Beat, m.markers[e].Beat, true
}

// SetLoop sets the loop range, replacing any previous one. The start is
// clamped to 0 and the end to be at least MinLoopLength after the start.
func (m *TimelineMap) SetLoop(start, end float64) {
	start = max(start, 0)
	end = max(end, start+MinLoopLength)
	m.dropLoop()
	m.markers = append(m.markers, Marker{Kind: LoopStartMarker, Beat: start}, Marker{Kind: LoopEndMarker, Beat: end})
	m.changed()
}

func (m *TimelineMap) ClearLoop() {
	if m.dropLoop() {
		m.changed()
	}
}

func (m *TimelineMap) dropLoop() bool {
	n := len(m.markers)
	m.markers = slices.DeleteFunc(m.markers, func(mk Marker) bool {
		return mk.Kind == LoopStartMarker || mk.Kind == LoopEndMarker
	})
	return len(m.markers) != n
}

// AddMarker adds a plain marker and returns its index.
func (m *TimelineMap) AddMarker(beat float64, label string) int {
	mk := Marker{Kind: PlainMarker, Beat: max(beat, 0), Label: label}
	m.markers = append(m.markers, mk)
	m.changed()
	return slices.Index(m.markers, mk)
}

// MoveMarker moves marker i. Loop markers keep their order and minimum
// distance; the end marker behaves like SetEnd.
func (m *TimelineMap) MoveMarker(i int, beat float64) bool {
	if i < 0 || i >= len(m.markers) {
		return false
	}
	switch m.markers[i].Kind {
	case EndMarker:
		m.SetEnd(beat)
		return true
	case LoopStartMarker:
		_, end, _ := m.Loop()
		beat = min(beat, end-MinLoopLength)
	case LoopEndMarker:
		start, _, _ := m.Loop()
		beat = max(beat, start+MinLoopLength)
	}
	m.markers[i].Beat = max(beat, 0)
	m.changed()
	return true
}

// RemoveMarker removes marker i. Removing either loop marker removes the
// loop; the end marker cannot be removed.
func (m *TimelineMap) RemoveMarker(i int) bool {
	if i < 0 || i >= len(m.markers) {
		return false
	}
	switch m.markers[i].Kind {
	case EndMarker:
		return false
	case LoopStartMarker, LoopEndMarker:
		m.ClearLoop()
		return true
	}
	m.markers = slices.Delete(m.markers, i, i+1)
	m.changed()
	return true
}

func (m *TimelineMap) changed() {
	m.rebuild()
	m.bus.Publish(TimelineChanged{})
}

// rebuild restores the ordering of segments and markers and recomputes the
// tempo and bar lookup tables.
func (m *TimelineMap) rebuild() {
	slices.SortStableFunc(m.tempos, func(a, b TempoSegment) int { return cmp.Compare(a.StartBeat, b.StartBeat) })
	slices.SortStableFunc(m.meters, func(a, b MeterSegment) int { return cmp.Compare(a.Bar, b.Bar) })
	slices.SortStableFunc(m.markers, func(a, b Marker) int {
		return cmp.Or(cmp.Compare(a.Beat, b.Beat), cmp.Compare(a.Kind, b.Kind))
	})
	widths := make([]float64, len(m.tempos))
	for i := 1; i < len(m.tempos); i++ {
		p := m.tempos[i-1]
		widths[i] = (m.tempos[i].StartBeat - p.StartBeat) * p.MsPerBeat()
	}
	m.tempoMs = vek.CumSum(widths)
	widths = make([]float64, len(m.meters))
	for i := 1; i < len(m.meters); i++ {
		p := m.meters[i-1]
		widths[i] = float64(m.meters[i].Bar-p.Bar) * p.BeatsPerBar()
	}
	m.meterBeats = vek.CumSum(widths)
}
