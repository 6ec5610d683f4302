package seqroll

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Song is the persisted form of a Structure: plain values only, suitable
	// for .yml and .json files. Times are in beats.
	Song struct {
		Tempos     []TempoSegment
		Meters     []MeterSegment
		Markers    []Marker
		Parameters map[int]ParamSpec `yaml:",omitempty" json:",omitempty"`
		Tracks     []SongTrack
	}

	SongTrack struct {
		Channel     int
		Label       string          `yaml:",omitempty" json:",omitempty"`
		Automations []AutomationKey `yaml:",omitempty" json:",omitempty"`
		Patterns    []SongPattern
	}

	SongPattern struct {
		Start       float64
		Length      float64
		Repetitions int        `yaml:",omitempty" json:",omitempty"`
		Notes       []SongNote `yaml:",omitempty" json:",omitempty"`
		Lanes       []SongLane `yaml:",omitempty" json:",omitempty"`
	}

	// SongNote is a note at a pattern-relative start.
	SongNote struct {
		Start    float64
		Length   float64
		Note     int
		Velocity int
		Channel  int `yaml:",omitempty" json:",omitempty"`
	}

	SongLane struct {
		Key        AutomationKey
		Continuous bool        `yaml:",omitempty" json:",omitempty"`
		Points     []SongPoint `yaml:",flow"`
	}

	SongPoint struct {
		Time  float64
		Value int
	}
)

var (
	ErrEmptySong = errors.New("song has no tempo")
	ErrNoTracks  = errors.New("song has no tracks")
)

// Song returns the persisted form of the structure.
func (s *Structure) Song() Song {
	ret := Song{
		Tempos:  s.Timeline.Tempos(),
		Meters:  s.Timeline.Meters(),
		Markers: s.Timeline.Markers(),
	}
	if len(Parameters) > 0 {
		ret.Parameters = make(map[int]ParamSpec, len(Parameters))
		for k, v := range Parameters {
			ret.Parameters[k] = v
		}
	}
	for _, t := range s.tracks {
		st := SongTrack{Channel: int(t.channel), Label: t.label, Automations: t.Automations()}
		for _, p := range t.Patterns() {
			st.Patterns = append(st.Patterns, p.song())
		}
		ret.Tracks = append(ret.Tracks, st)
	}
	return ret
}

func (p *Pattern) song() SongPattern {
	ret := SongPattern{Start: p.start, Length: p.length, Repetitions: p.repetitions}
	for _, n := range p.notes.Notes() {
		ret.Notes = append(ret.Notes, SongNote{
			Start:    n.Start(),
			Length:   n.Length(),
			Note:     int(n.Pitch()),
			Velocity: int(n.Velocity()),
			Channel:  int(n.Channel()),
		})
	}
	for _, r := range p.params {
		lane := SongLane{Key: r.key, Continuous: r.continuous, Points: []SongPoint{}}
		for _, ev := range r.events {
			lane.Points = append(lane.Points, SongPoint{ev.Time, Value(ev)})
		}
		ret.Lanes = append(ret.Lanes, lane)
	}
	return ret
}

// Validate checks that the song can be turned into a Structure. Values that
// are merely out of range are not errors; they are clamped on load.
func (s *Song) Validate() error {
	if len(s.Tempos) == 0 {
		return ErrEmptySong
	}
	if s.Tempos[0].StartBeat != 0 {
		return errors.New("the first tempo segment must start at beat 0")
	}
	if len(s.Meters) > 0 && s.Meters[0].Bar != 0 {
		return errors.New("the first meter segment must start at bar 0")
	}
	ends := 0
	for _, m := range s.Markers {
		if m.Kind == EndMarker {
			ends++
		}
	}
	if ends > 1 {
		return errors.New("song has more than one end marker")
	}
	for i, t := range s.Tracks {
		for j, p := range t.Patterns {
			if !(p.Length > 0) || math.IsInf(p.Length, 0) {
				return fmt.Errorf("track %d pattern %d has invalid length %v", i, j, p.Length)
			}
			for _, n := range p.Notes {
				if math.IsNaN(n.Start) || math.IsNaN(n.Length) {
					return fmt.Errorf("track %d pattern %d has a note with invalid time", i, j)
				}
			}
		}
	}
	return nil
}

// NewStructureFromSong builds a Structure from its persisted form. The
// parameter definitions of the song are registered in Parameters.
func NewStructureFromSong(song Song) (*Structure, error) {
	if err := song.Validate(); err != nil {
		return nil, err
	}
	for id, spec := range song.Parameters {
		RegisterParameter(id, spec)
	}
	meter := MeterSegment{0, 4, 4}
	if len(song.Meters) > 0 {
		meter = song.Meters[0]
	}
	tl := NewTimelineMap(song.Tempos[0].BPM, meter.Numerator, meter.Denominator, 64)
	for _, t := range song.Tempos[1:] {
		tl.SetTempo(t.StartBeat, t.BPM)
	}
	for i := 1; i < len(song.Meters); i++ {
		m := song.Meters[i]
		tl.AddMeter(m.Bar, m.Numerator, m.Denominator)
	}
	var loopStart, loopEnd float64
	hasEnd, loopMarkers := false, 0
	for _, m := range song.Markers {
		switch m.Kind {
		case EndMarker:
			tl.SetEnd(m.Beat)
			hasEnd = true
		case LoopStartMarker:
			loopStart, loopMarkers = m.Beat, loopMarkers+1
		case LoopEndMarker:
			loopEnd, loopMarkers = m.Beat, loopMarkers+1
		default:
			tl.AddMarker(m.Beat, m.Label)
		}
	}
	if loopMarkers == 2 {
		tl.SetLoop(loopStart, loopEnd)
	}
	s := NewStructure()
	tl.bus = s.bus
	s.Timeline = tl
	for _, st := range song.Tracks {
		t := s.AddTrack(st.Channel, st.Label)
		for _, k := range st.Automations {
			t.AddAutomation(k)
		}
		for _, sp := range st.Patterns {
			p := t.AddPattern(sp.Start, sp.Length)
			p.SetRepetitions(sp.Repetitions)
			for _, n := range sp.Notes {
				p.notes.AddNote(n.Note, n.Velocity, n.Channel, n.Start, n.Length)
			}
			for _, l := range sp.Lanes {
				r := p.EnsureRegion(l.Key)
				r.SetContinuous(l.Continuous)
				for _, pt := range l.Points {
					r.AddEvent(pt.Value, pt.Time)
				}
			}
		}
	}
	if !hasEnd {
		end := 0.0
		for _, t := range s.tracks {
			for _, p := range t.patterns {
				end = max(end, p.End())
			}
		}
		if end > 0 {
			tl.SetEnd(end)
		}
	}
	return s, nil
}

// ReadSong parses a song, trying JSON first and then YAML.
func ReadSong(r io.Reader) (Song, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Song{}, fmt.Errorf("could not read song: %w", err)
	}
	var song Song
	if errJSON := json.Unmarshal(b, &song); errJSON != nil {
		song = Song{}
		if errYaml := yaml.Unmarshal(b, &song); errYaml != nil {
			return Song{}, fmt.Errorf("the song could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	return song, nil
}

// WriteSong writes the song as JSON if filename ends with .json and as YAML
// otherwise.
func WriteSong(w io.Writer, song Song, filename string) error {
	var b []byte
	var err error
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		b, err = json.MarshalIndent(song, "", "  ")
	} else {
		b, err = yaml.Marshal(song)
	}
	if err != nil {
		return fmt.Errorf("could not marshal song: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("could not write song: %w", err)
	}
	return nil
}
