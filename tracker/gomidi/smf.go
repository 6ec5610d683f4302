package gomidi

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/vsariola/seqroll"
	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"
)

// TicksPerBeat is the resolution of exported MIDI files.
const TicksPerBeat = 960

type timedMessage struct {
	tick  uint32
	order int
	msg   []byte
}

// WriteSMF writes the structure as a format 1 Standard MIDI File: a
// conductor track with the tempo, meter and marker meta events, followed by
// one track per Track of the structure. Sysex parameter events use the
// given manufacturer ID.
func WriteSMF(w io.Writer, s *seqroll.Structure, manufacturer byte) error {
	if len(s.Tracks()) == 0 {
		return seqroll.ErrNoTracks
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(TicksPerBeat)
	tl := s.Timeline
	var conductor []timedMessage
	for _, t := range tl.Tempos() {
		conductor = append(conductor, timedMessage{ticks(t.StartBeat), 0, smf.MetaTempo(float64(t.BPM))})
	}
	for i, m := range tl.Meters() {
		conductor = append(conductor, timedMessage{ticks(tl.MeterBeat(i)), 1, smf.MetaMeter(uint8(m.Numerator), uint8(m.Denominator))})
	}
	for _, m := range tl.Markers() {
		label := m.Label
		if label == "" {
			label = m.Kind.String()
		}
		conductor = append(conductor, timedMessage{ticks(m.Beat), 2, smf.MetaMarker(label)})
	}
	if err := sm.Add(track(conductor, "conductor")); err != nil {
		return fmt.Errorf("could not add conductor track: %w", err)
	}
	for _, t := range s.Tracks() {
		var msgs []timedMessage
		for _, ev := range s.TrackEvents(t, 0, tl.End()) {
			if msg := Message(ev, manufacturer); msg != nil {
				msgs = append(msgs, timedMessage{ticks(ev.Time), len(msgs), msg})
			}
		}
		if err := sm.Add(track(msgs, t.Label())); err != nil {
			return fmt.Errorf("could not add track %q: %w", t.Label(), err)
		}
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("could not write MIDI file: %w", err)
	}
	return nil
}

// WriteQuantizedSMF writes the structure like WriteSMF and runs the result
// through the gomidi quantizer, which snaps the notes to the detected grid.
func WriteQuantizedSMF(w io.Writer, s *seqroll.Structure, manufacturer byte) error {
	var raw bytes.Buffer
	if err := WriteSMF(&raw, s, manufacturer); err != nil {
		return err
	}
	if err := quantizer.Quantize(&raw, w); err != nil {
		return fmt.Errorf("could not quantize MIDI file: %w", err)
	}
	return nil
}

func track(msgs []timedMessage, name string) smf.Track {
	slices.SortStableFunc(msgs, func(a, b timedMessage) int {
		return cmp.Or(cmp.Compare(a.tick, b.tick), cmp.Compare(a.order, b.order))
	})
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(name))
	var last uint32
	for _, m := range msgs {
		tr.Add(m.tick-last, m.msg)
		last = m.tick
	}
	tr.Close(0)
	return tr
}

func ticks(beat float64) uint32 {
	return uint32(math.Round(max(beat, 0) * TicksPerBeat))
}
