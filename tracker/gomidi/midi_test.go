package gomidi_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/vsariola/seqroll"
	"github.com/vsariola/seqroll/tracker"
	"github.com/vsariola/seqroll/tracker/gomidi"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		ev       seqroll.Message
		expected midi.Message
	}{
		{seqroll.NoteOn{Note: 60, Velocity: 100, Channel: 2}, midi.NoteOn(2, 60, 100)},
		{seqroll.NoteOff{Note: 60, Channel: 2}, midi.NoteOffVelocity(2, 60, 0)},
		{seqroll.ControllerValue{Controller: 74, Value: 300, Channel: 15}, midi.ControlChange(15, 74, 127)},
		{seqroll.ControllerValue{Controller: 1, Value: -4}, midi.ControlChange(0, 1, 0)},
	}
	for _, tt := range tests {
		got := gomidi.Message(seqroll.Event{Message: tt.ev}, gomidi.DefaultManufacturer)
		if !bytes.Equal(got, tt.expected) {
			t.Fatalf("Message(%v) got: % X expected: % X", tt.ev, []byte(got), []byte(tt.expected))
		}
	}
}

func TestParameterSysex(t *testing.T) {
	m := seqroll.SysexParameterValue{Param: 300, Value: 1000, Part: 3}
	got := gomidi.ParameterSysex(gomidi.DefaultManufacturer, m)
	expected := []byte{0x7D, 3, 300 >> 7, 300 & 0x7F, 1000 >> 7, 1000 & 0x7F}
	if !bytes.Equal(got, expected) {
		t.Fatalf("ParameterSysex got: % X expected: % X", got, expected)
	}
	for _, b := range got {
		if b > 0x7F {
			t.Fatalf("sysex data byte % X has the high bit set", b)
		}
	}
	msg := gomidi.Message(seqroll.Event{Message: m}, gomidi.DefaultManufacturer)
	if len(msg) != len(expected)+2 || msg[0] != 0xF0 || msg[len(msg)-1] != 0xF7 || !bytes.Equal(msg[1:len(msg)-1], expected) {
		t.Fatalf("sysex message got: % X", []byte(msg))
	}
}

func TestOutputEmit(t *testing.T) {
	var sent []midi.Message
	failing := errors.New("port closed")
	fail := false
	out := gomidi.NewOutput(func(m midi.Message) error {
		if fail {
			return failing
		}
		sent = append(sent, m)
		return nil
	}, gomidi.WithManufacturer(0x41), gomidi.WithLogger(tracker.DiscardLogger()))
	var _ tracker.Emitter = out
	out.Emit(seqroll.Event{Message: seqroll.NoteOn{Note: 64, Velocity: 90}}, 0)
	out.Emit(seqroll.Event{Message: seqroll.SysexParameterValue{Param: 1, Value: 2}}, time.Second)
	if len(sent) != 2 || sent[1][1] != 0x41 {
		t.Fatalf("sent got: %v", sent)
	}
	fail = true
	out.Emit(seqroll.Event{Message: seqroll.NoteOff{Note: 64}}, 2*time.Second)
	if len(sent) != 2 {
		t.Fatalf("a failed send was recorded")
	}
	if err := out.Close(); err != nil {
		t.Fatalf("closing an output without a port failed: %v", err)
	}
}

func TestEventFromWire(t *testing.T) {
	ev, ok := gomidi.Event(midi.NoteOn(1, 48, 77))
	if !ok || ev.Message != (seqroll.NoteOn{Note: 48, Velocity: 77, Channel: 1}) {
		t.Fatalf("note-on got: %v %v", ev, ok)
	}
	ev, ok = gomidi.Event(midi.ControlChange(4, 7, 99))
	if !ok || ev.Message != (seqroll.ControllerValue{Controller: 7, Value: 99, Channel: 4}) {
		t.Fatalf("controller got: %v %v", ev, ok)
	}
	if _, ok := gomidi.Event(midi.ProgramChange(0, 5)); ok {
		t.Fatalf("a program change was converted")
	}
}

func TestInputForwardsToModel(t *testing.T) {
	b := tracker.NewBroker()
	in := gomidi.NewInput(b)
	in.HandleMessage(midi.NoteOn(0, 60, 100), 1500)
	msg, ok := tracker.TimeoutReceive(b.ToModel, time.Second)
	if !ok {
		t.Fatalf("no message was forwarded")
	}
	n, ok := msg.Notice.(seqroll.InputEvent)
	if !ok || n.At != 1500*time.Millisecond {
		t.Fatalf("notice got: %#v", msg.Notice)
	}
	if err := in.Close(); err != nil {
		t.Fatalf("closing an input without a port failed: %v", err)
	}
}

func TestWriteSMF(t *testing.T) {
	s := seqroll.NewStructure()
	if err := gomidi.WriteSMF(&bytes.Buffer{}, s, gomidi.DefaultManufacturer); !errors.Is(err, seqroll.ErrNoTracks) {
		t.Fatalf("error got: %v expected: %v", err, seqroll.ErrNoTracks)
	}
	s.Timeline.SetTempo(4, 90)
	s.Timeline.AddMeter(1, 3, 4)
	s.Timeline.AddMarker(2, "verse")
	lead := s.AddTrack(0, "lead")
	p := lead.AddPattern(0, 4)
	p.Notes().AddNote(60, 100, 0, 0, 1)
	p.Notes().AddNote(64, 100, 0, 1, 1)
	p.EnsureRegion(seqroll.ParameterKey(5, 0)).AddEvent(64, 2)
	s.AddTrack(9, "drums").AddPattern(0, 1).Notes().AddNote(36, 127, 9, 0, 0.25)
	var buf bytes.Buffer
	if err := gomidi.WriteSMF(&buf, s, gomidi.DefaultManufacturer); err != nil {
		t.Fatalf("WriteSMF failed: %v", err)
	}
	sm, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reading the written file failed: %v", err)
	}
	if len(sm.Tracks) != 3 {
		t.Fatalf("tracks got: %v expected: 3", len(sm.Tracks))
	}
	var noteOns int
	for _, ev := range sm.Tracks[1] {
		var ch, key, vel uint8
		if midi.Message(ev.Message).GetNoteOn(&ch, &key, &vel) {
			noteOns++
		}
	}
	if noteOns != 2 {
		t.Fatalf("note-ons in the lead track got: %v expected: 2", noteOns)
	}
}
