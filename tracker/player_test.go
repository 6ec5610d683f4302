package tracker_test

import (
	"context"
	"testing"
	"time"

	"github.com/vsariola/seqroll"
	"github.com/vsariola/seqroll/tracker"
)

type emitted struct {
	ev seqroll.Event
	at time.Duration
}

type recorder struct {
	events []emitted
}

func (r *recorder) Emit(ev seqroll.Event, at time.Duration) {
	r.events = append(r.events, emitted{ev, at})
}

func (r *recorder) count(match func(seqroll.Message) bool) int {
	n := 0
	for _, e := range r.events {
		if match(e.ev.Message) {
			n++
		}
	}
	return n
}

func isNoteOn(m seqroll.Message) bool  { _, ok := m.(seqroll.NoteOn); return ok }
func isNoteOff(m seqroll.Message) bool { _, ok := m.(seqroll.NoteOff); return ok }

func newPlayer(s *seqroll.Structure, out tracker.Emitter, opts ...tracker.PlayerOption) *tracker.Player {
	opts = append([]tracker.PlayerOption{tracker.WithLogger(tracker.DiscardLogger())}, opts...)
	return tracker.NewPlayer(s, out, s.Bus(), opts...)
}

func TestStopReleasesSoundingNotes(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "pad").AddPattern(0, 8)
	p.Notes().AddNote(64, 100, 0, 0, 4)
	p.Notes().AddNote(60, 100, 0, 0, 4)
	out := &recorder{}
	player := newPlayer(s, out)
	if !player.PlayFrom(0, 0, false) {
		t.Fatalf("PlayFrom returned false")
	}
	player.Advance(0)
	if got := out.count(isNoteOn); got != 2 {
		t.Fatalf("note-ons got: %v expected: 2", got)
	}
	player.Advance(100 * time.Millisecond)
	player.Stop()
	if got := out.count(isNoteOff); got != 2 {
		t.Fatalf("note-offs got: %v expected: 2", got)
	}
	offs := out.events[2:]
	if offs[0].ev.Message.(seqroll.NoteOff).Note != 60 || offs[1].ev.Message.(seqroll.NoteOff).Note != 64 {
		t.Fatalf("note-offs are not in pitch order: %v", offs)
	}
	if offs[0].at != 100*time.Millisecond {
		t.Fatalf("note-off time got: %v expected: %v", offs[0].at, 100*time.Millisecond)
	}
	if player.Status() != seqroll.Stopped || player.Armed() != 0 {
		t.Fatalf("player did not stop")
	}
	player.Advance(10 * time.Second)
	if len(out.events) != 4 {
		t.Fatalf("events after stop: %v", out.events[4:])
	}
}

func TestPlayerFiresOnTime(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "lead").AddPattern(0, 8)
	p.Notes().AddNote(60, 100, 0, 1, 0.5)
	p.Notes().AddNote(62, 100, 0, 5, 0.5)
	out := &recorder{}
	player := newPlayer(s, out)
	player.PlayFrom(0, 0, false)
	if due, ok := player.NextDue(); !ok || due != 500*time.Millisecond {
		t.Fatalf("first due got: %v %v expected: 500ms true", due, ok)
	}
	player.Advance(499 * time.Millisecond)
	if len(out.events) != 0 {
		t.Fatalf("events fired early: %v", out.events)
	}
	player.Advance(500 * time.Millisecond)
	if len(out.events) != 1 || out.events[0].at != 500*time.Millisecond {
		t.Fatalf("events got: %v expected a note-on at 500ms", out.events)
	}
	player.Advance(2499 * time.Millisecond)
	if len(out.events) != 2 {
		t.Fatalf("events got: %v expected two", out.events)
	}
	player.Advance(2500 * time.Millisecond)
	if len(out.events) != 3 || out.events[2].at != 2500*time.Millisecond {
		t.Fatalf("events got: %v expected a note-on at 2500ms", out.events)
	}
	player.Advance(time.Hour)
	if len(out.events) != 4 || player.Status() != seqroll.Stopped {
		t.Fatalf("playback did not finish: %v", out.events)
	}
}

func TestPlayerArmsOneChunkAtATime(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "arp").AddPattern(0, 16)
	for i := range 64 {
		p.Notes().AddNote(60+i%12, 100, 0, float64(i)*0.25, 0.125)
	}
	out := &recorder{}
	player := newPlayer(s, out, tracker.WithChunkSpan(2*time.Second))
	player.PlayFrom(0, 0, false)
	// notes every 125 ms, each 62.5 ms long: 32 event times per 2 s chunk
	const perChunk = 32
	for now := time.Duration(0); now < 9*time.Second; now += 10 * time.Millisecond {
		player.Advance(now)
		if player.Armed() > perChunk {
			t.Fatalf("%v armed at %v, more than one chunk", player.Armed(), now)
		}
	}
	if got := player.MaxArmed(); got != perChunk {
		t.Fatalf("max armed got: %v expected: %v", got, perChunk)
	}
	if len(out.events) != 128 {
		t.Fatalf("emitted got: %v expected: %v", len(out.events), 128)
	}
	for i := 1; i < len(out.events); i++ {
		if out.events[i].at < out.events[i-1].at {
			t.Fatalf("events out of order at %d", i)
		}
	}
	if player.Status() != seqroll.Stopped {
		t.Fatalf("status got: %v expected: stopped", player.Status())
	}
}

func TestPlayerLoops(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "lead").AddPattern(0, 4)
	p.Notes().AddNote(60, 100, 0, 0, 1)
	var restarts []time.Duration
	s.Bus().Subscribe(func(n seqroll.Notice) {
		if r, ok := n.(seqroll.Restarted); ok {
			restarts = append(restarts, r.Offset)
		}
	})
	out := &recorder{}
	player := newPlayer(s, out)
	player.PlayFrom(0, 4, true)
	player.Advance(1999 * time.Millisecond)
	if len(restarts) != 0 {
		t.Fatalf("restarted before the loop end")
	}
	player.Advance(2000 * time.Millisecond)
	if len(restarts) != 1 || restarts[0] != 2*time.Second {
		t.Fatalf("restarts got: %v expected: [2s]", restarts)
	}
	if got := out.count(isNoteOn); got != 2 {
		t.Fatalf("note-ons got: %v expected: 2", got)
	}
	player.Advance(4000 * time.Millisecond)
	if len(restarts) != 2 || player.Status() != seqroll.Playing {
		t.Fatalf("second pass did not restart")
	}
	player.SetLooping(false)
	player.Advance(6000 * time.Millisecond)
	if player.Status() != seqroll.Stopped || len(restarts) != 2 {
		t.Fatalf("player kept looping after SetLooping(false)")
	}
}

func TestPlayFromNothingToPlay(t *testing.T) {
	s := seqroll.NewStructure()
	b := tracker.NewBroker()
	player := newPlayer(s, &recorder{}, tracker.WithBroker(b))
	if player.PlayFrom(0, 0, false) {
		t.Fatalf("PlayFrom returned true for an empty structure")
	}
	if player.Status() != seqroll.Stopped {
		t.Fatalf("status got: %v expected: stopped", player.Status())
	}
	msg, ok := tracker.TimeoutReceive(b.ToModel, time.Second)
	if !ok {
		t.Fatalf("no alert was sent")
	}
	if a, ok := msg.Data.(tracker.Alert); !ok || a.Priority != tracker.Warning {
		t.Fatalf("message got: %v expected a warning", msg)
	}
}

func TestPlayFromWhilePlayingRestarts(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "lead").AddPattern(0, 4)
	p.Notes().AddNote(60, 100, 0, 0, 2)
	out := &recorder{}
	player := newPlayer(s, out)
	player.PlayFrom(0, 0, false)
	player.Advance(0)
	player.Advance(100 * time.Millisecond)
	player.PlayFrom(0, 0, false)
	player.Advance(100 * time.Millisecond)
	if len(out.events) != 3 || !isNoteOn(out.events[0].ev.Message) || !isNoteOff(out.events[1].ev.Message) || !isNoteOn(out.events[2].ev.Message) {
		t.Fatalf("events got: %v expected on, off, on", out.events)
	}
	if out.events[2].at != 100*time.Millisecond {
		t.Fatalf("restart time got: %v expected: 100ms", out.events[2].at)
	}
}

func TestPauseAndResume(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "lead").AddPattern(0, 4)
	p.Notes().AddNote(60, 100, 0, 2, 1)
	var statuses []seqroll.PlaybackStatus
	s.Bus().Subscribe(func(n seqroll.Notice) {
		if st, ok := n.(seqroll.PlaybackStatusChanged); ok {
			statuses = append(statuses, st.Status)
		}
	})
	out := &recorder{}
	player := newPlayer(s, out)
	player.PlayFrom(0, 0, false)
	player.Advance(400 * time.Millisecond)
	if !player.Pause() || player.Pause() {
		t.Fatalf("Pause should succeed exactly once")
	}
	player.Advance(5 * time.Second)
	if len(out.events) != 0 {
		t.Fatalf("events fired while paused: %v", out.events)
	}
	if got := player.Elapsed(); got != 400*time.Millisecond {
		t.Fatalf("elapsed got: %v expected: 400ms", got)
	}
	player.Resume()
	player.Advance(5599 * time.Millisecond)
	if len(out.events) != 0 {
		t.Fatalf("events fired early after resume: %v", out.events)
	}
	player.Advance(5600 * time.Millisecond)
	if len(out.events) != 1 {
		t.Fatalf("events got: %v expected the note-on", out.events)
	}
	player.Advance(time.Hour)
	expected := []seqroll.PlaybackStatus{seqroll.Playing, seqroll.Paused, seqroll.Playing, seqroll.Stopped}
	if len(statuses) != len(expected) {
		t.Fatalf("statuses got: %v expected: %v", statuses, expected)
	}
	for i := range expected {
		if statuses[i] != expected[i] {
			t.Fatalf("statuses got: %v expected: %v", statuses, expected)
		}
	}
}

func TestParameterPreview(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "synth").AddPattern(0, 4)
	p.Notes().AddNote(60, 100, 0, 0, 1)
	p.EnsureRegion(seqroll.ParameterKey(3, 0)).AddEvent(10, 0)
	var previews int
	s.Bus().Subscribe(func(n seqroll.Notice) {
		if _, ok := n.(seqroll.ParameterPreview); ok {
			previews++
		}
	})
	out := &recorder{}
	player := newPlayer(s, out)
	player.PlayFrom(0, 0, false)
	player.Advance(0)
	if previews != 1 || len(out.events) != 2 {
		t.Fatalf("previews got: %v events got: %v", previews, out.events)
	}
}

func TestRunPlaysUntilTheEnd(t *testing.T) {
	s := seqroll.NewStructure()
	p := s.AddTrack(0, "lead").AddPattern(0, 1)
	p.Notes().AddNote(60, 100, 0, 0, 0.1)
	b := tracker.NewBroker()
	b.Forward(s.Bus())
	out := &recorder{}
	player := newPlayer(s, out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go player.Run(ctx, b)
	b.ToPlayer <- tracker.PlayMsg{}
	stopped := false
	for !stopped {
		msg, ok := tracker.TimeoutReceive(b.ToModel, 5*time.Second)
		if !ok {
			t.Fatalf("timed out waiting for the player")
		}
		if st, ok := msg.Notice.(seqroll.PlaybackStatusChanged); ok && st.Status == seqroll.Stopped {
			stopped = true
		}
	}
	b.ClosePlayer <- struct{}{}
	select {
	case <-b.FinishedPlayer:
	case <-time.After(5 * time.Second):
		t.Fatalf("the player did not finish")
	}
	if len(out.events) != 2 {
		t.Fatalf("events got: %v expected a note-on and a note-off", out.events)
	}
}
