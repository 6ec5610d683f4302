package seqroll_test

import (
	"math"
	"testing"

	"github.com/vsariola/seqroll"
)

func TestMsFromBeatAcrossTempoChange(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 4, 4, 64)
	tl.SetTempo(4, 60)
	if got := tl.MsFromBeat(6); got != 4000 {
		t.Fatalf("MsFromBeat(6) got: %v expected: %v", got, 4000)
	}
	if got := tl.Cursor().Ms(6); got != 4000 {
		t.Fatalf("cursor Ms(6) got: %v expected: %v", got, 4000)
	}
	if got := tl.BeatFromMs(4000); math.Abs(got-6) > 1e-9 {
		t.Fatalf("BeatFromMs(4000) got: %v expected: %v", got, 6)
	}
}

func TestTempoMonotonicity(t *testing.T) {
	tl := seqroll.NewTimelineMap(90, 4, 4, 64)
	tl.SetTempo(3, 300)
	tl.SetTempo(7.5, 30)
	tl.SetTempo(12, 145)
	cursor := tl.Cursor()
	prev := math.Inf(-1)
	for b := 0.0; b < 20; b += 0.125 {
		ms := tl.MsFromBeat(b)
		if ms < prev {
			t.Fatalf("MsFromBeat(%v) = %v is less than the previous %v", b, ms, prev)
		}
		if c := cursor.Ms(b); c != ms {
			t.Fatalf("cursor Ms(%v) got: %v expected: %v", b, c, ms)
		}
		prev = ms
	}
	// querying backwards rewinds the cursor
	if c, d := cursor.Ms(2), tl.MsFromBeat(2); c != d {
		t.Fatalf("rewound cursor Ms(2) got: %v expected: %v", c, d)
	}
}

func TestTempoClamping(t *testing.T) {
	tl := seqroll.NewTimelineMap(1000, 4, 4, 64)
	if got := tl.Tempos()[0].BPM; got != seqroll.MaxBPM {
		t.Fatalf("initial bpm got: %v expected: %v", got, seqroll.MaxBPM)
	}
	i := tl.SetTempo(8, 1)
	if got := tl.Tempos()[i].BPM; got != seqroll.MinBPM {
		t.Fatalf("bpm got: %v expected: %v", got, seqroll.MinBPM)
	}
	if tl.RemoveTempo(0) {
		t.Fatalf("the first tempo segment was removed")
	}
	if !tl.RemoveTempo(i) || len(tl.Tempos()) != 1 {
		t.Fatalf("tempo segment %d was not removed", i)
	}
}

func TestBarFromBeatWithMeterChange(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 4, 4, 64)
	tl.AddMeter(2, 3, 4)
	if got := tl.BarFromBeat(8); got != 2 {
		t.Fatalf("BarFromBeat(8) got: %v expected: %v", got, 2)
	}
	if got := tl.BeatFromBarBeat(2, 0); got != 8 {
		t.Fatalf("BeatFromBarBeat(2, 0) got: %v expected: %v", got, 8)
	}
	if got := tl.BarFromBeat(11); got != 3 {
		t.Fatalf("BarFromBeat(11) got: %v expected: %v", got, 3)
	}
}

func TestBeatFromBarBeatStaysInBar(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 4, 4, 64)
	if got := tl.BeatFromBarBeat(1, 7); got != 7 {
		t.Fatalf("BeatFromBarBeat(1, 7) got: %v expected: %v", got, 7)
	}
	tl.ChangeMeter(0, 6, 8)
	// 6/8: three beats per bar, the last eighth starts at 2.5
	if got := tl.BeatFromBarBeat(0, 10); got != 2.5 {
		t.Fatalf("BeatFromBarBeat(0, 10) in 6/8 got: %v expected: %v", got, 2.5)
	}
}

func TestBarBeatRoundTrip(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 4, 4, 200)
	tl.AddMeter(2, 3, 4)
	tl.AddMeter(5, 7, 8)
	tl.AddMeter(9, 5, 16)
	tl.AddMeter(12, 2, 2)
	for b := 0.0; b < 80; b += 0.37 {
		pos := tl.BarBeat(b)
		if got := tl.BeatFromPosition(pos); math.Abs(got-b) > 1e-9 {
			t.Fatalf("beat %v -> %+v -> %v", b, pos, got)
		}
	}
}

func TestMeterCollisionRelocates(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 4, 4, 64)
	tl.AddMeter(2, 3, 4)
	tl.AddMeter(2, 5, 4)
	tl.AddMeter(0, 7, 8)
	meters := tl.Meters()
	expected := []seqroll.MeterSegment{{0, 4, 4}, {1, 7, 8}, {2, 3, 4}, {3, 5, 4}}
	if len(meters) != len(expected) {
		t.Fatalf("meters got: %v expected: %v", meters, expected)
	}
	for i := range expected {
		if meters[i] != expected[i] {
			t.Fatalf("meters got: %v expected: %v", meters, expected)
		}
	}
	if tl.MoveMeter(0, 4) {
		t.Fatalf("the first meter segment was moved")
	}
	tl.MoveMeter(1, 3)
	if got := tl.Meters()[3]; got.Bar != 4 || got.Numerator != 7 {
		t.Fatalf("moved meter got: %v expected it at bar 4", got)
	}
}

func TestMeterClamping(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 99, 5, 64)
	m := tl.Meters()[0]
	if m.Numerator != seqroll.MaxNumerator || m.Denominator != 4 {
		t.Fatalf("meter got: %v expected: 32/4", m)
	}
}

func TestLoopMarkers(t *testing.T) {
	tl := seqroll.NewTimelineMap(120, 4, 4, 64)
	tl.SetLoop(4, 4.5)
	start, end, ok := tl.Loop()
	if !ok || start != 4 || end != 5 {
		t.Fatalf("loop got: %v %v %v expected: 4 5 true", start, end, ok)
	}
	for i, m := range tl.Markers() {
		if m.Kind == seqroll.LoopEndMarker {
			tl.MoveMarker(i, 1)
		}
	}
	if _, end, _ := tl.Loop(); end != 5 {
		t.Fatalf("loop end moved before the start: %v", end)
	}
	for i, m := range tl.Markers() {
		if m.Kind == seqroll.EndMarker && tl.RemoveMarker(i) {
			t.Fatalf("the end marker was removed")
		}
	}
	for i, m := range tl.Markers() {
		if m.Kind == seqroll.LoopStartMarker {
			tl.RemoveMarker(i)
			break
		}
	}
	if _, _, ok := tl.Loop(); ok {
		t.Fatalf("removing the loop start kept the loop")
	}
	if got := tl.End(); got != 64 {
		t.Fatalf("end got: %v expected: %v", got, 64)
	}
}

func TestTimelineChangedNotice(t *testing.T) {
	s := seqroll.NewStructure()
	var count int
	s.Bus().Subscribe(func(n seqroll.Notice) {
		if _, ok := n.(seqroll.TimelineChanged); ok {
			count++
		}
	})
	s.Timeline.SetTempo(4, 100)
	s.Timeline.AddMeter(1, 3, 4)
	s.Timeline.AddMarker(2, "verse")
	if count != 3 {
		t.Fatalf("timeline notices got: %v expected: %v", count, 3)
	}
}
