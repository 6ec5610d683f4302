package tracker_test

import (
	"testing"
	"time"

	"github.com/vsariola/seqroll"
	"github.com/vsariola/seqroll/tracker"
)

func TestForwardPassesNotices(t *testing.T) {
	s := seqroll.NewStructure()
	b := tracker.NewBroker()
	unsubscribe := b.Forward(s.Bus())
	s.Timeline.SetTempo(0, 90)
	msg, ok := tracker.TimeoutReceive(b.ToModel, time.Second)
	if !ok {
		t.Fatalf("no notice was forwarded")
	}
	if _, ok := msg.Notice.(seqroll.TimelineChanged); !ok {
		t.Fatalf("notice got: %#v expected TimelineChanged", msg.Notice)
	}
	unsubscribe()
	s.Timeline.SetTempo(0, 100)
	if _, ok := tracker.TimeoutReceive(b.ToModel, 10*time.Millisecond); ok {
		t.Fatalf("notice forwarded after unsubscribing")
	}
}

func TestTrySendDoesNotBlock(t *testing.T) {
	c := make(chan int, 1)
	if !tracker.TrySend(c, 1) {
		t.Fatalf("TrySend to an empty channel failed")
	}
	if tracker.TrySend(c, 2) {
		t.Fatalf("TrySend to a full channel succeeded")
	}
	if v := <-c; v != 1 {
		t.Fatalf("received got: %v expected: 1", v)
	}
}
