package tracker

import (
	"time"

	"github.com/vsariola/seqroll"
)

type (
	// Broker carries messages between the editor (the model) and the player
	// goroutine, one channel per recipient. The model and the player never
	// share memory otherwise: the model posts commands, or func()s that edit
	// the Structure, to ToPlayer; the player goroutine executes them in order
	// and reports back through ToModel.
	//
	// For closing the player, ClosePlayer has a capacity of 1, so an empty
	// struct can always be sent without blocking; if it is full, someone else
	// already requested closing. FinishedPlayer is closed when the player has
	// released all notes and returned:
	//    select {
	//      case <-FinishedPlayer:
	//      case <-time.After(3 * time.Second):
	//    }
	Broker struct {
		ToModel  chan MsgToModel
		ToPlayer chan any // PlayMsg, StopMsg, PauseMsg, ResumeMsg, LoopMsg or func()

		ClosePlayer    chan struct{}
		FinishedPlayer chan struct{}
	}

	// MsgToModel is a message to the model. Notice is set for notices
	// forwarded from a Bus; infrequent messages such as Alerts go in Data.
	MsgToModel struct {
		Notice seqroll.Notice
		Data   any
	}

	// PlayMsg asks the player to play from Start to End, in beats. An End at
	// or before Start plays until the end marker.
	PlayMsg struct {
		Start, End float64
		Loop       bool
	}

	StopMsg   struct{}
	PauseMsg  struct{}
	ResumeMsg struct{}
	LoopMsg   struct{ Loop bool }
)

func NewBroker() *Broker {
	return &Broker{
		ToModel:        make(chan MsgToModel, 1024),
		ToPlayer:       make(chan any, 1024),
		ClosePlayer:    make(chan struct{}, 1),
		FinishedPlayer: make(chan struct{}),
	}
}

// Forward subscribes to bus and passes every notice on to ToModel. Notices
// are dropped if the model is not keeping up.
func (b *Broker) Forward(bus *seqroll.Bus) (unsubscribe func()) {
	return bus.Subscribe(func(n seqroll.Notice) {
		TrySend(b.ToModel, MsgToModel{Notice: n})
	})
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
