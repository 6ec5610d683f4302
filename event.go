package seqroll

import "fmt"

type (
	// Event is something that happens at a point of beat-time. Inside a
	// region, Time is relative to the start of the pattern; in the flattened
	// lists returned by Structure, Time is absolute.
	Event struct {
		Time    float64
		Message Message
	}

	// Message is the payload of an Event: one of NoteOn, NoteOff,
	// ControllerValue or SysexParameterValue. The set is closed; consumers
	// switch on the concrete type.
	Message interface {
		isMessage()
	}

	NoteOn struct {
		Note     uint8
		Velocity uint8
		Channel  uint8
	}

	NoteOff struct {
		Note     uint8
		Velocity uint8
		Channel  uint8
	}

	ControllerValue struct {
		Controller uint8
		Value      int
		Channel    uint8
	}

	// SysexParameterValue sets a synthesizer parameter. Part selects the
	// multitimbral part the parameter belongs to.
	SysexParameterValue struct {
		Param int
		Value int
		Part  int
	}
)

// MinimumLength is the shortest allowed note, in beats.
const MinimumLength = 1.0 / 512

func (NoteOn) isMessage()              {}
func (NoteOff) isMessage()             {}
func (ControllerValue) isMessage()     {}
func (SysexParameterValue) isMessage() {}

// IsNote reports whether the event is a NoteOn or a NoteOff.
func (e *Event) IsNote() bool {
	switch e.Message.(type) {
	case NoteOn, NoteOff:
		return true
	}
	return false
}

func (e Event) String() string {
	switch m := e.Message.(type) {
	case NoteOn:
		return fmt.Sprintf("%.4f note-on ch%d %d vel %d", e.Time, m.Channel, m.Note, m.Velocity)
	case NoteOff:
		return fmt.Sprintf("%.4f note-off ch%d %d vel %d", e.Time, m.Channel, m.Note, m.Velocity)
	case ControllerValue:
		return fmt.Sprintf("%.4f cc ch%d %d=%d", e.Time, m.Channel, m.Controller, m.Value)
	case SysexParameterValue:
		return fmt.Sprintf("%.4f param part%d %d=%d", e.Time, m.Part, m.Param, m.Value)
	}
	return fmt.Sprintf("%.4f <nil>", e.Time)
}

// Kind returns a short name of the message type, used in listings.
func (e Event) Kind() string {
	switch e.Message.(type) {
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	case ControllerValue:
		return "controller"
	case SysexParameterValue:
		return "parameter"
	}
	return ""
}

// EventTimeComparison orders events by time. At equal times, note-offs come
// before note-ons so a retriggered pitch is released before it sounds again,
// and note events come before everything else.
func EventTimeComparison(a, b Event) int {
	switch {
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	}
	return eventRank(a.Message) - eventRank(b.Message)
}

func eventRank(m Message) int {
	switch m.(type) {
	case NoteOff:
		return 0
	case NoteOn:
		return 1
	}
	return 2
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
