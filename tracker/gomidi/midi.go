package gomidi

import (
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/vsariola/seqroll"
	"github.com/vsariola/seqroll/tracker"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type (
	// Output sends the events dispatched by the player to a MIDI out port.
	// It implements tracker.Emitter.
	Output struct {
		send         func(midi.Message) error
		port         drivers.Out
		manufacturer byte
		log          *charmlog.Logger
	}

	// Input forwards notes and controller changes received on a MIDI in
	// port to the model as seqroll.InputEvent notices.
	Input struct {
		broker *tracker.Broker
		in     drivers.In
		stop   func()
	}

	Option func(*Output)
)

// DefaultManufacturer is the sysex manufacturer ID used for parameter
// messages: 0x7D is reserved for non-commercial use.
const DefaultManufacturer = 0x7D

func WithManufacturer(id byte) Option { return func(o *Output) { o.manufacturer = id & 0x7F } }

func WithLogger(l *charmlog.Logger) Option { return func(o *Output) { o.log = l } }

// NewOutput returns an Output that hands the wire messages to send.
func NewOutput(send func(midi.Message) error, opts ...Option) *Output {
	o := &Output{send: send, manufacturer: DefaultManufacturer}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = charmlog.NewWithOptions(os.Stderr, charmlog.Options{Level: charmlog.WarnLevel, Prefix: "midi"})
	}
	return o
}

// OpenOutput opens the first out port whose name contains name. A MIDI
// driver must have been registered, e.g. by importing rtmididrv.
func OpenOutput(name string, opts ...Option) (*Output, error) {
	port, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("could not find MIDI output %q: %w", name, err)
	}
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("opening MIDI output failed: %w", err)
	}
	o := NewOutput(send, opts...)
	o.port = port
	o.log.Info("connected", "output", port.String())
	return o, nil
}

func (o *Output) Emit(ev seqroll.Event, at time.Duration) {
	msg := Message(ev, o.manufacturer)
	if msg == nil {
		return
	}
	if err := o.send(msg); err != nil {
		o.log.Error("send failed", "event", ev.String(), "at", at, "err", err)
	}
}

func (o *Output) Close() error {
	if o.port == nil || !o.port.IsOpen() {
		return nil
	}
	return o.port.Close()
}

// Message converts an event to a MIDI wire message. Values are clamped to
// 7 bits where the wire format requires it.
func Message(ev seqroll.Event, manufacturer byte) midi.Message {
	switch m := ev.Message.(type) {
	case seqroll.NoteOn:
		return midi.NoteOn(m.Channel&0x0F, m.Note&0x7F, m.Velocity&0x7F)
	case seqroll.NoteOff:
		return midi.NoteOffVelocity(m.Channel&0x0F, m.Note&0x7F, m.Velocity&0x7F)
	case seqroll.ControllerValue:
		return midi.ControlChange(m.Channel&0x0F, m.Controller&0x7F, uint8(max(0, min(m.Value, 127))))
	case seqroll.SysexParameterValue:
		return midi.SysEx(ParameterSysex(manufacturer, m))
	}
	return nil
}

// ParameterSysex returns the sysex payload, without the F0/F7 framing, that
// sets a parameter: manufacturer, part, parameter and value, the last two as
// 14-bit numbers split into high and low 7-bit bytes.
func ParameterSysex(manufacturer byte, m seqroll.SysexParameterValue) []byte {
	param, value := m.Param&0x3FFF, m.Value&0x3FFF
	return []byte{
		manufacturer & 0x7F,
		byte(m.Part & 0x7F),
		byte(param >> 7), byte(param & 0x7F),
		byte(value >> 7), byte(value & 0x7F),
	}
}

// NewInput returns an Input that is not connected to any port; messages
// are fed to it with HandleMessage.
func NewInput(broker *tracker.Broker) *Input { return &Input{broker: broker} }

// OpenInput starts listening on the first in port whose name contains name.
func OpenInput(name string, broker *tracker.Broker) (*Input, error) {
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("could not find MIDI input %q: %w", name, err)
	}
	i := NewInput(broker)
	i.in = in
	i.stop, err = midi.ListenTo(in, i.HandleMessage)
	if err != nil {
		return nil, fmt.Errorf("opening MIDI input failed: %w", err)
	}
	return i, nil
}

// HandleMessage converts msg and sends it to the model; messages are
// dropped if the model is not keeping up.
func (i *Input) HandleMessage(msg midi.Message, timestampms int32) {
	ev, ok := Event(msg)
	if !ok {
		return
	}
	tracker.TrySend(i.broker.ToModel, tracker.MsgToModel{Notice: seqroll.InputEvent{
		Event: ev,
		At:    time.Duration(timestampms) * time.Millisecond,
	}})
}

// Event converts a note or controller wire message to an Event at time 0.
func Event(msg midi.Message) (seqroll.Event, bool) {
	var channel, key, velocity, controller, value uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		return seqroll.Event{Message: seqroll.NoteOn{Note: key, Velocity: velocity, Channel: channel}}, true
	case msg.GetNoteOff(&channel, &key, &velocity):
		return seqroll.Event{Message: seqroll.NoteOff{Note: key, Velocity: velocity, Channel: channel}}, true
	case msg.GetControlChange(&channel, &controller, &value):
		return seqroll.Event{Message: seqroll.ControllerValue{Controller: controller, Value: int(value), Channel: channel}}, true
	}
	return seqroll.Event{}, false
}

func (i *Input) Close() error {
	if i.stop != nil {
		i.stop()
	}
	if i.in != nil && i.in.IsOpen() {
		return i.in.Close()
	}
	return nil
}
