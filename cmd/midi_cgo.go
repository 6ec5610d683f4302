//go:build cgo

package cmd

import (
	charmlog "github.com/charmbracelet/log"
	"github.com/vsariola/seqroll/tracker"
	"github.com/vsariola/seqroll/tracker/gomidi"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the rtmidi driver
)

// MIDISupported tells whether the binary was built with a MIDI driver.
const MIDISupported = true

// NewOutput opens the MIDI out port whose name contains name.
func NewOutput(name string, manufacturer byte, logger *charmlog.Logger) (tracker.Emitter, func() error, error) {
	out, err := gomidi.OpenOutput(name, gomidi.WithManufacturer(manufacturer), gomidi.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return out, out.Close, nil
}

// OutputPorts lists the names of the available MIDI out ports.
func OutputPorts() []string {
	var ret []string
	for _, p := range midi.GetOutPorts() {
		ret = append(ret, p.String())
	}
	return ret
}

// CloseMIDI releases the MIDI driver.
func CloseMIDI() { midi.CloseDriver() }
