//go:build !cgo

package cmd

import (
	charmlog "github.com/charmbracelet/log"
	"github.com/vsariola/seqroll/tracker"
)

const MIDISupported = false

func NewOutput(name string, manufacturer byte, logger *charmlog.Logger) (tracker.Emitter, func() error, error) {
	// with no cgo, we cannot use MIDI, so play into a null emitter
	logger.Warn("built without cgo, MIDI output is not available", "output", name)
	return tracker.NullEmitter{}, func() error { return nil }, nil
}

func OutputPorts() []string { return nil }

func CloseMIDI() {}
