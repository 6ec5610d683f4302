package seqroll

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type (
	// AutomationKey identifies an automation lane. It is comparable and can
	// be used as a map key. Mapping and Part are only meaningful for sysex
	// parameters.
	AutomationKey struct {
		Kind    LaneKind
		ID      int
		Mapping int `yaml:",omitempty"`
		Part    int `yaml:",omitempty"`
	}

	LaneKind int

	// ParamSpec is the legal value range of a lane and the value increment
	// used when ramping between breakpoints of a continuous lane.
	ParamSpec struct {
		Name string `yaml:",omitempty"`
		Min  int
		Max  int
		Step int
	}
)

const (
	Controller LaneKind = iota
	SysexParameter
)

// Parameters lists the synthesizer parameters known to the editor, keyed by
// parameter number. Parameters not listed here behave like 7-bit values.
var Parameters = map[int]ParamSpec{}

// RegisterParameter adds or replaces a parameter definition. Step is forced
// to be at least 1 and Max at least Min.
func RegisterParameter(id int, spec ParamSpec) {
	spec.Step = max(spec.Step, 1)
	spec.Max = max(spec.Max, spec.Min)
	Parameters[id] = spec
}

var controllerSpec = ParamSpec{Min: 0, Max: 127, Step: 1}

// ControllerKey returns the key of a MIDI continuous controller lane.
func ControllerKey(cc int) AutomationKey {
	return AutomationKey{Kind: Controller, ID: clampInt(cc, 0, 127)}
}

// ParameterKey returns the key of a sysex parameter lane.
func ParameterKey(param, part int) AutomationKey {
	return AutomationKey{Kind: SysexParameter, ID: param, Part: part}
}

// Spec returns the value range of the lane.
func (k AutomationKey) Spec() ParamSpec {
	if k.Kind == SysexParameter {
		if s, ok := Parameters[k.ID]; ok {
			return s
		}
	}
	return controllerSpec
}

// Message returns the message that sets the lane to value.
func (k AutomationKey) Message(value int) Message {
	if k.Kind == SysexParameter {
		return SysexParameterValue{Param: k.ID, Value: value, Part: k.Part}
	}
	return ControllerValue{Controller: uint8(k.ID), Value: value}
}

func (k LaneKind) String() string {
	switch k {
	case Controller:
		return "controller"
	case SysexParameter:
		return "sysex parameter"
	}
	return fmt.Sprintf("lane kind %d", int(k))
}

// Label is a human readable name of the lane, shown in lane headers.
func (k AutomationKey) Label() string {
	titleCaser := cases.Title(language.English) // casers are stateful
	if s := k.Spec(); k.Kind == SysexParameter && s.Name != "" {
		return fmt.Sprintf("%s (part %d)", titleCaser.String(s.Name), k.Part+1)
	}
	if k.Kind == SysexParameter {
		return fmt.Sprintf("%s %d (part %d)", titleCaser.String(k.Kind.String()), k.ID, k.Part+1)
	}
	return fmt.Sprintf("%s %d", titleCaser.String(k.Kind.String()), k.ID)
}
