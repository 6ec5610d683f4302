package seqroll

import (
	"cmp"
	"slices"

	"github.com/viterin/vek"
)

// ParameterRegion holds the automation breakpoints of one lane in a pattern.
// A continuous region interpolates between breakpoints on playback; a
// discrete one only sends the breakpoints.
type ParameterRegion struct {
	key        AutomationKey
	spec       ParamSpec
	events     []*Event
	continuous bool
	bus        *Bus
}

func NewParameterRegion(key AutomationKey) *ParameterRegion {
	return &ParameterRegion{key: key, spec: key.Spec()}
}

func (r *ParameterRegion) Key() AutomationKey { return r.key }
func (r *ParameterRegion) Spec() ParamSpec    { return r.spec }
func (r *ParameterRegion) Len() int           { return len(r.events) }
func (r *ParameterRegion) Continuous() bool   { return r.continuous }

// Events returns the breakpoints in time order.
func (r *ParameterRegion) Events() []*Event { return slices.Clone(r.events) }

// Value returns the value carried by a breakpoint of this region.
func Value(ev *Event) int {
	switch m := ev.Message.(type) {
	case ControllerValue:
		return m.Value
	case SysexParameterValue:
		return m.Value
	}
	return 0
}

// AddEvent adds a breakpoint. The value is clamped to the lane range and the
// time to be non-negative.
func (r *ParameterRegion) AddEvent(value int, beat float64) *Event {
	ev := &Event{Time: max(beat, 0), Message: r.key.Message(r.clamp(value))}
	r.events = append(r.events, ev)
	r.sort()
	r.changed()
	return ev
}

func (r *ParameterRegion) DeleteEvents(events ...*Event) {
	n := len(r.events)
	r.events = slices.DeleteFunc(r.events, func(e *Event) bool { return slices.Contains(events, e) })
	if len(r.events) != n {
		r.changed()
	}
}

func (r *ParameterRegion) SetContinuous(continuous bool) {
	if r.continuous == continuous {
		return
	}
	r.continuous = continuous
	r.bus.Publish(ContinuousChanged{Region: r, Continuous: continuous})
	r.changed()
}

// SetValue sets the value of a breakpoint, clamped to the lane range.
func (r *ParameterRegion) SetValue(ev *Event, value int) {
	if !slices.Contains(r.events, ev) {
		return
	}
	ev.Message = r.key.Message(r.clamp(value))
	r.changed()
}

// MoveEventsBy shifts the selected breakpoints in time and value. The time
// delta is clamped for the whole batch so that nothing moves before 0; values
// are clamped one by one to the lane range.
func (r *ParameterRegion) MoveEventsBy(events []*Event, dValue int, dBeat float64) {
	var sel []*Event
	for _, ev := range r.events {
		if slices.Contains(events, ev) {
			sel = append(sel, ev)
		}
	}
	if len(sel) == 0 {
		return
	}
	minTime := sel[0].Time
	for _, ev := range sel {
		minTime = min(minTime, ev.Time)
	}
	dBeat = max(dBeat, -minTime)
	for _, ev := range sel {
		ev.Time += dBeat
		ev.Message = r.key.Message(r.clamp(Value(ev) + dValue))
	}
	r.sort()
	r.changed()
}

// QuantizeEvents snaps all breakpoints to a grid of num/den whole notes.
func (r *ParameterRegion) QuantizeEvents(num, den int) {
	if len(r.events) == 0 {
		return
	}
	for _, ev := range r.events {
		ev.Time = max(Quantize(ev.Time, num, den), 0)
	}
	r.sort()
	r.changed()
}

// PatternEvents returns the events of one pattern repetition, clipped to
// [0, length]. For a continuous region, each pair of consecutive breakpoints
// whose values differ by more than the lane step is subdivided into
// |Δv|/step evenly spaced events, each moving one step towards the target.
func (r *ParameterRegion) PatternEvents(length float64) []Event {
	var ret []Event
	add := func(t float64, v int) {
		if t >= 0 && t <= length {
			ret = append(ret, Event{Time: t, Message: r.key.Message(v)})
		}
	}
	for i, ev := range r.events {
		if i > 0 && r.continuous {
			prev := r.events[i-1]
			r.ramp(prev.Time, Value(prev), ev.Time, Value(ev), add)
		}
		add(ev.Time, Value(ev))
	}
	return ret
}

// ramp emits the intermediate steps strictly between the two breakpoints.
func (r *ParameterRegion) ramp(t0 float64, v0 int, t1 float64, v1 int, emit func(float64, int)) {
	step := max(r.spec.Step, 1)
	delta := v1 - v0
	dir := 1
	if delta < 0 {
		delta, dir = -delta, -1
	}
	n := delta / step
	if n < 2 || t1 <= t0 {
		return
	}
	dt := (t1 - t0) / float64(n)
	times := make([]float64, n-1)
	for k := range times {
		times[k] = float64(k + 1)
	}
	vek.MulNumber_Inplace(times, dt)
	vek.AddNumber_Inplace(times, t0)
	for k, t := range times {
		emit(t, v0+dir*step*(k+1))
	}
}

// Clone returns a deep copy of the region, not attached to any bus.
func (r *ParameterRegion) Clone() *ParameterRegion {
	ret := NewParameterRegion(r.key)
	r.copyInto(ret)
	return ret
}

func (r *ParameterRegion) copyInto(dst *ParameterRegion) {
	dst.key, dst.spec, dst.continuous = r.key, r.spec, r.continuous
	dst.events = make([]*Event, len(r.events))
	for i, ev := range r.events {
		c := *ev
		dst.events[i] = &c
	}
}

func (r *ParameterRegion) clamp(v int) int { return clampInt(v, r.spec.Min, r.spec.Max) }

func (r *ParameterRegion) sort() {
	slices.SortStableFunc(r.events, func(a, b *Event) int { return cmp.Compare(a.Time, b.Time) })
}

func (r *ParameterRegion) changed() { r.bus.Publish(RegionChanged{Region: r}) }
