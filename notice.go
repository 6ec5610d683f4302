package seqroll

import (
	"slices"
	"time"
)

type (
	// Notice is a change notification published on a Bus. The set of notices
	// is closed; subscribers switch on the concrete type.
	Notice interface {
		isNotice()
	}

	// RegionChanged is published after any edit of a region's events.
	RegionChanged struct{ Region Region }

	RepetitionsChanged struct {
		Pattern     *Pattern
		Repetitions int
	}

	// PatternChanged is published when a pattern is moved or resized, or its
	// contents are replaced.
	PatternChanged struct{ Pattern *Pattern }

	// TrackChanged is published when patterns or automation lanes are added
	// to or removed from a track, or its channel or label changes.
	TrackChanged struct{ Track *Track }

	// TimelineChanged is published after tempo, meter or marker edits.
	TimelineChanged struct{}

	ContinuousChanged struct {
		Region     *ParameterRegion
		Continuous bool
	}

	PlaybackStatusChanged struct {
		Status  PlaybackStatus
		Looping bool
	}

	// Restarted is published when a looping playback starts a new pass.
	// Offset is the player clock time at which the new pass begins.
	Restarted struct{ Offset time.Duration }

	// ParameterPreview carries a sysex parameter event that was just played,
	// so the editor can show the parameter value changing.
	ParameterPreview struct{ Event Event }

	// InputEvent is a note or controller event received from a MIDI input,
	// handed to the editor for recording. At is the driver timestamp.
	InputEvent struct {
		Event Event
		At    time.Duration
	}

	PlaybackStatus int

	// Bus delivers notices synchronously to its subscribers, in subscription
	// order. A nil *Bus drops everything, so detached clones can be edited
	// without side effects.
	Bus struct {
		subs []subscription
		next int
	}

	subscription struct {
		id int
		fn func(Notice)
	}
)

const (
	Stopped PlaybackStatus = iota
	Playing
	Paused
)

func (RegionChanged) isNotice()         {}
func (RepetitionsChanged) isNotice()    {}
func (PatternChanged) isNotice()        {}
func (TrackChanged) isNotice()          {}
func (TimelineChanged) isNotice()       {}
func (ContinuousChanged) isNotice()     {}
func (PlaybackStatusChanged) isNotice() {}
func (Restarted) isNotice()             {}
func (ParameterPreview) isNotice()      {}
func (InputEvent) isNotice()            {}

func (s PlaybackStatus) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "stopped"
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn and returns a function that unregisters it.
func (b *Bus) Subscribe(fn func(Notice)) (unsubscribe func()) {
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id, fn})
	return func() {
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Publish calls every subscriber with n. Subscribers may subscribe or
// unsubscribe during delivery; the change takes effect on the next Publish.
func (b *Bus) Publish(n Notice) {
	if b == nil {
		return
	}
	for _, s := range slices.Clone(b.subs) {
		s.fn(n)
	}
}
