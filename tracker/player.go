package tracker

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/vsariola/seqroll"
)

type (
	// Player schedules the events of a Source onto an Emitter in real time.
	// Rather than arming a timer for every event of the song at once, the
	// events are cut into chunks of a fixed span (2 seconds by default); the
	// next chunk is armed only after every delay of the current chunk has
	// fired. Each chunk has one delay per distinct event time.
	//
	// The player is single threaded: Advance, PlayFrom, Stop and the other
	// methods must be called from one goroutine, typically through Run.
	Player struct {
		source Source
		out    Emitter
		bus    *seqroll.Bus
		broker *Broker
		log    *charmlog.Logger
		span   float64 // chunk span, ms

		status     seqroll.PlaybackStatus
		looping    bool
		start, end float64          // requested range, beats
		events     seqroll.EventMap // snapshot of the current pass
		next       int              // first cluster of events not yet armed
		chunk      *chunk           // nil when nothing is armed
		origin     time.Duration    // clock time of ms 0 of the current pass
		now        time.Duration    // clock time of the latest Advance
		pausedAt   time.Duration
		sounding   map[soundingNote]struct{}
		maxArmed   int
	}

	// Source is what the player plays; *seqroll.Structure implements it.
	Source interface {
		MidiEvents(start, end float64) seqroll.EventMap
		MsFromBeat(beat float64) float64
	}

	// Emitter is the transport the player dispatches events to. at is the
	// player clock time the event was due.
	Emitter interface {
		Emit(ev seqroll.Event, at time.Duration)
	}

	// NullEmitter drops everything, for running without any MIDI output.
	NullEmitter struct{}

	PlayerOption func(*Player)

	chunk struct {
		start  float64 // ms from the pass origin
		delays []delay
		fired  int
	}

	delay struct {
		at     float64 // ms from the chunk start
		events []seqroll.Event
	}

	soundingNote struct {
		channel, note uint8
	}
)

// DefaultChunkSpan is how far ahead the player arms delays.
const DefaultChunkSpan = 2 * time.Second

func (NullEmitter) Emit(seqroll.Event, time.Duration) {}

// WithLogger sets the logger; the default logs warnings and errors to
// stderr.
func WithLogger(l *charmlog.Logger) PlayerOption {
	return func(p *Player) { p.log = l }
}

// WithChunkSpan sets how much of the song is armed at a time.
func WithChunkSpan(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d > 0 {
			p.span = durationToMs(d)
		}
	}
}

// WithBroker makes the player send alerts to the model through b.
func WithBroker(b *Broker) PlayerOption {
	return func(p *Player) { p.broker = b }
}

// NewPlayer returns a stopped player. Notices are published on bus, which
// may be nil.
func NewPlayer(source Source, out Emitter, bus *seqroll.Bus, opts ...PlayerOption) *Player {
	p := &Player{
		source:   source,
		out:      out,
		bus:      bus,
		span:     durationToMs(DefaultChunkSpan),
		sounding: map[soundingNote]struct{}{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = charmlog.NewWithOptions(os.Stderr, charmlog.Options{Level: charmlog.WarnLevel, Prefix: "player"})
	}
	return p
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *charmlog.Logger { return charmlog.New(io.Discard) }

func (p *Player) Status() seqroll.PlaybackStatus { return p.status }
func (p *Player) Looping() bool                  { return p.looping }

// Elapsed returns how far the current pass has progressed.
func (p *Player) Elapsed() time.Duration {
	switch p.status {
	case seqroll.Playing:
		return p.now - p.origin
	case seqroll.Paused:
		return p.pausedAt - p.origin
	}
	return 0
}

// Armed returns the number of delays armed and not yet fired.
func (p *Player) Armed() int {
	if p.chunk == nil {
		return 0
	}
	return len(p.chunk.delays) - p.chunk.fired
}

// MaxArmed returns the largest number of delays ever armed at once.
func (p *Player) MaxArmed() int { return p.maxArmed }

// PlayFrom starts playing the range [start, end] in beats; an end at or
// before start means the end marker. Playback that is already running is
// stopped first. It returns false, and stays stopped, if there is nothing to
// play. When loop is set, the range starts over after its last event, or at
// end if one was given.
func (p *Player) PlayFrom(start, end float64, loop bool) bool {
	if p.status != seqroll.Stopped {
		p.Stop()
	}
	p.start, p.end, p.looping = start, end, loop
	if !p.load() {
		p.log.Info("nothing to play", "start", start, "end", end)
		p.SendAlert("PlayFrom", fmt.Sprintf("Nothing to play after beat %v", start), Warning)
		return false
	}
	p.origin = p.now
	p.arm()
	p.setStatus(seqroll.Playing)
	return true
}

// load takes a fresh snapshot of the events to play.
func (p *Player) load() bool {
	evs := p.source.MidiEvents(p.start, p.end)
	if len(evs) == 0 {
		p.events, p.next = nil, 0
		return false
	}
	if p.looping && p.end > p.start {
		endMs := p.source.MsFromBeat(p.end) - p.source.MsFromBeat(max(p.start, 0))
		if endMs > evs[len(evs)-1].Ms {
			evs = append(evs, seqroll.Cluster{Ms: endMs})
		}
	}
	p.events, p.next = evs, 0
	return true
}

// arm creates the chunk holding the first cluster not yet armed, or clears
// the chunk if everything has been played.
func (p *Player) arm() {
	if p.next >= len(p.events) {
		p.chunk = nil
		return
	}
	first := p.events[p.next].Ms
	c := &chunk{start: math.Floor(first/p.span) * p.span}
	for p.next < len(p.events) && p.events[p.next].Ms < c.start+p.span {
		cl := p.events[p.next]
		c.delays = append(c.delays, delay{at: cl.Ms - c.start, events: cl.Events})
		p.next++
	}
	p.chunk = c
	p.maxArmed = max(p.maxArmed, len(c.delays))
	p.log.Debug("armed chunk", "start", c.start, "delays", len(c.delays))
}

// NextDue returns the clock time of the next armed delay.
func (p *Player) NextDue() (time.Duration, bool) {
	if p.status != seqroll.Playing || p.chunk == nil {
		return 0, false
	}
	c := p.chunk
	return p.origin + msToDuration(c.start+c.delays[c.fired].at), true
}

// Advance moves the player clock to now and fires every delay that is due,
// arming the following chunks as the current ones run out.
func (p *Player) Advance(now time.Duration) {
	p.now = now
	for {
		due, ok := p.NextDue()
		if !ok || due > now {
			return
		}
		c := p.chunk
		d := c.delays[c.fired]
		c.fired++
		p.dispatch(d.events, due)
		if c.fired == len(c.delays) {
			p.arm()
			if p.chunk == nil {
				p.finish(due)
			}
		}
	}
}

// finish is called when the last delay of a pass has fired.
func (p *Player) finish(at time.Duration) {
	if p.looping && at > p.origin {
		p.origin = at
		if p.load() {
			p.arm()
			p.log.Debug("loop restarted", "offset", at)
			p.bus.Publish(seqroll.Restarted{Offset: at})
			return
		}
	}
	p.release(at)
	p.events, p.next = nil, 0
	p.setStatus(seqroll.Stopped)
}

func (p *Player) dispatch(events []seqroll.Event, at time.Duration) {
	for _, ev := range events {
		switch m := ev.Message.(type) {
		case seqroll.NoteOn:
			p.sounding[soundingNote{m.Channel, m.Note}] = struct{}{}
			p.out.Emit(ev, at)
		case seqroll.NoteOff:
			delete(p.sounding, soundingNote{m.Channel, m.Note})
			p.out.Emit(ev, at)
		case seqroll.ControllerValue:
			p.out.Emit(ev, at)
		case seqroll.SysexParameterValue:
			p.out.Emit(ev, at)
			p.bus.Publish(seqroll.ParameterPreview{Event: ev})
		}
	}
}

// Stop cancels all armed delays and future chunks and sends a note-off for
// every note still sounding.
func (p *Player) Stop() {
	if p.status == seqroll.Stopped {
		return
	}
	p.chunk, p.events, p.next = nil, nil, 0
	p.release(p.now)
	p.setStatus(seqroll.Stopped)
}

// Pause freezes playback and silences sounding notes; Resume continues from
// the same point.
func (p *Player) Pause() bool {
	if p.status != seqroll.Playing {
		return false
	}
	p.pausedAt = p.now
	p.release(p.now)
	p.setStatus(seqroll.Paused)
	return true
}

func (p *Player) Resume() bool {
	if p.status != seqroll.Paused {
		return false
	}
	p.origin += p.now - p.pausedAt
	p.setStatus(seqroll.Playing)
	return true
}

// SetLooping changes whether the current range starts over at its end.
func (p *Player) SetLooping(loop bool) {
	if p.looping == loop {
		return
	}
	p.looping = loop
	p.bus.Publish(seqroll.PlaybackStatusChanged{Status: p.status, Looping: loop})
}

// release sends a note-off for every sounding note, in channel and pitch
// order.
func (p *Player) release(at time.Duration) {
	if len(p.sounding) == 0 {
		return
	}
	notes := make([]soundingNote, 0, len(p.sounding))
	for n := range p.sounding {
		notes = append(notes, n)
	}
	slices.SortFunc(notes, func(a, b soundingNote) int {
		return cmp.Or(cmp.Compare(a.channel, b.channel), cmp.Compare(a.note, b.note))
	})
	for _, n := range notes {
		p.out.Emit(seqroll.Event{Message: seqroll.NoteOff{Note: n.note, Channel: n.channel}}, at)
	}
	clear(p.sounding)
	p.log.Debug("released notes", "count", len(notes))
}

func (p *Player) setStatus(s seqroll.PlaybackStatus) {
	p.status = s
	p.bus.Publish(seqroll.PlaybackStatusChanged{Status: s, Looping: p.looping})
}

// SendAlert logs the message and, if the player has a broker, passes it on
// to the model.
func (p *Player) SendAlert(name, message string, priority AlertPriority) {
	switch priority {
	case Error:
		p.log.Error(message, "alert", name)
	case Warning:
		p.log.Warn(message, "alert", name)
	}
	if p.broker == nil {
		return
	}
	TrySend(p.broker.ToModel, MsgToModel{Data: Alert{
		Name:     name,
		Message:  message,
		Priority: priority,
		Duration: defaultAlertDuration,
	}})
}

// Run drives the player in real time until ctx is done or ClosePlayer is
// signalled, executing the commands received from b.ToPlayer in between.
// A single timer is kept armed for the next due delay.
func (p *Player) Run(ctx context.Context, b *Broker) error {
	t0 := time.Now()
	clock := func() time.Duration { return time.Since(t0) }
	p.now = 0
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer func() {
		timer.Stop()
		p.Stop()
		close(b.FinishedPlayer)
	}()
	for {
		p.Advance(clock())
		if due, ok := p.NextDue(); ok {
			timer.Reset(max(due-clock(), 0))
		} else {
			timer.Stop()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.ClosePlayer:
			return nil
		case msg := <-b.ToPlayer:
			p.Advance(clock())
			p.handle(msg)
		case <-timer.C:
		}
	}
}

func (p *Player) handle(msg any) {
	switch m := msg.(type) {
	case PlayMsg:
		p.PlayFrom(m.Start, m.End, m.Loop)
	case StopMsg:
		p.Stop()
	case PauseMsg:
		p.Pause()
	case ResumeMsg:
		p.Resume()
	case LoopMsg:
		p.SetLooping(m.Loop)
	case func():
		m()
	default:
		p.log.Warn("unknown message", "type", fmt.Sprintf("%T", msg))
	}
}

func msToDuration(ms float64) time.Duration { return time.Duration(math.Round(ms * float64(time.Millisecond))) }
func durationToMs(d time.Duration) float64  { return float64(d) / float64(time.Millisecond) }
