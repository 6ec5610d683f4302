/*
Package tracker contains the real-time side of the sequencer: the Player that
schedules the events of a seqroll.Structure onto a MIDI transport, and the
Broker used to talk to the player from the editor.

The Player does not arm the whole song at once. It asks the structure for a
snapshot of the events in the requested range, grouped by real time, and cuts
the snapshot into chunks of two seconds. Only the delays of one chunk are ever
armed; when the last of them fires, the next chunk is armed. Stopping cancels
the armed chunk, forgets the rest and releases every sounding note.

The Player itself has no goroutines or timers. Advance moves its clock and
fires whatever is due, which makes it deterministic under test. Run wraps it
with a single time.Timer and executes the commands arriving on
Broker.ToPlayer, e.g.

	broker := tracker.NewBroker()
	player := tracker.NewPlayer(structure, out, structure.Bus())
	go player.Run(ctx, broker)
	broker.ToPlayer <- tracker.PlayMsg{Start: 0, Loop: true}

Edits of the structure while Run is active must also be posted to ToPlayer as
func()s, so that the model is only ever touched from one goroutine.
*/
package tracker
