/*
Package seqroll is the data model of a piano-roll and automation sequencer.

All positions are in beats (quarter notes). A Structure holds a TimelineMap,
which maps beats to bars through meter segments and to milliseconds through
tempo segments, and a list of Tracks. A Track places Patterns on the timeline;
a Pattern has one NoteRegion and one ParameterRegion per automation lane of
its track. Events inside a pattern are relative to the pattern start.

Every edit publishes a Notice on the Bus of the structure, so views can
refresh. Values out of range are clamped rather than rejected.

Structure.MidiEvents flattens the whole arrangement, or a part of it, into
clusters of events keyed by real time, which is what the player in package
tracker consumes.
*/
package seqroll
