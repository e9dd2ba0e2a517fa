// Package ttl implements the sweeper that expires events by per-type TTL.
//
// The sweeper is a two-state machine:
//
//	Idle --tick--> Flushing --all flushes done--> Idle
//	Flushing --tick--> Flushing (tick skipped, not queued)
//
// Each tick issues one atomic flush per event type that declares a TTL.
// Event types have disjoint key spaces, so their flushes run concurrently.
// A flush removes every event whose $date is strictly older than now-ttl,
// together with its set membership and index entries.
//
// Stop ends the timer. A tick that is already flushing runs to completion;
// cancelling the context passed to Start does not interrupt it.
package ttl
