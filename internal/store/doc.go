// Package store provides the Redis-backed event store.
//
// Layout under the configured key prefix:
//   - events:id                       counter of assigned event ids
//   - events:<id>                     hash of field → value
//   - set:<event type>                ids of every event of that type
//   - indexes:<event type>:<field>    sorted set of id by value, for every
//     number and timestamp field (including $id and $date)
//
// # Invariants
//
//   - Ids come from INCR and are never reused.
//   - A hash exists only together with its set membership and the index
//     entries of every numeric field present in it. Create and the TTL
//     flush each change all of them in one script, so no reader sees a
//     partial event.
//   - Validation completes before any write is attempted.
package store
