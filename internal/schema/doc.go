// Package schema holds the registry of declared event types.
//
// An event type is named "<category>.<event>" and declares a closed set of
// typed fields. Every event type implicitly carries $id (number) and $date
// (timestamp). The Registry is built once from configuration and is
// read-only afterwards, so it is shared across goroutines without locking.
package schema
