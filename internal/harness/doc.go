// Package harness runs logfire scenarios: scripted sequences of event
// creation, clock movement, TTL sweeps and queries, checked against
// expectations and golden traces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: video_counts
//	description: "Counts successes per provider over two hours"
//	clock: 1400000000
//	events:
//	  video.success:
//	    ttl: 3600
//	    fields:
//	      provider: { type: string, required: true }
//	steps:
//	  - create: video.success
//	    data: { provider: youtube }
//	    expect: { id: 1 }
//	  - advance: 60
//	  - flush: true
//	    expect: { removed: { video.success: 0 } }
//	  - query: { events: [video.success], select: [$count] }
//	    expect: { result: 1 }
//	assertions:
//	  - type: event_count
//	    event: video.success
//	    count: 1
//
// Each step performs exactly one operation: create, get, query, flush,
// advance or reset. An expect clause may name the id, the removed counts,
// the result or the error message of the step. Object results are matched
// as subsets; everything else must be equal.
//
// # Assertion Types
//
//   - event_count: the number of stored events of a type
//   - event_exists: an event id is stored, optionally with matching fields
//   - event_absent: an event id is not stored
//   - trace_count: the number of steps of an operation that succeeded
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-process Redis with a fixed clock
// starting at the scenario's clock value, so traces are identical across
// runs and can be compared with golden files.
package harness
