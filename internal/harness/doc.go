// Package harness runs live query scenarios and checks the callback history.
//
// A scenario seeds an in-memory store, observes one query with an optional
// pinned record, and applies steps one at a time. Deliveries run on an
// engine.Loop that is drained after every step, so each callback invocation
// is attributed to the step that caused it and the trace is deterministic.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	collection: tracks
//	records:
//	  - id: R1
//	    fields: { title: "Swift Concurrency" }
//	where:
//	  contains: { title: "Swift" }
//	pin: R2
//	steps:
//	  - put: { id: R3, fields: { title: "SwiftUI" } }
//	  - delete: R1
//	  - pin: R3
//	  - unpin: true
//	  - fail_store: "disk offline"
//	  - restore_store: true
//	  - fail_feed: "connection reset"
//	  - rebind: true
//	expect:
//	  deliveries:
//	    - [R1]
//	    - null
//	  reports: 1
//	assertions:
//	  - type: final_state
//	    id: R3
//	    expect: { title: "SwiftUI" }
//
// A null delivery is the "no results" signal sent after a failure. An empty
// list is a successful evaluation that matched nothing.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - delivery_count: Verifies the callback ran exactly N times
//   - last_delivery: Verifies the final delivered ids (or nil: true)
//   - report_count: Verifies N errors were reported, optionally all with one code
//   - final_state: Reads a record and verifies expected field values
//
// # Golden Traces
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/{name}.golden. Run the tests with -update to regenerate.
package harness
