// Package ir provides the canonical value and record types for liveview.
//
// Every other internal package imports ir; ir imports nothing internal. It
// defines:
//   - IRValue: the sealed set of field value types (no floats)
//   - Record and RecordID: the unit stored in a collection and shown in views
//   - MarshalCanonical: RFC 8785 canonical JSON, the only encoding used for
//     digests and for the textual form of predicates
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers (keeps canonical
//     encoding and equality deterministic across stores)
//   - Record order is defined by Seq (insertion position), never by wall time
//   - All JSON tags use snake_case
package ir
