// Package queryir provides the predicate intermediate representation (IR)
// for liveview queries.
//
// QueryIR is the abstraction boundary between view definitions (CUE files,
// scenario YAML, CLI flags) and the stores that evaluate them:
//
//	[view definition] → [Query IR] → [SQL backend]     (internal/querysql)
//	                               → [expr backend]    (Expr, internal/memstore)
//
// A Query is a Select over one collection with an optional Filter. A nil
// Filter selects every record in the collection.
//
// PREDICATES:
//
//   - Equals{Field, Value}: field equals a string, int, or bool literal
//   - Contains{Field, Substring}: string field contains a substring
//     (case-sensitive)
//   - And{Predicates}: all must hold (empty = always true)
//   - Or{Predicates}: any must hold (empty = always false)
//
// The field name "id" addresses the record identifier rather than a field.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// types in this package implement it, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Contains:
//	case And:
//	case Or:
//	}
//
// TEXTUAL FORM:
//
// Every predicate has a canonical textual form: RFC 8785 canonical JSON of
// its structure (MarshalPredicate). ParsePredicate rebuilds the predicate from
// that text, and Clone is the round trip of the two. Structurally equal
// predicates have byte-identical text, which makes the text usable as a
// cache key and in logs.
//
// Predicate values are immutable by convention: combinators (AnyOf, AllOf)
// and Clone always build new values and never modify their inputs.
package queryir
