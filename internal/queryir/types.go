package queryir

import "github.com/roach88/liveview/internal/ir"

// Predicate represents a filter condition over records.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - Contains: field contains substring
//   - And: all predicates must be true
//   - Or: any predicate must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select represents access to one collection with optional filtering.
//
// Semantics:
//
//	SELECT * FROM <from> WHERE <filter> ORDER BY seq, id
//
// Results always come back in natural store order (insertion sequence,
// then id with binary collation), whatever the filter.
type Select struct {
	From   string    // Collection name (e.g., "tracks")
	Filter Predicate // WHERE conditions (nil = every record)
}

// WithFilter returns a copy of the select using a different filter.
func (s Select) WithFilter(p Predicate) Select {
	s.Filter = p
	return s
}

// Equals represents a field-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "genre", Value: ir.IRString("talk")}
//
// Value must be an ir.IRString, ir.IRInt, or ir.IRBool. Comparison is
// typed: a string field never equals an int literal. A missing field
// never matches.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Contains represents a field-contains-substring predicate.
//
// Example:
//
//	Contains{Field: "title", Substring: "Swift"}
//
// Only string fields match. Comparison is case-sensitive.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// And represents a conjunction (all must be true, empty = always true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction (any must be true, empty = always false).
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// IDEquals returns the predicate matching exactly one record id.
func IDEquals(id ir.RecordID) Equals {
	return Equals{Field: ir.IDField, Value: ir.IRString(id)}
}

// AnyOf combines predicates with logical OR into a new Or value.
// The input slice is copied.
func AnyOf(preds ...Predicate) Or {
	return Or{Predicates: append([]Predicate(nil), preds...)}
}

// AllOf combines predicates with logical AND into a new And value.
// The input slice is copied.
func AllOf(preds ...Predicate) And {
	return And{Predicates: append([]Predicate(nil), preds...)}
}

// deref normalizes pointer predicates to their value form so callers can
// switch on value types only.
func deref(p Predicate) Predicate {
	switch pred := p.(type) {
	case *Equals:
		if pred != nil {
			return *pred
		}
	case *Contains:
		if pred != nil {
			return *pred
		}
	case *And:
		if pred != nil {
			return *pred
		}
	case *Or:
		if pred != nil {
			return *pred
		}
	default:
		return p
	}
	return nil
}

// Normalize returns p in value form with nested pointers resolved.
// Backends call it once before switching on predicate types.
func Normalize(p Predicate) Predicate {
	switch pred := deref(p).(type) {
	case And:
		out := make([]Predicate, len(pred.Predicates))
		for i, sub := range pred.Predicates {
			out[i] = Normalize(sub)
		}
		return And{Predicates: out}
	case Or:
		out := make([]Predicate, len(pred.Predicates))
		for i, sub := range pred.Predicates {
			out[i] = Normalize(sub)
		}
		return Or{Predicates: out}
	default:
		return pred
	}
}
