package queryir

import (
	"fmt"
	"regexp"
)

// fieldNamePattern restricts field names to identifiers. Both backends
// interpolate field names (as a JSON path and as an expr identifier), so the
// restriction is what keeps them injection-free.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedFields are expr-lang keywords and literals that cannot be used as
// identifiers in a rendered expression.
var reservedFields = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"matches": true, "contains": true, "startsWith": true, "endsWith": true,
	"let": true, "if": true, "else": true,
	"nil": true, "true": true, "false": true, "type": true,
}

// collectionNamePattern restricts collection names.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

func checkField(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("invalid field name %q: must match %s", name, fieldNamePattern)
	}
	if reservedFields[name] {
		return fmt.Errorf("invalid field name %q: reserved word", name)
	}
	return nil
}

// ValidationResult contains the problems found in a query.
type ValidationResult struct {
	// Valid is true when the query can be evaluated by every backend.
	Valid bool

	// Problems lists what must change. Empty when Valid is true.
	Problems []string
}

// Err returns the first problem as an error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", r.Problems[0])
}

// Validate checks a query against the rules shared by all backends:
//  1. Collection name is an identifier (dots and dashes allowed)
//  2. Field names are identifiers and not reserved words
//  3. Equals literals are string, int, or bool (no null, arrays, or objects)
//  4. Nested predicates are non-nil
//
// Validate is a pure function with no side effects.
func Validate(q Select) ValidationResult {
	v := &validator{problems: []string{}}
	if !collectionNamePattern.MatchString(q.From) {
		v.add("invalid collection name %q", q.From)
	}
	if deref(q.Filter) != nil {
		v.validatePredicate(q.Filter)
	}
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// ValidatePredicate checks a predicate on its own, without a collection.
func ValidatePredicate(p Predicate) ValidationResult {
	v := &validator{problems: []string{}}
	if deref(p) != nil {
		v.validatePredicate(p)
	}
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := deref(p).(type) {
	case nil:
		v.add("nil predicate inside combinator")
	case Equals:
		if err := checkField(pred.Field); err != nil {
			v.add("%v", err)
		}
		if err := checkLiteral(pred.Field, pred.Value); err != nil {
			v.add("%v", err)
		}
	case Contains:
		if err := checkField(pred.Field); err != nil {
			v.add("%v", err)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.add("unknown predicate type: %T", p)
	}
}
