package queryir

import (
	"fmt"

	"github.com/roach88/liveview/internal/ir"
)

// Canonical operator names used in the textual form.
const (
	opEquals   = "eq"
	opContains = "contains"
	opAnd      = "and"
	opOr       = "or"
)

// ToIR converts a predicate into its structural ir.IRObject form:
//
//	{"op":"eq","field":"genre","value":"talk"}
//	{"op":"contains","field":"title","value":"Swift"}
//	{"op":"or","predicates":[...]}
func ToIR(p Predicate) (ir.IRObject, error) {
	switch pred := deref(p).(type) {
	case nil:
		return nil, fmt.Errorf("cannot encode nil predicate")
	case Equals:
		if err := checkLiteral(pred.Field, pred.Value); err != nil {
			return nil, err
		}
		return ir.IRObject{
			"op":    ir.IRString(opEquals),
			"field": ir.IRString(pred.Field),
			"value": pred.Value,
		}, nil
	case Contains:
		return ir.IRObject{
			"op":    ir.IRString(opContains),
			"field": ir.IRString(pred.Field),
			"value": ir.IRString(pred.Substring),
		}, nil
	case And:
		subs, err := toIRList(pred.Predicates)
		if err != nil {
			return nil, fmt.Errorf("and: %w", err)
		}
		return ir.IRObject{"op": ir.IRString(opAnd), "predicates": subs}, nil
	case Or:
		subs, err := toIRList(pred.Predicates)
		if err != nil {
			return nil, fmt.Errorf("or: %w", err)
		}
		return ir.IRObject{"op": ir.IRString(opOr), "predicates": subs}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func toIRList(preds []Predicate) (ir.IRArray, error) {
	out := make(ir.IRArray, len(preds))
	for i, sub := range preds {
		obj, err := ToIR(sub)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = obj
	}
	return out, nil
}

// checkLiteral rejects values that stores cannot compare deterministically.
func checkLiteral(field string, v ir.IRValue) error {
	switch v.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
		return nil
	case nil, ir.IRNull:
		return fmt.Errorf("field %q compared to null: use an explicit value", field)
	default:
		return fmt.Errorf("field %q compared to %T: only string, int, bool literals are supported", field, v)
	}
}

// FromIR rebuilds a predicate from its structural form.
func FromIR(v ir.IRValue) (Predicate, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("predicate must be an object, got %T", v)
	}
	op, ok := obj["op"].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("predicate missing string \"op\"")
	}

	switch string(op) {
	case opEquals:
		field, err := stringMember(obj, "field")
		if err != nil {
			return nil, err
		}
		if err := checkLiteral(field, obj["value"]); err != nil {
			return nil, err
		}
		return Equals{Field: field, Value: obj["value"]}, nil
	case opContains:
		field, err := stringMember(obj, "field")
		if err != nil {
			return nil, err
		}
		sub, err := stringMember(obj, "value")
		if err != nil {
			return nil, err
		}
		return Contains{Field: field, Substring: sub}, nil
	case opAnd, opOr:
		list, ok := obj["predicates"].(ir.IRArray)
		if !ok {
			return nil, fmt.Errorf("%s: missing \"predicates\" array", op)
		}
		preds := make([]Predicate, len(list))
		for i, elem := range list {
			sub, err := FromIR(elem)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", op, i, err)
			}
			preds[i] = sub
		}
		if op == opAnd {
			return And{Predicates: preds}, nil
		}
		return Or{Predicates: preds}, nil
	default:
		return nil, fmt.Errorf("unknown predicate op %q", op)
	}
}

func stringMember(obj ir.IRObject, key string) (string, error) {
	s, ok := obj[key].(ir.IRString)
	if !ok {
		return "", fmt.Errorf("predicate %q must be a string", key)
	}
	return string(s), nil
}

// MarshalPredicate returns the canonical textual form of p.
func MarshalPredicate(p Predicate) ([]byte, error) {
	obj, err := ToIR(p)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(obj)
}

// ParsePredicate rebuilds a predicate from its canonical textual form.
func ParsePredicate(data []byte) (Predicate, error) {
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse predicate: %w", err)
	}
	p, err := FromIR(v)
	if err != nil {
		return nil, fmt.Errorf("parse predicate: %w", err)
	}
	return p, nil
}

// Clone reconstructs p from its canonical form. The result shares no
// memory with p. A nil predicate clones to nil.
func Clone(p Predicate) (Predicate, error) {
	if deref(p) == nil {
		return nil, nil
	}
	text, err := MarshalPredicate(p)
	if err != nil {
		return nil, fmt.Errorf("clone predicate: %w", err)
	}
	return ParsePredicate(text)
}

// Text returns the canonical textual form as a string, or an empty string
// for nil. Intended for logs and error-report context.
func Text(p Predicate) string {
	if deref(p) == nil {
		return ""
	}
	text, err := MarshalPredicate(p)
	if err != nil {
		return fmt.Sprintf("<invalid predicate: %v>", err)
	}
	return string(text)
}

// EqualPredicates reports whether two predicates are structurally equal.
func EqualPredicates(a, b Predicate) bool {
	if deref(a) == nil || deref(b) == nil {
		return deref(a) == nil && deref(b) == nil
	}
	ta, errA := MarshalPredicate(a)
	tb, errB := MarshalPredicate(b)
	return errA == nil && errB == nil && string(ta) == string(tb)
}
