package queryir

import (
	"fmt"

	"github.com/roach88/liveview/internal/ir"
)

// DecodeWhere builds a predicate from the "where" node shape used by
// scenario files and the CLI:
//
//	{contains: {title: "Swift"}}
//	{equals: {genre: "talk", explicit: false}}   // several fields = AND
//	{and: [<node>, <node>]}
//	{or: [<node>, <node>]}
//
// A node with several keys is the AND of its parts. Keys are processed in
// canonical order so the result is deterministic.
func DecodeWhere(v ir.IRValue) (Predicate, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("where: expected object, got %T", v)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("where: empty object")
	}

	var parts []Predicate
	for _, key := range obj.SortedKeys() {
		val := obj[key]
		switch key {
		case "equals", "contains":
			fields, ok := val.(ir.IRObject)
			if !ok || len(fields) == 0 {
				return nil, fmt.Errorf("where.%s: expected non-empty object of field: value", key)
			}
			for _, field := range fields.SortedKeys() {
				lit := fields[field]
				if key == "equals" {
					if err := checkLiteral(field, lit); err != nil {
						return nil, fmt.Errorf("where.equals: %w", err)
					}
					parts = append(parts, Equals{Field: field, Value: lit})
					continue
				}
				s, ok := lit.(ir.IRString)
				if !ok {
					return nil, fmt.Errorf("where.contains.%s: expected string, got %T", field, lit)
				}
				parts = append(parts, Contains{Field: field, Substring: string(s)})
			}
		case "and", "or":
			list, ok := val.(ir.IRArray)
			if !ok {
				return nil, fmt.Errorf("where.%s: expected list", key)
			}
			subs := make([]Predicate, len(list))
			for i, elem := range list {
				sub, err := DecodeWhere(elem)
				if err != nil {
					return nil, fmt.Errorf("where.%s[%d]: %w", key, i, err)
				}
				subs[i] = sub
			}
			if key == "and" {
				parts = append(parts, And{Predicates: subs})
			} else {
				parts = append(parts, Or{Predicates: subs})
			}
		default:
			return nil, fmt.Errorf("where: unknown key %q (want equals, contains, and, or)", key)
		}
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return And{Predicates: parts}, nil
}
