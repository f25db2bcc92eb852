package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/liveview/internal/ir"
)

// Expr renders p as an expr-lang boolean expression over an environment
// holding the record's fields plus "id".
//
// Examples:
//
//	Contains{Field: "title", Substring: "Swift"}
//	→ (type(title) == "string" && title contains "Swift")
//
//	Or{[Contains{...}, IDEquals("r2")]}
//	→ ((type(title) == "string" && title contains "Swift") || (id == "r2"))
//
// The type guards keep evaluation total: a missing or non-string field is a
// non-match, never a runtime error. This mirrors the json_type guards in the
// SQL backend so both stores agree on every record.
func Expr(p Predicate) (string, error) {
	if deref(p) == nil {
		return "true", nil
	}
	var b strings.Builder
	if err := writeExpr(&b, p); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeExpr(b *strings.Builder, p Predicate) error {
	switch pred := deref(p).(type) {
	case Equals:
		if err := checkField(pred.Field); err != nil {
			return err
		}
		lit, typeName, err := exprLiteral(pred.Field, pred.Value)
		if err != nil {
			return err
		}
		if pred.Field == ir.IDField {
			if typeName != "string" {
				// Record ids are strings; compare nothing else against them.
				b.WriteString("false")
				return nil
			}
			fmt.Fprintf(b, "(id == %s)", lit)
			return nil
		}
		fmt.Fprintf(b, "(type(%s) == %q && %s == %s)", pred.Field, typeName, pred.Field, lit)
	case Contains:
		if err := checkField(pred.Field); err != nil {
			return err
		}
		if pred.Field == ir.IDField {
			fmt.Fprintf(b, "(id contains %s)", strconv.Quote(pred.Substring))
			return nil
		}
		fmt.Fprintf(b, "(type(%s) == \"string\" && %s contains %s)",
			pred.Field, pred.Field, strconv.Quote(pred.Substring))
	case And:
		return writeJoined(b, pred.Predicates, " && ", "true")
	case Or:
		return writeJoined(b, pred.Predicates, " || ", "false")
	case nil:
		return fmt.Errorf("nil predicate inside combinator")
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}

func writeJoined(b *strings.Builder, preds []Predicate, sep, empty string) error {
	if len(preds) == 0 {
		b.WriteString(empty)
		return nil
	}
	b.WriteByte('(')
	for i, sub := range preds {
		if i > 0 {
			b.WriteString(sep)
		}
		if err := writeExpr(b, sub); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

// exprLiteral returns the literal text and the expr type() name for v.
func exprLiteral(field string, v ir.IRValue) (string, string, error) {
	if err := checkLiteral(field, v); err != nil {
		return "", "", err
	}
	switch val := v.(type) {
	case ir.IRString:
		return strconv.Quote(string(val)), "string", nil
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10), "int", nil
	case ir.IRBool:
		return strconv.FormatBool(bool(val)), "bool", nil
	}
	return "", "", fmt.Errorf("field %q: unsupported literal %T", field, v)
}

// String renders p for humans, e.g. in log lines:
//
//	title ~ "Swift" OR id = "r2"
func String(p Predicate) string {
	switch pred := deref(p).(type) {
	case nil:
		return "TRUE"
	case Equals:
		if lit, _, err := exprLiteral(pred.Field, pred.Value); err == nil {
			return fmt.Sprintf("%s = %s", pred.Field, lit)
		}
		return fmt.Sprintf("%s = <invalid>", pred.Field)
	case Contains:
		return fmt.Sprintf("%s ~ %s", pred.Field, strconv.Quote(pred.Substring))
	case And:
		return joinString(pred.Predicates, " AND ", "TRUE")
	case Or:
		return joinString(pred.Predicates, " OR ", "FALSE")
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

func joinString(preds []Predicate, sep, empty string) string {
	if len(preds) == 0 {
		return empty
	}
	parts := make([]string, len(preds))
	for i, sub := range preds {
		s := String(sub)
		switch deref(sub).(type) {
		case And, Or:
			if len(preds) > 1 {
				s = "(" + s + ")"
			}
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}
