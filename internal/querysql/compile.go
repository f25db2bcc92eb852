package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

// Columns is the column list every compiled query selects, in scan order.
const Columns = "id, collection, fields, seq, version"

// SQLCompiler compiles a queryir.Select to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries end in ORDER BY seq, id for natural store order.
// CRITICAL: All values (and JSON paths) are parameterized, never interpolated.
//
// Field predicates read the JSON "fields" column. Each comparison is guarded
// by json_type so a field of the wrong type is a non-match, matching the
// memory store's expr guards.
type SQLCompiler struct {
	// Table is the records table name. Default: "records".
	Table string
}

// NewSQLCompiler creates a compiler for the default records table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "records"}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Select) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	params := []any{q.From}

	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE collection = ?", Columns, c.table())

	if p := queryir.Normalize(q.Filter); p != nil {
		filterSQL, filterParams, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" AND ")
		b.WriteString(filterSQL)
		params = append(params, filterParams...)
	}

	// MANDATORY: deterministic natural order
	b.WriteString(" ORDER BY ")
	b.WriteString(StableOrderKey())

	return b.String(), params, nil
}

// StableOrderKey returns the ORDER BY clause shared by every query.
// COLLATE BINARY keeps text ordering identical across SQLite versions.
func StableOrderKey() string {
	return "seq ASC, id COLLATE BINARY ASC"
}

func (c *SQLCompiler) table() string {
	if c.Table == "" {
		return "records"
	}
	return c.Table
}

// compilePredicate compiles a normalized predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case queryir.Contains:
		return c.compileContains(pred)
	case queryir.And:
		return c.compileJoined(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJoined(pred.Predicates, " OR ", "1 = 0")
	case nil:
		return "", nil, fmt.Errorf("nil predicate inside combinator")
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles a typed equality.
// CRITICAL: Value is NEVER interpolated - always parameterized.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	if eq.Field == ir.IDField {
		s, ok := eq.Value.(ir.IRString)
		if !ok {
			// Record ids are strings; TEXT affinity would otherwise coerce.
			return "1 = 0", nil, nil
		}
		return "id = ?", []any{string(s)}, nil
	}

	path := jsonPath(eq.Field)
	switch val := eq.Value.(type) {
	case ir.IRString:
		return "(json_type(fields, ?) = 'text' AND json_extract(fields, ?) = ?)",
			[]any{path, path, string(val)}, nil
	case ir.IRInt:
		return "(json_type(fields, ?) = 'integer' AND json_extract(fields, ?) = ?)",
			[]any{path, path, int64(val)}, nil
	case ir.IRBool:
		// json_type reports booleans as 'true' / 'false'.
		return "json_type(fields, ?) = ?", []any{path, fmt.Sprintf("%t", bool(val))}, nil
	default:
		return "", nil, fmt.Errorf("field %q: unsupported literal %T", eq.Field, eq.Value)
	}
}

// compileContains compiles a case-sensitive substring match.
func (c *SQLCompiler) compileContains(ct queryir.Contains) (string, []any, error) {
	if ct.Field == ir.IDField {
		return "instr(id, ?) > 0", []any{ct.Substring}, nil
	}
	path := jsonPath(ct.Field)
	return "(json_type(fields, ?) = 'text' AND instr(json_extract(fields, ?), ?) > 0)",
		[]any{path, path, ct.Substring}, nil
}

// compileJoined compiles a conjunction or disjunction. Each part is
// parenthesized by the caller's grouping so precedence never leaks.
func (c *SQLCompiler) compileJoined(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range preds {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return "(" + strings.Join(sqlParts, sep) + ")", allParams, nil
}

// jsonPath returns the JSON path for a validated field name.
func jsonPath(field string) string {
	return "$." + field
}
