package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

// View is a named query loaded from a CUE file.
type View struct {
	Name        string
	Description string
	Query       queryir.Select
}

// CompileView parses a CUE value into a View.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the view struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`view: swift: { from: "tracks", where: contains: title: "Swift" }`)
//	view, err := CompileView(v.LookupPath(cue.ParsePath("view.swift")))
func CompileView(v cue.Value) (*View, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	view := &View{}

	// View name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		view.Name = labels[len(labels)-1].String()
	}

	// from (required)
	fromVal := v.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return nil, &CompileError{
			Field:   "from",
			Message: "from is required",
			Pos:     v.Pos(),
		}
	}
	from, err := fromVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	view.Query.From = from

	// description (optional)
	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		view.Description = desc
	}

	// where (optional, absent = every record)
	whereVal := v.LookupPath(cue.ParsePath("where"))
	if whereVal.Exists() {
		node, err := toIR(whereVal)
		if err != nil {
			return nil, err
		}
		pred, err := queryir.DecodeWhere(node)
		if err != nil {
			return nil, &CompileError{
				Field:   "where",
				Message: err.Error(),
				Pos:     whereVal.Pos(),
			}
		}
		view.Query.Filter = pred
	}

	if err := queryir.Validate(view.Query).Err(); err != nil {
		return nil, &CompileError{
			Field:   "view",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	return view, nil
}

// CompileViews compiles every field of a `view` struct.
// With collectAll false it stops at the first error.
func CompileViews(root cue.Value, collectAll bool) ([]View, []error) {
	viewsVal := root.LookupPath(cue.ParsePath("view"))
	if !viewsVal.Exists() {
		return nil, []error{&CompileError{Field: "view", Message: "no views defined", Pos: root.Pos()}}
	}

	iter, err := viewsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		views []View
		errs  []error
	)
	for iter.Next() {
		view, err := CompileView(iter.Value())
		if err != nil {
			errs = append(errs, err)
			if !collectAll {
				return views, errs
			}
			continue
		}
		views = append(views, *view)
	}
	return views, errs
}

// toIR converts a concrete CUE value to an IR value.
// Floats are forbidden: records only hold integers.
func toIR(v cue.Value) (ir.IRValue, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{
			Field:   "cue",
			Message: fmt.Sprintf("value must be concrete: %v", err),
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "type",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
