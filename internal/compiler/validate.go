package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/liveview/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported type for validation

	// View errors (E101-E109)
	ErrViewNameInvalid  = "E101" // name must be an identifier
	ErrViewFromEmpty    = "E102" // from is required
	ErrViewQueryInvalid = "E103" // query rejected by the stores
	ErrDuplicateName    = "E105" // duplicate view name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled views against schema rules.
// Returns all errors found (does not fail-fast).
// Supports View and []View.
func Validate(v any) []ValidationError {
	switch val := v.(type) {
	case *View:
		return validateView(val)
	case View:
		return validateView(&val)
	case []View:
		return validateViews(val)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// viewNamePattern matches CLI-friendly view names.
var viewNamePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9_-]*$`)

// validateView validates a single view.
func validateView(view *View) []ValidationError {
	var errs []ValidationError
	field := func(name string) string {
		if view.Name == "" {
			return name
		}
		return fmt.Sprintf("view.%s.%s", view.Name, name)
	}

	// E101: name must be usable on the command line
	if !viewNamePattern.MatchString(view.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid view name %q, must match %s", view.Name, viewNamePattern),
			Code:    ErrViewNameInvalid,
		})
	}

	// E102: from must name a collection
	if strings.TrimSpace(view.Query.From) == "" {
		errs = append(errs, ValidationError{
			Field:   field("from"),
			Message: "from is required and must be non-empty",
			Code:    ErrViewFromEmpty,
		})
	} else if err := queryir.Validate(queryir.Select{From: view.Query.From}).Err(); err != nil {
		errs = append(errs, ValidationError{
			Field:   field("from"),
			Message: err.Error(),
			Code:    ErrViewFromEmpty,
		})
	}

	// E103: every store must accept the predicate
	for _, problem := range queryir.ValidatePredicate(view.Query.Filter).Problems {
		errs = append(errs, ValidationError{
			Field:   field("where"),
			Message: problem,
			Code:    ErrViewQueryInvalid,
		})
	}

	return errs
}

// validateViews validates each view and rejects duplicate names.
func validateViews(views []View) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i := range views {
		errs = append(errs, validateView(&views[i])...)

		// E105: duplicate view name
		if seen[views[i].Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("views[%d].name", i),
				Message: fmt.Sprintf("duplicate view name: %q", views[i].Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[views[i].Name] = true
	}

	return errs
}
