package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/liveview/internal/compiler"
)

// LoadMode controls how errors are handled during view loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the views loaded from a directory.
type LoadResult struct {
	Views     []compiler.View
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during view loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadViewDir loads and compiles the CUE views in dir, then runs the
// schema checks (names, duplicates) over everything that compiled.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadViewDir(dir string, mode LoadMode) (*LoadResult, []error) {
	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("views directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing views directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	// Find CUE files
	cueFiles, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	root, err := compiler.LoadValue(dir)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeLoadFailed)}
	}

	result := &LoadResult{FileCount: len(cueFiles)}

	views, compileErrs := compiler.CompileViews(root, mode == LoadModeCollectAll)
	var errs []error
	for _, e := range compileErrs {
		errs = append(errs, convertCompileError(e, ErrCodeGeneric))
	}
	if mode == LoadModeFailFast && len(errs) > 0 {
		return result, errs[:1]
	}

	for _, ve := range compiler.Validate(views) {
		errs = append(errs, &LoadError{Code: ve.Code, Message: fmt.Sprintf("%s: %s", ve.Field, ve.Message)})
		if mode == LoadModeFailFast {
			return result, errs
		}
	}

	compiler.SortViews(views)
	result.Views = views
	return result, errs
}

// loadView returns the named view from dir.
func loadView(dir, name string) (compiler.View, error) {
	result, errs := LoadViewDir(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return compiler.View{}, errs[0]
	}
	view, ok := compiler.FindView(result.Views, name)
	if !ok {
		return compiler.View{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("view %q not found in %s", name, dir)}
	}
	return view, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    fallback,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or evaluation failed
	ErrCodeNotFound    = "E005" // Path or view not found
	ErrCodeInvalidFlag = "E006" // Invalid flag combination

	// View errors, aligned with compiler validation codes
	ErrCodeViewName     = compiler.ErrViewNameInvalid  // E101
	ErrCodeViewFrom     = compiler.ErrViewFromEmpty    // E102
	ErrCodeInvalidWhere = compiler.ErrViewQueryInvalid // E103
	ErrCodeInvalidType  = "E104"                       // Invalid value type (e.g., float)
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "from":
		return ErrCodeViewFrom
	case "where", "view":
		return ErrCodeInvalidWhere
	case "type":
		return ErrCodeInvalidType
	case "cue":
		return ErrCodeLoadFailed
	default:
		return ErrCodeGeneric
	}
}
