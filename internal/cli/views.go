package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/liveview/internal/queryir"
)

// ViewOutput is the printed form of a compiled view.
type ViewOutput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	From        string `json:"from"`
	Where       string `json:"where"`
}

// ViewList prints one view per line.
type ViewList []ViewOutput

func (l ViewList) String() string {
	if len(l) == 0 {
		return "(no views)"
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = fmt.Sprintf("%s: %s WHERE %s", v.Name, v.From, v.Where)
		if v.Description != "" {
			lines[i] += "  # " + v.Description
		}
	}
	return strings.Join(lines, "\n")
}

// ValidateOutput is the result of views validate.
type ValidateOutput struct {
	Valid  bool        `json:"valid"`
	Files  int         `json:"files"`
	Views  int         `json:"views"`
	Errors []ErrorInfo `json:"errors,omitempty"`
}

// ErrorInfo is one validation error.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewViewsCommand creates the views command group.
func NewViewsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Inspect CUE view definitions",
		Long: `Inspect CUE view definitions.

A view file declares named queries:

  view: swift: {
      from: "tracks"
      where: contains: title: "Swift"
  }`,
	}

	cmd.AddCommand(newViewsListCommand(rootOpts))
	cmd.AddCommand(newViewsValidateCommand(rootOpts))
	return cmd
}

func newViewsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <views-dir>",
		Short: "Compile and print every view",
		Long: `Compile every view in the directory and print its predicate.

Example:
  liveview views list ./views
  liveview views list ./views --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViewsList(opts, args[0], cmd)
		},
	}
}

func newViewsValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <views-dir>",
		Short: "Report every error in the view definitions",
		Long: `Validate every view in the directory, reporting all errors at once.

Exit codes:
  0 - All views are valid
  1 - One or more views are invalid
  2 - Command error (missing directory, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViewsValidate(opts, args[0], cmd)
		},
	}
}

func runViewsList(opts *RootOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	result, errs := LoadViewDir(dir, LoadModeFailFast)
	if len(errs) > 0 {
		code := ErrCodeGeneric
		if le, ok := errs[0].(*LoadError); ok {
			code = le.Code
		}
		if err := out.Error(code, errs[0].Error(), nil); err != nil {
			return err
		}
		return WrapExitError(exitCodeForLoad(code), "failed to load views", errs[0])
	}
	out.VerboseLog("loaded %d views from %d files", len(result.Views), result.FileCount)

	views := make(ViewList, len(result.Views))
	for i, v := range result.Views {
		views[i] = ViewOutput{
			Name:        v.Name,
			Description: v.Description,
			From:        v.Query.From,
			Where:       queryir.String(v.Query.Filter),
		}
	}
	return out.Success(views)
}

func runViewsValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	result, errs := LoadViewDir(dir, LoadModeCollectAll)
	if result == nil {
		code := ErrCodeGeneric
		if le, ok := errs[0].(*LoadError); ok {
			code = le.Code
		}
		if err := out.Error(code, errs[0].Error(), nil); err != nil {
			return err
		}
		return WrapExitError(exitCodeForLoad(code), "failed to load views", errs[0])
	}

	output := ValidateOutput{
		Valid: len(errs) == 0,
		Files: result.FileCount,
		Views: len(result.Views),
	}
	for _, err := range errs {
		output.Errors = append(output.Errors, toErrorInfo(err))
	}

	if opts.Format == "json" {
		if err := out.Success(output); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if output.Valid {
			fmt.Fprintf(w, "✓ %d views in %d files are valid\n", output.Views, output.Files)
		} else {
			fmt.Fprintf(w, "✗ %d errors\n", len(output.Errors))
			for _, e := range output.Errors {
				fmt.Fprintf(w, "  %s\n", formatErrorInfo(e))
			}
		}
	}

	if !output.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(output.Errors)))
	}
	return nil
}

// exitCodeForLoad separates bad input paths from invalid view content.
func exitCodeForLoad(code string) int {
	switch code {
	case ErrCodeNotFound, ErrCodeScanError, ErrCodeNoFiles:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

func toErrorInfo(err error) ErrorInfo {
	le, ok := err.(*LoadError)
	if !ok {
		return ErrorInfo{Code: ErrCodeGeneric, Message: err.Error()}
	}
	info := ErrorInfo{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		info.File = le.Pos.Filename()
		info.Line = le.Pos.Line()
		info.Column = le.Pos.Column()
	}
	return info
}

func formatErrorInfo(e ErrorInfo) string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: [%s] %s", e.File, e.Line, e.Column, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
