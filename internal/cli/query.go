package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/livequery"
	"github.com/roach88/liveview/internal/pin"
	"github.com/roach88/liveview/internal/queryir"
	"github.com/roach88/liveview/internal/report"
)

// QueryFlags selects the base query: --from/--where, or --view from a
// directory of CUE views.
type QueryFlags struct {
	From  string
	Where string
	Views string
	View  string
	Pin   string
}

func (f *QueryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.From, "from", "", "collection to query")
	cmd.Flags().StringVar(&f.Where, "where", "", `predicate as a JSON where node, e.g. '{"contains": {"title": "Swift"}}'`)
	cmd.Flags().StringVar(&f.Views, "views", "", "directory of CUE view definitions")
	cmd.Flags().StringVar(&f.View, "view", "", "name of a view in --views")
	cmd.Flags().StringVar(&f.Pin, "pin", "", "record id to include regardless of the predicate")
}

// Build returns the base query described by the flags.
func (f *QueryFlags) Build() (queryir.Select, error) {
	if f.View != "" {
		if f.From != "" || f.Where != "" {
			return queryir.Select{}, &LoadError{Code: ErrCodeInvalidFlag, Message: "--view cannot be combined with --from or --where"}
		}
		if f.Views == "" {
			return queryir.Select{}, &LoadError{Code: ErrCodeInvalidFlag, Message: "--view requires --views"}
		}
		view, err := loadView(f.Views, f.View)
		if err != nil {
			return queryir.Select{}, err
		}
		return view.Query, nil
	}

	if f.From == "" {
		return queryir.Select{}, &LoadError{Code: ErrCodeInvalidFlag, Message: "--from or --view is required"}
	}
	q := queryir.Select{From: f.From}
	if f.Where == "" {
		return q, nil
	}
	node, err := ir.UnmarshalIRValue([]byte(f.Where))
	if err != nil {
		return queryir.Select{}, &LoadError{Code: ErrCodeInvalidWhere, Message: fmt.Sprintf("invalid --where JSON: %v", err)}
	}
	pred, err := queryir.DecodeWhere(node)
	if err != nil {
		return queryir.Select{}, &LoadError{Code: ErrCodeInvalidWhere, Message: err.Error()}
	}
	q.Filter = pred
	return q, nil
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	QueryFlags
	Database string
}

// QueryOutput is the result of a one-shot query.
type QueryOutput struct {
	Query   string     `json:"query"`
	Pinned  string     `json:"pinned,omitempty"`
	Records RecordList `json:"records"`
}

func (o QueryOutput) String() string {
	return o.Records.String()
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Evaluate a view once",
		Long: `Evaluate a view once and print the matching records in store order.

The query is bound exactly as watch binds it, so --pin includes the pinned
record even when the predicate excludes it. A store failure exits 1 with
the reported error code.

Examples:
  liveview query --db ./tracks.db --from tracks --where '{"contains": {"title": "Swift"}}'
  liveview query --db ./tracks.db --views ./views --view swift --pin R2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	opts.QueryFlags.register(cmd)

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	q, err := opts.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	recorder := report.NewRecorder()
	lq := livequery.New(&q, st,
		livequery.WithPinSource(pin.NewSignal(ir.RecordID(opts.Pin))),
		livequery.WithReporter(report.Multi(report.NewLogger(logger), recorder)),
		livequery.WithLogger(logger),
		livequery.WithContext(cmd.Context()),
	)

	var got *feed.Snapshot
	lq.Observe(func(snap *feed.Snapshot) {
		got = snap
	})
	effective := lq.EffectiveQuery()
	lq.Close()

	if got == nil {
		return reportedFailure(out, recorder)
	}

	result := QueryOutput{
		Pinned:  opts.Pin,
		Records: toRecordList(got.Records()),
	}
	if effective != nil {
		result.Query = queryir.String(effective.Filter)
	}
	return out.Success(result)
}

// reportedFailure prints the first reported error and returns ExitFailure.
func reportedFailure(out *OutputFormatter, recorder *report.Recorder) error {
	entries := recorder.Entries()
	if len(entries) == 0 {
		return NewExitError(ExitFailure, "query delivered no results")
	}

	first := entries[0]
	code := ErrCodeGeneric
	var lqErr *livequery.Error
	if errors.As(first.Err, &lqErr) {
		code = string(lqErr.Code)
	}
	if err := out.Error(code, first.Err.Error(), first.Context); err != nil {
		return err
	}
	return WrapExitError(ExitFailure, "query failed", first.Err)
}
