package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/store"
)

// RecordOptions holds flags for the put, get and delete commands.
type RecordOptions struct {
	*RootOptions
	Database   string
	Collection string
	ID         string
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <fields-json>",
		Short: "Insert or update a record",
		Long: `Insert or update a record.

Fields are a JSON object of strings, integers, booleans, arrays and
objects. Floats and nulls are rejected. A new record gets the next
insertion sequence; an update keeps it and bumps the version. Without
--id a UUIDv7 is generated.

Example:
  liveview put --db ./tracks.db --collection tracks --id R1 '{"title": "Swift Concurrency"}'
  liveview put --db ./tracks.db --collection tracks '{"title": "Metal"}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Collection, "collection", "", "record collection (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (generated when empty)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one record",
		Long: `Print one record.

Example:
  liveview get --db ./tracks.db R1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Long: `Delete a record. Watchers of its collection see it leave.

Example:
  liveview delete --db ./tracks.db R1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openStore opens the database, mapping failures to ExitCommandError.
func openStore(path string, logger *slog.Logger, opts ...store.Option) (*store.Store, error) {
	logger.Debug("opening database", "path", path)
	st, err := store.Open(path, append([]store.Option{store.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}

// parseFields parses a JSON object into record fields.
func parseFields(data string) (ir.IRObject, error) {
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("invalid fields JSON: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("fields must be a JSON object, got %T", v)
	}
	return obj, nil
}

func runPut(opts *RecordOptions, fieldsJSON string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	fields, err := parseFields(fieldsJSON)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse fields", err)
	}

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	rec, err := st.Put(cmd.Context(), ir.Record{
		ID:         ir.RecordID(opts.ID),
		Collection: opts.Collection,
		Fields:     fields,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to store record", err)
	}

	return out.Success(toRecordOutput(rec))
}

func runGet(opts *RecordOptions, id string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	rec, err := st.Get(cmd.Context(), ir.RecordID(id))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read record", err)
	}

	return out.Success(toRecordOutput(rec))
}

func runDelete(opts *RecordOptions, id string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	if err := st.Delete(cmd.Context(), ir.RecordID(id)); err != nil {
		return WrapExitError(ExitFailure, "failed to delete record", err)
	}

	if out.Format == "json" {
		return out.Success(map[string]string{"deleted": id})
	}
	return out.Success(fmt.Sprintf("deleted %s", id))
}
