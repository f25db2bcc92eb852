package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/liveview/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Failure (scenarios failed, query degraded to no results, invalid views)
	ExitCommandError = 2 // Command error (invalid paths, database not found, bad flags)
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error // optional
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text or JSON.
//
// Success and Error wrap one-shot results in a CLIResponse envelope. Stream
// writes unwrapped values, one per line, for long-running commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for one-shot commands.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"` // "E001", "STORE_UNAVAILABLE", ...
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Stream writes v as one JSON line, or as its text form.
func (f *OutputFormatter) Stream(v any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(v)
	}
	_, err := fmt.Fprintln(f.Writer, v)
	return err
}

// VerboseLog writes to ErrWriter when verbose mode is enabled, so JSON on
// Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) isJSON() bool {
	return f.Format == "json"
}

// RecordOutput is the printed form of a stored record.
type RecordOutput struct {
	ID         string      `json:"id"`
	Collection string      `json:"collection"`
	Fields     ir.IRObject `json:"fields"`
	Seq        int64       `json:"seq"`
	Version    int64       `json:"version"`
}

func (r RecordOutput) String() string {
	fields, err := ir.MarshalIRValue(r.Fields)
	if err != nil {
		fields = []byte("<invalid>")
	}
	return fmt.Sprintf("%s %s seq=%d version=%d %s", r.ID, r.Collection, r.Seq, r.Version, fields)
}

// RecordList prints one record per line.
type RecordList []RecordOutput

func (l RecordList) String() string {
	if len(l) == 0 {
		return "(no records)"
	}
	lines := make([]string, len(l))
	for i, r := range l {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// IDs returns the record ids in order.
func (l RecordList) IDs() []string {
	ids := make([]string, len(l))
	for i, r := range l {
		ids[i] = r.ID
	}
	return ids
}

// Delivery is one printed callback invocation of a live view.
type Delivery struct {
	Seq     int64      `json:"seq"`
	Nil     bool       `json:"nil,omitempty"`
	Digest  string     `json:"digest,omitempty"` // equal for identical results
	Records RecordList `json:"records,omitempty"`
}

func (d Delivery) String() string {
	if d.Nil {
		return fmt.Sprintf("[%d] no results (see log)", d.Seq)
	}
	return fmt.Sprintf("[%d] %d records: %s", d.Seq, len(d.Records), strings.Join(d.Records.IDs(), ", "))
}

func toRecordOutput(rec ir.Record) RecordOutput {
	fields := rec.Fields
	if fields == nil {
		fields = ir.IRObject{}
	}
	return RecordOutput{
		ID:         string(rec.ID),
		Collection: rec.Collection,
		Fields:     fields,
		Seq:        rec.Seq,
		Version:    rec.Version,
	}
}

func toRecordList(records []ir.Record) RecordList {
	out := make(RecordList, len(records))
	for i, rec := range records {
		out[i] = toRecordOutput(rec)
	}
	return out
}
