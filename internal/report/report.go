// Package report provides error-reporting sinks for live queries.
//
// Reporters are fire-and-forget: Report never blocks on I/O beyond a log
// write and never panics.
package report

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Reporter receives errors absorbed by a live query together with their
// context (query text, collection, pinned id).
type Reporter interface {
	Report(err error, context map[string]string)
}

// Func adapts a function to Reporter.
type Func func(err error, context map[string]string)

// Report calls f.
func (f Func) Report(err error, context map[string]string) { f(err, context) }

// Discard drops every report.
var Discard Reporter = Func(func(error, map[string]string) {})

// Logger reports errors as structured slog records at Error level.
type Logger struct {
	log *slog.Logger
}

// NewLogger creates a reporter writing to l (slog.Default() when nil).
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{log: l}
}

// Report logs err with its context keys in sorted order.
func (r *Logger) Report(err error, context map[string]string) {
	attrs := make([]any, 0, 2+2*len(context))
	attrs = append(attrs, "error", err)
	for _, k := range slices.Sorted(maps.Keys(context)) {
		attrs = append(attrs, k, context[k])
	}
	r.log.Error("live query error", attrs...)
}

// Entry is one recorded report.
type Entry struct {
	Err     error
	Context map[string]string
}

// Recorder keeps every report in memory. Used by tests and the scenario
// harness. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report records err and a copy of context.
func (r *Recorder) Report(err error, context map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Err: err, Context: maps.Clone(context)})
}

// Entries returns a copy of the recorded reports.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Len returns the number of recorded reports.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset forgets recorded reports.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Multi fans a report out to several reporters in order.
func Multi(reporters ...Reporter) Reporter {
	rs := slices.Clone(reporters)
	return Func(func(err error, context map[string]string) {
		for _, r := range rs {
			r.Report(err, context)
		}
	})
}
