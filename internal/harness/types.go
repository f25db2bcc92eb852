package harness

// Trace event types.
const (
	EventDelivery = "delivery"
	EventReport   = "report"
)

// TraceEvent is one callback invocation or one reported error.
type TraceEvent struct {
	Type string `json:"type"` // "delivery" or "report"

	// Step is the scenario step that caused the event; 0 is the first bind.
	Step int `json:"step"`

	// IDs are the delivered record ids; nil for a nil delivery.
	IDs []string `json:"ids,omitempty"`
	Nil bool     `json:"nil,omitempty"`

	// Code and Pinned describe a report.
	Code       string `json:"code,omitempty"`
	Collection string `json:"collection,omitempty"`
	Pinned     string `json:"pinned,omitempty"`

	Seq int64 `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains all deliveries and reports in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddDeliveryTrace adds a delivery to the trace. A nil ids slice records a
// nil delivery.
func (r *Result) AddDeliveryTrace(step int, ids []string) {
	ev := TraceEvent{
		Type: EventDelivery,
		Step: step,
		Seq:  int64(len(r.Trace) + 1),
	}
	if ids == nil {
		ev.Nil = true
	} else {
		ev.IDs = ids
	}
	r.Trace = append(r.Trace, ev)
}

// AddReportTrace adds a reported error to the trace.
func (r *Result) AddReportTrace(step int, code, collection, pinned string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventReport,
		Step:       step,
		Code:       code,
		Collection: collection,
		Pinned:     pinned,
		Seq:        int64(len(r.Trace) + 1),
	})
}

// Deliveries returns the delivery events in order.
func (r *Result) Deliveries() []TraceEvent {
	return r.filter(EventDelivery)
}

// Reports returns the report events in order.
func (r *Result) Reports() []TraceEvent {
	return r.filter(EventReport)
}

func (r *Result) filter(typ string) []TraceEvent {
	out := []TraceEvent{}
	for _, ev := range r.Trace {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
