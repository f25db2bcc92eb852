package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/memstore"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
	}
	for _, event := range e.Trace {
		switch event.Type {
		case EventDelivery:
			fmt.Fprintf(&buf, "  [%d] step %d delivery %s\n", event.Seq, event.Step, formatDelivery(event))
		case EventReport:
			fmt.Fprintf(&buf, "  [%d] step %d report %s\n", event.Seq, event.Step, event.Code)
		}
	}

	return buf.String()
}

// assertDeliveryCount checks the number of callback invocations.
func assertDeliveryCount(result *Result, assertion Assertion) error {
	got := len(result.Deliveries())
	if got != assertion.Count {
		return &AssertionError{
			Type:     AssertDeliveryCount,
			Expected: fmt.Sprintf("%d deliveries", assertion.Count),
			Actual:   fmt.Sprintf("%d deliveries", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertLastDelivery checks the final delivered result set.
func assertLastDelivery(result *Result, assertion Assertion) error {
	deliveries := result.Deliveries()
	if len(deliveries) == 0 {
		return &AssertionError{
			Type:     AssertLastDelivery,
			Expected: "at least one delivery",
			Actual:   "no deliveries",
			Trace:    result.Trace,
		}
	}

	last := deliveries[len(deliveries)-1]
	var want *[]string
	if !assertion.Nil {
		ids := assertion.IDs
		if ids == nil {
			ids = []string{}
		}
		want = &ids
	}
	if !deliveryMatches(last, want) {
		return &AssertionError{
			Type:     AssertLastDelivery,
			Expected: formatExpected(want),
			Actual:   formatDelivery(last),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertReportCount checks the number of reports, and their code when set.
func assertReportCount(result *Result, assertion Assertion) error {
	reports := result.Reports()
	if len(reports) != assertion.Count {
		return &AssertionError{
			Type:     AssertReportCount,
			Expected: fmt.Sprintf("%d reports", assertion.Count),
			Actual:   fmt.Sprintf("%d reports", len(reports)),
			Trace:    result.Trace,
		}
	}
	if assertion.Code == "" {
		return nil
	}
	for _, r := range reports {
		if r.Code != assertion.Code {
			return &AssertionError{
				Type:     AssertReportCount,
				Expected: fmt.Sprintf("every report with code %s", assertion.Code),
				Actual:   fmt.Sprintf("report %d with code %s", r.Seq, r.Code),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertFinalState checks that a record exists with the expected fields.
// Uses subset semantics: fields not listed are ignored.
func assertFinalState(ctx context.Context, st *memstore.Store, assertion Assertion) error {
	rec, err := st.Get(ctx, ir.RecordID(assertion.ID))
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s with %s", assertion.ID, formatFields(assertion.Expect)),
			Actual:   err.Error(),
		}
	}

	want, err := convertFields(assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	var mismatches []string
	for _, key := range want.SortedKeys() {
		got, ok := rec.Fields[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s missing", key))
			continue
		}
		if !ir.Equal(want[key], got) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v", key, ir.ToGo(got)))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s with %s", assertion.ID, formatFields(assertion.Expect)),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// formatFields renders fields in key order.
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *memstore.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDeliveryCount:
			err = assertDeliveryCount(result, assertion)
		case AssertLastDelivery:
			err = assertLastDelivery(result, assertion)
		case AssertReportCount:
			err = assertReportCount(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires store context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

