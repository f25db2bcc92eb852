package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/liveview/internal/engine"
	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/livequery"
	"github.com/roach88/liveview/internal/memstore"
	"github.com/roach88/liveview/internal/pin"
	"github.com/roach88/liveview/internal/report"
)

// Harness is the test execution engine.
// It runs one scenario against a fresh memory store on a delivery loop
// that is drained after every step, so the trace is deterministic.
type Harness struct {
	store  *memstore.Store
	loop   *engine.Loop
	pins   *pin.Signal
	query  *livequery.LiveQuery
	logger *slog.Logger

	scenario *Scenario
	result   *Result
	step     int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh memory store for isolation.
//
// Execution flow:
// 1. Create the store, loop and pin signal, and seed the records
// 2. Observe the query and drain the loop (step 0)
// 3. Execute each step and drain the loop
// 4. Compare deliveries and reports with the expect clause
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	q, err := scenario.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	loop := engine.NewLoop(engine.WithLoopLogger(logger))
	st := memstore.New(
		memstore.WithDispatcher(loop),
		memstore.WithIDGenerator(ir.NewSequenceGenerator("rec")),
		memstore.WithLogger(logger),
	)
	defer st.Close()

	h := &Harness{
		store:    st,
		loop:     loop,
		pins:     pin.NewSignal(ir.RecordID(scenario.Pin)),
		logger:   logger,
		scenario: scenario,
		result:   NewResult(),
	}

	ctx := context.Background()

	// Seed records
	for i, spec := range scenario.Records {
		rec, err := spec.Record(scenario.Collection)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		if _, err := st.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
	}
	loop.Drain()

	h.query = livequery.New(&q, st,
		livequery.WithPinSource(h.pins),
		livequery.WithDispatcher(loop),
		livequery.WithReporter(report.Func(h.onReport)),
		livequery.WithLogger(logger),
	)
	h.query.Observe(h.onDelivery)
	loop.Drain()

	for i, step := range scenario.Steps {
		h.step = i + 1
		if err := h.executeStep(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		loop.Drain()
	}

	h.query.Close()
	loop.Drain()

	h.checkExpect()

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// executeStep applies one step. Store errors from put/delete fail the run.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Put != nil:
		rec, err := step.Put.Record(h.scenario.Collection)
		if err != nil {
			return err
		}
		if _, err := h.store.Put(ctx, rec); err != nil {
			return err
		}
		h.logger.Info("step: put", "step", h.step, "id", step.Put.ID)

	case step.Delete != "":
		if err := h.store.Delete(ctx, ir.RecordID(step.Delete)); err != nil {
			return err
		}
		h.logger.Info("step: delete", "step", h.step, "id", step.Delete)

	case step.Pin != "":
		h.pins.Set(ir.RecordID(step.Pin))
		h.logger.Info("step: pin", "step", h.step, "id", step.Pin)

	case step.Unpin:
		h.pins.Clear()
		h.logger.Info("step: unpin", "step", h.step)

	case step.FailStore != "":
		h.store.SetUnavailable(errors.New(step.FailStore))
		h.logger.Info("step: fail store", "step", h.step, "error", step.FailStore)

	case step.RestoreStore:
		h.store.SetUnavailable(nil)
		h.logger.Info("step: restore store", "step", h.step)

	case step.FailFeed != "":
		h.store.FailLive(errors.New(step.FailFeed))
		h.logger.Info("step: fail feed", "step", h.step, "error", step.FailFeed)

	case step.Rebind:
		h.loop.Post(h.query.Rebind)
		h.logger.Info("step: rebind", "step", h.step)

	default:
		return fmt.Errorf("empty step")
	}
	return nil
}

func (h *Harness) onDelivery(snap *feed.Snapshot) {
	if snap == nil {
		h.result.AddDeliveryTrace(h.step, nil)
		return
	}
	ids := make([]string, 0, snap.Len())
	for _, id := range snap.IDs() {
		ids = append(ids, string(id))
	}
	h.result.AddDeliveryTrace(h.step, ids)
}

func (h *Harness) onReport(err error, fields map[string]string) {
	h.logger.Info("error reported", "step", h.step, "error", err)
	h.result.AddReportTrace(h.step, fields["code"], fields["collection"], fields["pinned"])
}

// checkExpect compares the trace with the expect clause.
func (h *Harness) checkExpect() {
	exp := h.scenario.Expect
	if exp == nil {
		return
	}

	got := h.result.Deliveries()
	if exp.Deliveries != nil {
		if len(got) != len(exp.Deliveries) {
			h.result.AddError(fmt.Sprintf("expected %d deliveries, got %d: %s",
				len(exp.Deliveries), len(got), formatDeliveries(got)))
		} else {
			for i, want := range exp.Deliveries {
				if !deliveryMatches(got[i], want) {
					h.result.AddError(fmt.Sprintf("delivery %d: expected %s, got %s",
						i+1, formatExpected(want), formatDelivery(got[i])))
				}
			}
		}
	}

	if exp.Reports != nil {
		if n := len(h.result.Reports()); n != *exp.Reports {
			h.result.AddError(fmt.Sprintf("expected %d reports, got %d", *exp.Reports, n))
		}
	}
}

func deliveryMatches(ev TraceEvent, want *[]string) bool {
	if want == nil {
		return ev.Nil
	}
	return !ev.Nil && slices.Equal(ev.IDs, *want)
}

func formatExpected(want *[]string) string {
	if want == nil {
		return "null"
	}
	return fmt.Sprintf("%v", *want)
}

func formatDelivery(ev TraceEvent) string {
	if ev.Nil {
		return "null"
	}
	return fmt.Sprintf("%v", ev.IDs)
}

func formatDeliveries(evs []TraceEvent) string {
	out := "["
	for i, ev := range evs {
		if i > 0 {
			out += " "
		}
		out += formatDelivery(ev)
	}
	return out + "]"
}

// convertFields converts YAML-parsed fields to an ir.IRObject.
// Floats and nulls are rejected: records hold strings, ints, bools, arrays
// and objects only.
func convertFields(fields map[string]interface{}) (ir.IRObject, error) {
	if fields == nil {
		return ir.IRObject{}, nil
	}

	result := make(ir.IRObject, len(fields))
	for key, val := range fields {
		if val == nil {
			return nil, fmt.Errorf("field %q: null values are forbidden in records", key)
		}
		irVal, err := ir.FromGo(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}
