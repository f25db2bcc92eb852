package livequery

import (
	"context"
	"log/slog"

	"github.com/roach88/liveview/internal/bridge"
	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
	"github.com/roach88/liveview/internal/report"
)

// Reporter receives errors absorbed at the LiveQuery boundary.
type Reporter = report.Reporter

// State is the binding state of a LiveQuery.
type State int

const (
	// StateUnbound means no subscription is active.
	StateUnbound State = iota
	// StateBound means exactly one subscription is active.
	StateBound
	// StateClosed means Close was called. Terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LiveQuery keeps one query bound to one source and forwards every
// structural change of the result set to a single callback.
type LiveQuery struct {
	query  *queryir.Select
	source feed.Source

	pins       PinSource
	reporter   Reporter
	dispatcher feed.Dispatcher
	logger     *slog.Logger
	ctx        context.Context

	fn       func(*feed.Snapshot)
	observed bool
	state    State
	sub      *feed.CancelToken
	tracker  *PinTracker

	// generation increments on every release; a bridge handler from an
	// older generation is ignored.
	generation uint64

	last      *feed.Snapshot
	effective *queryir.Select
}

// Option configures a LiveQuery.
type Option func(*LiveQuery)

// WithPinSource sets the pin signal. Without one nothing is ever pinned.
func WithPinSource(p PinSource) Option {
	return func(q *LiveQuery) {
		q.pins = p
	}
}

// WithReporter sets the error reporter. Default: report.NewLogger(logger).
func WithReporter(r Reporter) Option {
	return func(q *LiveQuery) {
		q.reporter = r
	}
}

// WithDispatcher sets the context pin changes are delivered on.
// Default: feed.Inline.
func WithDispatcher(d feed.Dispatcher) Option {
	return func(q *LiveQuery) {
		q.dispatcher = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *LiveQuery) {
		q.logger = l
	}
}

// WithContext sets the context passed to Source.Evaluate.
// Default: context.Background().
func WithContext(ctx context.Context) Option {
	return func(q *LiveQuery) {
		q.ctx = ctx
	}
}

// New creates an unbound LiveQuery. A nil query or source makes the
// instance inert: Observe delivers nil once and subscribes nothing.
// The query is copied.
func New(q *queryir.Select, src feed.Source, opts ...Option) *LiveQuery {
	lq := &LiveQuery{
		source:     src,
		dispatcher: feed.Inline,
		logger:     slog.Default(),
		ctx:        context.Background(),
	}
	if q != nil {
		cp := *q
		lq.query = &cp
	}
	for _, opt := range opts {
		opt(lq)
	}
	if lq.reporter == nil {
		lq.reporter = report.NewLogger(lq.logger)
	}
	return lq
}

// Empty creates a LiveQuery with no query and no source.
func Empty(opts ...Option) *LiveQuery {
	return New(nil, nil, opts...)
}

// State returns the binding state.
func (q *LiveQuery) State() State {
	return q.state
}

// Last returns the most recently delivered snapshot (nil before the first
// delivery and after a failure).
func (q *LiveQuery) Last() *feed.Snapshot {
	return q.last
}

// EffectiveQuery returns the query of the latest bind attempt, including
// the pinned-record clause. Nil before the first bind.
func (q *LiveQuery) EffectiveQuery() *queryir.Select {
	if q.effective == nil {
		return nil
	}
	cp := *q.effective
	return &cp
}

// Observe registers fn and performs the first bind.
//
// Observe panics with *ProgrammingError when called twice, after Close, or
// with a nil fn.
func (q *LiveQuery) Observe(fn func(*feed.Snapshot)) {
	switch {
	case q.state == StateClosed:
		panic(&ProgrammingError{Op: "Observe", Message: "live query is closed"})
	case q.observed:
		panic(&ProgrammingError{Op: "Observe", Message: "callback already registered"})
	case fn == nil:
		panic(&ProgrammingError{Op: "Observe", Message: "nil callback"})
	}
	q.observed = true
	q.fn = fn

	if q.query == nil || q.source == nil {
		q.logger.Debug("live query has no query or source; delivering nil")
		q.deliver(nil)
		return
	}

	if q.pins != nil {
		q.tracker = TrackPins(q.pins, q.dispatcher, q.Rebind)
	}
	q.Rebind()
}

// Rebind releases the active subscription and, when a callback is
// registered and both query and source are present, binds again against
// the current pinned id. Rebind on a closed query does nothing.
func (q *LiveQuery) Rebind() {
	if q.state == StateClosed {
		return
	}
	q.release()

	if q.fn == nil || q.query == nil || q.source == nil {
		return
	}

	pinned := ir.NoRecord
	if q.pins != nil {
		pinned = q.pins.Current()
	}

	filter, err := Augment(q.query.Filter, pinned)
	if err != nil {
		q.fail(&Error{
			Code:       ErrCodeInvalidQuery,
			Message:    "query has no canonical form",
			Collection: q.query.From,
			Query:      queryir.String(q.query.Filter),
			Pinned:     string(pinned),
			Err:        err,
		}, "invalid")
		return
	}
	eff := q.query.WithFilter(filter)
	changed := q.effective == nil || !queryir.EqualPredicates(q.effective.Filter, eff.Filter)
	q.effective = &eff

	coll, err := q.source.Evaluate(q.ctx, eff)
	if err != nil {
		q.fail(&Error{
			Code:       ErrCodeStoreUnavailable,
			Message:    "failed to evaluate query",
			Collection: eff.From,
			Query:      queryir.String(eff.Filter),
			Pinned:     string(pinned),
			Err:        err,
		}, "unavailable")
		return
	}

	gen := q.generation
	q.state = StateBound
	bindsTotal.WithLabelValues("bound").Inc()
	q.logger.Debug("live query bound",
		"collection", eff.From,
		"query", queryir.String(eff.Filter),
		"pinned", string(pinned),
		"query_changed", changed)

	tok := bridge.Subscribe(coll, true, func(snap *feed.Snapshot, err error) {
		if gen != q.generation {
			return
		}
		if err != nil {
			q.onFeedError(eff, pinned, err)
			return
		}
		q.last = snap
		q.deliver(snap)
	})

	// The callback may have rebound, closed, or failed during the
	// synchronous first emission.
	if gen == q.generation && q.state == StateBound {
		q.sub = tok
		return
	}
	tok.Cancel()
}

// Close releases the subscription and the pin tracker. Idempotent.
func (q *LiveQuery) Close() {
	if q.state == StateClosed {
		return
	}
	q.release()
	q.tracker.Stop()
	q.tracker = nil
	q.state = StateClosed
}

// release tears down the active subscription, if any.
func (q *LiveQuery) release() {
	q.generation++
	if q.state != StateBound {
		return
	}
	q.state = StateUnbound
	if q.sub != nil {
		q.sub.Cancel()
		q.sub = nil
	}
	teardownsTotal.Inc()
}

func (q *LiveQuery) onFeedError(eff queryir.Select, pinned ir.RecordID, err error) {
	q.release()
	q.fail(&Error{
		Code:       ErrCodeChangeFeedError,
		Message:    "change feed failed",
		Collection: eff.From,
		Query:      queryir.String(eff.Filter),
		Pinned:     string(pinned),
		Err:        err,
	}, "")
}

// fail reports e, forgets the cached snapshot, and delivers nil once.
// The query stays unbound until the next external trigger.
func (q *LiveQuery) fail(e *Error, bindResult string) {
	if bindResult != "" {
		bindsTotal.WithLabelValues(bindResult).Inc()
	}
	reportedErrorsTotal.WithLabelValues(string(e.Code)).Inc()
	q.logger.Warn("live query degraded to no results",
		"code", string(e.Code),
		"collection", e.Collection,
		"error", e.Err)

	q.reporter.Report(e, e.Context())
	q.last = nil
	q.deliver(nil)
}

func (q *LiveQuery) deliver(snap *feed.Snapshot) {
	if snap == nil {
		deliveriesTotal.WithLabelValues("nil").Inc()
	} else {
		deliveriesTotal.WithLabelValues("snapshot").Inc()
	}
	q.fn(snap)
}
