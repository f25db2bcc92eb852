// Package memstore is an in-memory record store with live query support.
//
// Predicates are compiled once per live collection into expr-lang programs
// (see queryir.Expr) and re-run against every record after each write.
// Results are ordered like the SQLite store: insertion sequence, then id.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/liveview/internal/engine"
	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

var (
	// ErrClosed is returned by operations on a closed store and delivered to
	// live collections when the store closes.
	ErrClosed = errors.New("memstore: closed")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("memstore: record not found")
)

// Store holds records in memory.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized with change notification, so live collections observe writes
// in commit order.
type Store struct {
	notifyMu sync.Mutex // held across a write and its notifications

	mu          sync.Mutex
	records     map[ir.RecordID]ir.Record
	views       map[*view]struct{}
	programs    map[string]*vm.Program
	closed      bool
	unavailable error

	clock      *engine.Clock
	ids        ir.IDGenerator
	dispatcher feed.Dispatcher
	logger     *slog.Logger
}

// view is one live collection and its compiled predicate.
type view struct {
	query   queryir.Select
	program *vm.Program
	coll    *feed.LiveCollection
}

// Option configures a Store.
type Option func(*Store)

// WithDispatcher sets the dispatcher live collections deliver on.
// Default: feed.Inline.
func WithDispatcher(d feed.Dispatcher) Option {
	return func(s *Store) {
		s.dispatcher = d
	}
}

// WithIDGenerator sets the generator for records stored without an id.
// Default: ir.UUIDv7Generator.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records:    make(map[ir.RecordID]ir.Record),
		views:      make(map[*view]struct{}),
		programs:   make(map[string]*vm.Program),
		clock:      engine.NewClock(),
		ids:        ir.UUIDv7Generator{},
		dispatcher: feed.Inline,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUnavailable makes Evaluate and List fail with err until called with nil.
// Writes and existing live collections are unaffected.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

// FailLive fails every live collection with err, as a broken change feed
// would. The collections are dropped; later evaluations work normally.
func (s *Store) FailLive(err error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	views := s.takeViews()
	s.mu.Unlock()

	for _, v := range views {
		v.coll.Fail(err)
	}
}

// Put inserts or replaces rec.
//
// A new id gets the next insertion sequence and Version 1. An existing id
// keeps its sequence and its Version increments. An empty id is generated.
// Returns the stored record.
func (s *Store) Put(ctx context.Context, rec ir.Record) (ir.Record, error) {
	if err := ctx.Err(); err != nil {
		return ir.Record{}, err
	}
	if rec.Collection == "" {
		return ir.Record{}, fmt.Errorf("memstore: put: record %q has no collection", rec.ID)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ir.Record{}, ErrClosed
	}
	if rec.ID == ir.NoRecord {
		rec.ID = s.ids.Generate()
	}
	stored := rec.Clone()
	if stored.Fields == nil {
		stored.Fields = ir.IRObject{}
	}
	if prev, ok := s.records[rec.ID]; ok {
		if prev.Collection != rec.Collection {
			s.mu.Unlock()
			return ir.Record{}, fmt.Errorf("memstore: put: record %q belongs to %q, not %q",
				rec.ID, prev.Collection, rec.Collection)
		}
		stored.Seq = prev.Seq
		stored.Version = prev.Version + 1
	} else {
		if stored.Seq > 0 {
			s.clock.Witness(stored.Seq)
		} else {
			stored.Seq = s.clock.Next()
		}
		stored.Version = 1
	}
	s.records[stored.ID] = stored
	refresh := s.evaluateViews(stored.Collection)
	s.mu.Unlock()

	s.logger.Debug("record stored", "id", string(stored.ID), "collection", stored.Collection,
		"seq", stored.Seq, "version", stored.Version)
	s.apply(refresh)
	return stored.Clone(), nil
}

// Delete removes a record. Returns ErrNotFound when id does not exist.
func (s *Store) Delete(ctx context.Context, id ir.RecordID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("memstore: delete %q: %w", id, ErrNotFound)
	}
	delete(s.records, id)
	refresh := s.evaluateViews(prev.Collection)
	s.mu.Unlock()

	s.logger.Debug("record deleted", "id", string(id), "collection", prev.Collection)
	s.apply(refresh)
	return nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, id ir.RecordID) (ir.Record, error) {
	if err := ctx.Err(); err != nil {
		return ir.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ir.Record{}, ErrClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return ir.Record{}, fmt.Errorf("memstore: get %q: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// List evaluates q once.
func (s *Store) List(ctx context.Context, q queryir.Select) ([]ir.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readable(); err != nil {
		return nil, err
	}
	prg, err := s.compile(q)
	if err != nil {
		return nil, err
	}
	return s.match(q.From, prg)
}

// Evaluate returns a live collection for q. The collection is refreshed
// after every write to q.From until its last subscriber cancels or the
// store closes.
func (s *Store) Evaluate(ctx context.Context, q queryir.Select) (feed.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readable(); err != nil {
		return nil, err
	}
	prg, err := s.compile(q)
	if err != nil {
		return nil, err
	}
	records, err := s.match(q.From, prg)
	if err != nil {
		return nil, err
	}

	v := &view{query: q, program: prg}
	v.coll = feed.NewLiveCollection(feed.NewSnapshot(records), s.dispatcher,
		feed.WithOnRetire(func() { s.dropView(v) }))
	s.views[v] = struct{}{}
	return v.coll, nil
}

// LiveCount returns the number of live collections being refreshed.
func (s *Store) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// Close fails every live collection with ErrClosed. Idempotent.
func (s *Store) Close() error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	views := s.takeViews()
	s.mu.Unlock()

	for _, v := range views {
		v.coll.Fail(ErrClosed)
	}
	return nil
}

// readable reports why reads are refused. Caller holds mu.
func (s *Store) readable() error {
	if s.closed {
		return ErrClosed
	}
	if s.unavailable != nil {
		return fmt.Errorf("memstore: unavailable: %w", s.unavailable)
	}
	return nil
}

// compile validates q and returns its cached program. Caller holds mu.
func (s *Store) compile(q queryir.Select) (*vm.Program, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return nil, err
	}
	text, err := queryir.Expr(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("memstore: render predicate: %w", err)
	}
	if prg, ok := s.programs[text]; ok {
		return prg, nil
	}
	prg, err := expr.Compile(text,
		expr.Env(map[string]any{ir.IDField: ""}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("memstore: compile %q: %w", text, err)
	}
	s.programs[text] = prg
	return prg, nil
}

// match runs prg over every record of collection in natural order.
// Caller holds mu.
func (s *Store) match(collection string, prg *vm.Program) ([]ir.Record, error) {
	out := []ir.Record{}
	for _, rec := range s.records {
		if rec.Collection != collection {
			continue
		}
		ok, err := run(prg, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b ir.Record) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func run(prg *vm.Program, rec ir.Record) (bool, error) {
	env := make(map[string]any, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		env[k] = ir.ToGo(v)
	}
	env[ir.IDField] = string(rec.ID)

	res, err := expr.Run(prg, env)
	if err != nil {
		return false, fmt.Errorf("memstore: evaluate record %q: %w", rec.ID, err)
	}
	ok, _ := res.(bool)
	return ok, nil
}

type refresh struct {
	coll *feed.LiveCollection
	snap *feed.Snapshot
	err  error
}

// evaluateViews recomputes every live view of collection. Caller holds mu.
func (s *Store) evaluateViews(collection string) []refresh {
	var out []refresh
	for v := range s.views {
		if v.query.From != collection {
			continue
		}
		records, err := s.match(collection, v.program)
		if err != nil {
			out = append(out, refresh{coll: v.coll, err: err})
			continue
		}
		out = append(out, refresh{coll: v.coll, snap: feed.NewSnapshot(records)})
	}
	return out
}

// apply pushes refreshed results to their collections. Called with notifyMu
// held and mu released.
func (s *Store) apply(refreshes []refresh) {
	for _, r := range refreshes {
		if r.err != nil {
			s.logger.Warn("live collection evaluation failed", "error", r.err)
			r.coll.Fail(r.err)
			continue
		}
		r.coll.Refresh(r.snap)
	}
}

func (s *Store) dropView(v *view) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, v)
}

// takeViews removes and returns every view. Caller holds mu.
func (s *Store) takeViews() []*view {
	out := make([]*view, 0, len(s.views))
	for v := range s.views {
		out = append(out, v)
	}
	s.views = make(map[*view]struct{})
	return out
}
