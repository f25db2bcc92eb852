package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/queryir"
)

// view is one live collection and its compiled SQL.
type view struct {
	query  queryir.Select
	sql    string
	params []any
	coll   *feed.LiveCollection
}

// Evaluate returns a live collection for q.
//
// The collection is re-evaluated after every local write to q.From and,
// when polling is enabled, after every foreign commit. It stops being
// refreshed once its last subscriber cancels, and fails with ErrClosed when
// the store closes.
func (s *Store) Evaluate(ctx context.Context, q queryir.Select) (feed.Collection, error) {
	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}

	records, err := s.query(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	v := &view{query: q, sql: query, params: params}
	v.coll = feed.NewLiveCollection(feed.NewSnapshot(records), s.dispatcher,
		feed.WithOnRetire(func() { s.dropView(v) }))

	s.mu.Lock()
	s.views[v] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("live collection opened", "collection", q.From, "query", queryir.String(q.Filter))
	return v.coll, nil
}

// LiveCount returns the number of live collections being refreshed.
func (s *Store) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// refreshCollection re-evaluates the live collections of one collection.
// Caller holds notifyMu.
func (s *Store) refreshCollection(ctx context.Context, collection string) {
	for _, v := range s.liveViews() {
		if v.query.From == collection {
			s.refresh(ctx, v)
		}
	}
}

// refreshAll re-evaluates every live collection. Caller holds notifyMu.
func (s *Store) refreshAll(ctx context.Context) {
	for _, v := range s.liveViews() {
		s.refresh(ctx, v)
	}
}

// refresh re-runs one view. A failing query fails the collection: its
// subscribers see a terminal change feed error.
func (s *Store) refresh(ctx context.Context, v *view) {
	records, err := s.query(ctx, v.sql, v.params)
	if err != nil {
		s.logger.Warn("live collection evaluation failed",
			"collection", v.query.From, "error", err)
		v.coll.Fail(err)
		return
	}
	v.coll.Refresh(feed.NewSnapshot(records))
}

func (s *Store) liveViews() []*view {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*view, 0, len(s.views))
	for v := range s.views {
		out = append(out, v)
	}
	return out
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

// startPoller records the current data_version and starts the poll loop.
func (s *Store) startPoller() error {
	version, err := s.dataVersion(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read data_version: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopPoll = cancel
	s.pollDone = make(chan struct{})
	go s.poll(ctx, version)
	return nil
}

// poll re-evaluates every live collection when another connection commits.
// PRAGMA data_version changes only for commits from other connections, so
// local writes (already refreshed) do not trigger it.
func (s *Store) poll(ctx context.Context, last int64) {
	defer close(s.pollDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Debug("change poller starting", "interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("change poller stopping")
			return
		case <-ticker.C:
		}

		version, err := s.dataVersion(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("failed to poll data_version", "error", err)
			}
			continue
		}
		if version == last {
			continue
		}
		last = version

		s.notifyMu.Lock()
		if !s.isClosed() {
			s.logger.Debug("foreign commit detected", "data_version", version)
			s.refreshAll(context.WithoutCancel(ctx))
		}
		s.notifyMu.Unlock()
	}
}

func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}
