package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

// ErrUnavailable is the default error returned by a failing FakeSource.
var ErrUnavailable = errors.New("testutil: store unavailable")

// FakeCollection is a Collection whose events are pushed by the test.
//
// SubscribeChanges delivers Initial synchronously. Emit delivers to every
// active subscriber synchronously. Thread-safety: safe for concurrent use,
// but callbacks run on the calling goroutine.
type FakeCollection struct {
	mu         sync.Mutex
	snap       *feed.Snapshot
	subs       map[int]func(feed.ChangeEvent)
	next       int
	subscribes int
	cancels    int
	fresh      bool
}

// NewFakeCollection creates a collection holding records.
func NewFakeCollection(records ...ir.Record) *FakeCollection {
	return &FakeCollection{
		snap: feed.NewSnapshot(records),
		subs: make(map[int]func(feed.ChangeEvent)),
	}
}

// CurrentSnapshot returns the current snapshot.
func (c *FakeCollection) CurrentSnapshot() *feed.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

// SetFreshSnapshots makes every read and every Initial carry a newly built
// snapshot with the same records, as a store that re-queries per read does.
func (c *FakeCollection) SetFreshSnapshots(fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fresh = fresh
}

// read returns the snapshot handed to callers. Caller holds mu.
func (c *FakeCollection) read() *feed.Snapshot {
	if c.fresh {
		return feed.NewSnapshot(c.snap.Records())
	}
	return c.snap
}

// SubscribeChanges registers fn and delivers Initial to it.
func (c *FakeCollection) SubscribeChanges(fn func(feed.ChangeEvent)) *feed.CancelToken {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.subscribes++
	snap := c.read()
	c.mu.Unlock()

	fn(feed.Initial(snap))

	return feed.NewCancelToken(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cancels++
		delete(c.subs, id)
	})
}

// Emit sets the snapshot carried by ev (if any) and delivers ev.
func (c *FakeCollection) Emit(ev feed.ChangeEvent) {
	c.mu.Lock()
	if ev.Snapshot != nil {
		c.snap = ev.Snapshot
	}
	fns := make([]func(feed.ChangeEvent), 0, len(c.subs))
	for i := 0; i < c.next; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Insert emits an Updated event appending rec.
func (c *FakeCollection) Insert(rec ir.Record) {
	records := append(c.CurrentSnapshot().Records(), rec)
	c.Emit(feed.Updated(feed.NewSnapshot(records), nil, []int{len(records) - 1}, nil))
}

// Modify emits a modification-only Updated event for the record at i.
func (c *FakeCollection) Modify(i int, fields ir.IRObject) {
	records := c.CurrentSnapshot().Records()
	records[i].Fields = fields
	records[i].Version++
	c.Emit(feed.Updated(feed.NewSnapshot(records), nil, nil, []int{i}))
}

// Fail emits a Failed event.
func (c *FakeCollection) Fail(err error) {
	c.Emit(feed.Failed(err))
}

// Active returns the number of live registrations.
func (c *FakeCollection) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Subscribes returns how many times SubscribeChanges was called.
func (c *FakeCollection) Subscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes
}

// Cancels returns how many registrations were released.
func (c *FakeCollection) Cancels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

// FakeSource returns a new FakeCollection holding Records for every
// evaluation, or Err when set.
type FakeSource struct {
	mu          sync.Mutex
	records     []ir.Record
	err         error
	queries     []queryir.Select
	collections []*FakeCollection
}

// NewFakeSource creates a source serving records.
func NewFakeSource(records ...ir.Record) *FakeSource {
	return &FakeSource{records: records}
}

// SetErr makes subsequent evaluations fail with err (nil to recover).
func (s *FakeSource) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Evaluate records q and returns a fresh collection.
func (s *FakeSource) Evaluate(_ context.Context, q queryir.Select) (feed.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	c := NewFakeCollection(s.records...)
	s.collections = append(s.collections, c)
	return c, nil
}

// Queries returns the queries evaluated so far.
func (s *FakeSource) Queries() []queryir.Select {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queryir.Select(nil), s.queries...)
}

// Collections returns the collections handed out so far.
func (s *FakeSource) Collections() []*FakeCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeCollection(nil), s.collections...)
}

// Last returns the most recent collection, or nil.
func (s *FakeSource) Last() *FakeCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.collections) == 0 {
		return nil
	}
	return s.collections[len(s.collections)-1]
}

// TotalCancels sums Cancels over every collection handed out.
func (s *FakeSource) TotalCancels() int {
	n := 0
	for _, c := range s.Collections() {
		n += c.Cancels()
	}
	return n
}

// TotalActive sums Active over every collection handed out.
func (s *FakeSource) TotalActive() int {
	n := 0
	for _, c := range s.Collections() {
		n += c.Active()
	}
	return n
}

// Rec builds a record in collection "tracks" with a title field.
func Rec(id, title string, seq int64) ir.Record {
	return ir.Record{
		ID:         ir.RecordID(id),
		Collection: "tracks",
		Fields:     ir.Obj(ir.O("title", ir.IRString(title))),
		Seq:        seq,
		Version:    1,
	}
}
