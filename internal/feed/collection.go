package feed

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/liveview/internal/queryir"
)

// ErrRetired is delivered to subscribers that arrive after a collection's last
// subscriber cancelled. A retired collection is no longer refreshed.
var ErrRetired = errors.New("feed: collection retired")

// Source evaluates queries into live collections.
type Source interface {
	Evaluate(ctx context.Context, q queryir.Select) (Collection, error)
}

// Collection is a live query result.
type Collection interface {
	// CurrentSnapshot returns the latest snapshot. Never nil.
	CurrentSnapshot() *Snapshot

	// SubscribeChanges registers fn for change events. The first event is
	// Initial (or Failed). fn runs on the collection's dispatcher.
	SubscribeChanges(fn func(ChangeEvent)) *CancelToken
}

// Dispatcher runs tasks on a single logical execution context.
// Post returns false if the task was not accepted (dispatcher stopped).
type Dispatcher interface {
	Post(task func()) bool
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(task func()) bool

// Post calls f(task).
func (f DispatcherFunc) Post(task func()) bool { return f(task) }

// Inline runs every task immediately on the posting goroutine.
//
// Inline suits tests and single-goroutine programs. A subscriber that writes
// back into the store that notified it re-enters the store's change
// detection; use an engine.Loop for that.
var Inline Dispatcher = DispatcherFunc(func(task func()) bool {
	task()
	return true
})

// CollectionOption configures a LiveCollection.
type CollectionOption func(*LiveCollection)

// WithOnRetire sets a function called once, when the collection retires or
// fails. Stores use it to stop refreshing the collection.
func WithOnRetire(fn func()) CollectionOption {
	return func(c *LiveCollection) {
		c.onRetire = fn
	}
}

// LiveCollection is a Collection driven by its owner: the owner calls Refresh
// with each new evaluation of the query and Fail when the backing store goes
// away. LiveCollection diffs consecutive snapshots and fans events out to
// subscribers through the dispatcher.
//
// Thread-safety: Refresh, Fail, SubscribeChanges and Cancel may be called from
// any goroutine. Refresh/Fail/SubscribeChanges are serialized so each
// subscriber observes events in call order.
type LiveCollection struct {
	emitMu sync.Mutex // serializes state transitions with their posts

	mu      sync.Mutex
	current *Snapshot
	err     error
	retired bool
	subs    map[uint64]*subscriber
	nextID  uint64
	everSub bool

	dispatcher Dispatcher
	onRetire   func()
	retireOnce sync.Once
}

type subscriber struct {
	fn     func(ChangeEvent)
	active atomic.Bool
}

// deliver posts ev for s. The active flag is checked when the task runs, so
// events queued before a cancel are dropped.
func (c *LiveCollection) deliver(s *subscriber, ev ChangeEvent) {
	c.dispatcher.Post(func() {
		if s.active.Load() {
			s.fn(ev)
		}
	})
}

// NewLiveCollection creates a collection holding initial.
// A nil dispatcher means Inline.
func NewLiveCollection(initial *Snapshot, d Dispatcher, opts ...CollectionOption) *LiveCollection {
	if initial == nil {
		initial = EmptySnapshot()
	}
	if d == nil {
		d = Inline
	}
	c := &LiveCollection{
		current:    initial,
		subs:       make(map[uint64]*subscriber),
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentSnapshot returns the latest snapshot.
func (c *LiveCollection) CurrentSnapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Err returns the failure error, or nil.
func (c *LiveCollection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SubscriberCount returns the number of registered subscribers.
func (c *LiveCollection) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// SubscribeChanges registers fn and posts its first event.
func (c *LiveCollection) SubscribeChanges(fn func(ChangeEvent)) *CancelToken {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	s := &subscriber{fn: fn}
	s.active.Store(true)

	c.mu.Lock()
	var first ChangeEvent
	switch {
	case c.err != nil:
		first = Failed(c.err)
	case c.retired:
		first = Failed(ErrRetired)
	default:
		first = Initial(c.current)
	}
	terminal := first.Kind == EventFailed
	id := c.nextID
	c.nextID++
	if !terminal {
		c.subs[id] = s
		c.everSub = true
	}
	c.mu.Unlock()

	c.deliver(s, first)
	if terminal {
		return NewCancelToken(func() { s.active.Store(false) })
	}
	return NewCancelToken(func() { c.unsubscribe(id, s) })
}

func (c *LiveCollection) unsubscribe(id uint64, s *subscriber) {
	s.active.Store(false)

	c.mu.Lock()
	if _, ok := c.subs[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, id)
	retire := len(c.subs) == 0 && c.everSub && c.err == nil
	if retire {
		c.retired = true
	}
	c.mu.Unlock()

	if retire {
		c.fireRetire()
	}
}

func (c *LiveCollection) fireRetire() {
	c.retireOnce.Do(func() {
		if c.onRetire != nil {
			c.onRetire()
		}
	})
}

// Refresh replaces the current snapshot with next and posts an Updated event
// to every subscriber if anything changed. Returns false when the collection
// is failed or retired.
func (c *LiveCollection) Refresh(next *Snapshot) bool {
	if next == nil {
		next = EmptySnapshot()
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.err != nil || c.retired {
		c.mu.Unlock()
		return false
	}
	prev := c.current
	deletions, insertions, modifications := Diff(prev, next)
	if len(deletions) == 0 && len(insertions) == 0 && len(modifications) == 0 {
		c.mu.Unlock()
		return true
	}
	c.current = next
	targets := c.snapshotSubs()
	c.mu.Unlock()

	ev := Updated(next, deletions, insertions, modifications)
	for _, s := range targets {
		c.deliver(s, ev)
	}
	return true
}

// Fail marks the collection failed and posts a terminal Failed event.
// Subsequent calls are no-ops.
func (c *LiveCollection) Fail(err error) {
	if err == nil {
		err = errors.New("feed: collection failed")
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.err != nil || c.retired {
		c.mu.Unlock()
		return
	}
	c.err = err
	targets := c.snapshotSubs()
	c.subs = make(map[uint64]*subscriber)
	c.mu.Unlock()

	ev := Failed(err)
	for _, s := range targets {
		c.deliver(s, ev)
	}
	c.fireRetire()
}

// snapshotSubs returns subscribers in registration order. Caller holds mu.
func (c *LiveCollection) snapshotSubs() []*subscriber {
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*subscriber, len(ids))
	for i, id := range ids {
		out[i] = c.subs[id]
	}
	return out
}
