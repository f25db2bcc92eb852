// Package bridge turns a collection's change feed into a stream of
// materialized snapshots.
//
// The bridge is two stages: Filter decides which events reach the caller,
// and Subscribe does the plumbing (synchronous first emission, listener
// registration, terminal errors, cancellation).
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/liveview/internal/feed"
)

// Handler receives snapshots, or a nil snapshot and a terminal error.
type Handler func(snap *feed.Snapshot, err error)

// Filter is the pure suppression stage.
//
// Updated events pass only when they change membership (deletions or
// insertions). Initial events pass unless SkipInitial is set and the event
// has the same membership as the snapshot already emitted synchronously
// (Seen). Failed always passes.
type Filter struct {
	SkipInitial bool
	Seen        *feed.Snapshot
}

// Pass reports whether ev should be delivered.
func (f Filter) Pass(ev feed.ChangeEvent) bool {
	switch ev.Kind {
	case feed.EventInitial:
		if !f.SkipInitial {
			return true
		}
		// A write between the synchronous read and registration can change
		// membership; only then is the Initial not redundant.
		return changesMembership(f.Seen, ev.Snapshot)
	case feed.EventUpdated:
		return ev.Structural()
	case feed.EventFailed:
		return true
	default:
		return false
	}
}

func changesMembership(prev, next *feed.Snapshot) bool {
	if prev == next {
		return false
	}
	deletions, insertions, _ := feed.Diff(prev, next)
	return len(deletions) > 0 || len(insertions) > 0
}

// subscription owns one listener registration.
type subscription struct {
	filter Filter
	fn     Handler

	active atomic.Bool

	mu       sync.Mutex
	inner    *feed.CancelToken
	released bool
}

// Subscribe bridges c to fn.
//
// When synchronousFirst is true, fn(c.CurrentSnapshot(), nil) runs once on
// the calling goroutine before the listener is registered, and the redundant
// Initial event is suppressed. Modification-only updates never reach fn.
// A Failed event reaches fn once as fn(nil, err); the listener is then
// released.
//
// After the returned token's Cancel returns, fn is not called again.
func Subscribe(c feed.Collection, synchronousFirst bool, fn Handler) *feed.CancelToken {
	s := &subscription{
		filter: Filter{SkipInitial: synchronousFirst},
		fn:     fn,
	}
	s.active.Store(true)

	if synchronousFirst {
		first := c.CurrentSnapshot()
		s.filter.Seen = first
		fn(first, nil)
	}

	inner := c.SubscribeChanges(s.onEvent)

	s.mu.Lock()
	if s.released {
		// Cancelled or failed during registration (inline dispatch).
		s.mu.Unlock()
		inner.Cancel()
	} else {
		s.inner = inner
		s.mu.Unlock()
	}

	return feed.NewCancelToken(s.cancel)
}

func (s *subscription) onEvent(ev feed.ChangeEvent) {
	if !s.active.Load() || !s.filter.Pass(ev) {
		return
	}
	if ev.Kind == feed.EventFailed {
		if !s.active.CompareAndSwap(true, false) {
			return
		}
		s.release()
		s.fn(nil, ev.Err)
		return
	}
	s.fn(ev.Snapshot, nil)
}

func (s *subscription) cancel() {
	s.active.Store(false)
	s.release()
}

// release cancels the listener exactly once. If registration has not
// returned yet, the registering goroutine cancels it instead.
func (s *subscription) release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	inner := s.inner
	s.inner = nil
	s.mu.Unlock()

	inner.Cancel()
}
