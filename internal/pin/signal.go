// Package pin publishes the identity of the pinned record.
//
// Signal is the in-process publisher; FileSource feeds a Signal from a file
// on disk so another process (a player, an editor) can pin records.
package pin

import (
	"slices"
	"sync"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
)

// Signal holds the current pinned id and notifies subscribers on every Set.
//
// Set notifies even when the id did not change: observers treat each
// emission as a rebind trigger. Subscribers are called synchronously on the
// setter's goroutine, in registration order, without the lock held.
//
// Thread-safety: all methods are safe for concurrent use.
type Signal struct {
	mu      sync.Mutex
	current ir.RecordID
	subs    map[uint64]func(ir.RecordID)
	nextID  uint64
}

// NewSignal creates a signal holding initial (ir.NoRecord for none).
func NewSignal(initial ir.RecordID) *Signal {
	return &Signal{
		current: initial,
		subs:    make(map[uint64]func(ir.RecordID)),
	}
}

// Current returns the pinned id, or ir.NoRecord.
func (s *Signal) Current() ir.RecordID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set pins id and notifies subscribers.
func (s *Signal) Set(id ir.RecordID) {
	s.mu.Lock()
	s.current = id
	ids := make([]uint64, 0, len(s.subs))
	for k := range s.subs {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	fns := make([]func(ir.RecordID), len(ids))
	for i, k := range ids {
		fns[i] = s.subs[k]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// Clear unpins and notifies subscribers.
func (s *Signal) Clear() {
	s.Set(ir.NoRecord)
}

// Subscribe registers fn for future Sets. The current value is not replayed.
func (s *Signal) Subscribe(fn func(ir.RecordID)) *feed.CancelToken {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return feed.NewCancelToken(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
}

// Subscribers returns the number of registered subscribers.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
