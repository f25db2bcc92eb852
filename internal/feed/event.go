package feed

import (
	"fmt"
	"sync"
)

// EventKind tags a ChangeEvent variant.
type EventKind int

const (
	// EventInitial carries the first snapshot of a new subscription.
	EventInitial EventKind = iota + 1
	// EventUpdated carries a new snapshot plus its change sets.
	EventUpdated
	// EventFailed carries a terminal error.
	EventFailed
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventInitial:
		return "initial"
	case EventUpdated:
		return "updated"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ChangeEvent is one notification from a Collection.
//
// Exactly one variant is populated according to Kind:
//   - EventInitial: Snapshot
//   - EventUpdated: Snapshot, Deletions, Insertions, Modifications
//   - EventFailed: Err
type ChangeEvent struct {
	Kind     EventKind
	Snapshot *Snapshot

	Deletions     []int // indices into the previous snapshot
	Insertions    []int // indices into Snapshot
	Modifications []int // indices into Snapshot

	Err error
}

// Initial builds an EventInitial event.
func Initial(s *Snapshot) ChangeEvent {
	return ChangeEvent{Kind: EventInitial, Snapshot: s}
}

// Updated builds an EventUpdated event.
func Updated(s *Snapshot, deletions, insertions, modifications []int) ChangeEvent {
	return ChangeEvent{
		Kind:          EventUpdated,
		Snapshot:      s,
		Deletions:     deletions,
		Insertions:    insertions,
		Modifications: modifications,
	}
}

// Failed builds an EventFailed event.
func Failed(err error) ChangeEvent {
	return ChangeEvent{Kind: EventFailed, Err: err}
}

// Structural reports whether the event changes result-set membership.
// Initial and Failed are structural by definition; Updated only when it
// carries deletions or insertions.
func (e ChangeEvent) Structural() bool {
	if e.Kind != EventUpdated {
		return true
	}
	return len(e.Deletions) > 0 || len(e.Insertions) > 0
}

// CancelToken releases a registration exactly once.
// Cancel is idempotent and safe to call on a nil token.
type CancelToken struct {
	once sync.Once
	fn   func()
}

// NewCancelToken wraps fn so it runs at most once.
func NewCancelToken(fn func()) *CancelToken {
	return &CancelToken{fn: fn}
}

// Cancel runs the release function on the first call only.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.fn != nil {
			t.fn()
		}
	})
}
