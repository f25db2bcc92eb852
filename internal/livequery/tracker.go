package livequery

import (
	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
)

// PinSource publishes the pinned record id.
type PinSource interface {
	// Current returns the pinned id, or ir.NoRecord.
	Current() ir.RecordID

	// Subscribe registers fn for every emission, duplicates included.
	Subscribe(fn func(ir.RecordID)) *feed.CancelToken
}

// PinTracker holds one pin-signal subscription for the lifetime of a
// LiveQuery and posts onChange to the dispatcher on every emission.
type PinTracker struct {
	token *feed.CancelToken
}

// TrackPins subscribes to src. A nil dispatcher means feed.Inline.
func TrackPins(src PinSource, d feed.Dispatcher, onChange func()) *PinTracker {
	if d == nil {
		d = feed.Inline
	}
	t := &PinTracker{}
	t.token = src.Subscribe(func(ir.RecordID) {
		pinChangesTotal.Inc()
		d.Post(onChange)
	})
	return t
}

// Stop releases the pin subscription. Safe to call more than once.
func (t *PinTracker) Stop() {
	if t == nil {
		return
	}
	t.token.Cancel()
}
