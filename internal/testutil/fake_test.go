package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

func TestFakeCollection_CountsAndEmits(t *testing.T) {
	c := NewFakeCollection(Rec("r1", "Swift", 1))

	var kinds []feed.EventKind
	tok := c.SubscribeChanges(func(ev feed.ChangeEvent) { kinds = append(kinds, ev.Kind) })

	c.Insert(Rec("r2", "Metal", 2))
	c.Modify(0, ir.Obj(ir.O("title", ir.IRString("Swift 6"))))
	tok.Cancel()
	tok.Cancel()
	c.Insert(Rec("r3", "SwiftUI", 3))

	assert.Equal(t, []feed.EventKind{feed.EventInitial, feed.EventUpdated, feed.EventUpdated}, kinds)
	assert.Equal(t, 1, c.Subscribes())
	assert.Equal(t, 1, c.Cancels())
	assert.Equal(t, 0, c.Active())
	assert.Equal(t, []ir.RecordID{"r1", "r2", "r3"}, c.CurrentSnapshot().IDs())
}

func TestFakeSource_FailsOnDemand(t *testing.T) {
	s := NewFakeSource(Rec("r1", "Swift", 1))
	q := queryir.Select{From: "tracks"}

	c, err := s.Evaluate(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CurrentSnapshot().Len())

	s.SetErr(ErrUnavailable)
	_, err = s.Evaluate(context.Background(), q)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Len(t, s.Queries(), 2)
	assert.Len(t, s.Collections(), 1)
	assert.Same(t, s.Collections()[0], s.Last())
}
