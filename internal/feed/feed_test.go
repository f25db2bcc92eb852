package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/ir"
)

func rec(id string, version int64) ir.Record {
	return ir.Record{
		ID:         ir.RecordID(id),
		Collection: "tracks",
		Fields:     ir.Obj(ir.O("title", ir.IRString(id))),
		Version:    version,
	}
}

func snap(recs ...ir.Record) *Snapshot {
	return NewSnapshot(recs)
}

// queue is a manual dispatcher: tasks run only when drained.
type queue struct {
	tasks []func()
}

func (q *queue) Post(task func()) bool {
	q.tasks = append(q.tasks, task)
	return true
}

func (q *queue) drain() {
	for len(q.tasks) > 0 {
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		task()
	}
}

func TestSnapshot_Accessors(t *testing.T) {
	s := snap(rec("r1", 1), rec("r2", 1))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []ir.RecordID{"r1", "r2"}, s.IDs())
	assert.Equal(t, 1, s.IndexOf("r2"))
	assert.Equal(t, -1, s.IndexOf("r9"))
	assert.True(t, s.Contains("r1"))

	var nilSnap *Snapshot
	assert.Equal(t, 0, nilSnap.Len())
	assert.Nil(t, nilSnap.IDs())
	assert.False(t, nilSnap.Contains("r1"))
}

func TestSnapshot_Immutable(t *testing.T) {
	src := []ir.Record{rec("r1", 1)}
	s := NewSnapshot(src)

	src[0].Fields["title"] = ir.IRString("changed")
	got := s.At(0)
	assert.Equal(t, ir.IRString("r1"), got.Fields["title"])

	got.Fields["title"] = ir.IRString("changed again")
	assert.Equal(t, ir.IRString("r1"), s.At(0).Fields["title"])

	all := s.Records()
	all[0].ID = "other"
	assert.Equal(t, ir.RecordID("r1"), s.At(0).ID)
}

func TestSnapshot_Digest(t *testing.T) {
	a, err := snap(rec("r1", 1), rec("r2", 1)).Digest()
	require.NoError(t, err)
	b, err := snap(rec("r1", 1), rec("r2", 1)).Digest()
	require.NoError(t, err)
	c, err := snap(rec("r2", 1), rec("r1", 1)).Digest()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "digest is order-sensitive")
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		prev    *Snapshot
		next    *Snapshot
		wantDel []int
		wantIns []int
		wantMod []int
	}{
		{
			name: "no change",
			prev: snap(rec("r1", 1)),
			next: snap(rec("r1", 1)),
		},
		{
			name:    "insert",
			prev:    snap(rec("r1", 1)),
			next:    snap(rec("r1", 1), rec("r3", 1)),
			wantIns: []int{1},
		},
		{
			name:    "delete uses old indices",
			prev:    snap(rec("r1", 1), rec("r2", 1), rec("r3", 1)),
			next:    snap(rec("r1", 1), rec("r3", 1)),
			wantDel: []int{1},
		},
		{
			name:    "modification uses new indices",
			prev:    snap(rec("r1", 1), rec("r2", 1)),
			next:    snap(rec("r2", 2)),
			wantDel: []int{0},
			wantMod: []int{0},
		},
		{
			name:    "from nil",
			prev:    nil,
			next:    snap(rec("r1", 1)),
			wantIns: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			del, ins, mod := Diff(tt.prev, tt.next)
			assert.Equal(t, tt.wantDel, del)
			assert.Equal(t, tt.wantIns, ins)
			assert.Equal(t, tt.wantMod, mod)
		})
	}
}

func TestChangeEvent_Structural(t *testing.T) {
	assert.True(t, Initial(EmptySnapshot()).Structural())
	assert.True(t, Failed(errors.New("x")).Structural())
	assert.True(t, Updated(EmptySnapshot(), []int{0}, nil, nil).Structural())
	assert.True(t, Updated(EmptySnapshot(), nil, []int{0}, nil).Structural())
	assert.False(t, Updated(EmptySnapshot(), nil, nil, []int{0}).Structural())
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "initial", EventInitial.String())
	assert.Equal(t, "updated", EventUpdated.String())
	assert.Equal(t, "failed", EventFailed.String())
	assert.Equal(t, "EventKind(9)", EventKind(9).String())
}

func TestCancelToken_Once(t *testing.T) {
	calls := 0
	tok := NewCancelToken(func() { calls++ })

	tok.Cancel()
	tok.Cancel()
	assert.Equal(t, 1, calls)

	var nilTok *CancelToken
	assert.NotPanics(t, nilTok.Cancel)
	assert.NotPanics(t, NewCancelToken(nil).Cancel)
}

func TestLiveCollection_InitialThenUpdates(t *testing.T) {
	q := &queue{}
	c := NewLiveCollection(snap(rec("r1", 1)), q)

	var events []ChangeEvent
	tok := c.SubscribeChanges(func(ev ChangeEvent) { events = append(events, ev) })
	defer tok.Cancel()

	c.Refresh(snap(rec("r1", 1), rec("r2", 1)))
	c.Refresh(snap(rec("r1", 1), rec("r2", 1))) // no-op
	c.Refresh(snap(rec("r1", 2), rec("r2", 1)))
	q.drain()

	require.Len(t, events, 3)
	assert.Equal(t, EventInitial, events[0].Kind)
	assert.Equal(t, []ir.RecordID{"r1"}, events[0].Snapshot.IDs())

	assert.Equal(t, EventUpdated, events[1].Kind)
	assert.Equal(t, []int{1}, events[1].Insertions)

	assert.Equal(t, EventUpdated, events[2].Kind)
	assert.Empty(t, events[2].Insertions)
	assert.Empty(t, events[2].Deletions)
	assert.Equal(t, []int{0}, events[2].Modifications)

	assert.Equal(t, []ir.RecordID{"r1", "r2"}, c.CurrentSnapshot().IDs())
}

func TestLiveCollection_CancelDropsQueued(t *testing.T) {
	q := &queue{}
	c := NewLiveCollection(snap(rec("r1", 1)), q)

	var events []ChangeEvent
	tok := c.SubscribeChanges(func(ev ChangeEvent) { events = append(events, ev) })
	q.drain()
	require.Len(t, events, 1)

	c.Refresh(snap(rec("r1", 1), rec("r2", 1)))
	tok.Cancel()
	q.drain()

	assert.Len(t, events, 1, "event queued before cancel must be dropped")
}

func TestLiveCollection_RetiresWhenLastSubscriberLeaves(t *testing.T) {
	retired := 0
	c := NewLiveCollection(snap(rec("r1", 1)), Inline, WithOnRetire(func() { retired++ }))

	a := c.SubscribeChanges(func(ChangeEvent) {})
	b := c.SubscribeChanges(func(ChangeEvent) {})
	assert.Equal(t, 2, c.SubscriberCount())

	a.Cancel()
	assert.Equal(t, 0, retired)
	b.Cancel()
	b.Cancel()
	assert.Equal(t, 1, retired)

	assert.False(t, c.Refresh(snap()), "retired collection is not refreshed")

	var late []ChangeEvent
	c.SubscribeChanges(func(ev ChangeEvent) { late = append(late, ev) })
	require.Len(t, late, 1)
	assert.Equal(t, EventFailed, late[0].Kind)
	assert.ErrorIs(t, late[0].Err, ErrRetired)
}

func TestLiveCollection_Fail(t *testing.T) {
	retired := 0
	c := NewLiveCollection(snap(rec("r1", 1)), Inline, WithOnRetire(func() { retired++ }))
	boom := errors.New("disk gone")

	var events []ChangeEvent
	tok := c.SubscribeChanges(func(ev ChangeEvent) { events = append(events, ev) })

	c.Fail(boom)
	c.Fail(errors.New("second"))
	c.Refresh(snap())

	require.Len(t, events, 2)
	assert.Equal(t, EventFailed, events[1].Kind)
	assert.ErrorIs(t, events[1].Err, boom)
	assert.Equal(t, 1, retired)
	assert.Equal(t, 0, c.SubscriberCount())
	assert.ErrorIs(t, c.Err(), boom)

	// Cancelling after failure neither panics nor re-fires retire.
	assert.NotPanics(t, tok.Cancel)
	assert.Equal(t, 1, retired)

	var late []ChangeEvent
	c.SubscribeChanges(func(ev ChangeEvent) { late = append(late, ev) })
	require.Len(t, late, 1)
	assert.ErrorIs(t, late[0].Err, boom)
}

func TestLiveCollection_SubscriberOrder(t *testing.T) {
	c := NewLiveCollection(snap(), Inline)

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		c.SubscribeChanges(func(ev ChangeEvent) {
			if ev.Kind == EventUpdated {
				order = append(order, name)
			}
		})
	}
	c.Refresh(snap(rec("r1", 1)))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
