package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/ir"
)

func TestPut_InsertAssignsSeqAndVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r1, err := s.Put(ctx, createTestRecord("r1", "Swift Concurrency"))
	require.NoError(t, err)
	r2, err := s.Put(ctx, createTestRecord("r2", "Metal"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.Seq)
	assert.Equal(t, int64(2), r2.Seq)
	assert.Equal(t, int64(1), r1.Version)
	assert.Equal(t, ir.IRString("Metal"), r2.Fields["title"])
}

func TestPut_UpdateKeepsSeqBumpsVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, createTestRecord("r1", "Swift"))
	require.NoError(t, err)
	_, err = s.Put(ctx, createTestRecord("r2", "Metal"))
	require.NoError(t, err)

	updated, err := s.Put(ctx, createTestRecord("r1", "Swift 6"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), updated.Seq)
	assert.Equal(t, int64(2), updated.Version)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestPut_GeneratesID(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(ir.NewSequenceGenerator("track")))

	rec, err := s.Put(context.Background(), createTestRecord("", "Untitled"))
	require.NoError(t, err)
	assert.Equal(t, ir.RecordID("track-1"), rec.ID)
}

func TestPut_ExplicitSeqAdvancesCounter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestRecord("r1", "Swift")
	rec.Seq = 10
	stored, err := s.Put(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Seq)

	next, err := s.Put(ctx, createTestRecord("r2", "Metal"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), next.Seq)
}

func TestPut_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, ir.Record{ID: "x"})
	assert.Error(t, err, "collection is required")

	_, err = s.Put(ctx, createTestRecord("r1", "Swift"))
	require.NoError(t, err)

	moved := createTestRecord("r1", "Swift")
	moved.Collection = "albums"
	_, err = s.Put(ctx, moved)
	assert.ErrorContains(t, err, `belongs to "tracks"`)
}

func TestPut_CanonicalFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, ir.Record{
		ID:         "r1",
		Collection: "tracks",
		Fields:     ir.Obj(ir.O("title", ir.IRString("Swift")), ir.O("plays", ir.IRInt(2))),
	})
	require.NoError(t, err)

	var raw string
	require.NoError(t, s.db.QueryRow(`SELECT fields FROM records WHERE id = 'r1'`).Scan(&raw))
	assert.Equal(t, `{"plays":2,"title":"Swift"}`, raw)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, createTestRecord("r1", "Swift"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "r1"))

	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "r1"), ErrNotFound)
}

func TestWrites_AfterClose(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Put(context.Background(), createTestRecord("r1", "Swift"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Delete(context.Background(), "r1"), ErrClosed)
}
