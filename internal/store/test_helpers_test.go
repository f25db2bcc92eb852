package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/liveview/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a track record with a title.
func createTestRecord(id, title string) ir.Record {
	return ir.Record{
		ID:         ir.RecordID(id),
		Collection: "tracks",
		Fields:     ir.Obj(ir.O("title", ir.IRString(title))),
	}
}
