package pin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/ir"
)

func TestFileSource_ReadsInitialValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinned")
	require.NoError(t, os.WriteFile(path, []byte("  r2\n"), 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, ir.RecordID("r2"), src.Current())
}

func TestFileSource_MissingFileMeansUnpinned(t *testing.T) {
	src, err := NewFileSource(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, ir.NoRecord, src.Current())
}

func TestFileSource_PublishesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pinned")

	src, err := NewFileSource(path)
	require.NoError(t, err)
	defer src.Close()

	got := make(chan ir.RecordID, 16)
	src.Subscribe(func(id ir.RecordID) { got <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("r7"), 0o644))

	require.Eventually(t, func() bool {
		return src.Current() == "r7"
	}, 2*time.Second, 10*time.Millisecond)

	// A write may surface as create+write; the last notification wins.
	sawPin := false
	for !sawPin {
		select {
		case id := <-got:
			sawPin = id == "r7"
		case <-time.After(2 * time.Second):
			t.Fatal("no notification for r7")
		}
	}

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return src.Current() == ir.NoRecord
	}, 2*time.Second, 10*time.Millisecond)
}
