package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/store"
)

// startWatch runs the watch command until the returned stop func is called.
func startWatch(t *testing.T, args ...string) (*syncBuffer, func() error) {
	t.Helper()
	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())

	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs(append([]string{"watch"}, args...))

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	return out, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not stop")
			return nil
		}
	}
}

func TestWatchPrintsMembershipChanges(t *testing.T) {
	db := seedDB(t, track("R1", "Swift Concurrency"), track("R2", "Metal"))
	out, stop := startWatch(t, "--db", db, "--from", "tracks", "--where", swiftWhere, "--poll", "10ms")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[1] 1 records: R1")
	}, 5*time.Second, 10*time.Millisecond)

	// A write from another connection is picked up by polling.
	other, err := store.Open(db)
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Put(context.Background(), track("R3", "SwiftUI"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[2] 2 records: R1, R3")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
}

func TestWatchPinFile(t *testing.T) {
	db := seedDB(t, track("R1", "Swift Concurrency"), track("R2", "Metal"))
	pinFile := filepath.Join(t.TempDir(), "pinned")
	require.NoError(t, os.WriteFile(pinFile, []byte("R2\n"), 0644))

	out, stop := startWatch(t, "--db", db, "--from", "tracks", "--where", swiftWhere,
		"--pin-file", pinFile, "--poll", "0", "--format", "json")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"seq":1`)
	}, 5*time.Second, 10*time.Millisecond)
	first := strings.SplitN(out.String(), "\n", 2)[0]
	assert.Contains(t, first, `"id":"R1"`)
	assert.Contains(t, first, `"id":"R2"`)

	require.NoError(t, os.WriteFile(pinFile, []byte(""), 0644))

	require.Eventually(t, func() bool {
		for _, line := range strings.Split(out.String(), "\n") {
			if strings.Contains(line, `"id":"R1"`) && !strings.Contains(line, `"id":"R2"`) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
}

func TestWatchFlagErrors(t *testing.T) {
	db := seedDB(t)

	_, err := execute(t, "watch", "--db", db, "--from", "tracks", "--pin", "R1", "--pin-file", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "exclusive")

	_, err = execute(t, "watch", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "watch", "--db", db, "--from", "tracks", "--pin-file", filepath.Join(t.TempDir(), "missing", "pin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch pin file")
}


func TestNewDelivery(t *testing.T) {
	rec := ir.Record{ID: "R1", Collection: "tracks", Seq: 1, Version: 1}

	a := newDelivery(1, feed.NewSnapshot([]ir.Record{rec}))
	b := newDelivery(2, feed.NewSnapshot([]ir.Record{rec}))
	assert.Equal(t, []string{"R1"}, a.Records.IDs())
	assert.NotEmpty(t, a.Digest)
	assert.Equal(t, a.Digest, b.Digest, "identical results share a digest")

	rec.Version = 2
	edited := newDelivery(3, feed.NewSnapshot([]ir.Record{rec}))
	assert.NotEqual(t, a.Digest, edited.Digest)

	none := newDelivery(4, nil)
	assert.True(t, none.Nil)
	assert.Empty(t, none.Digest)
	assert.Empty(t, none.Records)
}
