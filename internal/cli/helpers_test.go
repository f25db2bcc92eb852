package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/store"
)

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seedDB creates a database holding the given records, in order.
func seedDB(t *testing.T, records ...ir.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracks.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	for _, rec := range records {
		_, err := st.Put(context.Background(), rec)
		require.NoError(t, err)
	}
	return path
}

func track(id, title string) ir.Record {
	return ir.Record{
		ID:         ir.RecordID(id),
		Collection: "tracks",
		Fields:     ir.IRObject{"title": ir.IRString(title)},
	}
}

// decodeData decodes a JSON CLIResponse and its data payload into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	if v != nil {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp.CLIResponse
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
