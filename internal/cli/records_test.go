package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/liveview/internal/ir"
)

func TestPutGetDelete(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "put", "--db", db, "--collection", "tracks", "--id", "R1", `{"title": "Swift", "plays": 2}`)
	require.NoError(t, err)
	assert.Equal(t, "R1 tracks seq=1 version=1 {\"plays\":2,\"title\":\"Swift\"}\n", out)

	out, err = execute(t, "put", "--db", db, "--collection", "tracks", "--id", "R1", `{"title": "Swift 6"}`)
	require.NoError(t, err)
	assert.Equal(t, "R1 tracks seq=1 version=2 {\"title\":\"Swift 6\"}\n", out)

	out, err = execute(t, "get", "--db", db, "R1")
	require.NoError(t, err)
	assert.Contains(t, out, "version=2")

	out, err = execute(t, "delete", "--db", db, "R1")
	require.NoError(t, err)
	assert.Equal(t, "deleted R1\n", out)

	_, err = execute(t, "get", "--db", db, "R1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "record not found")
}

func TestPutJSON(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--format", "json", "put", "--db", db, "--collection", "tracks", `{"title": "Metal"}`)
	require.NoError(t, err)

	var rec RecordOutput
	resp := decodeData(t, out, &rec)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.ID, "id is generated")
	assert.Equal(t, "tracks", rec.Collection)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, ir.IRString("Metal"), rec.Fields["title"])
}

func TestPutInvalidFields(t *testing.T) {
	db := seedDB(t)

	tests := []struct {
		name   string
		fields string
		want   string
	}{
		{"not json", `{title`, "invalid fields JSON"},
		{"not an object", `["a"]`, "fields must be a JSON object"},
		{"float", `{"rating": 4.5}`, "floats are forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "put", "--db", db, "--collection", "tracks", tt.fields)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPutRequiresCollection(t *testing.T) {
	_, err := execute(t, "put", "--db", seedDB(t), `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "collection" not set`)
}

func TestDeleteMissing(t *testing.T) {
	_, err := execute(t, "delete", "--db", seedDB(t), "R9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOpenStoreFailure(t *testing.T) {
	_, err := execute(t, "get", "--db", "/nonexistent/dir/tracks.db", "R1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestToRecordListString(t *testing.T) {
	assert.Equal(t, "(no records)", RecordList{}.String())

	list := toRecordList([]ir.Record{
		{ID: "R1", Collection: "tracks", Seq: 1, Version: 1},
		{ID: "R2", Collection: "tracks", Fields: ir.IRObject{"a": ir.IRInt(1)}, Seq: 2, Version: 3},
	})
	assert.Equal(t, "R1 tracks seq=1 version=1 {}\nR2 tracks seq=2 version=3 {\"a\":1}", list.String())
}
