package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
}

func TestLoadViews(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "swift.cue", `
package views

view: swift: {
	from: "tracks"
	where: contains: title: "Swift"
}
`)
	writeCUE(t, dir, "all.cue", `
package views

view: all: from: "tracks"
`)
	writeCUE(t, dir, "notes.txt", "ignored")

	views, err := LoadViews(dir)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "all", views[0].Name)
	assert.Equal(t, "swift", views[1].Name)

	v, ok := FindView(views, "swift")
	require.True(t, ok)
	assert.Equal(t, "tracks", v.Query.From)

	_, ok = FindView(views, "missing")
	assert.False(t, ok)
}

func TestLoadViewsErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadViews(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("no files", func(t *testing.T) {
		_, err := LoadViews(t.TempDir())
		assert.ErrorContains(t, err, "no CUE files")
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "bad.cue", "package views\n\nview: swift: {\n")
		_, err := LoadViews(dir)
		assert.Error(t, err)
	})

	t.Run("invalid view", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "bad.cue", "package views\n\nview: bad: where: contains: title: \"x\"\n")
		_, err := LoadViews(dir)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "from", ce.Field)
	})
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "b.cue", "package views\n")
	writeCUE(t, dir, "a.cue", "package views\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	writeCUE(t, filepath.Join(dir, "sub"), "c.cue", "package views\n")

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue"), filepath.Join(dir, "b.cue")}, files)
}
