package compiledb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDB(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "compile_commands.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesCommandAndArguments(t *testing.T) {
	path := writeDB(t, `[
		{"directory":"/build","file":"main.cpp","command":"clang++ -c main.cpp"},
		{"directory":"/build","file":"/abs/util.cpp","arguments":["clang++","-c","util.cpp"]}
	]`)

	db, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, db.Len())
	require.Len(t, db.Files(), 2)
	require.Contains(t, db.Files(), filepath.Join("/build", "main.cpp"))
	require.Contains(t, db.Files(), "/abs/util.cpp")
	require.Equal(t, []string{"/build"}, db.Dirs())
}

func TestLoadRejectsEmptyDatabase(t *testing.T) {
	path := writeDB(t, `[]`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeDB(t, `not json`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEntriesAreNotAliasedAfterLoad(t *testing.T) {
	path := writeDB(t, `[{"directory":"/build","file":"main.cpp","command":"cc main.cpp"}]`)
	db, err := Load(path)
	require.NoError(t, err)

	entries := db.Entries()
	entries[0].File = "mutated"

	entriesAgain := db.Entries()
	require.Equal(t, filepath.Join("/build", "main.cpp"), entriesAgain[0].File)
}
