package indexmap

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cxxbridge/cxxbridge/internal/compiledb"
	"github.com/stretchr/testify/require"
)

func writeDB(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "compile_commands.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildFailsWhenArtifactDirMissing(t *testing.T) {
	dir := t.TempDir()
	dbPath := writeDB(t, dir, `[{"directory":"`+dir+`","file":"main.cpp","command":"cc main.cpp"}]`)
	db, err := compiledb.Load(dbPath)
	require.NoError(t, err)

	_, err = Build(db, dir, "clangd", 19)
	require.ErrorIs(t, err, ErrArtifactDirMissing)
}

// TestBuildComputesS2Digest exercises spec.md's S2 scenario literally: a
// format-version-19 SHA256-truncated digest for <root>/src/main.cpp.
func TestBuildComputesS2Digest(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build")
	srcDir := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	require.NoError(t, os.MkdirAll(srcDir, 0o755))

	mainCPP := filepath.Join(srcDir, "main.cpp")
	require.NoError(t, os.WriteFile(mainCPP, []byte("int main(){}"), 0o644))

	dbPath := writeDB(t, buildDir, fmt.Sprintf(`[{"directory":%q,"file":%q,"command":"cc main.cpp"}]`, buildDir, mainCPP))
	db, err := compiledb.Load(dbPath)
	require.NoError(t, err)

	artifactDir := filepath.Join(buildDir, ".cache", "clangd", "index")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))

	sum := sha256.Sum256([]byte(mainCPP))
	h := binary.BigEndian.Uint64(sum[:8])
	artifactPath := filepath.Join(artifactDir, fmt.Sprintf("main.cpp.%016X.idx", h))
	require.NoError(t, os.WriteFile(artifactPath, []byte("fake-index"), 0o644))

	m, err := Build(db, buildDir, "clangd", 19)
	require.NoError(t, err)
	require.Equal(t, 1, m.Count())
	require.Equal(t, 1, m.TotalFiles())
	require.Equal(t, 1.0, m.Coverage())

	got, ok := m.Lookup(mainCPP)
	require.True(t, ok)
	require.Equal(t, artifactPath, got)
}

func TestBuildOmitsEntriesWithoutArtifactOnDisk(t *testing.T) {
	dir := t.TempDir()
	mainCPP := filepath.Join(dir, "main.cpp")
	dbPath := writeDB(t, dir, fmt.Sprintf(`[{"directory":%q,"file":%q,"command":"cc main.cpp"}]`, dir, mainCPP))
	db, err := compiledb.Load(dbPath)
	require.NoError(t, err)

	artifactDir := filepath.Join(dir, ".cache", "clangd", "index")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))

	m, err := Build(db, dir, "clangd", 19)
	require.NoError(t, err)
	require.Equal(t, 0, m.Count())
	require.Equal(t, 1, m.TotalFiles())
	require.Equal(t, 0.0, m.Coverage())
}

func TestSHA1UsedForOlderFormatVersions(t *testing.T) {
	dir := t.TempDir()
	mainCPP := filepath.Join(dir, "main.cpp")
	dbPath := writeDB(t, dir, fmt.Sprintf(`[{"directory":%q,"file":%q,"command":"cc main.cpp"}]`, dir, mainCPP))
	db, err := compiledb.Load(dbPath)
	require.NoError(t, err)

	artifactDir := filepath.Join(dir, ".cache", "clangd", "index")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))

	path17 := artifactPathFor(artifactDir, mainCPP, 17)
	require.NoError(t, os.WriteFile(path17, []byte("x"), 0o644))

	m, err := Build(db, dir, "clangd", 17)
	require.NoError(t, err)
	require.Equal(t, 1, m.Count())
}
