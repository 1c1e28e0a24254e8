package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCMakeBuild(t *testing.T, buildDir, sourceRoot string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	cache := "CMAKE_SOURCE_DIR:STATIC=" + sourceRoot + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "CMakeCache.txt"), []byte(cache), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "compile_commands.json"), []byte("[]"), 0o644))
}

func TestScanFindsSingleCMakeBuild(t *testing.T) {
	root := t.TempDir()
	buildDir := filepath.Join(root, "build")
	writeCMakeBuild(t, buildDir, root)

	s := New(DefaultExcludes)
	ws, err := s.Scan(context.Background(), root, 4)
	require.NoError(t, err)
	require.Len(t, ws.Configs, 1)
	require.Equal(t, "cmake", ws.Configs[0].Provider)
	require.Equal(t, root, ws.Configs[0].SourceRoot)
}

func TestScanIsIdempotentIgnoringTimestamp(t *testing.T) {
	root := t.TempDir()
	writeCMakeBuild(t, filepath.Join(root, "build"), root)

	s := New(DefaultExcludes)
	ws1, err := s.Scan(context.Background(), root, 4)
	require.NoError(t, err)
	ws2, err := s.Scan(context.Background(), root, 4)
	require.NoError(t, err)

	require.Equal(t, len(ws1.Configs), len(ws2.Configs))
	require.Equal(t, ws1.Configs[0].BuildDir, ws2.Configs[0].BuildDir)
	require.Equal(t, ws1.Configs[0].Provider, ws2.Configs[0].Provider)
}

func TestScanRespectsExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeCMakeBuild(t, filepath.Join(root, "vendor", "build"), root)

	s := New([]string{"**/vendor/**"})
	ws, err := s.Scan(context.Background(), root, 4)
	require.NoError(t, err)
	require.Empty(t, ws.Configs)
}

func TestScanStopsAtMaxDepth(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c", "build")
	writeCMakeBuild(t, deep, root)

	s := New(DefaultExcludes)
	ws, err := s.Scan(context.Background(), root, 1)
	require.NoError(t, err)
	require.Empty(t, ws.Configs)
}

func TestScanFindsMultipleBuildDirsConcurrently(t *testing.T) {
	root := t.TempDir()
	writeCMakeBuild(t, filepath.Join(root, "build-debug"), root)
	writeCMakeBuild(t, filepath.Join(root, "build-release"), root)

	s := New(DefaultExcludes)
	ws, err := s.Scan(context.Background(), root, 4)
	require.NoError(t, err)
	require.Len(t, ws.Configs, 2)
}
