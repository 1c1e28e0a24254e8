// Package indexmap maps compilation-database source files to their
// on-disk analyzer index artifacts (spec §4.6, C9), without ever parsing
// the artifact format itself.
package indexmap

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cxxbridge/cxxbridge/internal/compiledb"
)

// ErrArtifactDirMissing is returned when the analyzer's index directory
// does not exist at construction time. It is distinct from "no coverage
// yet": it signals the analyzer has never been run against this
// configuration (spec §4.6, S1).
var ErrArtifactDirMissing = errors.New("indexmap: artifact directory missing")

// Map is an immutable snapshot of which compilation-database files have a
// materialized analyzer artifact on disk.
type Map struct {
	artifactDir string
	totalFiles  int
	bySource    map[string]string // source absolute path -> artifact absolute path
}

// Build constructs a Map for db under analyzerName, using formatVersion to
// select the digest algorithm (spec §4.6: ≤17 SHA1, >17 SHA256, both
// truncated to the first 64 bits big-endian). compileDBDir is the directory
// containing the compile_commands.json the db was loaded from.
func Build(db *compiledb.Database, compileDBDir, analyzerName string, formatVersion int) (*Map, error) {
	artifactDir := filepath.Join(compileDBDir, ".cache", analyzerName, "index")
	info, err := os.Stat(artifactDir)
	if err != nil || !info.IsDir() {
		return nil, ErrArtifactDirMissing
	}

	bySource := make(map[string]string)
	for _, src := range db.Files() {
		artifactPath := artifactPathFor(artifactDir, src, formatVersion)
		if _, err := os.Stat(artifactPath); err == nil {
			bySource[src] = artifactPath
		}
	}

	return &Map{
		artifactDir: artifactDir,
		totalFiles:  db.Len(),
		bySource:    bySource,
	}, nil
}

// artifactPathFor computes <artifactDir>/<basename>.<16-HEX>.idx for src
// under formatVersion.
func artifactPathFor(artifactDir, src string, formatVersion int) string {
	hash := digest(src, formatVersion)
	basename := filepath.Base(src)
	return filepath.Join(artifactDir, fmt.Sprintf("%s.%016X.idx", basename, hash))
}

// digest returns the first 64 bits (big-endian) of the format-selected hash
// of the UTF-8 bytes of src.
func digest(src string, formatVersion int) uint64 {
	var sum []byte
	if formatVersion <= 17 {
		h := sha1.Sum([]byte(src))
		sum = h[:]
	} else {
		h := sha256.Sum256([]byte(src))
		sum = h[:]
	}
	return binary.BigEndian.Uint64(sum[:8])
}

// Lookup returns the artifact path for src, if its index artifact exists on
// disk.
func (m *Map) Lookup(src string) (string, bool) {
	path, ok := m.bySource[src]
	return path, ok
}

// Count returns how many compilation-database files currently have a
// materialized artifact.
func (m *Map) Count() int { return len(m.bySource) }

// TotalFiles returns the total number of files in the compilation database
// this map was built from (the coverage denominator).
func (m *Map) TotalFiles() int { return m.totalFiles }

// Coverage returns Count()/TotalFiles(), or 0 if TotalFiles() is 0.
func (m *Map) Coverage() float64 {
	if m.totalFiles == 0 {
		return 0
	}
	return float64(len(m.bySource)) / float64(m.totalFiles)
}

// Sources returns every source path with a materialized artifact, in
// unspecified order.
func (m *Map) Sources() []string {
	out := make([]string, 0, len(m.bySource))
	for src := range m.bySource {
		out = append(out, src)
	}
	return out
}
