// Package buffer caches UTF-8 file contents per path and provides
// byte/position translation (spec §4.10, C13): get_line, text_between,
// and UTF-16 code-unit position math, the encoding LS uses by default.
//
// Grounded on the same xxhash content-hashing idiom the rest of the corpus
// uses for cheap change detection (cespare/xxhash/v2), and on fsnotify for
// watching files already open for staleness.
package buffer

import (
	"os"
	"sort"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"
)

// Position is zero-based (line, UTF-16 code unit), matching internal/lsp's
// wire type.
type Position struct {
	Line      int
	Character int
}

// Buffer is one cached file's content plus precomputed line offsets.
type Buffer struct {
	mu          sync.RWMutex
	path        string
	content     string
	contentHash uint64
	mtimeAtRead time.Time
	lineStarts  []int // byte offset of the start of each line
	lastUsed    time.Time
}

// loadBuffer reads path from disk and builds a Buffer from its current
// content and mtime.
func loadBuffer(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return newBuffer(path, string(data), info.ModTime()), nil
}

func newBuffer(path, content string, mtime time.Time) *Buffer {
	return &Buffer{
		path:        path,
		content:     content,
		contentHash: xxhash.Sum64String(content),
		mtimeAtRead: mtime,
		lineStarts:  computeLineStarts(content),
		lastUsed:    time.Now(),
	}
}

func computeLineStarts(content string) []int {
	starts := []int{0}
	for i, r := range content {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// GetLine returns the content of line n (0-based), without its trailing
// newline.
func (b *Buffer) GetLine(n int) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n < 0 || n >= len(b.lineStarts) {
		return "", false
	}
	start := b.lineStarts[n]
	end := len(b.content)
	if n+1 < len(b.lineStarts) {
		end = b.lineStarts[n+1] - 1 // exclude the newline
		if end > 0 && b.content[end-1] == '\r' {
			end--
		}
	} else if end > start && b.content[end-1] == '\n' {
		end--
	}
	return b.content[start:end], true
}

// TextBetween returns the text spanning [start, end) in UTF-16 position
// terms.
func (b *Buffer) TextBetween(start, end Position) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	startOff, ok := b.byteOffsetLocked(start)
	if !ok {
		return "", false
	}
	endOff, ok := b.byteOffsetLocked(end)
	if !ok {
		return "", false
	}
	if endOff < startOff {
		return "", false
	}
	return b.content[startOff:endOff], true
}

// ByteOffset translates a (line, utf16-column) position into a byte offset
// into Content(). Returns false if the position is out of range.
func (b *Buffer) ByteOffset(pos Position) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byteOffsetLocked(pos)
}

func (b *Buffer) byteOffsetLocked(pos Position) (int, bool) {
	if pos.Line < 0 || pos.Line >= len(b.lineStarts) {
		return 0, false
	}
	lineStart := b.lineStarts[pos.Line]
	lineEnd := len(b.content)
	if pos.Line+1 < len(b.lineStarts) {
		lineEnd = b.lineStarts[pos.Line+1]
	}
	line := b.content[lineStart:lineEnd]

	units := 0
	for byteIdx, r := range line {
		if units >= pos.Character {
			return lineStart + byteIdx, true
		}
		units += utf16Width(r)
	}
	if units == pos.Character {
		return lineStart + len(line), true
	}
	return 0, false
}

// PositionAt translates a byte offset back into a (line, utf16-column)
// position, the inverse of ByteOffset (spec §8 property 9).
func (b *Buffer) PositionAt(offset int) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if offset < 0 || offset > len(b.content) {
		return Position{}, false
	}
	line := sort.Search(len(b.lineStarts), func(i int) bool { return b.lineStarts[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	lineStart := b.lineStarts[line]
	units := 0
	for byteIdx, r := range b.content[lineStart:offset] {
		_ = byteIdx
		units += utf16Width(r)
	}
	return Position{Line: line, Character: units}, true
}

func utf16Width(r rune) int {
	return len(utf16.Encode([]rune{r}))
}

// Content returns the buffer's full cached text.
func (b *Buffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content
}

// ContentHash returns the xxhash of the cached content, used to detect
// whether the bridge's own writes (didChange) diverge from disk.
func (b *Buffer) ContentHash() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.contentHash
}

func (b *Buffer) touch() {
	b.mu.Lock()
	b.lastUsed = time.Now()
	b.mu.Unlock()
}
