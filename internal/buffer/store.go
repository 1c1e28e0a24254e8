package buffer

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cxxbridge/cxxbridge/internal/bridgeerr"
)

// Store is the per-session buffer cache (spec §4.10): concurrent readers
// per path are allowed, buffers are evicted explicitly or by LRU once
// MaxBuffers is exceeded, and a background fsnotify watcher marks a buffer
// stale as soon as its underlying file changes on disk.
//
// Grounded on the watcher/ctx/cancel/wg shape of lci's FileWatcher,
// generalized from whole-tree incremental indexing to per-path staleness
// tracking for open documents.
type Store struct {
	mu         sync.Mutex
	buffers    map[string]*Buffer
	maxBuffers int

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore builds a Store with the given LRU cap (0 disables the cap).
func NewStore(maxBuffers int) (*Store, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, bridgeerr.Res("buffer-store-watch", err)
	}
	s := &Store{
		buffers:    make(map[string]*Buffer),
		maxBuffers: maxBuffers,
		watcher:    w,
		done:       make(chan struct{}),
	}
	go s.watchLoop()
	return s, nil
}

// Get returns the cached Buffer for path, loading it from disk on first
// access, or refreshing it if the file's mtime has advanced since it was
// last read (spec §4.8 "ensure_file_ready": "refresh it if the file buffer
// detects a change since last open").
func (s *Store) Get(path string) (*Buffer, error) {
	s.mu.Lock()
	existing, ok := s.buffers[path]
	s.mu.Unlock()

	if ok {
		stale, err := existing.staleOnDisk()
		if err != nil {
			return nil, bridgeerr.Res("buffer-get", err)
		}
		if !stale {
			existing.touch()
			return existing, nil
		}
	}

	fresh, err := loadBuffer(path)
	if err != nil {
		return nil, bridgeerr.Res("buffer-get", err)
	}

	s.mu.Lock()
	s.buffers[path] = fresh
	s.evictIfOverCapLocked()
	s.mu.Unlock()

	s.watcher.Add(path) // best-effort; failure just means no staleness push-notification for path

	return fresh, nil
}

// Invalidate explicitly drops path from the cache.
func (s *Store) Invalidate(path string) {
	s.mu.Lock()
	delete(s.buffers, path)
	s.mu.Unlock()
	s.watcher.Remove(path)
}

func (s *Store) evictIfOverCapLocked() {
	if s.maxBuffers <= 0 || len(s.buffers) <= s.maxBuffers {
		return
	}
	var oldestPath string
	var oldestTime time.Time
	for path, b := range s.buffers {
		b.mu.RLock()
		last := b.lastUsed
		b.mu.RUnlock()
		if oldestPath == "" || last.Before(oldestTime) {
			oldestPath, oldestTime = path, last
		}
	}
	if oldestPath != "" {
		delete(s.buffers, oldestPath)
	}
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.Invalidate(event.Name)
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the background watcher. Calls after the first are no-ops.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

// staleOnDisk reports whether path's mtime has advanced since it was read.
func (b *Buffer) staleOnDisk() (bool, error) {
	info, err := os.Stat(b.path)
	if err != nil {
		return false, err
	}
	b.mu.RLock()
	at := b.mtimeAtRead
	b.mu.RUnlock()
	return info.ModTime().After(at), nil
}
