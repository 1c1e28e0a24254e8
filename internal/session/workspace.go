package session

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cxxbridge/cxxbridge/internal/buildconfig"
	"github.com/cxxbridge/cxxbridge/internal/lsp"
	"github.com/cxxbridge/cxxbridge/internal/verscache"
)

// Factory builds one ComponentSession for cfg. Production code supplies
// New (bound to a real binary path and profile); tests substitute a fake.
type Factory func(ctx context.Context, cfg buildconfig.BuildConfiguration) (*ComponentSession, error)

// WorkspaceSession is the process-wide cache of ComponentSessions keyed by
// build directory (spec §4.9, C12). Concurrent Get calls for the same
// build directory collapse into a single construction via singleflight,
// grounded on lci's use of golang.org/x/sync for concurrent indexing work.
type WorkspaceSession struct {
	mu       sync.RWMutex
	sessions map[string]*ComponentSession
	group    singleflight.Group
	factory  Factory
}

// NewWorkspaceSession builds an empty workspace session backed by factory.
func NewWorkspaceSession(factory Factory) *WorkspaceSession {
	return &WorkspaceSession{
		sessions: make(map[string]*ComponentSession),
		factory:  factory,
	}
}

// DefaultFactory returns a Factory that spawns profile's analyzer at
// binaryPath, optionally consulting versionCache for the detected version.
func DefaultFactory(profile lsp.AnalyzerProfile, binaryPath string, versionCache *verscache.Cache, maxBuffers int) Factory {
	return func(ctx context.Context, cfg buildconfig.BuildConfiguration) (*ComponentSession, error) {
		return New(ctx, cfg, Dependencies{
			Profile:      profile,
			BinaryPath:   binaryPath,
			VersionCache: versionCache,
			MaxBuffers:   maxBuffers,
		})
	}
}

// Get returns the cached ComponentSession for cfg.BuildDir, constructing it
// if necessary. Concurrent Get calls for the same build directory share one
// in-flight construction (spec §4.9 item 2); a failed construction is not
// cached, so the next Get retries from scratch.
func (ws *WorkspaceSession) Get(ctx context.Context, cfg buildconfig.BuildConfiguration) (*ComponentSession, error) {
	ws.mu.RLock()
	if cs, ok := ws.sessions[cfg.BuildDir]; ok {
		ws.mu.RUnlock()
		return cs, nil
	}
	ws.mu.RUnlock()

	v, err, _ := ws.group.Do(cfg.BuildDir, func() (interface{}, error) {
		ws.mu.RLock()
		if cs, ok := ws.sessions[cfg.BuildDir]; ok {
			ws.mu.RUnlock()
			return cs, nil
		}
		ws.mu.RUnlock()

		cs, err := ws.factory(ctx, cfg)
		if err != nil {
			return nil, err
		}

		ws.mu.Lock()
		ws.sessions[cfg.BuildDir] = cs
		ws.mu.Unlock()
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ComponentSession), nil
}

// ListKnown returns every cached session's build directory, sorted, for
// deterministic display (spec §4.9 item 3).
func (ws *WorkspaceSession) ListKnown() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	dirs := make([]string, 0, len(ws.sessions))
	for dir := range ws.sessions {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Sessions returns every cached session, sorted by build directory. Useful
// for status endpoints that need more than the directory name.
func (ws *WorkspaceSession) Sessions() []*ComponentSession {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make([]*ComponentSession, 0, len(ws.sessions))
	for _, cs := range ws.sessions {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BuildDir() < out[j].BuildDir() })
	return out
}

// Lookup reports whether buildDir has a cached session without
// constructing one.
func (ws *WorkspaceSession) Lookup(buildDir string) (*ComponentSession, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	cs, ok := ws.sessions[buildDir]
	return cs, ok
}

// Drop shuts down and evicts the session for buildDir, if present (spec
// §4.9 item 4).
func (ws *WorkspaceSession) Drop(ctx context.Context, buildDir string) error {
	ws.mu.Lock()
	cs, ok := ws.sessions[buildDir]
	if ok {
		delete(ws.sessions, buildDir)
	}
	ws.mu.Unlock()
	if !ok {
		return nil
	}
	return cs.Shutdown(ctx)
}

// DropAll shuts down and evicts every cached session, in build-directory
// lexicographic order, matching the cross-session lock-ordering rule (spec
// §4.8 item 3) used elsewhere in this package.
func (ws *WorkspaceSession) DropAll(ctx context.Context) error {
	for _, dir := range ws.ListKnown() {
		if err := ws.Drop(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// LockMany locks every session in sessions in build-directory lexicographic
// order, preventing deadlock when a caller needs more than one session at
// once (spec §4.8 item 3). It returns an unlock function that releases them
// in reverse order.
func LockMany(sessions ...*ComponentSession) (unlock func()) {
	ordered := make([]*ComponentSession, len(sessions))
	copy(ordered, sessions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].BuildDir() < ordered[j].BuildDir() })
	for _, cs := range ordered {
		cs.Lock()
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].Unlock()
		}
	}
}
