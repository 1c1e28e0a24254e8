// Package session implements the component session (C11) and workspace
// session (C12) that sit at the heart of the core (spec §4.8, §4.9): one
// ComponentSession owns exactly one analyzer subprocess, its RPC/LS
// plumbing, progress monitor, and index map; one WorkspaceSession is a
// shared, singleflight-protected cache of ComponentSessions keyed by
// build directory.
package session

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cxxbridge/cxxbridge/internal/analyzerversion"
	"github.com/cxxbridge/cxxbridge/internal/bridgeerr"
	"github.com/cxxbridge/cxxbridge/internal/buffer"
	"github.com/cxxbridge/cxxbridge/internal/buildconfig"
	"github.com/cxxbridge/cxxbridge/internal/compiledb"
	"github.com/cxxbridge/cxxbridge/internal/indexmap"
	"github.com/cxxbridge/cxxbridge/internal/logging"
	"github.com/cxxbridge/cxxbridge/internal/lsp"
	"github.com/cxxbridge/cxxbridge/internal/process"
	"github.com/cxxbridge/cxxbridge/internal/progress"
	"github.com/cxxbridge/cxxbridge/internal/rpc"
	"github.com/cxxbridge/cxxbridge/internal/tracing"
	"github.com/cxxbridge/cxxbridge/internal/transport"
	"github.com/cxxbridge/cxxbridge/internal/verscache"
)

// State is the component session's lifecycle (spec §4.8: "Initializing →
// Ready → ShuttingDown → Terminated").
type State int

const (
	Initializing State = iota
	Ready
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// versionDetectTimeout and shutdownStepTimeout are the two fixed timeouts
// this package owns; ensure_indexed's timeout is caller-supplied (spec
// §5).
const (
	versionDetectTimeout = 5 * time.Second
	shutdownStepTimeout  = 5 * time.Second
)

// openDoc tracks one document this session has told the analyzer about.
type openDoc struct {
	version int
	hash    uint64
}

// ComponentSession owns one analyzer subprocess end to end.
type ComponentSession struct {
	cfg     buildconfig.BuildConfiguration
	profile lsp.AnalyzerProfile

	mu    sync.Mutex
	state State

	proc      *process.Supervisor
	rpcClient *rpc.Client
	ls        *lsp.Client
	monitor   *progress.Monitor
	indexMap  *indexmap.Map
	bufStore  *buffer.Store

	lockMu sync.Mutex // the session lock proper (spec §4.8 item 3)

	docsMu sync.Mutex
	docs   map[string]*openDoc

	log *log.Logger
}

// Dependencies bundles the constructor's external collaborators. It has no
// transport field: New always spawns the analyzer binary, and tests that
// run against lsptest.Fake build the ComponentSession value directly.
type Dependencies struct {
	Profile      lsp.AnalyzerProfile
	BinaryPath   string
	VersionCache *verscache.Cache
	MaxBuffers   int
}

// New constructs a ComponentSession for cfg, per spec §4.8 item 1: detect
// the analyzer's version, spawn it, build the transport/RPC/LS stack,
// initialize, register the progress monitor, and build the index map. Any
// failure here is fatal for this session. WorkspaceSession.Get does not
// cache a failed construction, so the next Get for the same build
// directory tries again.
func New(ctx context.Context, cfg buildconfig.BuildConfiguration, deps Dependencies) (*ComponentSession, error) {
	cs := &ComponentSession{
		cfg:     cfg,
		profile: deps.Profile,
		state:   Initializing,
		docs:    make(map[string]*openDoc),
		log:     logging.ForComponent("session:" + cfg.BuildDir),
	}

	version, err := detectVersion(ctx, deps.Profile, deps.BinaryPath, deps.VersionCache)
	if err != nil {
		return nil, bridgeerr.Scoped(bridgeerr.Process, "detect-version", cfg.BuildDir, err)
	}

	compileDBDir := filepath.Dir(cfg.CompileDBPath)
	argv := deps.Profile.Argv(compileDBDir)

	sup, stdin, stdout, err := process.Spawn(ctx, process.Spec{
		Binary:     deps.BinaryPath,
		Argv:       argv,
		WorkingDir: cfg.SourceRoot,
	}, nil)
	if err != nil {
		return nil, bridgeerr.Scoped(bridgeerr.Process, "spawn", cfg.BuildDir, err)
	}
	cs.proc = sup

	t := transport.NewStdio(stdin, stdout, nil)
	cs.rpcClient = rpc.NewClient(t)
	cs.ls = lsp.New(cs.rpcClient)

	cs.monitor = progress.New()
	cs.ls.OnProgress(cs.monitor.HandleProgress)

	if _, err := cs.ls.Initialize(ctx, cfg.SourceRoot); err != nil {
		cs.teardownAfterFailedInit()
		return nil, bridgeerr.Scoped(bridgeerr.Protocol, "initialize", cfg.BuildDir, err)
	}
	if err := cs.ls.Initialized(ctx); err != nil {
		cs.teardownAfterFailedInit()
		return nil, bridgeerr.Scoped(bridgeerr.Protocol, "initialized", cfg.BuildDir, err)
	}

	db, err := compiledb.Load(cfg.CompileDBPath)
	if err != nil {
		cs.teardownAfterFailedInit()
		return nil, bridgeerr.Scoped(bridgeerr.Configuration, "compiledb", cfg.BuildDir, err)
	}
	idxMap, err := indexmap.Build(db, compileDBDir, deps.Profile.Name(), version.FormatVersion())
	if err != nil {
		cs.teardownAfterFailedInit()
		return nil, bridgeerr.Scoped(bridgeerr.Indexing, "index-map", cfg.BuildDir, err)
	}
	cs.indexMap = idxMap

	bufStore, err := buffer.NewStore(deps.MaxBuffers)
	if err != nil {
		cs.teardownAfterFailedInit()
		return nil, bridgeerr.Scoped(bridgeerr.Resource, "buffer-store", cfg.BuildDir, err)
	}
	cs.bufStore = bufStore

	cs.mu.Lock()
	cs.state = Ready
	cs.mu.Unlock()

	return cs, nil
}

func (cs *ComponentSession) teardownAfterFailedInit() {
	if cs.proc != nil {
		cs.proc.StopImmediate(shutdownStepTimeout)
	}
	if cs.rpcClient != nil {
		cs.rpcClient.Close()
	}
}

// BuildDir identifies this session for lock-ordering purposes (spec §4.8
// item 3).
func (cs *ComponentSession) BuildDir() string { return cs.cfg.BuildDir }

// State returns the current lifecycle state.
func (cs *ComponentSession) State() State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

// Lock acquires the session lock guarding the LS client. Callers must hold
// it for the duration of any multi-call LS sequence.
func (cs *ComponentSession) Lock() { cs.lockMu.Lock() }

// Unlock releases the session lock.
func (cs *ComponentSession) Unlock() { cs.lockMu.Unlock() }

// LS returns the typed LS client. Callers must hold the session lock
// before issuing any call that is part of a multi-step sequence.
func (cs *ComponentSession) LS() *lsp.Client { return cs.ls }

// IndexMap returns the session's index artifact map.
func (cs *ComponentSession) IndexMap() *indexmap.Map { return cs.indexMap }

// IndexStatus derives an externally-facing progress view for this session
// as of now, for the status HTTP surface and CLI status subcommand (spec
// §3).
func (cs *ComponentSession) IndexStatus(now time.Time) progress.IndexStatusView {
	return cs.monitor.Status(now)
}

// EnsureIndexed awaits the progress monitor's completion signal under
// timeout, per spec §4.8 item 2. Safe to call concurrently and repeatedly;
// concurrent callers share the same underlying wait.
func (cs *ComponentSession) EnsureIndexed(ctx context.Context, timeout time.Duration) (Readiness, error) {
	ctx, end := tracing.Start(ctx, "session.ensure_indexed", attribute.String("build_dir", cs.cfg.BuildDir))
	defer func() { end(nil) }()

	if cs.State() != Ready {
		return ReadinessFailed, bridgeerr.Scoped(bridgeerr.Process, "ensure-indexed", cs.cfg.BuildDir, bridgeerr.ErrConnectionLost)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := cs.monitor.WaitForIdle(waitCtx)
	switch {
	case err == nil:
		return ReadinessReady, nil
	case waitCtx.Err() != nil:
		return ReadinessTimedOut, nil
	default:
		return ReadinessFailed, bridgeerr.Scoped(bridgeerr.Indexing, "ensure-indexed", cs.cfg.BuildDir, err)
	}
}

// Readiness is EnsureIndexed's tri-state outcome.
type Readiness int

const (
	ReadinessReady Readiness = iota
	ReadinessTimedOut
	ReadinessFailed
)

func (r Readiness) String() string {
	switch r {
	case ReadinessReady:
		return "ready"
	case ReadinessTimedOut:
		return "timed_out"
	case ReadinessFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EnsureFileReady opens path with the LS client if it is not already open,
// or sends a didChange if the cached buffer detects the file has changed
// since it was last opened (spec §4.8 item 4). Callers must hold the
// session lock.
func (cs *ComponentSession) EnsureFileReady(ctx context.Context, path string) error {
	buf, err := cs.bufStore.Get(path)
	if err != nil {
		return bridgeerr.Scoped(bridgeerr.Resource, "ensure-file-ready", cs.cfg.BuildDir, err)
	}
	uri := "file://" + path
	hash := buf.ContentHash()

	cs.docsMu.Lock()
	doc, open := cs.docs[uri]
	cs.docsMu.Unlock()

	if !open {
		if err := cs.ls.DidOpen(lsp.TextDocumentItem{
			URI:        uri,
			LanguageID: "cpp",
			Version:    1,
			Text:       buf.Content(),
		}); err != nil {
			return bridgeerr.Scoped(bridgeerr.Protocol, "did-open", cs.cfg.BuildDir, err)
		}
		cs.docsMu.Lock()
		cs.docs[uri] = &openDoc{version: 1, hash: hash}
		cs.docsMu.Unlock()
		return nil
	}

	if doc.hash == hash {
		return nil // unchanged since last open
	}

	newVersion := doc.version + 1
	if err := cs.ls.DidChange(uri, newVersion, buf.Content()); err != nil {
		return bridgeerr.Scoped(bridgeerr.Protocol, "did-change", cs.cfg.BuildDir, err)
	}
	cs.docsMu.Lock()
	cs.docs[uri] = &openDoc{version: newVersion, hash: hash}
	cs.docsMu.Unlock()
	return nil
}

// Shutdown runs the session's shutdown sequence (spec §4.8 item 5): LS
// shutdown/exit, graceful process termination, then closing the RPC client.
// Closing the client fails every remaining waiter with a Process-kind error
// wrapping ErrConnectionLost; it does not use a Cancellation-kind error.
func (cs *ComponentSession) Shutdown(ctx context.Context) error {
	cs.mu.Lock()
	if cs.state == Terminated || cs.state == ShuttingDown {
		cs.mu.Unlock()
		return nil
	}
	cs.state = ShuttingDown
	cs.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownStepTimeout)
	defer cancel()
	cs.ls.Shutdown(shutdownCtx)
	cs.ls.Exit()

	err := cs.proc.StopGraceful(shutdownStepTimeout)
	cs.rpcClient.Close()
	cs.bufStore.Close()

	cs.mu.Lock()
	cs.state = Terminated
	cs.mu.Unlock()

	if err != nil {
		return bridgeerr.Scoped(bridgeerr.Process, "shutdown", cs.cfg.BuildDir, err)
	}
	return nil
}

// detectVersion runs the analyzer's version flag (or returns a cached
// result), bounded by versionDetectTimeout.
func detectVersion(ctx context.Context, profile lsp.AnalyzerProfile, binaryPath string, cache *verscache.Cache) (analyzerversion.Version, error) {
	mtime, err := binaryMtime(binaryPath)
	if err != nil {
		return analyzerversion.Version{}, err
	}
	if cache != nil {
		if v, ok := cache.Get(binaryPath, mtime); ok {
			return v, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, versionDetectTimeout)
	defer cancel()
	output, err := runVersionProbe(ctx, binaryPath, profile.VersionFlag())
	if err != nil {
		return analyzerversion.Version{}, err
	}
	v, err := profile.ParseVersion(output)
	if err != nil {
		return analyzerversion.Version{}, err
	}
	if cache != nil {
		cache.Put(binaryPath, mtime, v)
	}
	return v, nil
}
