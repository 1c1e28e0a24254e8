// Command cxxbridge-mcp is a thin MCP façade wiring the session/index
// orchestration core's primitives to a handful of agent-protocol tools.
// The agent-protocol server façade and the individual tool
// implementations (hover, definitions, members, hierarchy, examples,
// document symbols) are explicitly out of scope for this module (spec
// §1); this binary exists only so the session layer has a runnable front
// door, kept deliberately mechanical (spec §C, jsonschema-go/go-sdk
// entry).
//
// Grounded on the teacher's internal/mcp/server.go: mcp.NewServer +
// AddTool with a jsonschema.Schema per tool, createJSONResponse-style
// marshaling, and server.Run(ctx, &mcp.StdioTransport{}).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cxxbridge/cxxbridge/internal/buildconfig"
	"github.com/cxxbridge/cxxbridge/internal/config"
	"github.com/cxxbridge/cxxbridge/internal/logging"
	"github.com/cxxbridge/cxxbridge/internal/lsp"
	"github.com/cxxbridge/cxxbridge/internal/session"
	"github.com/cxxbridge/cxxbridge/internal/verscache"
	"github.com/cxxbridge/cxxbridge/internal/version"
	"github.com/cxxbridge/cxxbridge/internal/workspace"
)

// server bundles the orchestration primitives this façade exposes as
// tools: a scanner over the configured root and the shared session cache.
type server struct {
	cfg *config.Config
	ws  *session.WorkspaceSession
	mcp *mcp.Server

	scanMu  sync.Mutex
	scanned map[string]buildconfig.BuildConfiguration // buildDir -> config, from the last scan_workspace call
}

func main() {
	// stdio is reserved for the MCP stdio transport, so our own logger
	// must never write to stdout (mirrors lci's MCPMode flag).
	logging.SetStdioReserved(true)

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintln(os.Stderr, "cxxbridge-mcp: load config:", err)
		os.Exit(1)
	}

	verCache, err := verscache.Open(os.TempDir() + "/cxxbridge-mcp-verscache.db")
	if err != nil {
		fmt.Fprintln(os.Stderr, "cxxbridge-mcp: open version cache:", err)
		os.Exit(1)
	}
	defer verCache.Close()

	factory := session.DefaultFactory(lsp.Clangd{}, cfg.AnalyzerBinaryPath, verCache, 256)
	s := &server{
		cfg:     cfg,
		ws:      session.NewWorkspaceSession(factory),
		scanned: make(map[string]buildconfig.BuildConfiguration),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "cxxbridge-mcp",
		Version: version.Version,
	}, nil)
	s.registerTools()

	ctx := context.Background()
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		fmt.Fprintln(os.Stderr, "cxxbridge-mcp: run:", err)
		os.Exit(1)
	}
}

func (s *server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "scan_workspace",
		Description: "Scan the configured project root and list detected build configurations.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleScanWorkspace)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "ensure_indexed",
		Description: "Block until background indexing for a build directory is idle, or time out.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"build_dir": {Type: "string", Description: "Absolute build directory of a previously scanned configuration"},
				"timeout_secs": {Type: "integer", Description: "Wait timeout in seconds (defaults to the configured indexing_wait_timeout_secs)"},
			},
			Required: []string{"build_dir"},
		},
	}, s.handleEnsureIndexed)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "session_status",
		Description: "Report indexing coverage and progress for a build directory's component session.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"build_dir": {Type: "string"}},
			Required:   []string{"build_dir"},
		},
	}, s.handleSessionStatus)
}

func (s *server) handleScanWorkspace(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	excludes := append([]string{}, workspace.DefaultExcludes...)
	excludes = append(excludes, buildconfig.ExcludePatternsFromOverlay(s.cfg.ScanRoot)...)
	scanner := workspace.New(excludes)
	ws, err := scanner.Scan(ctx, s.cfg.ScanRoot, s.cfg.ScanDepth)
	if err != nil {
		return errorResult("scan_workspace", err), nil
	}

	s.scanMu.Lock()
	for _, cfg := range ws.Configs {
		s.scanned[cfg.BuildDir] = cfg
	}
	s.scanMu.Unlock()

	return jsonResult(ws)
}

// resolveConfig returns the BuildConfiguration a prior scan_workspace call
// discovered for buildDir, so ensure_indexed/session_status can construct
// (or reuse) its ComponentSession via WorkspaceSession.Get.
func (s *server) resolveConfig(buildDir string) (buildconfig.BuildConfiguration, bool) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	cfg, ok := s.scanned[buildDir]
	return cfg, ok
}

type ensureIndexedParams struct {
	BuildDir    string `json:"build_dir"`
	TimeoutSecs int    `json:"timeout_secs"`
}

func (s *server) handleEnsureIndexed(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ensureIndexedParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("ensure_indexed", fmt.Errorf("invalid parameters: %w", err)), nil
	}

	bc, ok := s.resolveConfig(params.BuildDir)
	if !ok {
		return errorResult("ensure_indexed", fmt.Errorf("no build configuration at %q; call scan_workspace first", params.BuildDir)), nil
	}
	cs, err := s.ws.Get(ctx, bc)
	if err != nil {
		return errorResult("ensure_indexed", err), nil
	}

	timeout := s.cfg.IndexingWaitTimeout
	if params.TimeoutSecs > 0 {
		timeout = time.Duration(params.TimeoutSecs) * time.Second
	}

	readiness, err := cs.EnsureIndexed(ctx, timeout)
	if err != nil {
		return errorResult("ensure_indexed", err), nil
	}
	return jsonResult(map[string]interface{}{
		"build_dir": params.BuildDir,
		"readiness": readiness.String(),
	})
}

type sessionStatusParams struct {
	BuildDir string `json:"build_dir"`
}

func (s *server) handleSessionStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params sessionStatusParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("session_status", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	bc, ok := s.resolveConfig(params.BuildDir)
	if !ok {
		return errorResult("session_status", fmt.Errorf("no build configuration at %q; call scan_workspace first", params.BuildDir)), nil
	}
	cs, err := s.ws.Get(ctx, bc)
	if err != nil {
		return errorResult("session_status", err), nil
	}
	return jsonResult(cs.IndexStatus(time.Now()))
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

func errorResult(tool string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", tool, err)}},
	}
}
