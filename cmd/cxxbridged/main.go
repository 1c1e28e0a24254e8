// Command cxxbridged is the session/index orchestration daemon's CLI
// surface: scan a project tree for build configurations, list/inspect
// cached component sessions, and serve the operator-facing status HTTP
// endpoint (spec §1: "out of scope... CLI argument parsing" for the outer
// agent-protocol program, but the orchestration core itself still needs a
// runnable front door the way the teacher's cmd/lci/main.go is one).
//
// Grounded on cmd/lci/main.go's urfave/cli/v2 App-with-Commands shape:
// one top-level flag set for config/root overrides, one subcommand per
// operator action.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cxxbridge/cxxbridge/internal/buildconfig"
	"github.com/cxxbridge/cxxbridge/internal/config"
	"github.com/cxxbridge/cxxbridge/internal/lsp"
	"github.com/cxxbridge/cxxbridge/internal/logging"
	"github.com/cxxbridge/cxxbridge/internal/session"
	"github.com/cxxbridge/cxxbridge/internal/statushttp"
	"github.com/cxxbridge/cxxbridge/internal/verscache"
	"github.com/cxxbridge/cxxbridge/internal/version"
	"github.com/cxxbridge/cxxbridge/internal/workspace"
)

func main() {
	app := &cli.App{
		Name:    "cxxbridged",
		Usage:   "C/C++ code-intelligence session and index orchestration daemon",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Usage: "project root to scan and load .cxxbridge.kdl from",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "analyzer",
				Usage: "override the analyzer binary path",
			},
			&cli.StringFlag{
				Name:  "version-cache",
				Usage: "path to the sqlite AnalyzerVersion cache",
				Value: filepath.Join(os.TempDir(), "cxxbridge-verscache.db"),
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			sessionsCommand(),
			statusCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cxxbridged:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if analyzer := c.String("analyzer"); analyzer != "" {
		cfg.AnalyzerBinaryPath = analyzer
	}
	logging.SetLevel(cfg.LogLevel)
	logging.SetJSONFormat(cfg.LogJSONFormat)
	if cfg.LogFilePath != "" {
		if _, err := logging.InitFile(cfg.LogFilePath, cfg.LogFileUniquePerPID); err != nil {
			return nil, fmt.Errorf("init log file: %w", err)
		}
	}
	return cfg, nil
}

// scanCommand walks the configured root and prints every detected build
// configuration as JSON (spec §4.5, C7).
func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "scan the project root for build configurations",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ws, err := scanWorkspace(c.Context, cfg)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(ws)
		},
	}
}

func scanWorkspace(ctx context.Context, cfg *config.Config) (*workspace.Workspace, error) {
	excludes := append([]string{}, workspace.DefaultExcludes...)
	excludes = append(excludes, buildconfig.ExcludePatternsFromOverlay(cfg.ScanRoot)...)
	scanner := workspace.New(excludes)
	return scanner.Scan(ctx, cfg.ScanRoot, cfg.ScanDepth)
}

// sessionsCommand builds the workspace session cache for every detected
// build configuration (eagerly, for operator visibility) and lists the
// ones that came up.
func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "list cached component sessions for the scanned workspace",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ws, ses, err := buildWorkspaceSession(c, cfg)
			if err != nil {
				return err
			}
			defer ses.DropAll(c.Context)

			for _, bc := range ws.Configs {
				if _, err := ses.Get(c.Context, bc); err != nil {
					fmt.Fprintf(os.Stderr, "cxxbridged: session for %s: %v\n", bc.BuildDir, err)
				}
			}
			return json.NewEncoder(os.Stdout).Encode(ses.ListKnown())
		},
	}
}

// statusCommand prints one session's IndexStatusView as JSON.
func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "print indexing status for one build directory",
		ArgsUsage: "<build-dir>",
		Action: func(c *cli.Context) error {
			buildDir := c.Args().First()
			if buildDir == "" {
				return fmt.Errorf("status requires a build directory argument")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ws, ses, err := buildWorkspaceSession(c, cfg)
			if err != nil {
				return err
			}
			defer ses.DropAll(c.Context)

			for _, bc := range ws.Configs {
				if bc.BuildDir != buildDir {
					continue
				}
				cs, err := ses.Get(c.Context, bc)
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(cs.IndexStatus(time.Now()))
			}
			return fmt.Errorf("no build configuration found at %s", buildDir)
		},
	}
}

// serveCommand constructs a session for every detected build configuration
// up front, then runs the status HTTP surface, which reports only on
// sessions that already exist.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the operator-facing status HTTP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":7777", Usage: "listen address"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ws, ses, err := buildWorkspaceSession(c, cfg)
			if err != nil {
				return err
			}
			defer ses.DropAll(c.Context)

			for _, bc := range ws.Configs {
				if _, err := ses.Get(c.Context, bc); err != nil {
					logging.ForComponent("cxxbridged").Warn("session construction failed", "buildDir", bc.BuildDir, "err", err)
				}
			}

			srv := statushttp.New(ses)
			httpSrv := &http.Server{Addr: c.String("addr"), Handler: srv}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}

// buildWorkspaceSession scans cfg.ScanRoot and wires a *session.WorkspaceSession
// backed by a clangd AnalyzerProfile and a sqlite-backed version cache.
func buildWorkspaceSession(c *cli.Context, cfg *config.Config) (*workspace.Workspace, *session.WorkspaceSession, error) {
	ws, err := scanWorkspace(c.Context, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}

	verCache, err := verscache.Open(c.String("version-cache"))
	if err != nil {
		return nil, nil, fmt.Errorf("open version cache: %w", err)
	}

	factory := session.DefaultFactory(lsp.Clangd{}, cfg.AnalyzerBinaryPath, verCache, 256)
	return ws, session.NewWorkspaceSession(factory), nil
}
