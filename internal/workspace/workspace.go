// Package workspace walks a project root and produces the set of detected
// build configurations (spec §4.5, C7).
//
// Grounded on lci's indexing/watcher.go exclude-glob usage (doublestar) and
// on the package's general use of golang.org/x/sync/errgroup for fanning
// concurrent subtree work out from a root walk.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/cxxbridge/cxxbridge/internal/buildconfig"
)

// DefaultExcludes are always applied in addition to any overlay-derived
// patterns; they cover the usual VCS and dependency-cache directories.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.cache/**",
}

// Workspace is the scanner's output: every BuildConfiguration found under
// Root, up to Depth levels deep, captured at CapturedAt.
type Workspace struct {
	Root       string
	Depth      int
	CapturedAt time.Time
	Configs    []buildconfig.BuildConfiguration
}

// Scanner walks a root directory tree looking for build configurations.
type Scanner struct {
	Providers []buildconfig.Provider
	Excludes  []string
}

// New builds a Scanner with the core provider set and the given additional
// exclude glob patterns (typically DefaultExcludes plus an overlay).
func New(excludes []string) *Scanner {
	return &Scanner{
		Providers: buildconfig.Providers(),
		Excludes:  excludes,
	}
}

// Scan walks root breadth-first up to maxDepth, presenting each directory
// to every provider in registration order; the first provider to claim a
// directory wins and its subtree is not descended into further. Symlinks
// are followed only if their resolved target remains inside root (spec
// §4.5).
func (s *Scanner) Scan(ctx context.Context, root string, maxDepth int) (*Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	type frontierEntry struct {
		dir   string
		depth int
	}
	frontier := []frontierEntry{{dir: absRoot, depth: 0}}

	var mu sync.Mutex
	var configs []buildconfig.BuildConfiguration

	for len(frontier) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		var nextMu sync.Mutex
		var next []frontierEntry

		for _, entry := range frontier {
			entry := entry
			g.Go(func() error {
				claimed, children, err := s.visit(gctx, entry.dir, resolvedRoot)
				if err != nil {
					return err
				}
				if claimed != nil {
					mu.Lock()
					configs = append(configs, *claimed)
					mu.Unlock()
					return nil // a claimed directory's subtree is not descended further
				}
				if entry.depth >= maxDepth {
					return nil
				}
				nextMu.Lock()
				for _, child := range children {
					next = append(next, frontierEntry{dir: child, depth: entry.depth + 1})
				}
				nextMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		frontier = next
	}

	return &Workspace{
		Root:       absRoot,
		Depth:      maxDepth,
		CapturedAt: time.Now(),
		Configs:    configs,
	}, nil
}

// visit presents dir to every provider in order and, if none claims it,
// returns its eligible child directories.
func (s *Scanner) visit(ctx context.Context, dir, resolvedRoot string) (*buildconfig.BuildConfiguration, []string, error) {
	if s.excluded(dir) {
		return nil, nil, nil
	}

	for _, p := range s.Providers {
		cfg, err, claimed := p.Detect(dir)
		if claimed {
			if err != nil {
				return nil, nil, err
			}
			return cfg, nil, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, nil // unreadable directory is skipped, not fatal
	}

	var children []string
	for _, entry := range entries {
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		childPath := filepath.Join(dir, entry.Name())

		if entry.Type()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(childPath)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(resolvedRoot, resolved)
			if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
				continue
			}
			info, err := os.Stat(resolved)
			if err != nil || !info.IsDir() {
				continue
			}
		}
		children = append(children, childPath)
	}
	return nil, children, nil
}

func (s *Scanner) excluded(dir string) bool {
	for _, pattern := range s.Excludes {
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(dir)); ok {
			return true
		}
	}
	return false
}
