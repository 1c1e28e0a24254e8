package buildconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BazelProvider detects a Bazel workspace by the presence of a WORKSPACE or
// WORKSPACE.bazel file, and locates its compile_commands.json in one of the
// usual bazel-out output locations (spec §4.5: optional provider, same
// contract as cmake/meson). Grounded on original_source's
// project::BazelProvider (spec §D): parse the WORKSPACE file for its name
// and rule/dependency counts, then probe bazel-out for a compilation
// database.
type BazelProvider struct{}

func (BazelProvider) Name() string { return ProviderBazel }

// bazelCompileDBCandidates are the usual locations Bazel (or a bazel-compile-
// commands-extractor rule) materializes compile_commands.json under,
// checked in order before falling back to a bazel-out/*/bin scan.
var bazelCompileDBCandidates = []string{
	"bazel-out/host/bin/compile_commands.json",
	"bazel-out/k8-fastbuild/bin/compile_commands.json",
	"bazel-out/k8-opt/bin/compile_commands.json",
	"bazel-out/k8-dbg/bin/compile_commands.json",
	"compile_commands.json",
}

func (BazelProvider) Detect(dir string) (*BuildConfiguration, error, bool) {
	workspaceFile := filepath.Join(dir, "WORKSPACE")
	if _, err := os.Stat(workspaceFile); err != nil {
		workspaceFile = filepath.Join(dir, "WORKSPACE.bazel")
		if _, err := os.Stat(workspaceFile); err != nil {
			return nil, nil, false
		}
	}

	name, ruleCount, depCount, err := parseWorkspaceFile(workspaceFile)
	if err != nil {
		return nil, fmt.Errorf("buildconfig: bazel: parse workspace: %w", err), true
	}

	compileDB := findBazelCompileDB(dir)
	if compileDB == "" {
		return nil, fmt.Errorf("buildconfig: bazel: no compile_commands.json found under %s", dir), true
	}

	options := map[string]string{
		"RULES_COUNT": strconv.Itoa(ruleCount),
		"DEPS_COUNT":  strconv.Itoa(depCount),
	}
	if name != "" {
		options["WORKSPACE_NAME"] = name
	}

	return &BuildConfiguration{
		BuildDir:      dir,
		SourceRoot:    dir, // Bazel's workspace root is both source root and build root
		CompileDBPath: compileDB,
		Provider:      ProviderBazel,
		Generator:     "Bazel",
		BuildType:     "fastbuild",
		Options:       options,
		DetectedAt:    time.Now(),
	}, nil, true
}

// parseWorkspaceFile extracts the workspace() name and counts load() rule
// statements and *_repository( dependency statements, line by line, the same
// shallow textual scan the original does rather than a full Starlark parse.
func parseWorkspaceFile(path string) (name string, ruleCount, depCount int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if name == "" && strings.HasPrefix(line, "workspace(") {
			if nameStart := strings.Index(line, `name = "`); nameStart >= 0 {
				rest := line[nameStart+len(`name = "`):]
				if nameEnd := strings.IndexByte(rest, '"'); nameEnd >= 0 {
					name = rest[:nameEnd]
				}
			}
		}

		switch {
		case strings.HasPrefix(line, "load("):
			ruleCount++
		case strings.Contains(line, "_repository("):
			depCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return "", 0, 0, err
	}
	return name, ruleCount, depCount, nil
}

// findBazelCompileDB probes the usual bazel-out output locations for a
// compile_commands.json, then falls back to scanning every immediate
// subdirectory of bazel-out for one under bin/.
func findBazelCompileDB(dir string) string {
	for _, candidate := range bazelCompileDBCandidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	bazelOut := filepath.Join(dir, "bazel-out")
	entries, err := os.ReadDir(bazelOut)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(bazelOut, entry.Name(), "bin", "compile_commands.json")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
