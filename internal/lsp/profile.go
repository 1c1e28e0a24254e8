package lsp

import "github.com/cxxbridge/cxxbridge/internal/analyzerversion"

// AnalyzerProfile factors "which binary, which argv shape, which version
// flag" out of the session layer so a second LS-speaking analyzer could be
// plugged in without touching component-session code (spec §D.2, grounded
// on original_source's src/clangd/factory.rs component-kind factory).
type AnalyzerProfile interface {
	// Name identifies the profile for logging and cache keys ("clangd").
	Name() string
	// Argv returns the argument vector to spawn binaryPath against
	// compileDBDir, not including the binary path itself.
	Argv(compileDBDir string) []string
	// VersionFlag is the flag used to print the analyzer's version
	// ("--version").
	VersionFlag() string
	// ParseVersion parses --version stdout into an AnalyzerVersion.
	ParseVersion(output string) (analyzerversion.Version, error)
}

// Clangd is the concrete AnalyzerProfile this bridge ships.
type Clangd struct{}

func (Clangd) Name() string { return "clangd" }

func (Clangd) Argv(compileDBDir string) []string {
	return []string{
		"--compile-commands-dir=" + compileDBDir,
		"--background-index=true",
		"--log=error",
	}
}

func (Clangd) VersionFlag() string { return "--version" }

func (Clangd) ParseVersion(output string) (analyzerversion.Version, error) {
	return analyzerversion.Parse(output)
}
