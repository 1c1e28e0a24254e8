// Package config loads the configuration inputs recognized by the session
// and index orchestration core (spec §6). Everything else belongs to the
// outer program and is out of scope here.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds every configuration input the core recognizes.
type Config struct {
	LogLevel             string
	LogFilePath           string
	LogJSONFormat         bool
	LogFileUniquePerPID   bool
	AnalyzerBinaryPath    string
	ScanRoot              string
	ScanDepth             int
	IndexingWaitTimeout   time.Duration
}

// Default returns the baseline configuration: info logging to stderr, no
// log file, clangd resolved from PATH, scan rooted at the current working
// directory with a depth of 4, and a 30s indexing-wait timeout (spec §5,
// "tools default to 30 s").
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		LogLevel:            "info",
		AnalyzerBinaryPath:  "clangd",
		ScanRoot:            cwd,
		ScanDepth:           4,
		IndexingWaitTimeout: 30 * time.Second,
	}
}

// Load reads configuration the way lci's config.Load does: a global base
// file at ~/.cxxbridge.kdl, overridden by a project file at
// <root>/.cxxbridge.kdl, falling back to Default() when neither exists.
func Load(root string) (*Config, error) {
	if root == "" {
		root = "."
	}

	cfg := Default()
	absRoot, err := filepath.Abs(root)
	if err == nil {
		cfg.ScanRoot = absRoot
	}

	if home, err := os.UserHomeDir(); err == nil {
		if base, err := loadKDLFile(filepath.Join(home, ".cxxbridge.kdl")); err == nil && base != nil {
			cfg = mergeInto(cfg, base)
		}
	}

	if proj, err := loadKDLFile(filepath.Join(root, ".cxxbridge.kdl")); err != nil {
		return nil, err
	} else if proj != nil {
		cfg = mergeInto(cfg, proj)
		if proj.ScanRoot == "" {
			cfg.ScanRoot = absRoot
		}
	}

	if cfg.ScanDepth < 0 || cfg.ScanDepth > 10 {
		cfg.ScanDepth = 4
	}
	return cfg, nil
}

// mergeInto applies every non-zero field of override onto a copy of base,
// mirroring lci's project-overrides-global merge semantics.
func mergeInto(base, override *Config) *Config {
	out := *base
	if override.LogLevel != "" {
		out.LogLevel = override.LogLevel
	}
	if override.LogFilePath != "" {
		out.LogFilePath = override.LogFilePath
	}
	if override.LogJSONFormat {
		out.LogJSONFormat = true
	}
	if override.LogFileUniquePerPID {
		out.LogFileUniquePerPID = true
	}
	if override.AnalyzerBinaryPath != "" {
		out.AnalyzerBinaryPath = override.AnalyzerBinaryPath
	}
	if override.ScanRoot != "" {
		out.ScanRoot = override.ScanRoot
	}
	if override.ScanDepth != 0 {
		out.ScanDepth = override.ScanDepth
	}
	if override.IndexingWaitTimeout != 0 {
		out.IndexingWaitTimeout = override.IndexingWaitTimeout
	}
	return &out
}
