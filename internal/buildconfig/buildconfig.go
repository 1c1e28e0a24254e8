// Package buildconfig detects and describes one build configuration from a
// directory (spec §4.5, C6): a provider either declines ("not my build
// system"), returns a fully validated BuildConfiguration, or reports a hard
// error if the directory is its build system but malformed.
package buildconfig

import (
	"time"
)

// Provider tag, a closed set plus room for extensions (spec §4.5: "a tagged
// variant with a small closed set plus an extension list").
const (
	ProviderCMake = "cmake"
	ProviderMeson = "meson"
	ProviderBazel = "bazel"
)

// BuildConfiguration is one detected build output of a specific build
// system for a specific source tree. Constructed once by the scanner,
// immutable thereafter (spec §3).
type BuildConfiguration struct {
	BuildDir       string
	SourceRoot     string
	CompileDBPath  string
	Provider       string
	Generator      string
	BuildType      string
	Options        map[string]string
	DetectedAt     time.Time
}

// Provider detects one build system. Detect returns (nil, nil, false) when
// dir is not this provider's build system; (nil, err, true) when dir *is*
// this build system but malformed; (cfg, nil, true) on success.
type Provider interface {
	Name() string
	Detect(dir string) (cfg *BuildConfiguration, err error, claimed bool)
}

// Providers returns the core provider set in registration order: cmake,
// meson, then bazel (optional per spec §4.5). The scanner presents each
// directory to every provider in this order; the first to claim it wins.
func Providers() []Provider {
	return []Provider{
		CMakeProvider{},
		MesonProvider{},
		BazelProvider{},
	}
}
