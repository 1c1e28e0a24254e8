package buildconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MesonProvider detects a Meson build directory by the presence of its
// private introspection directory (spec §4.5).
type MesonProvider struct{}

func (MesonProvider) Name() string { return ProviderMeson }

type mesonBuildOption struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

func (MesonProvider) Detect(dir string) (*BuildConfiguration, error, bool) {
	introspectDir := filepath.Join(dir, "meson-info")
	if _, err := os.Stat(introspectDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false
		}
		return nil, fmt.Errorf("buildconfig: meson: stat introspection dir: %w", err), true
	}

	compileDB := filepath.Join(dir, "compile_commands.json")
	if _, err := os.Stat(compileDB); err != nil {
		return nil, fmt.Errorf("buildconfig: meson: %w", err), true
	}

	options := make(map[string]string)
	if raw, err := os.ReadFile(filepath.Join(introspectDir, "intro-buildoptions.json")); err == nil {
		var opts []mesonBuildOption
		if err := json.Unmarshal(raw, &opts); err == nil {
			for _, o := range opts {
				options[o.Name] = fmt.Sprintf("%v", o.Value)
			}
		}
	}

	buildType := options["buildtype"]

	sourceRoot := ""
	if raw, err := os.ReadFile(filepath.Join(introspectDir, "intro-targets.json")); err == nil {
		sourceRoot = sourceRootFromTargets(raw)
	}
	if sourceRoot == "" {
		sourceRoot = filepath.Dir(dir)
	}

	return &BuildConfiguration{
		BuildDir:      dir,
		SourceRoot:    sourceRoot,
		CompileDBPath: compileDB,
		Provider:      ProviderMeson,
		Generator:     "Ninja",
		BuildType:     buildType,
		Options:       options,
		DetectedAt:    time.Now(),
	}, nil, true
}

// sourceRootFromTargets derives the source root from the first meson.build
// file path recorded against any target, per spec §4.5's "derive source
// root from ... a meson.build file path in the files list".
func sourceRootFromTargets(raw []byte) string {
	var targets []struct {
		DefinedIn string `json:"defined_in"`
	}
	if err := json.Unmarshal(raw, &targets); err != nil {
		return ""
	}
	for _, target := range targets {
		if target.DefinedIn == "" {
			continue
		}
		return filepath.Dir(target.DefinedIn)
	}
	return ""
}
