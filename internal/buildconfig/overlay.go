package buildconfig

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ExcludePatternsFromOverlay looks for a Conan (conanfile.toml) or vcpkg
// (vcpkg-configuration.toml) style manifest at root and extracts the
// vendored dependency directories the workspace scanner should not descend
// into, directly mirroring lci's BuildArtifactDetector reading Cargo.toml
// for Rust output dirs (spec §B.3).
func ExcludePatternsFromOverlay(root string) []string {
	var patterns []string
	patterns = append(patterns, conanExcludes(root)...)
	patterns = append(patterns, vcpkgExcludes(root)...)
	return patterns
}

func conanExcludes(root string) []string {
	var patterns []string

	path := filepath.Join(root, "conanfile.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc map[string]interface{}
	if toml.Unmarshal(data, &doc) != nil {
		return nil
	}

	if layout, ok := doc["layout"].(map[string]interface{}); ok {
		if buildFolder, ok := layout["build_folder"].(string); ok && buildFolder != "" {
			patterns = append(patterns, "**/"+buildFolder+"/**")
		}
	}
	// Conan always caches resolved packages under a top-level directory
	// when local caching is enabled; exclude it unconditionally.
	patterns = append(patterns, "**/.conan2/**")

	return patterns
}

func vcpkgExcludes(root string) []string {
	path := filepath.Join(root, "vcpkg-configuration.toml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// vcpkg's manifest mode always materializes dependencies under
	// vcpkg_installed/ relative to the manifest.
	return []string{"**/vcpkg_installed/**"}
}
