package buildconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CMakeProvider detects a CMake build directory by the presence of
// CMakeCache.txt (spec §4.5).
type CMakeProvider struct{}

func (CMakeProvider) Name() string { return ProviderCMake }

func (CMakeProvider) Detect(dir string) (*BuildConfiguration, error, bool) {
	cachePath := filepath.Join(dir, "CMakeCache.txt")
	f, err := os.Open(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false
		}
		return nil, fmt.Errorf("buildconfig: cmake: open cache: %w", err), true
	}
	defer f.Close()

	entries := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		// KEY:TYPE=VALUE
		colon := strings.IndexByte(line, ':')
		eq := strings.IndexByte(line, '=')
		if colon < 0 || eq < 0 || eq < colon {
			continue
		}
		key := line[:colon]
		value := line[eq+1:]
		entries[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("buildconfig: cmake: scan cache: %w", err), true
	}

	sourceRoot := entries["CMAKE_SOURCE_DIR"]
	if sourceRoot == "" {
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if strings.HasSuffix(key, "_SOURCE_DIR") {
				sourceRoot = entries[key]
				break
			}
		}
	}
	if sourceRoot == "" {
		sourceRoot = filepath.Dir(dir)
	}

	compileDB := filepath.Join(dir, "compile_commands.json")
	if _, err := os.Stat(compileDB); err != nil {
		return nil, fmt.Errorf("buildconfig: cmake: %w", err), true
	}

	generator := entries["CMAKE_GENERATOR"]
	buildType := entries["CMAKE_BUILD_TYPE"]

	options := make(map[string]string, len(entries))
	for key, value := range entries {
		if !strings.Contains(key, "INTERNAL") && !strings.HasPrefix(key, "CMAKE_") {
			options[key] = value
		}
	}

	return &BuildConfiguration{
		BuildDir:      dir,
		SourceRoot:    sourceRoot,
		CompileDBPath: compileDB,
		Provider:      ProviderCMake,
		Generator:     generator,
		BuildType:     buildType,
		Options:       options,
		DetectedAt:    time.Now(),
	}, nil, true
}
