// Package analyzerversion parses and classifies the analyzer's self-reported
// version string (spec §6, §D.1). It is a stateless value type: parsing and
// the format-version lookup table have no dependency on process or session
// state.
//
// Grounded on original_source's clangd/version.rs grammar, expressed with
// Go's regexp instead of a parser-combinator crate.
package analyzerversion

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is the analyzer's reported version: major/minor/patch, an
// optional vendor-specific variant suffix, and an optional parenthesized
// build-date tag.
type Version struct {
	Major   int
	Minor   int
	Patch   int
	Variant string // "" if absent
	Date    string // "" if absent
}

// versionLine matches "<vendor>? ... version <MAJOR>.<MINOR>.<PATCH>[-<variant>][ (<date-tag>)]"
// per spec §6's grammar (exercised by S5: "Ubuntu clangd version 18.1.8
// (++20240731024944+3b5b5c1ec4a3)").
var versionLine = regexp.MustCompile(
	`version\s+(\d+)\.(\d+)\.(\d+)(?:-([A-Za-z0-9_.]+))?(?:\s+\(([^)]*)\))?`,
)

// Parse extracts a Version from one line of `--version` output. It scans for
// the first "version MAJOR.MINOR.PATCH" occurrence rather than anchoring the
// whole line, since real binaries prefix it with arbitrary vendor banners.
func Parse(line string) (Version, error) {
	m := versionLine.FindStringSubmatch(line)
	if m == nil {
		return Version{}, fmt.Errorf("analyzerversion: no version found in %q", line)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{
		Major:   major,
		Minor:   minor,
		Patch:   patch,
		Variant: m[4],
		Date:    m[5],
	}, nil
}

// FormatVersion returns the index-format-version for v's major version, per
// the exact table in spec §6. An unrecognized or future major version falls
// back to 20, per original_source's project_index.rs forward-compatibility
// rule (spec §D, "Index-format-version fallback rule").
func (v Version) FormatVersion() int {
	switch v.Major {
	case 10:
		return 12
	case 11:
		return 13
	case 12, 13:
		return 16
	case 14, 15:
		return 17
	case 16, 17:
		return 18
	case 18, 19:
		return 19
	case 20:
		return 20
	default:
		return 20
	}
}

// String renders v back into a human-readable form, mainly for logging.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Variant != "" {
		s += "-" + v.Variant
	}
	if v.Date != "" {
		s += " (" + v.Date + ")"
	}
	return s
}
