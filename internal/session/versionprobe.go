package session

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/cxxbridge/cxxbridge/internal/bridgeerr"
)

// binaryMtime stats binaryPath (a bare name is first resolved through PATH)
// so its detected version can be cached against (path, mtime) in verscache:
// a binary upgrade invalidates the cache entry without any version-string
// comparison (spec §5).
func binaryMtime(binaryPath string) (time.Time, error) {
	if resolved, err := exec.LookPath(binaryPath); err == nil {
		binaryPath = resolved
	}
	info, err := os.Stat(binaryPath)
	if err != nil {
		return time.Time{}, bridgeerr.Res("stat-binary", err)
	}
	return info.ModTime(), nil
}

// runVersionProbe runs `binaryPath versionFlag` and returns its combined
// output, bounded by ctx's deadline (spec §5: "a bounded probe, never the
// long-lived supervised subprocess").
func runVersionProbe(ctx context.Context, binaryPath, versionFlag string) (string, error) {
	cmd := exec.CommandContext(ctx, binaryPath, versionFlag)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", bridgeerr.Proc("version-probe", err)
	}
	return out.String(), nil
}
