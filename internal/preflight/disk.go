package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// minDiskSpaceBytes is the free-space floor for the index directory (100MB).
const minDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace verifies the filesystem holding the index directory has
// room for an index build. The vector graph and its atomic-rename temp file
// both scale with the corpus, so the floor grows with the corpus file.
func (c *Checker) CheckDiskSpace() CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var stat unix.Statfs_t
	if err := unix.Statfs(c.cfg.Store.IndexDir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	free := uint64(stat.Bavail) * uint64(stat.Bsize)
	required := c.requiredDiskSpace()
	result.Message = fmt.Sprintf("%s free (minimum: %s)", formatBytes(free), formatBytes(required))
	if free < required {
		result.Status = StatusFail
	} else {
		result.Status = StatusPass
	}
	return result
}

// requiredDiskSpace returns the larger of the fixed floor and four times
// the corpus file size.
func (c *Checker) requiredDiskSpace() uint64 {
	required := uint64(minDiskSpaceBytes)
	if info, err := os.Stat(c.cfg.Store.ChunksFile); err == nil {
		if scaled := uint64(info.Size()) * 4; scaled > required {
			required = scaled
		}
	}
	return required
}

// formatBytes renders a byte count with a binary unit prefix.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
