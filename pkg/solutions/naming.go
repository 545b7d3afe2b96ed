package solutions

import (
	"path/filepath"
	"strings"
)

// Successive on-disk artifacts keep the original name and chain suffixes
// before the extension: X.bin -> X.preflagged.bin -> X.preflagged.smoothed.bin.

func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".bin"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + suffix + ext
}

// PreflaggedPath returns the output path for the flagged solutions artifact.
func PreflaggedPath(path string) string {
	return withSuffix(path, "preflagged")
}

// SmoothedPath returns the output path for the smoothed solutions artifact.
func SmoothedPath(path string) string {
	return withSuffix(path, "smoothed")
}
