// Package nameutil provides file naming helpers shared by the coordinator
// and the worker agent.
package nameutil

import (
	"path/filepath"
	"strings"
)

// Sanitize reduces an externally supplied file name to a safe basename.
//
// Path separators and traversal components are discarded and any character
// outside [A-Za-z0-9._-] is replaced with an underscore, so the result can
// be joined onto a storage directory without escaping it.
//
// Example:
//
//	Sanitize("../../etc/passwd")        // "passwd"
//	Sanitize("my file (1).mp4")         // "my_file__1_.mp4"
//	Sanitize("seg_001.processed.mp4")   // unchanged
func Sanitize(name string) string {
	// Strip any directory component, including Windows-style separators.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "unnamed"
	}
	return out
}

// ResultName derives the uploaded result file name for a segment.
//
// Example:
//
//	ResultName("seg_001.mp4") // "seg_001.processed.mp4"
func ResultName(segmentName string) string {
	ext := filepath.Ext(segmentName)
	stem := strings.TrimSuffix(segmentName, ext)
	return stem + ".processed" + ext
}
