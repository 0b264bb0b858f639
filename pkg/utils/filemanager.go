// =============================================================================
// DOETH Attestation Generator - File Management Utilities
// =============================================================================
//
// Small filesystem helpers shared by the store, the certificate builder and
// the CLI: directory preparation and filename sanitization for artifacts
// named after free-text client names.
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"strings"
)

// EnsureDirectories creates every listed directory (and parents) that does
// not exist yet.
func EnsureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// maxNameLen bounds sanitized name fragments so full paths stay well under
// common filesystem limits.
const maxNameLen = 120

// SanitizeFileName makes a free-text value safe to embed in a file name.
// Path separators, characters reserved on Windows and control characters
// become underscores; the result is trimmed and length-capped.
func SanitizeFileName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			sb.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			sb.WriteRune('_')
		default:
			sb.WriteRune(r)
		}
	}
	out := strings.TrimSpace(sb.String())
	out = strings.Trim(out, ".")
	if out == "" {
		out = "_"
	}
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
