package timeline

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/reelsmith/studio/internal/apperr"
)

// SanitizeName makes s safe for EDL comments and file names.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// ValidateOutputDir accepts only a clean, existing directory path.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return apperr.Validation("output_dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return apperr.Validation("output_dir cannot contain path traversal")
		}
	}

	if filepath.Clean(dir) != dir {
		return apperr.Validation("output_dir must be clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.Validation("output_dir does not exist")
		}
		return apperr.Validation("invalid output_dir: %v", err)
	}
	if !info.IsDir() {
		return apperr.Validation("output_dir is not a directory")
	}
	return nil
}
