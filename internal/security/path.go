package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath     = fmt.Errorf("output path cannot be empty")
	ErrControlChars  = fmt.Errorf("path contains control characters")
	ErrPathTraversal = fmt.Errorf("path traversal detected")
	ErrReservedName  = fmt.Errorf("reserved filename not allowed")

	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// IsReservedName reports whether base (without extension) is a Windows
// device name that cannot be used as a filename.
func IsReservedName(base string) bool {
	nameWithoutExt := strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))
	return windowsReservedNames[nameWithoutExt]
}

// ValidateOutputPath checks a user-supplied output path before anything
// is written to it. Absolute paths are allowed; the checks guard
// against names that break on some platform or that smuggle escape
// sequences into terminal output.
func ValidateOutputPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}

	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return ErrControlChars
		}
	}

	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s escapes the working directory", ErrPathTraversal, path)
		}
	}

	base := filepath.Base(cleaned)
	if IsReservedName(base) {
		return ErrReservedName
	}

	if strings.HasPrefix(base, "-") {
		return fmt.Errorf("filename cannot start with hyphen")
	}

	return nil
}
