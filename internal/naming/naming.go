package naming

import (
	"strings"
	"unicode"

	"github.com/yshirai/genimage/internal/security"
)

const (
	// maxBaseLen caps the derived base name. A multi-byte character
	// counts as one.
	maxBaseLen = 10

	fallbackBase = "image"
)

// FromSubject derives a short filesystem-safe filename from free-form
// subject text. Whitespace, punctuation, symbols and control characters
// are dropped, the remainder is cut to at most ten characters, and
// ".png" is appended. Subjects that clean down to nothing fall back to
// "image.png".
func FromSubject(subject string) string {
	var b strings.Builder
	count := 0
	for _, r := range subject {
		if !keepRune(r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count == maxBaseLen {
			break
		}
	}

	base := b.String()
	if base == "" {
		base = fallbackBase
	}
	if security.IsReservedName(base) {
		base += "img"
	}
	return EnsurePNG(base)
}

func keepRune(r rune) bool {
	if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsControl(r) {
		return false
	}
	return r != unicode.ReplacementChar
}

// EnsurePNG appends the .png extension unless the path already ends in
// it. The comparison is case-insensitive, so "OUT.PNG" passes through
// unchanged.
func EnsurePNG(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		return path
	}
	return path + ".png"
}
