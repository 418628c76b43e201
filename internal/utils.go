package internal

import "unicode"

// Version is the release version, overridden at build time via ldflags.
var Version = "0.2.0"

// SanitizeFilename creates a safe media filename from a string.
func SanitizeFilename(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	return string(result)
}
