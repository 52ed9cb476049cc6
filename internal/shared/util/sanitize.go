package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameBytes bounds sanitized names so storage keys stay well under backend limits.
const MaxFileNameBytes = 200

// ErrInvalidFileName is returned for empty and dot-only names.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName replaces path separators, strips control characters, rejects names made only
// of dots and shortens long names while keeping the extension. Dots inside a name are kept.
func SanitizeFileName(name string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r), r == utf8.RuneError:
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if strings.Trim(s, ".") == "" {
		return "", ErrInvalidFileName
	}
	return truncateName(s, MaxFileNameBytes), nil
}

func truncateName(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	ext := path.Ext(s)
	if len(ext) >= limit/2 {
		ext = ""
	}
	base := s[:len(s)-len(ext)]
	budget := limit - len(ext)
	for len(base) > budget {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	return base + ext
}
