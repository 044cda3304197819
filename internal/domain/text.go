package domain

import (
	"strings"
	"unicode/utf8"
)

// TruncateText recorta s a como mucho max bytes sin partir un carácter multibyte.
// Las secuencias UTF-8 inválidas se sustituyen por U+FFFD: el resultado siempre es UTF-8 válido.
func TruncateText(s string, max int) string {
	s = strings.ToValidUTF8(strings.TrimSpace(s), "\uFFFD")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
