package textutil

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes is the Telegram Bot API limit for a message text.
const MaxMessageRunes = 4096

const ellipsis = "\n…"

// Clamp returns s cut to at most max runes, ending with an ellipsis line when
// something was dropped. Cuts prefer the last line break before the limit.
func Clamp(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(ellipsis)
	if keep <= 0 {
		return string([]rune(s)[:max])
	}
	cut := string([]rune(s)[:keep])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + ellipsis
}

// JoinLines joins non-empty lines with '\n'.
func JoinLines(lines ...string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
