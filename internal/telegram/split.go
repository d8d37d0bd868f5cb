package telegram

import (
	"strings"
	"unicode/utf8"
)

// MessageLimit is the Bot API's hard length cap for one message.
const MessageLimit = 4096

// splitText breaks text into chunks no longer than limit, preferring
// line boundaries, then word boundaries, and hard-cutting only when a
// single run has neither. Chunk order preserves the original text.
func splitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], " ")
		}
		if cut <= 0 {
			// Hard cut, backed up so it never bisects a UTF-8 rune.
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n "))
		text = strings.TrimLeft(text[cut:], "\n ")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
