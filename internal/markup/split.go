package markup

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate caps text at max characters. It prefers to stop after the last
// full sentence when that keeps more than 80% of the budget, and otherwise
// cuts at the last space and appends "...".
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	limit := max - 3
	if limit < 0 {
		limit = 0
	}
	head := string([]rune(text)[:limit])

	if cut := strings.LastIndex(head, "."); cut >= 0 && utf8.RuneCountInString(head[:cut])*10 > max*8 {
		return strings.TrimSpace(head[:cut+1])
	}
	if cut := strings.LastIndex(head, " "); cut > 0 {
		return strings.TrimSpace(head[:cut]) + "..."
	}
	return strings.TrimSpace(head) + "..."
}

// Split breaks text into messages of at most max characters, first on
// paragraph boundaries and then on sentence boundaries. When more than one
// part results, each is prefixed with "*[Parte i/n]*".
func Split(text string, max int) []string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var paragraphs []string
	current := ""
	for _, para := range strings.Split(text, "\n\n") {
		if runeLen(current)+runeLen(para)+2 <= max {
			current += para + "\n\n"
			continue
		}
		if strings.TrimSpace(current) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(current))
		}
		current = para + "\n\n"
	}
	if strings.TrimSpace(current) != "" {
		paragraphs = append(paragraphs, strings.TrimSpace(current))
	}

	var parts []string
	for _, p := range paragraphs {
		if runeLen(p) <= max {
			parts = append(parts, p)
			continue
		}
		part := ""
		for _, s := range splitSentences(p) {
			for _, piece := range chunkRunes(s, max) {
				if runeLen(part)+runeLen(piece)+1 <= max {
					part += piece + " "
					continue
				}
				if strings.TrimSpace(part) != "" {
					parts = append(parts, strings.TrimSpace(part))
				}
				part = piece + " "
			}
		}
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}

	if len(parts) > 1 {
		for i := range parts {
			parts[i] = fmt.Sprintf("*[Parte %d/%d]*\n\n%s", i+1, len(parts), parts[i])
		}
	}
	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				out = append(out, string(runes[start:i+1]))
				j := i + 1
				for j < len(runes) && unicode.IsSpace(runes[j]) {
					j++
				}
				start = j
				i = j - 1
			}
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// chunkRunes hard-splits a sentence that alone exceeds max.
func chunkRunes(s string, max int) []string {
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
