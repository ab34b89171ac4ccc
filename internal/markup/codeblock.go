package markup

import (
	"regexp"
	"strconv"
	"strings"
)

// Placeholder tokens are wrapped in private-use runes. Input is scrubbed of
// those runes before extraction, so source text can never forge a token.
const (
	tokenOpen  = '\uE000'
	tokenClose = '\uE001'
)

var (
	fenceRe       = regexp.MustCompile("(?s)```[ \t]*([A-Za-z0-9_+#.-]*)[ \t]*\r?\n(.*?)```")
	preRegionRe   = regexp.MustCompile(`(?is)<pre\b[^>]*>.*?</pre>`)
	placeholderRe = regexp.MustCompile("\uE000CODE(\\d+)\uE001")
)

type codeBlock struct {
	lang string
	body string
	// raw is an already rendered <pre> region, restored verbatim.
	raw string
}

func placeholder(i int) string {
	return string(tokenOpen) + "CODE" + strconv.Itoa(i) + string(tokenClose)
}

func isPlaceholderLine(line string) bool {
	loc := placeholderRe.FindStringIndex(line)
	return loc != nil && loc[0] == 0 && loc[1] == len(line)
}

func scrubReserved(s string) string {
	if !strings.ContainsRune(s, tokenOpen) && !strings.ContainsRune(s, tokenClose) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == tokenOpen || r == tokenClose {
			return -1
		}
		return r
	}, s)
}

// extractCodeBlocks swaps every closed fence for a placeholder on its own
// line. Unterminated fences do not match and stay in the text literally.
func extractCodeBlocks(src string) (string, []codeBlock) {
	var blocks []codeBlock
	out := fenceRe.ReplaceAllStringFunc(src, func(m string) string {
		sub := fenceRe.FindStringSubmatch(m)
		blocks = append(blocks, codeBlock{
			lang: sub[1],
			body: strings.TrimSuffix(strings.ReplaceAll(sub[2], "\r\n", "\n"), "\n"),
		})
		return "\n" + placeholder(len(blocks)-1) + "\n"
	})
	return out, blocks
}

// extractPreRegions protects <pre> regions already present in the text, so
// that rendered HTML passes through a second time unchanged.
func extractPreRegions(text string, blocks []codeBlock) (string, []codeBlock) {
	out := preRegionRe.ReplaceAllStringFunc(text, func(m string) string {
		blocks = append(blocks, codeBlock{raw: m})
		return "\n" + placeholder(len(blocks)-1) + "\n"
	})
	return out, blocks
}

// restoreCodeBlocks resolves each placeholder exactly once using render.
func restoreCodeBlocks(text string, blocks []codeBlock, render func(codeBlock) string) string {
	if len(blocks) == 0 {
		return text
	}
	used := make([]bool, len(blocks))
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(placeholderRe.FindStringSubmatch(m)[1])
		if err != nil || idx < 0 || idx >= len(blocks) || used[idx] {
			return ""
		}
		used[idx] = true
		return render(blocks[idx])
	})
}
