package markup

import (
	"regexp"
	"strings"
)

var (
	htmlTagRe        = regexp.MustCompile(`(?i)</?(?:a|b|i|u|s|em|strong|code|pre|p|br|hr|div|span|img|ul|ol|li|h[1-6]|blockquote|sub|sup|del|ins|mark|small|table|thead|tbody|tr|td|th)(?:\s[^<>\n]*)?/?>`)
	plainHeadingRe   = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	bulletRe         = regexp.MustCompile(`(?m)^([ \t]*)[-*][ \t]+`)
	numberedRe       = regexp.MustCompile(`(?m)^([ \t]*)(\d+)\.[ \t]+`)
	underscoreBoldRe = regexp.MustCompile(`__([^_\n]+)__`)
	trailingSpaceRe  = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
)

// renderPlain produces the WhatsApp dialect: one emphasis marker (*x*),
// "• " bullets, numbered items kept, code blocks reduced to their bodies.
func renderPlain(source string) string {
	text, blocks := extractCodeBlocks(scrubReserved(source))

	text = htmlTagRe.ReplaceAllString(text, "")
	text = plainHeadingRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "${1}• ")
	text = numberedRe.ReplaceAllString(text, "${1}${2}. ")
	text = boldRe.ReplaceAllString(text, "*$1*")
	text = underscoreBoldRe.ReplaceAllString(text, "*$1*")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = imageRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := imageRe.FindStringSubmatch(m)
		if sub[1] == "" {
			return sub[2]
		}
		return sub[1] + ": " + sub[2]
	})
	text = linkRe.ReplaceAllString(text, "$1: $2")
	text = trailingSpaceRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = restoreCodeBlocks(text, blocks, func(b codeBlock) string { return b.body })

	return strings.TrimSpace(text)
}
