package markup

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	headingRe    = regexp.MustCompile(`(?m)^(#{1,3})[ \t]+(.+?)[ \t]*$`)
	boldRe       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicRe     = regexp.MustCompile(`\*([^*\s][^*\n]*)\*`)
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	imageRe      = regexp.MustCompile(`!\[([^\]\n]*)\]\(([^)\s]+)\)`)
	linkRe       = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	quoteRe      = regexp.MustCompile(`(?m)^>[ \t]?(.*)$`)

	dashItemRe    = regexp.MustCompile(`^[ \t]*-[ \t]+(.*)$`)
	orderedItemRe = regexp.MustCompile(`^[ \t]*\d+\.[ \t]+(.*)$`)
	starItemRe    = regexp.MustCompile(`^\*[ \t]+(.+)$`)

	blockTagRe   = regexp.MustCompile(`^</?(h[1-6]|p|ul|ol|li|pre|blockquote|div|table|thead|tbody|tr|td|th|hr)\b`)
	newlineRunRe = regexp.MustCompile(`\n{2,}`)
)

func renderHTML(source string) string {
	text, blocks := extractCodeBlocks(scrubReserved(source))
	text, blocks = extractPreRegions(text, blocks)

	text = rewriteInline(text)
	text = wrapListRuns(text)
	text = wrapParagraphs(text)
	text = newlineRunRe.ReplaceAllString(text, "\n")
	text = restoreCodeBlocks(text, blocks, renderHTMLCode)

	return strings.TrimSpace(text)
}

func renderHTMLCode(b codeBlock) string {
	if b.raw != "" {
		return b.raw
	}
	return `<pre><code class="language-` + html.EscapeString(b.lang) + `">` +
		html.EscapeString(b.body) + `</code></pre>`
}

// rewriteInline applies the line and span rules. Bold runs before italic and
// images before links: each later pattern matches a subset of the earlier one.
func rewriteInline(text string) string {
	text = headingRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := headingRe.FindStringSubmatch(m)
		tag := "h" + strconv.Itoa(len(sub[1]))
		return "<" + tag + ">" + sub[2] + "</" + tag + ">"
	})
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicRe.ReplaceAllString(text, "<em>$1</em>")
	text = inlineCodeRe.ReplaceAllString(text, "<code>$1</code>")
	text = imageRe.ReplaceAllString(text, `<img src="$2" alt="$1">`)
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = quoteRe.ReplaceAllString(text, "<blockquote>$1</blockquote>")
	return text
}

func isListLine(line string) bool {
	return dashItemRe.MatchString(line) || orderedItemRe.MatchString(line)
}

func listItemText(line string) string {
	if m := orderedItemRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := dashItemRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return line
}

// wrapListRuns groups contiguous "- " / "N. " lines into one list. The first
// line of the run decides between <ol> and <ul>.
func wrapListRuns(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		if !isListLine(lines[i]) {
			out = append(out, lines[i])
			i++
			continue
		}
		tag := "ul"
		if orderedItemRe.MatchString(lines[i]) {
			tag = "ol"
		}
		var sb strings.Builder
		sb.WriteString("<" + tag + ">")
		for ; i < len(lines) && isListLine(lines[i]); i++ {
			sb.WriteString("<li>" + listItemText(lines[i]) + "</li>")
		}
		sb.WriteString("</" + tag + ">")
		out = append(out, sb.String())
	}
	return strings.Join(out, "\n")
}

// wrapParagraphs groups the remaining text lines into paragraphs. Lines that
// already open a block element are left alone, together with the lines up to
// its closing tag, which keeps rendered HTML stable when it is fed back in.
func wrapParagraphs(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var para []string
	flush := func() {
		if len(para) > 0 {
			out = append(out, renderParagraph(para))
			para = nil
		}
	}
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			flush()
		case isPlaceholderLine(line):
			flush()
			out = append(out, line)
		case blockTagRe.MatchString(line):
			flush()
			end := blockEnd(lines, i)
			region := append([]string{line}, lines[i+1:end+1]...)
			out = append(out, strings.Join(region, "\n"))
			i = end
		default:
			para = append(para, line)
		}
	}
	flush()
	return strings.Join(out, "\n")
}

// blockEnd returns the index of the line that closes the block element opened
// on lines[start]. A block that closes on its own line, a closing tag, a void
// element or an element that is never closed all end at start.
func blockEnd(lines []string, start int) int {
	line := strings.TrimSpace(lines[start])
	if strings.HasPrefix(line, "</") {
		return start
	}
	name := strings.ToLower(blockTagRe.FindStringSubmatch(line)[1])
	if name == "hr" {
		return start
	}
	depth := 0
	for j := start; j < len(lines); j++ {
		depth += tagOpens(lines[j], name) - strings.Count(strings.ToLower(lines[j]), "</"+name+">")
		if depth <= 0 {
			return j
		}
	}
	return start
}

func tagOpens(line, name string) int {
	l := strings.ToLower(line)
	return strings.Count(l, "<"+name+">") + strings.Count(l, "<"+name+" ")
}

// renderParagraph turns a paragraph made only of "* item" lines into a bullet
// list. This is separate from the "- " list runs handled earlier.
func renderParagraph(lines []string) string {
	items := make([]string, 0, len(lines))
	for _, l := range lines {
		m := starItemRe.FindStringSubmatch(l)
		if m == nil {
			return "<p>" + strings.Join(lines, "\n") + "</p>"
		}
		items = append(items, m[1])
	}
	var sb strings.Builder
	sb.WriteString("<ul>")
	for _, it := range items {
		sb.WriteString("<li>" + it + "</li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}
