package markup

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNormalize(t *testing.T, src string, target Target) string {
	t.Helper()
	out, err := Normalize(src, target)
	require.NoError(t, err)
	return out
}

func TestNormalize_InvalidTarget(t *testing.T) {
	_, err := Normalize("hello", Target("markdown"))
	require.Error(t, err)

	var invalid *InvalidTargetError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, Target("markdown"), invalid.Target)
}

func TestParseTarget(t *testing.T) {
	got, err := ParseTarget("plain")
	require.NoError(t, err)
	assert.Equal(t, TargetPlain, got)

	_, err = ParseTarget("pdf")
	var invalid *InvalidTargetError
	assert.True(t, errors.As(err, &invalid))
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Equal(t, "", mustNormalize(t, "", TargetHTML))
	assert.Equal(t, "", mustNormalize(t, "", TargetPlain))
}

func TestNormalize_PlainStrings(t *testing.T) {
	for _, s := range []string{
		"hello world",
		"Qual é a capital de Portugal?",
		"a < b and c > d",
		"  padded sentence.  ",
		"3 + 4 = 7",
	} {
		trimmed := strings.TrimSpace(s)
		assert.Equal(t, "<p>"+trimmed+"</p>", mustNormalize(t, s, TargetHTML), "html for %q", s)
		assert.Equal(t, trimmed, mustNormalize(t, s, TargetPlain), "plain for %q", s)
	}
}

func TestHTML_BoldBeforeItalic(t *testing.T) {
	assert.Equal(t, "<p><strong>a</strong> <em>b</em></p>", mustNormalize(t, "**a** *b*", TargetHTML))
}

func TestHTML_ImageBeforeLink(t *testing.T) {
	out := mustNormalize(t, "![alt](x.png)", TargetHTML)
	assert.Contains(t, out, `<img src="x.png" alt="alt">`)
	assert.NotContains(t, out, "<a ")
}

func TestHTML_Link(t *testing.T) {
	out := mustNormalize(t, "see [docs](https://example.com/docs)", TargetHTML)
	assert.Equal(t, `<p>see <a href="https://example.com/docs">docs</a></p>`, out)
}

func TestHTML_Headings(t *testing.T) {
	out := mustNormalize(t, "# One\n## Two\n### Three\n#### Four", TargetHTML)
	assert.Equal(t, "<h1>One</h1>\n<h2>Two</h2>\n<h3>Three</h3>\n<p>#### Four</p>", out)
}

func TestHTML_InlineCodeAndQuote(t *testing.T) {
	out := mustNormalize(t, "use `go test`\n\n> quoted", TargetHTML)
	assert.Equal(t, "<p>use <code>go test</code></p>\n<blockquote>quoted</blockquote>", out)
}

func TestHTML_CodeBlock(t *testing.T) {
	out := mustNormalize(t, "```py\ncode\n```", TargetHTML)
	assert.Equal(t, `<pre><code class="language-py">code</code></pre>`, out)
	assert.Equal(t, 1, strings.Count(out, "<pre>"))
}

func TestHTML_CodeBlockProtectsMarkup(t *testing.T) {
	src := "Example:\n\n```go\n# not a heading\n- not a list\n**x** * y\n\n`z`\n```\n\nDone"
	out := mustNormalize(t, src, TargetHTML)

	assert.Equal(t, "<p>Example:</p>\n"+
		`<pre><code class="language-go"># not a heading`+"\n- not a list\n**x** * y\n\n`z`</code></pre>\n"+
		"<p>Done</p>", out)
}

func TestHTML_CodeBlockEscapesBody(t *testing.T) {
	out := mustNormalize(t, "```html\n<b>x</b>\n```", TargetHTML)
	assert.Equal(t, `<pre><code class="language-html">&lt;b&gt;x&lt;/b&gt;</code></pre>`, out)
}

func TestHTML_EmptyAndUntaggedCodeBlock(t *testing.T) {
	assert.Equal(t, `<pre><code class="language-"></code></pre>`, mustNormalize(t, "```\n```", TargetHTML))
	assert.Equal(t, `<pre><code class="language-">x := 1</code></pre>`, mustNormalize(t, "```\nx := 1\n```", TargetHTML))
}

func TestHTML_UnterminatedFenceIsLiteral(t *testing.T) {
	out := mustNormalize(t, "```py\nprint(1)", TargetHTML)
	assert.Equal(t, "<p>```py\nprint(1)</p>", out)
	assert.NotContains(t, out, "<pre>")
}

func TestHTML_ListRuns(t *testing.T) {
	out := mustNormalize(t, "Steps:\n1. first\n2. second\n\n- a\n- b", TargetHTML)
	assert.Equal(t, "<p>Steps:</p>\n<ol><li>first</li><li>second</li></ol>\n<ul><li>a</li><li>b</li></ul>", out)
}

func TestHTML_ListKindFollowsFirstLine(t *testing.T) {
	out := mustNormalize(t, "- a\n2. b", TargetHTML)
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>", out)
}

func TestHTML_StarParagraphList(t *testing.T) {
	out := mustNormalize(t, "* one\n* two with *emph*", TargetHTML)
	assert.Equal(t, "<ul><li>one</li><li>two with <em>emph</em></li></ul>", out)
}

func TestHTML_MixedStarParagraphStaysParagraph(t *testing.T) {
	out := mustNormalize(t, "Intro line\n* one", TargetHTML)
	assert.Equal(t, "<p>Intro line\n* one</p>", out)
}

func TestHTML_RenormalizeDoesNotDoubleTags(t *testing.T) {
	src := "# Title\n\n**a** *b*\n\n- x\n- y\n\n```py\ncode\n```\n\n![alt](x.png)"
	first := mustNormalize(t, src, TargetHTML)
	second := mustNormalize(t, first, TargetHTML)

	assert.Equal(t, first, second)
	for _, doubled := range []string{"<p><p>", "<ul><ul>", "<pre><pre>", "<strong><strong>"} {
		assert.NotContains(t, second, doubled)
	}
}

func TestHTML_RenormalizeKeepsMultilineCode(t *testing.T) {
	for _, src := range []string{
		"```\n# a\n- b\n*c* d\n```",
		"```py\nx\n\ntext ```go\ny\n```",
		"Intro\n\n```go\nfunc main() {\n\n\tfmt.Println(\"**hi**\")\n}\n```\n\n1. one\n2. two",
	} {
		first := mustNormalize(t, src, TargetHTML)
		second := mustNormalize(t, first, TargetHTML)
		assert.Equal(t, first, second, src)
		assert.NotContains(t, second, "<p><p>")
	}

	first := mustNormalize(t, "```\n# a\n- b\n*c* d\n```", TargetHTML)
	assert.Equal(t, `<pre><code class="language-"># a`+"\n- b\n*c* d</code></pre>", first)
}

func TestHTML_CRLFFence(t *testing.T) {
	want := `<pre><code class="language-py">code`+"\n"+`more</code></pre>`
	assert.Equal(t, want, mustNormalize(t, "```py\ncode\r\nmore\r\n```", TargetHTML))
	assert.Equal(t, want, mustNormalize(t, "```py\r\ncode\r\nmore\r\n```", TargetHTML))
	assert.Equal(t, "code\nmore", mustNormalize(t, "```py\r\ncode\r\nmore\r\n```", TargetPlain))
}

func TestHTML_ForgedPlaceholderIsScrubbed(t *testing.T) {
	out := mustNormalize(t, "\uE000CODE0\uE001 text", TargetHTML)
	assert.Equal(t, "<p>CODE0 text</p>", out)
}

func TestHTML_NoPlaceholderLeaks(t *testing.T) {
	src := "```a\n1\n```\n```b\n2\n```\ntext ```c\n3\n``` end"
	out := mustNormalize(t, src, TargetHTML)

	assert.NotContains(t, out, "\uE000")
	assert.NotContains(t, out, "\uE001")
	assert.Equal(t, 3, strings.Count(out, "<pre>"))
}

func TestPlain_CodeBlockStripsFences(t *testing.T) {
	assert.Equal(t, "code", mustNormalize(t, "```py\ncode\n```", TargetPlain))
}

func TestPlain_Emphasis(t *testing.T) {
	assert.Equal(t, "*a* *b* *c*", mustNormalize(t, "**a** *b* __c__", TargetPlain))
}

func TestPlain_HeadingsAndBullets(t *testing.T) {
	src := "## Resumo\n- um\n* dois\n  - aninhado\n1.  primeiro\n2. segundo"
	assert.Equal(t, "Resumo\n• um\n• dois\n  • aninhado\n1. primeiro\n2. segundo", mustNormalize(t, src, TargetPlain))
}

func TestPlain_InlineCodeLinksImages(t *testing.T) {
	src := "run `go vet` then read [docs](https://go.dev) ![logo](g.png)"
	assert.Equal(t, "run go vet then read docs: https://go.dev logo: g.png", mustNormalize(t, src, TargetPlain))
}

func TestPlain_CollapsesBlankRunsAndStripsTags(t *testing.T) {
	src := "<b>one</b>\n\n\n\n\ntwo   \n"
	assert.Equal(t, "one\n\ntwo", mustNormalize(t, src, TargetPlain))
}

func TestPlain_KeepsAngleBracketText(t *testing.T) {
	assert.Equal(t, "x<y and z>w", mustNormalize(t, "x<y and z>w", TargetPlain))
	assert.Equal(t, "se a < b e c > d", mustNormalize(t, "se a < b e c > d", TargetPlain))
	assert.Equal(t, "um dois", mustNormalize(t, `<p>um <span class="x">dois</span><br/></p>`, TargetPlain))
}

func TestPlain_CodeBodyKeepsBlankLines(t *testing.T) {
	src := "```\na\n\n\n\nb\n```"
	assert.Equal(t, "a\n\n\n\nb", mustNormalize(t, src, TargetPlain))
}

func TestPlain_LengthCap(t *testing.T) {
	long := strings.Repeat("palavra ", 400)
	out := mustNormalize(t, long, TargetPlain)
	assert.LessOrEqual(t, len([]rune(out)), DefaultPlainLimit)
	assert.True(t, strings.HasSuffix(out, "..."))

	uncapped, err := Normalizer{}.Normalize(long, TargetPlain)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), uncapped)
}
