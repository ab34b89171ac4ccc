package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_ShortTextUntouched(t *testing.T) {
	assert.Equal(t, "curto", Truncate("curto", 10))
	assert.Equal(t, "sem limite", Truncate("sem limite", 0))
}

func TestTruncate_PrefersSentenceEnd(t *testing.T) {
	text := strings.Repeat("a", 90) + ". " + strings.Repeat("b", 30)
	got := Truncate(text, 100)
	assert.Equal(t, strings.Repeat("a", 90)+".", got)
}

func TestTruncate_FallsBackToSpace(t *testing.T) {
	text := "one. " + strings.Repeat("word ", 30)
	got := Truncate(text, 50)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 50)
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(got, "..."), " "))
}

func TestTruncate_NoSpaces(t *testing.T) {
	got := Truncate(strings.Repeat("x", 20), 10)
	assert.Equal(t, strings.Repeat("x", 7)+"...", got)
}

func TestSplit_FitsInOne(t *testing.T) {
	assert.Equal(t, []string{"olá"}, Split("olá", 1500))
}

func TestSplit_ByParagraph(t *testing.T) {
	p := strings.Repeat("x", 40)
	parts := Split(p+"\n\n"+p+"\n\n"+p, 50)

	assert.Len(t, parts, 3)
	for i, part := range parts {
		assert.True(t, strings.HasPrefix(part, "*[Parte "), "part %d: %q", i, part)
		assert.True(t, strings.HasSuffix(part, p))
	}
	assert.True(t, strings.HasPrefix(parts[2], "*[Parte 3/3]*\n\n"))
}

func TestSplit_BySentence(t *testing.T) {
	sentence := strings.Repeat("y", 25) + "."
	text := strings.Join([]string{sentence, sentence, sentence, sentence}, " ")
	parts := Split(text, 60)

	assert.Len(t, parts, 2)
	assert.Equal(t, "*[Parte 1/2]*\n\n"+sentence+" "+sentence, parts[0])
	assert.Equal(t, "*[Parte 2/2]*\n\n"+sentence+" "+sentence, parts[1])
}

func TestSplit_OverlongSentenceIsChunked(t *testing.T) {
	parts := Split(strings.Repeat("z", 25), 10)
	assert.Len(t, parts, 3)
	assert.True(t, strings.HasSuffix(parts[0], strings.Repeat("z", 10)))
	assert.True(t, strings.HasSuffix(parts[2], strings.Repeat("z", 5)))
}
