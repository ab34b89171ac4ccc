// Package markup converts model output written in a small Markdown dialect
// into HTML for the web client or into WhatsApp-safe plain text.
//
// The dialect covers headings (# to ###), **bold**, *italic*, `inline code`,
// fenced code blocks, [links](url), ![images](url), "> " quotes, "- " and
// "N. " lists and "* item" paragraphs. Anything the rules do not recognise is
// passed through literally; rendering never fails on malformed input.
package markup

import (
	"fmt"
)

// Target selects the output dialect.
type Target string

const (
	TargetHTML  Target = "html"
	TargetPlain Target = "plain"
)

// DefaultPlainLimit is the plain-text cap used by Normalize. It matches the
// size WhatsApp renders comfortably in a single bubble.
const DefaultPlainLimit = 1500

// InvalidTargetError is returned when a caller asks for a dialect other than
// html or plain.
type InvalidTargetError struct {
	Target Target
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("markup: invalid target %q (want %q or %q)", string(e.Target), TargetHTML, TargetPlain)
}

// ParseTarget converts a user-supplied name into a Target.
func ParseTarget(s string) (Target, error) {
	t := Target(s)
	switch t {
	case TargetHTML, TargetPlain:
		return t, nil
	}
	return "", &InvalidTargetError{Target: t}
}

// Normalizer renders source text. The zero value renders plain text without a
// length cap.
type Normalizer struct {
	// PlainLimit caps plain output, in characters. Zero disables the cap.
	PlainLimit int
}

var defaultNormalizer = Normalizer{PlainLimit: DefaultPlainLimit}

// Normalize renders source with the default normalizer.
func Normalize(source string, target Target) (string, error) {
	return defaultNormalizer.Normalize(source, target)
}

// Normalize renders source into the requested dialect.
func (n Normalizer) Normalize(source string, target Target) (string, error) {
	switch target {
	case TargetHTML:
		return renderHTML(source), nil
	case TargetPlain:
		out := renderPlain(source)
		if n.PlainLimit > 0 {
			out = Truncate(out, n.PlainLimit)
		}
		return out, nil
	}
	return "", &InvalidTargetError{Target: target}
}
