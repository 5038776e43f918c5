// Package mathguard protects LaTeX math spans from the markdown converter.
//
// Guarding replaces each math span with a placeholder built from Unicode
// Private Use Area delimiters and a decimal index. The placeholders are inert
// in markdown, cannot be produced by the grammar, and pass through the
// converter's escaping untouched. After conversion, Restore swaps each
// placeholder for a typesetting-ready wrapper carrying the formula verbatim
// so client-side typesetting can reparse it.
package mathguard

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder delimiters from the Unicode Private Use Area. No markdown
// grammar construct can emit these, and HTML escaping leaves them alone.
const (
	placeholderStart = ""
	placeholderEnd   = ""
)

// Span is one guarded math span.
type Span struct {
	Placeholder string
	Formula     string
	Block       bool
}

// Restoration maps placeholders back to their original math spans,
// in document order.
type Restoration []Span

var (
	// Block math: $$ ... $$, possibly spanning lines, shortest match to the
	// closing delimiter.
	blockMath = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)

	// Inline math: $...$ with no internal dollar, shortest match.
	// Blank-line and escape rules are enforced in code since RE2 has no
	// lookbehind.
	inlineMath = regexp.MustCompile(`\$([^$]+?)\$`)
)

// Guard extracts math spans from text and returns the guarded text together
// with the restoration map. Placeholder numbering is deterministic in
// document order, so identical guarded text always carries identical
// placeholders regardless of which render produced it.
func Guard(text string) (string, Restoration) {
	var restoration Restoration

	guarded := replaceSpans(text, blockMath, true, &restoration)
	guarded = replaceSpans(guarded, inlineMath, false, &restoration)

	return guarded, restoration
}

// replaceSpans substitutes placeholders for every valid match of pattern.
// Matches are found one at a time: rejecting a match resumes the scan just
// past its opening delimiter, so a rejected extent cannot swallow a
// legitimate span that starts inside it.
func replaceSpans(text string, pattern *regexp.Regexp, block bool, restoration *Restoration) string {
	delimLen := 1
	if block {
		delimLen = 2
	}

	var out strings.Builder
	out.Grow(len(text))
	pos := 0

	for pos < len(text) {
		m := pattern.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[0], pos+m[1]
		formula := text[pos+m[2] : pos+m[3]]

		if escaped(text, start) || !validSpan(formula, block) {
			out.WriteString(text[pos : start+delimLen])
			pos = start + delimLen
			continue
		}

		token := fmt.Sprintf("%s%d%s", placeholderStart, len(*restoration), placeholderEnd)
		*restoration = append(*restoration, Span{Placeholder: token, Formula: formula, Block: block})

		out.WriteString(text[pos:start])
		out.WriteString(token)
		pos = end
	}
	out.WriteString(text[pos:])

	return out.String()
}

// escaped reports whether the delimiter at pos is backslash-escaped.
func escaped(text string, pos int) bool {
	backslashes := 0
	for i := pos - 1; i >= 0 && text[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 1
}

// validSpan rejects spans that cross a blank line, and inline spans whose
// content opens or closes with whitespace (those are almost always literal
// dollar amounts, not math).
func validSpan(formula string, block bool) bool {
	if strings.Contains(formula, "\n\n") {
		return false
	}
	if block {
		return true
	}
	trimmed := strings.TrimSpace(formula)
	return trimmed != "" && trimmed == formula
}

// Restore replaces each placeholder in html with its typesetting wrapper:
// span-level for inline math, div-level for block math. The formula text is
// inserted verbatim, delimiters included, for client-side reparsing.
func Restore(html string, restoration Restoration) string {
	for _, span := range restoration {
		var wrapper string
		if span.Block {
			wrapper = `<div class="math display">$$` + span.Formula + `$$</div>`
		} else {
			wrapper = `<span class="math inline">$` + span.Formula + `$</span>`
		}
		html = strings.ReplaceAll(html, span.Placeholder, wrapper)
	}
	return html
}
