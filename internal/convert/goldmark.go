// Package convert provides the markdown-to-HTML converter capability used by
// the render pipeline, plus an optional HTML sanitization pass.
//
// Any converter satisfying the Converter contract is substitutable: it must
// accept guarded, reference-resolved plain text and return an HTML fragment
// without re-interpreting the guard placeholders.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrConversion indicates HTML conversion failed.
var ErrConversion = errors.New("HTML conversion failed")

// Converter abstracts markdown to HTML conversion.
type Converter interface {
	ToHTML(ctx context.Context, content string) (string, error)
}

// GoldmarkConverter converts markdown to an HTML fragment using goldmark.
type GoldmarkConverter struct {
	md goldmark.Markdown
}

// NewGoldmarkConverter creates a GoldmarkConverter with GFM extensions and
// syntax highlighting.
func NewGoldmarkConverter() *GoldmarkConverter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,      // Tables, strikethrough, autolinks, task lists
			extension.Footnote, // [^1] footnotes
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true), // CSS classes so the page stylesheet controls colors
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(), // Treat newlines as <br>, matching live-edit expectations
			html.WithXHTML(),
			// WithUnsafe() intentionally NOT used: resolver fragments and
			// math wrappers are injected outside the converter.
		),
	)
	return &GoldmarkConverter{md: md}
}

// ToHTML converts markdown content to an HTML fragment. Context cancellation
// is supported via goroutine + select since goldmark doesn't take a context.
func (c *GoldmarkConverter) ToHTML(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrConversion, err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}
