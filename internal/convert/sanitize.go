package convert

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup the preview page should never execute from
// converted HTML. It runs before placeholder restoration, so math spans are
// untouched by it.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a policy based on bluemonday's UGC baseline, widened
// for the constructs this pipeline emits: chroma class spans, heading ids,
// task-list checkboxes, and wiki: anchors.
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()

	p.AllowAttrs("class").OnElements("span", "div", "code", "pre", "a", "li", "ul")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("type", "checked", "disabled").OnElements("input")
	p.AllowElements("input")
	p.AllowURLSchemes("http", "https", "mailto", "wiki")

	return &Sanitizer{policy: p}
}

// Sanitize returns html with disallowed markup removed.
func (s *Sanitizer) Sanitize(html string) string {
	return s.policy.Sanitize(html)
}
