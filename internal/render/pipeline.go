// Package render orchestrates the transform pipeline that turns raw markdown
// source into safe, cacheable HTML: reference resolution, math guarding,
// fingerprinting, conversion, and formula restoration.
package render

import (
	"context"
	"errors"
	"fmt"
	"html"

	"golang.org/x/sync/singleflight"

	"github.com/livemark/livemark/internal/cache"
	"github.com/livemark/livemark/internal/convert"
	"github.com/livemark/livemark/internal/logging"
	"github.com/livemark/livemark/internal/mathguard"
	"github.com/livemark/livemark/internal/resolve"
)

// Flags are the feature toggles that shape a render. They participate in the
// content fingerprint.
type Flags struct {
	Wikilinks bool
	Latex     bool
}

// Result is the outcome of one render.
type Result struct {
	HTML        string
	Fingerprint string
	CacheHit    bool

	// Failed is set when the converter failed and HTML carries an inline
	// error fragment instead of rendered content.
	Failed bool
}

// Pipeline owns the two caches and the converter, and de-duplicates
// concurrent renders of the same fingerprint. Renders for different
// fingerprints proceed in parallel.
type Pipeline struct {
	renders   *cache.RenderCache
	includes  *cache.IncludeCache
	converter convert.Converter
	sanitizer *convert.Sanitizer
	inflight  singleflight.Group
	log       logging.Logger
}

// NewPipeline wires a Pipeline. sanitizer may be nil to disable the
// sanitization pass.
func NewPipeline(renders *cache.RenderCache, includes *cache.IncludeCache, converter convert.Converter, sanitizer *convert.Sanitizer, log logging.Logger) *Pipeline {
	return &Pipeline{
		renders:   renders,
		includes:  includes,
		converter: converter,
		sanitizer: sanitizer,
		log:       log.WithComponent("render"),
	}
}

type converted struct {
	html     string
	cacheHit bool
}

// Render runs the full pipeline for source rooted at baseDir.
//
// The fingerprint is computed after reference resolution, so an edit to an
// included file changes the fingerprint of every document that includes it,
// and before formula restoration, so identical guarded text shares one cache
// slot and formulas are restored post-lookup from the current render's map.
//
// A converter failure is embedded in the returned HTML as a visible error
// fragment; only context cancellation is returned as an error.
func (p *Pipeline) Render(ctx context.Context, source, baseDir string, flags Flags) (Result, error) {
	text := source
	if flags.Wikilinks {
		text = resolve.New(baseDir, p.includes).Resolve(text)
	}

	var restoration mathguard.Restoration
	if flags.Latex {
		text, restoration = mathguard.Guard(text)
	}

	fingerprint := cache.Fingerprint(text, flags.Wikilinks, flags.Latex)

	value, err, shared := p.inflight.Do(fingerprint, func() (interface{}, error) {
		if cached, ok := p.renders.Get(fingerprint); ok {
			return converted{html: cached, cacheHit: true}, nil
		}

		converterHTML, err := p.converter.ToHTML(ctx, text)
		if err != nil {
			return nil, err
		}
		if p.sanitizer != nil {
			converterHTML = p.sanitizer.Sanitize(converterHTML)
		}
		p.renders.Set(fingerprint, converterHTML)
		return converted{html: converterHTML}, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		p.log.Error(ctx, err, "converter failed", "fingerprint", fingerprint)
		return Result{
			HTML:        conversionErrorFragment(err),
			Fingerprint: fingerprint,
			Failed:      true,
		}, nil
	}

	result := value.(converted)
	rendered := result.html
	if flags.Latex {
		rendered = mathguard.Restore(rendered, restoration)
	}

	return Result{
		HTML:        rendered,
		Fingerprint: fingerprint,
		CacheHit:    result.cacheHit || shared,
	}, nil
}

// Stats returns read-only snapshots of both caches.
func (p *Pipeline) Stats() (render cache.Stats, include cache.Stats) {
	return p.renders.Stats(), p.includes.Stats()
}

// conversionErrorFragment renders a converter failure as visible HTML so the
// preview shows what went wrong instead of silently dropping the document.
func conversionErrorFragment(err error) string {
	return fmt.Sprintf(
		`<div class="render-error"><strong>Rendering error:</strong> %s</div>`,
		html.EscapeString(err.Error()),
	)
}
