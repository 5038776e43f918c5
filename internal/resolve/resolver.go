// Package resolve rewrites wiki-link and file-inclusion markers in markdown
// source into resolved, embeddable fragments.
//
// Wiki-links [[target]] and [[target|label]] become markdown links with a
// wiki: scheme so the converter emits an anchor for the target. Inclusions
// [[!relpath]] and [[!relpath|title]] are expanded depth-first with the
// included file's content, consulting the inclusion cache to skip file I/O
// when the file is unchanged. Resolution errors are recovered locally as
// visible inline fragments; they never abort the surrounding render.
package resolve

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/livemark/livemark/internal/cache"
)

var (
	// [[!target]] or [[!target|title]]
	inclusionMarker = regexp.MustCompile(`\[\[!([^\]|]+)(?:\|([^\]]+))?\]\]`)

	// [[target]] or [[target|label]], target not starting with !
	wikiLinkMarker = regexp.MustCompile(`\[\[([^!\]|][^\]|]*)(?:\|([^\]]+))?\]\]`)
)

// Extensions tried when resolving an inclusion or wiki target to a file,
// in order. The empty string matches an exact path.
var targetExtensions = []string{".md", ".markdown", ""}

// Resolver rewrites reference markers against a base directory. One Resolver
// may serve many renders; the cycle-detection visit set is created per
// Resolve call and never shared.
type Resolver struct {
	baseDir  string
	includes *cache.IncludeCache
}

// New creates a Resolver rooted at baseDir. includes may be nil to disable
// inclusion caching; resolution stays correct either way.
func New(baseDir string, includes *cache.IncludeCache) *Resolver {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = filepath.Clean(baseDir)
	}
	return &Resolver{baseDir: abs, includes: includes}
}

// Resolve expands all inclusion markers depth-first and rewrites wiki-link
// markers. The returned text contains inline error fragments for missing,
// unreadable, or circular inclusions.
func (r *Resolver) Resolve(text string) string {
	visiting := make(map[string]struct{})
	expanded := r.expandInclusions(text, visiting)
	return rewriteWikiLinks(expanded)
}

// expandInclusions substitutes inclusion markers with resolved file content.
// visiting holds the paths currently open on this resolution stack: a path
// seen again while still open is a cycle and is cut with an inline marker,
// while diamond-shaped sharing resolves normally because paths are removed
// when their branch completes.
func (r *Resolver) expandInclusions(text string, visiting map[string]struct{}) string {
	return inclusionMarker.ReplaceAllStringFunc(text, func(marker string) string {
		groups := inclusionMarker.FindStringSubmatch(marker)
		target := strings.TrimSpace(groups[1])
		title := strings.TrimSpace(groups[2])

		path, ok := r.resolveTarget(target)
		if !ok {
			return errorFragment("file not found", target)
		}
		if _, open := visiting[path]; open {
			return errorFragment("circular inclusion detected", target)
		}

		content, err := r.readTarget(path)
		if err != nil {
			return errorFragment("cannot read file", target)
		}

		visiting[path] = struct{}{}
		expanded := r.expandInclusions(content, visiting)
		delete(visiting, path)

		var fragment strings.Builder
		fragment.WriteString("\n\n")
		if title != "" {
			fragment.WriteString("### ")
			fragment.WriteString(title)
			fragment.WriteString("\n\n")
		}
		fragment.WriteString(expanded)
		fragment.WriteString("\n\n")
		return fragment.String()
	})
}

// readTarget returns the file's content, preferring the inclusion cache.
// A cache hit skips file I/O entirely; a miss reads the file and records it
// under its current modification time.
func (r *Resolver) readTarget(path string) (string, error) {
	if r.includes != nil {
		if content, ok := r.includes.Get(path); ok {
			return content, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	content := string(data)
	if r.includes != nil {
		r.includes.Put(path, info.ModTime(), content)
	}
	return content, nil
}

// resolveTarget maps an inclusion target to an absolute path under the base
// directory, trying .md and .markdown before the exact name. Targets that
// escape the base directory are rejected.
func (r *Resolver) resolveTarget(target string) (string, bool) {
	// Normalize to NFC so targets typed in editors match filenames produced
	// by NFD filesystems.
	target = norm.NFC.String(target)

	for _, ext := range targetExtensions {
		candidate := filepath.Clean(filepath.Join(r.baseDir, target+ext))

		rel, err := filepath.Rel(r.baseDir, candidate)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// rewriteWikiLinks turns [[target]] and [[target|label]] into markdown links
// with a wiki: scheme. The converter renders them as anchors referencing the
// target and displaying the label, or the target itself when no label is
// given.
func rewriteWikiLinks(text string) string {
	return wikiLinkMarker.ReplaceAllStringFunc(text, func(marker string) string {
		groups := wikiLinkMarker.FindStringSubmatch(marker)
		target := norm.NFC.String(strings.TrimSpace(groups[1]))
		label := strings.TrimSpace(groups[2])
		if label == "" {
			label = target
		}
		return fmt.Sprintf("[%s](wiki:%s)", label, url.PathEscape(target))
	})
}

// errorFragment renders a recoverable resolution error as a visible markdown
// fragment. Markdown rather than raw HTML keeps the fragment intact through a
// converter that strips raw HTML.
func errorFragment(reason, target string) string {
	return fmt.Sprintf("\n\n> **Inclusion error:** %s: `%s`\n\n", reason, target)
}
