package mathguard

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestGuardProperties validates guard/restore round-trip invariants over
// generated formulas.
func TestGuardProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234) // For reproducible results
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Formula alphabet without delimiters, escapes, or placeholder chars.
	formulaGen := gen.RegexMatch(`[a-zA-Z0-9+*/=^_{}() ]+`)

	properties.Property("guarded text contains no dollar signs", prop.ForAll(
		func(formula string) bool {
			if strings.TrimSpace(formula) != formula || formula == "" {
				return true // Skip inputs the guard deliberately ignores
			}
			guarded, _ := Guard("x $" + formula + "$ y")
			return !strings.Contains(guarded, "$")
		},
		formulaGen,
	))

	properties.Property("restore brings the formula back verbatim", prop.ForAll(
		func(formula string) bool {
			if strings.TrimSpace(formula) != formula || formula == "" {
				return true
			}
			guarded, restoration := Guard("x $" + formula + "$ y")
			restored := Restore(guarded, restoration)
			return strings.Contains(restored, "$"+formula+"$")
		},
		formulaGen,
	))

	properties.Property("text without math is untouched", prop.ForAll(
		func(text string) bool {
			if strings.ContainsAny(text, "$\\") {
				return true
			}
			guarded, restoration := Guard(text)
			return guarded == text && len(restoration) == 0
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
