package eval

import (
	"fmt"
	"strings"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

type templateSpan struct {
	start, end int // byte offsets into the raw string, end exclusive
	expr       string
}

// findTemplateSpans locates every `${{ ... }}` span in raw, respecting
// nested braces so an expression containing a dict/mapping literal or a
// function call with trailing braces doesn't truncate early.
func findTemplateSpans(raw string) []templateSpan {
	var spans []templateSpan
	i := 0
	for i < len(raw) {
		start := strings.Index(raw[i:], "${{")
		if start < 0 {
			break
		}
		start += i
		depth := 0
		j := start + 3
		end := -1
		for j < len(raw) {
			switch {
			case strings.HasPrefix(raw[j:], "}}") && depth == 0:
				end = j
			case raw[j] == '{':
				depth++
			case raw[j] == '}':
				if depth > 0 {
					depth--
				}
			}
			if end >= 0 {
				break
			}
			j++
		}
		if end < 0 {
			break
		}
		spans = append(spans, templateSpan{start: start, end: end + 2, expr: strings.TrimSpace(raw[start+3 : end])})
		i = end + 2
	}
	return spans
}

// TemplateExpressions returns the body of every `${{ ... }}` expression
// found in raw, used by the variant expander's free-identifier scan
// (spec.md §4.3 step 1a) without needing to evaluate anything.
func TemplateExpressions(raw string) []string {
	spans := findTemplateSpans(raw)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.expr
	}
	return out
}

// RenderTemplate renders a raw `${{ ... }}`-bearing string against ctx
// (spec.md §4.2). When the entire string is exactly one template
// expression the expression's native Result is returned unstringified —
// this is what lets `- ${{ pin_subpackage('a', exact=True) }}` become a
// typed Dependency rather than a rendered string. Any other shape
// (surrounding literal text, multiple expressions, or no template at all)
// renders to a plain scalar string.
func RenderTemplate(ctx *EvaluationContext, raw string) (Result, error) {
	spans := findTemplateSpans(raw)
	if len(spans) == 0 {
		return scalarResult(recipe.StringVariable(raw)), nil
	}
	if len(spans) == 1 && spans[0].start == 0 && spans[0].end == len(raw) {
		n, err := parseExpr(spans[0].expr)
		if err != nil {
			return Result{}, fmt.Errorf("parsing %q: %w", spans[0].expr, err)
		}
		return Eval(ctx, n)
	}

	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(raw[last:sp.start])
		n, err := parseExpr(sp.expr)
		if err != nil {
			return Result{}, fmt.Errorf("parsing %q: %w", sp.expr, err)
		}
		r, err := Eval(ctx, n)
		if err != nil {
			return Result{}, err
		}
		b.WriteString(r.String())
		last = sp.end
	}
	b.WriteString(raw[last:])
	return scalarResult(recipe.StringVariable(b.String())), nil
}

// RenderString is a convenience wrapper for fields that must stay plain
// strings even if the template expression would otherwise reduce to a
// Dependency (e.g. `about.home`, `build.string`): the Result is always
// stringified.
func RenderString(ctx *EvaluationContext, raw string) (string, error) {
	r, err := RenderTemplate(ctx, raw)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

// Truthy renders a condition expression (the `if:` of a ConditionalList
// element) and reports its truthiness, matching
// recipe.ConditionalList[T].Flatten's `truthy func(string) (bool, error)`
// shape exactly so Evaluate can pass it straight through.
func Truthy(ctx *EvaluationContext, expr string) (bool, error) {
	n, err := parseExpr(expr)
	if err != nil {
		return false, err
	}
	r, err := Eval(ctx, n)
	if err != nil {
		return false, err
	}
	return r.Truthy(), nil
}
