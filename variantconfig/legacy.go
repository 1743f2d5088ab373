package variantconfig

// Legacy `conda_build_config.yaml` compatibility: a plain YAML sequence
// whose elements carry a trailing `# [selector]` comment instead of the
// modern `{if, then, else}` record (spec.md §6). Grounded on
// original_source/crates/rattler_build_variant_config/src/yaml_parser.rs's
// two-pass strategy: scan raw lines for the legacy marker first, and only
// if none are found hand the bytes to the modern ast.Node-driven decoder.
// This keeps the legacy path a pure textual pre-pass rather than teaching
// the modern parser two conditional grammars at once.

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// legacySelectorRe matches a trailing `  # [expr]` comment on a sequence
// item or scalar mapping value line, e.g. `  - 3.9  # [not win]`.
var legacySelectorRe = regexp.MustCompile(`#\s*\[([^\]]+)\]\s*$`)

// legacyKeyRe matches a top-level (column 0) `key:` line.
var legacyKeyRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):\s*$`)

// legacyItemRe matches a `- value` sequence item, optionally quoted.
var legacyItemRe = regexp.MustCompile(`^\s*-\s*(.+?)\s*$`)

// hasLegacySelectors reports whether raw contains any `# [...]` trailing
// comment, the signal that this document uses the legacy selector dialect
// rather than `{if,then,else}` conditionals.
func hasLegacySelectors(raw []byte) bool {
	return legacySelectorRe.Match(raw)
}

// parseLegacyConfig scans raw for the legacy dialect. ok is false (with a
// nil error) when no legacy markers are present, signalling the caller to
// fall back to parseModernConfig.
func parseLegacyConfig(raw []byte, filename string) (*Config, bool, error) {
	if !hasLegacySelectors(raw) {
		return nil, false, nil
	}

	cfg := &Config{Entries: map[recipe.NormalizedKey]recipe.ConditionalList[recipe.Value[string]]{}}

	var curKey string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" || strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}

		if m := legacyKeyRe.FindStringSubmatch(trimmed); m != nil {
			curKey = m[1]
			if curKey == reservedZipKeysKey {
				return nil, false, fmt.Errorf("%s:%d: legacy selector dialect does not support zip_keys", filename, lineNo)
			}
			nk := recipe.Normalize(curKey)
			if _, seen := cfg.Entries[nk]; !seen {
				cfg.Keys = append(cfg.Keys, nk)
				cfg.Entries[nk] = nil
			}
			continue
		}

		if curKey == "" {
			continue // header comment or blank before the first key
		}
		if !strings.HasPrefix(strings.TrimSpace(trimmed), "-") {
			continue // continuation line this scanner doesn't need
		}

		item, selector := splitLegacyItem(trimmed)
		valStr, err := unquoteScalar(item)
		if err != nil {
			return nil, false, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}

		el := recipe.CondElement[recipe.Value[string]]{
			Span: &recipe.Span{File: filename, StartLine: lineNo},
		}
		if selector == "" {
			el.Plain = recipe.Static(valStr)
		} else {
			el.IsConditional = true
			el.If = translateLegacySelector(selector)
			el.Then = recipe.CondBranch[recipe.Value[string]]{Item: recipe.Static(valStr)}
			el.Else = recipe.CondBranch[recipe.Value[string]]{Absent: true}
		}

		nk := recipe.Normalize(curKey)
		cfg.Entries[nk] = append(cfg.Entries[nk], el)
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", filename, err)
	}

	return cfg, true, nil
}

// splitLegacyItem separates a `- value  # [selector]` line into its value
// text and selector expression (empty if there is no trailing comment).
func splitLegacyItem(line string) (value, selector string) {
	m := legacySelectorRe.FindStringSubmatchIndex(line)
	body := line
	if m != nil {
		selector = line[m[2]:m[3]]
		body = line[:m[0]]
	}
	im := legacyItemRe.FindStringSubmatch(body)
	if im == nil {
		return strings.TrimSpace(body), strings.TrimSpace(selector)
	}
	return strings.TrimSpace(im[1]), strings.TrimSpace(selector)
}

func unquoteScalar(s string) (string, error) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		if s[0] == '"' {
			return strconv.Unquote(s)
		}
		return s[1 : len(s)-1], nil
	}
	return s, nil
}

// translateLegacySelector rewrites a conda_build_config selector expression
// into the `${{ }}`-expression-grammar-compatible boolean text this
// project's evaluator already understands: `not X`, `X and Y`, `X or Y`,
// and bare identifiers pass through unchanged. Legacy compound names such as
// `win64`/`linux32` also pass through unchanged; EvaluationContext.Lookup
// has no binding for them, so they evaluate as undefined (falsy). Only
// surrounding whitespace is trimmed.
func translateLegacySelector(sel string) string {
	return strings.TrimSpace(sel)
}
