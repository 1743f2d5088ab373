// Package variantconfig parses the variant configuration document (spec.md
// §6 "Variant config file format") into a recipe.VariantConfig-shaped
// in-memory Config: a mapping of NormalizedKey to a conditional list of
// candidate Variables, plus the `zip_keys` groups that must iterate in
// lock-step. It mirrors Azure-dalec's span-preserving, closed-key-set decode
// style (load.go) even though dalec has no variant concept of its own to
// generalize from directly.
package variantconfig

import (
	"context"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/pkg/errors"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// Config is a parsed variant-config document (spec.md §3 VariantConfig,
// §6): each key maps to a ConditionalList so that selector-style
// conditionals (`{if: unix, then: [...]}`, or the legacy `# [unix]` comment
// form handled by legacy.go) can gate candidate values the same way a
// recipe's own requirement lists do.
type Config struct {
	Keys    []recipe.NormalizedKey
	Entries map[recipe.NormalizedKey]recipe.ConditionalList[recipe.Value[string]]

	// ZipKeys groups of NormalizedKeys that must be iterated in lock-step
	// (spec.md §4.3 step 3, §6 "zip_keys: [[k1, k2], ...]").
	ZipKeys [][]recipe.NormalizedKey
}

const reservedZipKeysKey = "zip_keys"

// ParseConfig decodes a variant-config YAML document. It first attempts the
// legacy `# [selector]` compatibility path (legacy.go); spec.md §6 requires
// that to be "attempted before falling back to the modern parser". Only
// when the legacy scanner finds no trailing-comment selectors anywhere does
// this fall through to the modern `{if,then,else}`-aware decode.
func ParseConfig(data []byte, filename string) (*Config, error) {
	if cfg, ok, err := parseLegacyConfig(data, filename); err != nil {
		return nil, err
	} else if ok {
		return cfg, nil
	}
	return parseModernConfig(data, filename)
}

func parseModernConfig(data []byte, filename string) (*Config, error) {
	ctx := recipe.ContextWithFilename(context.Background(), filename)

	file, err := parser.ParseBytes(data, 0)
	if err != nil {
		return nil, errors.Wrap(err, "parsing variant config")
	}
	if len(file.Docs) == 0 {
		return &Config{Entries: map[recipe.NormalizedKey]recipe.ConditionalList[recipe.Value[string]]{}}, nil
	}

	root := file.Docs[0].Body
	mn, ok := root.(*ast.MappingNode)
	if !ok {
		if single, ok := root.(*ast.MappingValueNode); ok {
			mn = &ast.MappingNode{Values: []*ast.MappingValueNode{single}}
		} else {
			return nil, fmt.Errorf("%s: variant config must be a mapping", filename)
		}
	}

	cfg := &Config{Entries: map[recipe.NormalizedKey]recipe.ConditionalList[recipe.Value[string]]{}}
	for _, v := range mn.Values {
		keyNode, ok := v.Key.(*ast.StringNode)
		if !ok {
			return nil, fmt.Errorf("%s: variant config keys must be strings", filename)
		}
		key := keyNode.Value

		if key == reservedZipKeysKey {
			groups, err := decodeZipKeys(ctx, v.Value)
			if err != nil {
				return nil, err
			}
			cfg.ZipKeys = groups
			continue
		}

		var cl recipe.ConditionalList[recipe.Value[string]]
		if err := cl.UnmarshalYAML(ctx, v.Value); err != nil {
			return nil, errors.Wrapf(err, "variant config key %q", key)
		}
		nk := recipe.Normalize(key)
		cfg.Keys = append(cfg.Keys, nk)
		cfg.Entries[nk] = cl
	}

	return cfg, nil
}

func decodeZipKeys(ctx context.Context, node ast.Node) ([][]recipe.NormalizedKey, error) {
	seq, ok := node.(*ast.SequenceNode)
	if !ok {
		return nil, fmt.Errorf("zip_keys must be a sequence of sequences")
	}
	groups := make([][]recipe.NormalizedKey, 0, len(seq.Values))
	for _, g := range seq.Values {
		gseq, ok := g.(*ast.SequenceNode)
		if !ok {
			return nil, fmt.Errorf("zip_keys element must be a sequence of key names")
		}
		var names []string
		if err := yaml.NodeToValue(gseq, &names); err != nil {
			return nil, err
		}
		group := make([]recipe.NormalizedKey, 0, len(names))
		for _, n := range names {
			group = append(group, recipe.Normalize(n))
		}
		groups = append(groups, group)
	}
	return groups, nil
}
