package recipe

// migrateCache implements the deprecated `cache:` top-level key migration
// (spec.md §6, §8 scenario S4): the cache's source/requirements/build
// sections become a synthesized leading staging output named
// `<recipe.name>-build` (or `build-cache` when no recipe name is known), and
// every package output that doesn't already carry an `inherit:` gains one
// pointing at the synthesized name. Migration runs after the outputs list
// has already been decoded, so it only ever mutates already-typed Go values
// rather than the YAML AST — the fixed-point property (migrating twice is
// the same as migrating once) falls out for free because a recipe with no
// `cache:` key is simply left untouched on the second pass.

import (
	"context"

	"github.com/goccy/go-yaml/ast"
)

var cacheKeys = keySet("source", "requirements", "build")

func (r *Recipe) migrateCache(ctx context.Context, node ast.Node) error {
	keys, values, err := mappingEntries(ctx, node)
	if err != nil {
		return err
	}
	if err := checkClosedKeys(ctx, node, keys, cacheKeys); err != nil {
		return err
	}

	name := "build-cache"
	if r.RecipeHeader != nil && !r.RecipeHeader.Name.IsTemplate && r.RecipeHeader.Name.Concrete != "" {
		name = r.RecipeHeader.Name.Concrete + "-build"
	}

	staging := OutputBlock{
		Span:      spanFromNode(docFilename(ctx), node),
		IsStaging: true,
		Staging:   &StagingBlock{Name: Static(name)},
	}

	if n, ok := values["source"]; ok {
		if err := staging.Source.UnmarshalYAML(ctx, n); err != nil {
			return err
		}
	}
	if n, ok := values["requirements"]; ok {
		reqKeys, _, err := mappingEntries(ctx, n)
		if err != nil {
			return err
		}
		if err := checkClosedKeys(ctx, n, reqKeys, stagingRequirementsKeys); err != nil {
			return err
		}
		var req RequirementsBlock
		if err := decodeNode(ctx, n, &req); err != nil {
			return err
		}
		staging.Requirements = &req
	}
	if n, ok := values["build"]; ok {
		buildKeys, _, err := mappingEntries(ctx, n)
		if err != nil {
			return err
		}
		if err := checkClosedKeys(ctx, n, buildKeys, stagingBuildKeys); err != nil {
			return err
		}
		var b BuildBlock
		if err := decodeNode(ctx, n, &b); err != nil {
			return err
		}
		staging.Build = &b
	}

	for i := range r.Outputs {
		out := &r.Outputs[i]
		if out.IsStaging {
			continue
		}
		if out.Inherit == nil {
			out.Inherit = &InheritBlock{From: name}
		}
	}

	r.Outputs = append([]OutputBlock{staging}, r.Outputs...)
	return nil
}
