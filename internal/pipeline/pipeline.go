// Package pipeline wires the recipe pipeline stages spec.md §1 lists in
// order — Parser, Variant Matrix Expander, Output Planner — into the single
// call the CLI driver needs. It owns no cache state of its own; the
// staging/source caches are acquired by the caller per spec.md §1's "thin
// collaborator" driver.
package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/prefix-dev/rattler-build-go/eval"
	"github.com/prefix-dev/rattler-build-go/planner"
	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/stage1"
	"github.com/prefix-dev/rattler-build-go/variantconfig"
	"github.com/prefix-dev/rattler-build-go/variantexpand"
)

// Platforms mirrors variantexpand.Platforms; redeclared here so callers
// depend only on this package for the CLI-facing surface.
type Platforms = variantexpand.Platforms

// PlannedVariant is one rendered-and-planned build matrix cell: the
// variant subset that selected it, and its topologically sorted,
// hash/build-string-resolved outputs.
type PlannedVariant struct {
	Variant recipe.VariantSubset
	Outputs []stage1.Output
}

// Options bundles the inputs Run needs beyond the raw recipe/variant-config
// bytes.
type Options struct {
	Platforms      Platforms
	ChannelTargets []string
	ChannelSources []string
	Env            map[string]string
}

// Run parses recipeData/variantConfigData, expands the variant matrix, and
// plans every resulting Stage 1 recipe, returning one PlannedVariant per
// matrix cell. Planning runs concurrently across variants via errgroup,
// matching spec.md §5's "multiple recipes or variants may be driven in
// parallel" — each variant's planner call touches no state shared with any
// other, so the fan-out needs no synchronization beyond collecting results.
func Run(ctx context.Context, recipeData, variantConfigData []byte, recipeFilename, variantConfigFilename string, opts Options) ([]PlannedVariant, error) {
	r, err := recipe.ParseRecipe(recipeData, recipeFilename)
	if err != nil {
		return nil, errors.Wrap(err, "parsing recipe")
	}

	var cfg *variantconfig.Config
	if variantConfigData != nil {
		cfg, err = variantconfig.ParseConfig(variantConfigData, variantConfigFilename)
		if err != nil {
			return nil, errors.Wrap(err, "parsing variant config")
		}
	} else {
		cfg = &variantconfig.Config{Entries: map[recipe.NormalizedKey]recipe.ConditionalList[recipe.Value[string]]{}}
	}

	platformCtx := eval.NewEvaluationContext(nil, opts.Platforms.Target, opts.Platforms.Build, opts.Platforms.Host, opts.ChannelTargets, opts.ChannelSources, opts.Env)
	resolved, err := variantconfig.Resolve(cfg, platformCtx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving variant config")
	}

	rendered, err := variantexpand.Expand(r, resolved, opts.Platforms, opts.ChannelTargets, opts.ChannelSources, opts.Env)
	if err != nil {
		return nil, errors.Wrap(err, "expanding variant matrix")
	}

	results := make([]PlannedVariant, len(rendered))
	group, _ := errgroup.WithContext(ctx)
	for i, rv := range rendered {
		i, rv := i, rv
		group.Go(func() error {
			var outputs []stage1.Output
			var err error
			if rv.Recipe.IsMultiOutput {
				outputs, err = planner.Plan(rv.Recipe, rv.Variant, opts.Platforms.Target)
			} else {
				var o stage1.Output
				o, err = planner.PlanSingle(rv.Recipe, rv.Variant, opts.Platforms.Target)
				outputs = []stage1.Output{o}
			}
			if err != nil {
				return errors.Wrapf(err, "planning variant %d", i)
			}
			results[i] = PlannedVariant{Variant: rv.Variant, Outputs: outputs}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
