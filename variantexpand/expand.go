package variantexpand

import (
	"github.com/pkg/errors"

	"github.com/prefix-dev/rattler-build-go/eval"
	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/stage1"
	"github.com/prefix-dev/rattler-build-go/variantconfig"
)

// RenderedVariant pairs one fully-evaluated Stage 1 recipe with the variant
// subset actually exercised to produce it (spec.md §4.3's final output: "a
// list of RenderedVariant{variant, recipe} pairs").
type RenderedVariant struct {
	Variant recipe.VariantSubset
	Recipe  *stage1.Recipe
}

// Platforms bundles the three platform identifiers every EvaluationContext
// needs, so Expand's signature doesn't grow a fourth/fifth string parameter
// every time a new platform-shaped input shows up.
type Platforms struct {
	Target string
	Build  string
	Host   string
}

// Expand implements spec.md §4.3 end to end: collect candidate variant
// keys, resolve the config down to an enumerable matrix, cross-product it
// into Combinations, and evaluate r once per combination.
func Expand(r *recipe.Recipe, cfg *variantconfig.ResolvedConfig, plat Platforms, channelTargets, channelSources []string, env map[string]string) ([]RenderedVariant, error) {
	used := CollectUsedVars(r)

	combos, err := Enumerate(used, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "enumerating variant combinations")
	}

	usedSet := make(map[recipe.NormalizedKey]bool, len(used))
	for _, u := range used {
		usedSet[recipe.Normalize(u)] = true
	}

	out := make([]RenderedVariant, 0, len(combos))
	for _, combo := range combos {
		rv, err := renderOne(r, combo, usedSet, plat, channelTargets, channelSources, env)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %s", describeCombo(combo))
		}
		out = append(out, rv)
	}
	return out, nil
}

func renderOne(r *recipe.Recipe, combo Combination, usedSet map[recipe.NormalizedKey]bool, plat Platforms, channelTargets, channelSources []string, env map[string]string) (RenderedVariant, error) {
	ctx := eval.NewEvaluationContext(combo.Vars, plat.Target, plat.Build, plat.Host, channelTargets, channelSources, env)
	if err := eval.EvaluateContext(ctx, r.Context); err != nil {
		return RenderedVariant{}, errors.Wrap(err, "evaluating context block")
	}

	rendered, err := eval.EvaluateRecipe(ctx, r)
	if err != nil {
		return RenderedVariant{}, errors.Wrap(err, "evaluating recipe")
	}

	variant := recordedVariant(combo, usedSet, rendered)
	return RenderedVariant{Variant: variant, Recipe: rendered}, nil
}

// recordedVariant implements spec.md §4.3 steps 4-5: the recorded variant
// for a rendered recipe contains only the combination's keys that at least
// one output actually accessed or names as a free-spec dependency, plus the
// always-include keys, with target_platform overridden to "noarch" when any
// output is noarch.
func recordedVariant(combo Combination, usedSet map[recipe.NormalizedKey]bool, rendered *stage1.Recipe) recipe.VariantSubset {
	byKey := make(map[recipe.NormalizedKey]recipe.Variable, len(combo.Vars))
	for _, nv := range combo.Vars {
		byKey[nv.Key] = nv.Value
	}

	accessedAny := map[recipe.NormalizedKey]bool{}
	noarch := false
	for _, o := range rendered.Outputs {
		for _, a := range o.Accessed {
			accessedAny[recipe.Normalize(a)] = true
		}
		for _, n := range o.FreeSpecNames() {
			accessedAny[recipe.Normalize(n)] = true
		}
		if o.NoArch != "" {
			noarch = true
		}
	}

	out := recipe.VariantSubset{}
	for _, k := range alwaysIncludeKeys {
		nk := recipe.Normalize(k)
		if v, ok := byKey[nk]; ok {
			out[nk] = v
		}
	}
	for nk, v := range byKey {
		if accessedAny[nk] {
			out[nk] = v
		}
	}
	if noarch {
		out[recipe.Normalize("target_platform")] = recipe.StringVariable("noarch")
	}
	return out
}

func describeCombo(c Combination) string {
	s := ""
	for i, nv := range c.Vars {
		if i > 0 {
			s += ","
		}
		s += string(nv.Key) + "=" + nv.Value.String()
	}
	if s == "" {
		return "<default>"
	}
	return s
}
