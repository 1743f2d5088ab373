package planner

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/stage1"
)

// Plan implements spec.md §4.4 in full for one rendered multi-output
// recipe under one variant combination: topological order, streaming
// hash/build-string computation, and exact-pin substitution into the
// rendered dependency lists. combo is the variant combination's full
// recorded subset (recipe.VariantSubset), the source of values for each
// output's effective variant projection. For a single-output recipe, call
// PlanSingle instead — there is no ordering or pin substitution to do.
func Plan(r *stage1.Recipe, combo recipe.VariantSubset, targetPlatform string) ([]stage1.Output, error) {
	if !r.IsMultiOutput {
		return nil, errors.New("planner.Plan requires a multi-output recipe; use PlanSingle")
	}

	g, err := Build(r.Outputs)
	if err != nil {
		return nil, err
	}
	order, err := g.order()
	if err != nil {
		return nil, err
	}

	resolved := make(map[recipe.NormalizedKey]stage1.Output, len(r.Outputs))
	result := make([]stage1.Output, len(r.Outputs))
	for _, idx := range order {
		o := r.Outputs[idx]

		vstar := effectiveVariant(o, combo, targetPlatform, resolved)
		hash, err := recipe.HashVariantSubset(vstar)
		if err != nil {
			return nil, errors.Wrapf(err, "hashing output %q", o.Name)
		}
		hi := recipe.HashInfo{Hash: hash, Prefix: recipe.NoarchPrefix(o.NoArch, pythonVersionFrom(vstar))}

		o.Hash = hi.Hash
		o.Prefix = hi.Prefix
		o.BuildString = hi.BuildString(o.BuildNumber, o.BuildStringTemplate)
		o.EffectiveVariant = vstar

		if !o.IsStaging {
			o.Requirements = substituteExactPins(o.Requirements, resolved)
		}

		resolved[recipe.Normalize(o.Name)] = o
		result[idx] = o
	}
	return result, nil
}

// PlanSingle computes the hash/build-string for a single-output recipe's
// lone output, with an empty predecessor set (there is nothing to
// topologically order).
func PlanSingle(r *stage1.Recipe, combo recipe.VariantSubset, targetPlatform string) (stage1.Output, error) {
	o := *r.SingleOutput()
	vstar := effectiveVariant(o, combo, targetPlatform, nil)
	hash, err := recipe.HashVariantSubset(vstar)
	if err != nil {
		return stage1.Output{}, errors.Wrapf(err, "hashing output %q", o.Name)
	}
	hi := recipe.HashInfo{Hash: hash, Prefix: recipe.NoarchPrefix(o.NoArch, pythonVersionFrom(vstar))}
	o.Hash = hi.Hash
	o.Prefix = hi.Prefix
	o.BuildString = hi.BuildString(o.BuildNumber, o.BuildStringTemplate)
	o.EffectiveVariant = vstar
	return o, nil
}

// effectiveVariant computes V* (spec.md §4.4): accessed keys present in
// combo, free-spec names present in combo, target_platform (normalised to
// "noarch" when the output itself is noarch), and one entry per exact
// pin_subpackage resolved so far.
func effectiveVariant(o stage1.Output, combo recipe.VariantSubset, targetPlatform string, resolved map[recipe.NormalizedKey]stage1.Output) recipe.VariantSubset {
	v := recipe.VariantSubset{}

	for _, a := range o.Accessed {
		k := recipe.Normalize(a)
		if val, ok := combo[k]; ok {
			v[k] = val
		}
	}
	for _, name := range o.FreeSpecNames() {
		k := recipe.Normalize(name)
		if val, ok := combo[k]; ok {
			v[k] = val
		}
	}

	tp := targetPlatform
	if o.NoArch != "" {
		tp = "noarch"
	}
	v[recipe.Normalize("target_platform")] = recipe.StringVariable(tp)

	for _, d := range exactPinsOf(o) {
		pk := recipe.Normalize(d.Name)
		dep, ok := resolved[pk]
		if !ok {
			continue
		}
		v[pk] = recipe.StringVariable(fmt.Sprintf("%s %s", dep.Version, dep.BuildString))
	}
	return v
}

func exactPinsOf(o stage1.Output) []recipe.Dependency {
	var deps []recipe.Dependency
	collect := func(ds []recipe.Dependency) {
		for _, d := range ds {
			if d.Kind == recipe.DepPinSubpackage && d.Exact {
				deps = append(deps, d)
			}
		}
	}
	if o.IsStaging {
		collect(o.StagingRequirements.Build)
		collect(o.StagingRequirements.Host)
	} else {
		collect(o.Requirements.Build)
		collect(o.Requirements.Host)
		collect(o.Requirements.Run)
		collect(o.Requirements.RunConstraints)
	}
	return deps
}

func pythonVersionFrom(v recipe.VariantSubset) string {
	if val, ok := v[recipe.Normalize("python")]; ok {
		return val.String()
	}
	return ""
}

// substituteExactPins rewrites every resolved pin_subpackage(exact=true)
// dependency in reqs into its concrete MatchSpec form, "name ==version=build"
// (spec.md §4.4 "Exact-pin substitution").
func substituteExactPins(reqs recipe.Requirements, resolved map[recipe.NormalizedKey]stage1.Output) recipe.Requirements {
	sub := func(ds []recipe.Dependency) []recipe.Dependency {
		if len(ds) == 0 {
			return ds
		}
		out := make([]recipe.Dependency, len(ds))
		for i, d := range ds {
			if d.Kind == recipe.DepPinSubpackage && d.Exact {
				if dep, ok := resolved[recipe.Normalize(d.Name)]; ok {
					spec := fmt.Sprintf("%s ==%s=%s", dep.Name, dep.Version, dep.BuildString)
					out[i] = recipe.MatchSpecDependency(spec, d.Span)
					continue
				}
			}
			out[i] = d
		}
		return out
	}
	reqs.Build = sub(reqs.Build)
	reqs.Host = sub(reqs.Host)
	reqs.Run = sub(reqs.Run)
	reqs.RunConstraints = sub(reqs.RunConstraints)
	return reqs
}
