package eval

// EvaluateRecipe performs spec.md §4.2's Stage 0 -> Stage 1 tree walk for a
// whole recipe.Recipe under one variant combination's EvaluationContext,
// producing the stage1.Recipe the Variant Expander records as a
// RenderedVariant and the Output Planner later sorts/hashes. Each output is
// evaluated under its own ctx.Fork() so that the accessed/undefined sets
// recorded on stage1.Output reflect only that output's own templates
// (spec.md §4.3's variant-projection-minimality requirement), even though
// every fork shares the same underlying variable bindings.

import (
	"fmt"

	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/stage1"
)

// EvaluateRecipe renders r under ctx. ctx must already have had
// EvaluateContext run against r's top-level `context:` block (the caller
// owns that ordering since the variant expander needs the same ctx to seed
// per-output forks).
func EvaluateRecipe(ctx *EvaluationContext, r *recipe.Recipe) (*stage1.Recipe, error) {
	if r.IsMultiOutput {
		return evaluateMultiOutput(ctx, r)
	}
	return evaluateSingleOutput(ctx, r)
}

func evaluateSingleOutput(ctx *EvaluationContext, r *recipe.Recipe) (*stage1.Recipe, error) {
	fork := ctx.Fork()

	out, err := renderOutputCommon(fork, r.Source, r.Build, r.Tests, r.About)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", nameOf(r.Package.Name), err)
	}
	out.IsStaging = false

	if out.Name, err = RenderValueString(fork, r.Package.Name); err != nil {
		return nil, err
	}
	if out.Version, err = RenderValueString(fork, r.Package.Version); err != nil {
		return nil, err
	}
	if out.Requirements, err = EvaluateRequirements(fork, r.Requirements); err != nil {
		return nil, err
	}

	out.Accessed = fork.Accessed()
	out.Undefined = fork.Undefined()

	return &stage1.Recipe{IsMultiOutput: false, Outputs: []stage1.Output{out}}, nil
}

func evaluateMultiOutput(ctx *EvaluationContext, r *recipe.Recipe) (*stage1.Recipe, error) {
	outputs := make([]stage1.Output, 0, len(r.Outputs))
	for _, ob := range r.Outputs {
		fork := ctx.Fork()

		source := ob.Source
		if len(source) == 0 {
			source = r.Source
		}
		build := ob.Build
		if build == nil {
			build = r.Build
		}
		about := ob.About
		if about == nil {
			about = r.About
		}

		out, err := renderOutputCommon(fork, source, build, ob.Tests, about)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", nameOf(ob.Name()), err)
		}

		name, err := RenderValueString(fork, ob.Name())
		if err != nil {
			return nil, err
		}
		out.Name = name

		if ob.IsStaging {
			out.IsStaging = true
			reqs, err := EvaluateRequirements(fork, ob.Requirements)
			if err != nil {
				return nil, err
			}
			out.StagingRequirements = recipe.StagingRequirements{
				Build:            reqs.Build,
				Host:             reqs.Host,
				IgnoreRunExports: reqs.IgnoreRunExports,
			}
		} else {
			if out.Version, err = RenderValueString(fork, ob.Package.Version); err != nil {
				return nil, err
			}
			if out.Requirements, err = EvaluateRequirements(fork, ob.Requirements); err != nil {
				return nil, err
			}
			if ob.Inherit != nil {
				runExports := true // spec.md §3 default
				if ob.Inherit.HasRunExportsField {
					if runExports, err = RenderValueBool(fork, ob.Inherit.RunExports); err != nil {
						return nil, err
					}
				}
				out.Inherit = &stage1.Inherit{From: ob.Inherit.From, RunExports: runExports}
			}
		}

		out.Accessed = fork.Accessed()
		out.Undefined = fork.Undefined()

		outputs = append(outputs, out)
	}

	return &stage1.Recipe{IsMultiOutput: true, Outputs: outputs}, nil
}

// renderOutputCommon renders the fields shared by every output shape:
// source, build, tests, about.
func renderOutputCommon(ctx *EvaluationContext, source recipe.ConditionalList[recipe.SourceEntry], build *recipe.BuildBlock, tests recipe.ConditionalList[recipe.TestEntry], about *recipe.AboutBlock) (stage1.Output, error) {
	var out stage1.Output
	var err error

	if out.Sources, err = EvaluateSources(ctx, source); err != nil {
		return out, err
	}

	if build != nil {
		if out.BuildNumber, err = RenderValueInt(ctx, build.Number); err != nil {
			return out, err
		}
		if out.BuildStringTemplate, err = RenderValueString(ctx, build.String); err != nil {
			return out, err
		}
		if out.NoArch, err = RenderValueString(ctx, build.NoArch); err != nil {
			return out, err
		}
		if out.Script, err = EvaluateStringList(ctx, build.Script); err != nil {
			return out, err
		}
		out.AlwaysInclude = append([]string(nil), build.AlwaysInclude...)
		if len(build.Env) > 0 {
			out.Env = make(map[string]string, len(build.Env))
			for k, v := range build.Env {
				rendered, err := RenderValueString(ctx, v)
				if err != nil {
					return out, err
				}
				out.Env[k] = rendered
			}
		}
	}

	items, err := tests.Flatten(truthyFn(ctx))
	if err != nil {
		return out, err
	}
	for _, te := range items {
		script, err := EvaluateStringList(ctx, te.Script)
		if err != nil {
			return out, err
		}
		out.Tests = append(out.Tests, stage1.Test{Script: script})
	}

	if about != nil {
		rendered, err := renderAbout(ctx, about)
		if err != nil {
			return out, err
		}
		out.About = rendered
	}

	return out, nil
}

func renderAbout(ctx *EvaluationContext, a *recipe.AboutBlock) (*recipe.AboutBlock, error) {
	home, err := RenderValueString(ctx, a.Home)
	if err != nil {
		return nil, err
	}
	license, err := RenderValueString(ctx, a.License)
	if err != nil {
		return nil, err
	}
	summary, err := RenderValueString(ctx, a.Summary)
	if err != nil {
		return nil, err
	}
	description, err := RenderValueString(ctx, a.Description)
	if err != nil {
		return nil, err
	}
	return &recipe.AboutBlock{
		Home:        recipe.Static(home),
		License:     recipe.Static(license),
		Summary:     recipe.Static(summary),
		Description: recipe.Static(description),
	}, nil
}

func nameOf(v recipe.Value[string]) string {
	if v.IsTemplate {
		return v.Template
	}
	return v.Concrete
}
