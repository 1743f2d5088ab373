package eval

// Evaluate walks a Stage 0 recipe.Recipe (or one of its sub-blocks) and
// produces Stage 1 values: every Value[T] is rendered, every
// ConditionalList is flattened, per spec.md §4.2. Grounded on the shape of
// Azure-dalec's own Spec->merged-Target resolution (resolved_spec.go): a
// tree walk that copies fields across while resolving template/variant
// concerns along the way, generalized from dalec's "merge overrides" model
// to "render templates, flatten conditionals".

import (
	"fmt"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// RenderValueString renders a Value[string], returning its already-concrete
// value unchanged when it isn't a template.
func RenderValueString(ctx *EvaluationContext, v recipe.Value[string]) (string, error) {
	if !v.IsTemplate {
		return v.Concrete, nil
	}
	return RenderString(ctx, v.Template)
}

// RenderValueInt renders a Value[int].
func RenderValueInt(ctx *EvaluationContext, v recipe.Value[int]) (int, error) {
	if !v.IsTemplate {
		return v.Concrete, nil
	}
	r, err := RenderTemplate(ctx, v.Template)
	if err != nil {
		return 0, err
	}
	return int(recipe.ParseVariable(r.String(), recipe.VariableInt).Int), nil
}

// RenderValueBool renders a Value[bool].
func RenderValueBool(ctx *EvaluationContext, v recipe.Value[bool]) (bool, error) {
	if !v.IsTemplate {
		return v.Concrete, nil
	}
	r, err := RenderTemplate(ctx, v.Template)
	if err != nil {
		return false, err
	}
	return r.Truthy(), nil
}

func truthyFn(ctx *EvaluationContext) func(string) (bool, error) {
	return func(expr string) (bool, error) { return Truthy(ctx, expr) }
}

// EvaluateDependencyList flattens and renders a requirement list into
// Dependency values (spec.md §4.2, §3 Dependency).
func EvaluateDependencyList(ctx *EvaluationContext, cl recipe.ConditionalList[recipe.Value[string]]) ([]recipe.Dependency, error) {
	items, err := cl.Flatten(truthyFn(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]recipe.Dependency, 0, len(items))
	for _, v := range items {
		dep, err := renderDependency(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, nil
}

func renderDependency(ctx *EvaluationContext, v recipe.Value[string]) (recipe.Dependency, error) {
	if !v.IsTemplate {
		return recipe.MatchSpecDependency(v.Concrete, v.Span), nil
	}
	r, err := RenderTemplate(ctx, v.Template)
	if err != nil {
		return recipe.Dependency{}, err
	}
	if r.Kind == ResultDependency {
		dep := r.Dep
		dep.Span = v.Span
		return dep, nil
	}
	return recipe.MatchSpecDependency(r.String(), v.Span), nil
}

// EvaluateStringList flattens and renders a plain ConditionalList[Value[string]]
// (build scripts, test scripts, patch lists, include/exclude globs) to
// plain strings, never producing a Dependency.
func EvaluateStringList(ctx *EvaluationContext, cl recipe.ConditionalList[recipe.Value[string]]) ([]string, error) {
	items, err := cl.Flatten(truthyFn(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, v := range items {
		s, err := RenderValueString(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// EvaluateValueStringSlice renders a plain (non-conditional) slice of
// Value[string], used for source.include/exclude/patches.
func EvaluateValueStringSlice(ctx *EvaluationContext, vs []recipe.Value[string]) ([]string, error) {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		s, err := RenderValueString(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// EvaluateRunExports renders the five labelled run_exports buckets.
func EvaluateRunExports(ctx *EvaluationContext, rb recipe.RunExportsBlock) (recipe.RunExportsBuckets, error) {
	var out recipe.RunExportsBuckets
	var err error
	if out.NoArch, err = EvaluateDependencyList(ctx, rb.NoArch); err != nil {
		return out, err
	}
	if out.Strong, err = EvaluateDependencyList(ctx, rb.Strong); err != nil {
		return out, err
	}
	if out.StrongConstraints, err = EvaluateDependencyList(ctx, rb.StrongConstraints); err != nil {
		return out, err
	}
	if out.Weak, err = EvaluateDependencyList(ctx, rb.Weak); err != nil {
		return out, err
	}
	if out.WeakConstraints, err = EvaluateDependencyList(ctx, rb.WeakConstraints); err != nil {
		return out, err
	}
	return out, nil
}

// EvaluateRequirements renders a RequirementsBlock into Stage 1 Requirements.
func EvaluateRequirements(ctx *EvaluationContext, rb *recipe.RequirementsBlock) (recipe.Requirements, error) {
	var out recipe.Requirements
	if rb == nil {
		return out, nil
	}
	var err error
	if out.Build, err = EvaluateDependencyList(ctx, rb.Build); err != nil {
		return out, err
	}
	if out.Host, err = EvaluateDependencyList(ctx, rb.Host); err != nil {
		return out, err
	}
	if out.Run, err = EvaluateDependencyList(ctx, rb.Run); err != nil {
		return out, err
	}
	if out.RunConstraints, err = EvaluateDependencyList(ctx, rb.RunConstraints); err != nil {
		return out, err
	}
	if out.RunExports, err = EvaluateRunExports(ctx, rb.RunExports); err != nil {
		return out, err
	}
	ignoreNames, err := EvaluateStringList(ctx, rb.IgnoreRunExports)
	if err != nil {
		return out, err
	}
	for _, n := range ignoreNames {
		out.IgnoreRunExports = append(out.IgnoreRunExports, string(recipe.Normalize(n)))
	}
	return out, nil
}

// EvaluateSource renders one Stage 0 SourceEntry into a Stage 1 SourceSpec.
func EvaluateSource(ctx *EvaluationContext, se recipe.SourceEntry) (recipe.SourceSpec, error) {
	var out recipe.SourceSpec
	var err error

	switch se.Kind {
	case recipe.SourceURL:
		out.Kind = recipe.SpecURL
		out.URLs = make([]string, 0, len(se.URLs))
		for _, u := range se.URLs {
			s, err := RenderValueString(ctx, u)
			if err != nil {
				return out, err
			}
			out.URLs = append(out.URLs, s)
		}
		if se.Sha256 != nil {
			if out.Sha256, err = RenderValueString(ctx, *se.Sha256); err != nil {
				return out, err
			}
		}
		if se.Md5 != nil {
			if out.Md5, err = RenderValueString(ctx, *se.Md5); err != nil {
				return out, err
			}
		}
		if se.FileName != nil {
			if out.FileName, err = RenderValueString(ctx, *se.FileName); err != nil {
				return out, err
			}
		}
		if se.URLPatches != nil {
			if out.URLPatches, err = EvaluateValueStringSlice(ctx, se.URLPatches); err != nil {
				return out, err
			}
		}

	case recipe.SourceGit:
		out.Kind = recipe.SpecGit
		if out.GitURL, err = RenderValueString(ctx, se.GitURL); err != nil {
			return out, err
		}
		if se.Rev != nil {
			if out.Rev, err = RenderValueString(ctx, *se.Rev); err != nil {
				return out, err
			}
		}
		if se.Tag != nil {
			if out.Tag, err = RenderValueString(ctx, *se.Tag); err != nil {
				return out, err
			}
		}
		if se.Branch != nil {
			if out.Branch, err = RenderValueString(ctx, *se.Branch); err != nil {
				return out, err
			}
		}
		if se.Depth != nil {
			if out.Depth, err = RenderValueInt(ctx, *se.Depth); err != nil {
				return out, err
			}
		}
		if out.Lfs, err = RenderValueBool(ctx, se.Lfs); err != nil {
			return out, err
		}
		if se.ExpectedCommit != nil {
			if out.ExpectedCommit, err = RenderValueString(ctx, *se.ExpectedCommit); err != nil {
				return out, err
			}
		}

	case recipe.SourcePath:
		out.Kind = recipe.SpecPath
		if out.Path, err = RenderValueString(ctx, se.Path); err != nil {
			return out, err
		}
		if out.Include, err = EvaluateValueStringSlice(ctx, se.Include); err != nil {
			return out, err
		}
		if out.Exclude, err = EvaluateValueStringSlice(ctx, se.Exclude); err != nil {
			return out, err
		}
		if out.UseGitignore, err = RenderValueBool(ctx, se.UseGitignore); err != nil {
			return out, err
		}
		if se.PathPatches != nil {
			if out.PathPatches, err = EvaluateValueStringSlice(ctx, se.PathPatches); err != nil {
				return out, err
			}
		}

	default:
		return out, fmt.Errorf("unknown source kind %d", se.Kind)
	}

	return out, nil
}

// EvaluateSources flattens and renders a conditional source list.
func EvaluateSources(ctx *EvaluationContext, cl recipe.ConditionalList[recipe.SourceEntry]) ([]recipe.SourceSpec, error) {
	items, err := cl.Flatten(truthyFn(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]recipe.SourceSpec, 0, len(items))
	for _, se := range items {
		spec, err := EvaluateSource(ctx, se)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// EvaluateContext walks a recipe's `context:` block in insertion order,
// setting each rendered entry into ctx before rendering the next one
// (spec.md §4.2 "context entries evaluate in insertion order").
func EvaluateContext(ctx *EvaluationContext, cm *recipe.ContextMap) error {
	if cm == nil {
		return nil
	}
	for _, k := range cm.Keys {
		v, _ := cm.Get(k)
		rendered, err := RenderValueString(ctx, v)
		if err != nil {
			return fmt.Errorf("context.%s: %w", k, err)
		}
		ctx.Set(k, recipe.InferVariable(rendered))
	}
	return nil
}
