// Package stage1 defines the fully-rendered recipe tree spec.md calls
// "Stage 1": no Value templates, no conditional list elements, produced by
// the eval package from a recipe.Recipe under one EvaluationContext (spec.md
// §3 invariant "a Stage 1 recipe contains no Value templates and no
// conditional list elements"). It is a separate package from recipe so that
// recipe stays a pure, eval-independent data model, matching the layering
// Azure-dalec draws between its Stage 0 `Spec` (load.go) and the merged
// `resolved_spec.go` result.
package stage1

import "github.com/prefix-dev/rattler-build-go/recipe"

// Test is the Stage 1 form of a `tests:` entry.
type Test struct {
	Script []string
}

// Inherit is the Stage 1 form of an `inherit:` field (spec.md §4.5).
type Inherit struct {
	From       string
	RunExports bool
}

// Output is one fully-rendered build job: a staging output (no archive) or
// a package output, still in source recipe order — the Output Planner
// (package planner) is what topologically sorts and hashes these.
type Output struct {
	IsStaging bool
	Name      string
	Version   string // empty for staging outputs

	BuildNumber         int
	BuildStringTemplate string
	NoArch              string // "python" | "generic" | ""
	Script              []string
	AlwaysInclude       []string
	Env                 map[string]string

	Requirements        recipe.Requirements        // IsStaging == false
	StagingRequirements recipe.StagingRequirements // IsStaging == true

	Sources []recipe.SourceSpec
	Tests   []Test
	About   *recipe.AboutBlock

	Inherit *Inherit

	// Accessed/Undefined are this output's own (forked) EvaluationContext
	// bookkeeping: every variable name its templates actually read, and
	// every name read but unbound (spec.md §4.2, §4.3 step "variant map...
	// contains only keys actually accessed").
	Accessed  []string
	Undefined []string

	// Populated by package planner once hash/build-string computation runs
	// (spec.md §4.4); zero values until then.
	Hash             string
	Prefix           string
	BuildString      string
	EffectiveVariant recipe.VariantSubset
}

// FreeSpecNames returns the bare package names referenced as free specs
// (spec.md GLOSSARY) across this output's build/host/run requirements —
// candidate variant keys per spec.md §4.3 step 1b.
func (o Output) FreeSpecNames() []string {
	var names []string
	collect := func(deps []recipe.Dependency) {
		for _, d := range deps {
			if name, ok := d.FreeSpecName(); ok {
				names = append(names, name)
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
	return names
}

// Recipe is the Stage 1 tree root for a single variant combination.
type Recipe struct {
	IsMultiOutput bool
	Outputs       []Output
}

// SingleOutput returns the lone output of a single-output recipe; callers
// must check IsMultiOutput first.
func (r *Recipe) SingleOutput() *Output {
	if r.IsMultiOutput || len(r.Outputs) == 0 {
		return nil
	}
	return &r.Outputs[0]
}
