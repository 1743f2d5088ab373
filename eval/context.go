// Package eval implements the Template / Conditional Evaluator (spec.md
// §4.2): a pure, I/O-free transform from a Stage 0 recipe tree to a fully
// rendered Stage 1 tree. It is grounded on the "interior synchronised
// containers" discipline Azure-dalec's dependency graph uses (graph.go's
// Graph.m *sync.Mutex guarding concurrent mutation of shared state). The
// `${{ }}` expression grammar itself has no counterpart in Azure-dalec, so
// its parser is hand-written over text/scanner rather than reusing a
// borrowed shell-interpolation engine.
package eval

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// EvaluationContext is the mapping of variable names to Variable values plus
// the small set of built-in functions spec.md §4.2 requires, together with
// the bookkeeping the variant expander needs afterwards: every name actually
// read during evaluation, and every name read but undefined (spec.md §4.2:
// "Access of an undefined variable records the name in an 'undefined' set
// and yields an empty string; this is an observable side channel used for
// variant-key discovery").
type EvaluationContext struct {
	mu sync.Mutex

	vars      *orderedmap.OrderedMap[string, recipe.Variable]
	accessed  sets.Set[string]
	undefined sets.Set[string]

	// targetPlatform/buildPlatform/hostPlatform back the platform
	// predicates and builtins (spec.md §4.2, §6 "Environment variables
	// consumed by evaluation").
	targetPlatform string
	buildPlatform  string
	hostPlatform   string
	channelTargets []string
	channelSources []string

	env map[string]string // os environment snapshot, consumed by env.get(...)

	trace []traceEntry // ordered (key, renderedValue) pairs from EvaluateContext, diagnostics only
}

// traceEntry is one entry of EvaluationContext.Trace() (SPEC_FULL.md §4,
// "Recipe context evaluation diagnostics").
type traceEntry struct {
	Key   string
	Value string
}

// NewEvaluationContext builds a context seeded with the given variant
// (already-normalised NormalizedKey->Variable pairs, in caller-supplied
// order) and the platform triple spec.md §6 names as a closed set of
// environment inputs.
func NewEvaluationContext(orderedVars []recipe.NamedVariable, targetPlatform, buildPlatform, hostPlatform string, channelTargets, channelSources []string, env map[string]string) *EvaluationContext {
	m := orderedmap.New[string, recipe.Variable]()
	for _, nv := range orderedVars {
		m.Set(string(nv.Key), nv.Value)
	}
	return &EvaluationContext{
		vars:           m,
		accessed:       sets.New[string](),
		undefined:      sets.New[string](),
		targetPlatform: targetPlatform,
		buildPlatform:  buildPlatform,
		hostPlatform:   hostPlatform,
		channelTargets: channelTargets,
		channelSources: channelSources,
		env:            env,
	}
}

// Set assigns a context-block variable (spec.md §4.2: "context entries
// evaluate in insertion order; each entry sees the already-evaluated
// earlier entries"), used while walking a recipe's `context:` block.
func (c *EvaluationContext) Set(name string, v recipe.Variable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(recipe.Normalize(name))
	c.vars.Set(key, v)
	c.trace = append(c.trace, traceEntry{Key: key, Value: v.String()})
}

// Trace returns the ordered (key, renderedValue) pairs recorded by Set,
// i.e. every `context:` entry evaluated so far, for diagnostics
// (SPEC_FULL.md §4 "Recipe context evaluation diagnostics").
func (c *EvaluationContext) Trace() []struct{ Key, Value string } {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]struct{ Key, Value string }, len(c.trace))
	for i, e := range c.trace {
		out[i] = struct{ Key, Value string }{e.Key, e.Value}
	}
	return out
}

// Fork returns a new EvaluationContext sharing this context's variables,
// platform triple, and environment, but with its own empty accessed/
// undefined sets. The variant expander and output planner use one fork per
// output so that spec.md §4.3's "variant map recorded with each rendered
// recipe contains only keys actually accessed" can be computed per output
// rather than contaminated by sibling outputs evaluated under the same
// variant combination.
func (c *EvaluationContext) Fork() *EvaluationContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &EvaluationContext{
		vars:           c.vars,
		accessed:       sets.New[string](),
		undefined:      sets.New[string](),
		targetPlatform: c.targetPlatform,
		buildPlatform:  c.buildPlatform,
		hostPlatform:   c.hostPlatform,
		channelTargets: c.channelTargets,
		channelSources: c.channelSources,
		env:            c.env,
	}
}

// Lookup resolves name, recording it as accessed; an undefined name is
// recorded in the undefined set and returns a falsy empty-string Variable,
// never an error (spec.md §4.2).
func (c *EvaluationContext) Lookup(name string) recipe.Variable {
	key := string(recipe.Normalize(name))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessed.Insert(key)

	if v, ok := c.vars.Get(key); ok {
		return v
	}

	switch key {
	case "target_platform":
		return recipe.StringVariable(c.targetPlatform)
	case "build_platform":
		return recipe.StringVariable(c.buildPlatform)
	case "host_platform":
		return recipe.StringVariable(c.hostPlatform)
	case "unix":
		return recipe.BoolVariable(isUnixPlatform(c.targetPlatform))
	case "linux":
		return recipe.BoolVariable(platformOS(c.targetPlatform) == "linux")
	case "osx":
		return recipe.BoolVariable(platformOS(c.targetPlatform) == "osx")
	case "win":
		return recipe.BoolVariable(platformOS(c.targetPlatform) == "win")
	}

	c.undefined.Insert(key)
	return recipe.StringVariable("")
}

// EnvGet implements the `env.get(name)` builtin: it never records the name
// in accessed/undefined, since environment reads aren't variant-relevant
// per spec.md §4.3 (only the recipe's own `context`/dependency identifiers
// feed variant-key discovery).
func (c *EvaluationContext) EnvGet(name string) (string, bool) {
	v, ok := c.env[name]
	return v, ok
}

// Accessed returns every variable name read so far, sorted is left to the
// caller; order is unspecified (backed by a set).
func (c *EvaluationContext) Accessed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessed.UnsortedList()
}

// Undefined returns every variable name that was looked up but had no
// binding, used by the variant expander to discover free identifiers
// (spec.md §4.3 step 1a).
func (c *EvaluationContext) Undefined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undefined.UnsortedList()
}

// TargetPlatform returns the context's configured target_platform, used by
// the variant expander to record the always-include key (spec.md §4.3
// step 5 overrides this to "noarch" when a rendered recipe is noarch).
func (c *EvaluationContext) TargetPlatform() string { return c.targetPlatform }

// BuildPlatform returns the context's configured build_platform.
func (c *EvaluationContext) BuildPlatform() string { return c.buildPlatform }

// HostPlatform returns the context's configured host_platform.
func (c *EvaluationContext) HostPlatform() string { return c.hostPlatform }

func isUnixPlatform(targetPlatform string) bool {
	os := platformOS(targetPlatform)
	return os == "linux" || os == "osx"
}

// platformOS extracts the OS component of a conda `target_platform` string
// like "linux-64", "osx-arm64", "win-64", "noarch".
func platformOS(targetPlatform string) string {
	for i := 0; i < len(targetPlatform); i++ {
		if targetPlatform[i] == '-' {
			return targetPlatform[:i]
		}
	}
	return targetPlatform
}
