package eval

// Builtin function dispatch for the closed set spec.md §4.2 names:
// compiler, stdlib, pin_subpackage, pin_compatible, cdt, match, plus the
// namespaced methods env.get and path.join/basename/dirname. The platform
// predicates (unix, linux, osx, win) are not calls; they are folded into
// Lookup (context.go) since they read as plain identifiers.

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

func evalCall(ctx *EvaluationContext, e *callNode) (Result, error) {
	args, err := evalArgs(ctx, e.args)
	if err != nil {
		return Result{}, err
	}
	kwargs, err := evalKwargs(ctx, e.kwargs)
	if err != nil {
		return Result{}, err
	}

	switch callee := e.callee.(type) {
	case *identNode:
		return dispatchBuiltin(ctx, callee.name, args, kwargs)
	case *memberNode:
		target, ok := callee.target.(*identNode)
		if !ok {
			return Result{}, fmt.Errorf("unsupported method call target")
		}
		return dispatchMethod(ctx, target.name, callee.name, args, kwargs)
	default:
		return Result{}, fmt.Errorf("expression is not callable")
	}
}

func evalArgs(ctx *EvaluationContext, nodes []node) ([]Result, error) {
	out := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		r, err := Eval(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func evalKwargs(ctx *EvaluationContext, nodes map[string]node) (map[string]Result, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make(map[string]Result, len(nodes))
	for k, n := range nodes {
		r, err := Eval(ctx, n)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

func arg(args []Result, i int) string {
	if i < len(args) {
		return args[i].String()
	}
	return ""
}

func kwargBool(kwargs map[string]Result, name string, def bool) bool {
	if r, ok := kwargs[name]; ok {
		return r.Truthy()
	}
	return def
}

func kwargString(kwargs map[string]Result, name, def string) string {
	if r, ok := kwargs[name]; ok {
		return r.String()
	}
	return def
}

func dispatchBuiltin(ctx *EvaluationContext, name string, args []Result, kwargs map[string]Result) (Result, error) {
	switch name {
	case "compiler":
		// compiler(lang) -> "{lang}_compiler_stub {lang_compiler_version}"
		// variant-parameterised dependency string (spec.md §4.2); the
		// variant key this reads is "{lang}_compiler"/"{lang}_compiler_version".
		lang := arg(args, 0)
		compilerVar := ctx.Lookup(lang + "_compiler")
		pkg := compilerVar.String()
		if pkg == "" {
			pkg = lang + "_compiler_stub"
		}
		version := ctx.Lookup(lang + "_compiler_version").String()
		if version != "" {
			pkg = pkg + " " + version
		}
		return scalarResult(recipe.StringVariable(pkg)), nil

	case "stdlib":
		name := arg(args, 0)
		pkg := ctx.Lookup(name + "_stdlib").String()
		if pkg == "" {
			pkg = name + "_stdlib"
		}
		return scalarResult(recipe.StringVariable(pkg)), nil

	case "cdt":
		name := arg(args, 0)
		return scalarResult(recipe.StringVariable(name + "-cos7-x86_64")), nil

	case "match":
		spec := arg(args, 0)
		pattern := arg(args, 1)
		return scalarResult(recipe.BoolVariable(matchSpec(spec, pattern))), nil

	case "pin_subpackage":
		pkgName := arg(args, 0)
		exact := kwargBool(kwargs, "exact", false)
		return Result{Kind: ResultDependency, Dep: recipe.PinSubpackageDependency(pkgName, exact, nil)}, nil

	case "pin_compatible":
		pkgName := arg(args, 0)
		lower := kwargString(kwargs, "lower_bound", "")
		upper := kwargString(kwargs, "upper_bound", "")
		return Result{Kind: ResultDependency, Dep: recipe.PinCompatibleDependency(pkgName, lower, upper, nil)}, nil

	default:
		return Result{}, fmt.Errorf("unknown function %q", name)
	}
}

func dispatchMethod(ctx *EvaluationContext, namespace, method string, args []Result, kwargs map[string]Result) (Result, error) {
	switch {
	case namespace == "env" && method == "get":
		name := arg(args, 0)
		def := ""
		if len(args) > 1 {
			def = arg(args, 1)
		}
		if v, ok := ctx.EnvGet(name); ok {
			return scalarResult(recipe.StringVariable(v)), nil
		}
		return scalarResult(recipe.StringVariable(def)), nil

	case namespace == "path" && method == "join":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		return scalarResult(recipe.StringVariable(path.Join(parts...))), nil

	case namespace == "path" && method == "basename":
		return scalarResult(recipe.StringVariable(path.Base(arg(args, 0)))), nil

	case namespace == "path" && method == "dirname":
		return scalarResult(recipe.StringVariable(path.Dir(arg(args, 0)))), nil

	default:
		return Result{}, fmt.Errorf("unknown method %s.%s", namespace, method)
	}
}

// matchSpec implements the narrow subset of conda MatchSpec version
// matching spec.md §4.2's `match(spec, pattern)` builtin needs: an exact
// string match, or a simple ">=","<=","==","!=","<",">" comparator prefix
// against a bare version string. This is not a full MatchSpec grammar —
// nothing in the retrieval pack implements one, and the core modules this
// project covers never need more than version-range truthiness checks.
func matchSpec(spec, pattern string) bool {
	spec = strings.TrimSpace(spec)
	pattern = strings.TrimSpace(pattern)
	if pattern == spec {
		return true
	}
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if strings.HasPrefix(pattern, op) {
			return compareVersionStrings(spec, strings.TrimSpace(strings.TrimPrefix(pattern, op)), op)
		}
	}
	return false
}

func compareVersionStrings(a, b, op string) bool {
	cmp := compareVersionSegments(a, b)
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	default:
		return compareFromCmp(cmp, op)
	}
}

// compareVersionSegments orders two dot-separated version strings the way
// conda's Version type does: each segment compares as an integer when both
// sides parse as one (so "3.10" > "3.9"), falling back to a plain string
// compare for non-numeric segments (e.g. "post1", "rc2").
func compareVersionSegments(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av == bv {
			continue
		}
		if c, ok := compareSegment(av, bv); ok {
			if c != 0 {
				return c
			}
			continue
		}
		if av < bv {
			return -1
		}
		return 1
	}
	return 0
}

// compareSegment compares two version segments as integers when both parse
// cleanly, reporting ok=false to signal the caller should fall back to a
// string compare. An empty segment (a version with fewer dot-parts than its
// counterpart) is treated as 0, matching conda's "missing segment is zero"
// convention.
func compareSegment(a, b string) (int, bool) {
	ai, aerr := strconv.Atoi(orZero(a))
	bi, berr := strconv.Atoi(orZero(b))
	if aerr != nil || berr != nil {
		return 0, false
	}
	switch {
	case ai < bi:
		return -1, true
	case ai > bi:
		return 1, true
	default:
		return 0, true
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
