package eval

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

func newTestContext(vars map[string]string, env map[string]string) *EvaluationContext {
	var ordered []recipe.NamedVariable
	for k, v := range vars {
		ordered = append(ordered, recipe.NamedVariable{Key: recipe.Normalize(k), Value: recipe.StringVariable(v)})
	}
	return NewEvaluationContext(ordered, "linux-64", "linux-64", "linux-64", nil, nil, env)
}

func TestMatchSpecVersionOrdering(t *testing.T) {
	cases := []struct {
		spec, pattern string
		want          bool
	}{
		// The conda case the string-lexical bug got backwards: 3.10 > 3.9.
		{"3.10", ">=3.9", true},
		{"3.9", ">=3.10", false},
		{"3.10", "<3.9", false},
		{"3.9", "<3.10", true},
		{"3.10", "==3.10", true},
		{"3.10", "!=3.9", true},
		{"3.10", "!=3.10", false},
		{"1.2.3", ">=1.2.10", false},
		{"1.2.10", ">=1.2.3", true},
		// non-numeric segments fall back to a string compare.
		{"1.0.post1", ">=1.0.post0", true},
		// exact match with no comparator prefix.
		{"numpy", "numpy", true},
		{"numpy", "scipy", false},
	}
	for _, c := range cases {
		got := matchSpec(c.spec, c.pattern)
		assert.Equal(t, got, c.want, "matchSpec(%q, %q)", c.spec, c.pattern)
	}
}

func TestCompareVersionSegmentsMissingSegmentIsZero(t *testing.T) {
	assert.Equal(t, compareVersionSegments("1.2", "1.2.0"), 0)
	assert.Equal(t, compareVersionSegments("1.2.1", "1.2"), 1)
	assert.Equal(t, compareVersionSegments("1.2", "1.2.1"), -1)
}

func TestDispatchBuiltinCompiler(t *testing.T) {
	ctx := newTestContext(map[string]string{
		"c_compiler":         "gcc",
		"c_compiler_version": "12",
	}, nil)

	r, err := dispatchBuiltin(ctx, "compiler", []Result{scalarResult(recipe.StringVariable("c"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "gcc 12")
}

func TestDispatchBuiltinCompilerDefaultsToStub(t *testing.T) {
	ctx := newTestContext(nil, nil)
	r, err := dispatchBuiltin(ctx, "compiler", []Result{scalarResult(recipe.StringVariable("rust"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "rust_compiler_stub")
}

func TestDispatchBuiltinStdlib(t *testing.T) {
	ctx := newTestContext(map[string]string{"c_stdlib": "sysroot"}, nil)
	r, err := dispatchBuiltin(ctx, "stdlib", []Result{scalarResult(recipe.StringVariable("c"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "sysroot")
}

func TestDispatchBuiltinCDT(t *testing.T) {
	ctx := newTestContext(nil, nil)
	r, err := dispatchBuiltin(ctx, "cdt", []Result{scalarResult(recipe.StringVariable("libx11"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "libx11-cos7-x86_64")
}

func TestDispatchBuiltinPinSubpackage(t *testing.T) {
	ctx := newTestContext(nil, nil)
	r, err := dispatchBuiltin(ctx, "pin_subpackage",
		[]Result{scalarResult(recipe.StringVariable("mypkg"))},
		map[string]Result{"exact": scalarResult(recipe.BoolVariable(true))})
	assert.NilError(t, err)
	assert.Equal(t, r.Kind, ResultDependency)
	assert.Equal(t, r.Dep.Kind, recipe.DepPinSubpackage)
	assert.Equal(t, r.Dep.Name, "mypkg")
	assert.Assert(t, r.Dep.Exact)
}

func TestDispatchBuiltinPinCompatible(t *testing.T) {
	ctx := newTestContext(nil, nil)
	r, err := dispatchBuiltin(ctx, "pin_compatible",
		[]Result{scalarResult(recipe.StringVariable("mypkg"))},
		map[string]Result{
			"lower_bound": scalarResult(recipe.StringVariable("x.x.x.x.x.x")),
			"upper_bound": scalarResult(recipe.StringVariable("x")),
		})
	assert.NilError(t, err)
	assert.Equal(t, r.Kind, ResultDependency)
	assert.Equal(t, r.Dep.Kind, recipe.DepPinCompatible)
	assert.Equal(t, r.Dep.LowerBound, "x.x.x.x.x.x")
	assert.Equal(t, r.Dep.UpperBound, "x")
}

func TestDispatchBuiltinUnknown(t *testing.T) {
	ctx := newTestContext(nil, nil)
	_, err := dispatchBuiltin(ctx, "nope", nil, nil)
	assert.ErrorContains(t, err, "unknown function")
}

func TestDispatchMethodEnvGet(t *testing.T) {
	ctx := newTestContext(nil, map[string]string{"HOME": "/home/build"})

	r, err := dispatchMethod(ctx, "env", "get", []Result{scalarResult(recipe.StringVariable("HOME"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "/home/build")

	r, err = dispatchMethod(ctx, "env", "get",
		[]Result{
			scalarResult(recipe.StringVariable("MISSING")),
			scalarResult(recipe.StringVariable("fallback")),
		}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "fallback")
}

func TestDispatchMethodPath(t *testing.T) {
	ctx := newTestContext(nil, nil)

	r, err := dispatchMethod(ctx, "path", "join",
		[]Result{
			scalarResult(recipe.StringVariable("usr")),
			scalarResult(recipe.StringVariable("lib")),
		}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "usr/lib")

	r, err = dispatchMethod(ctx, "path", "basename", []Result{scalarResult(recipe.StringVariable("/usr/lib/libfoo.so"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "libfoo.so")

	r, err = dispatchMethod(ctx, "path", "dirname", []Result{scalarResult(recipe.StringVariable("/usr/lib/libfoo.so"))}, nil)
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "/usr/lib")
}

func TestDispatchMethodUnknown(t *testing.T) {
	ctx := newTestContext(nil, nil)
	_, err := dispatchMethod(ctx, "path", "nope", nil, nil)
	assert.ErrorContains(t, err, "unknown method")
}
