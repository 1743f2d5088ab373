package eval

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

func TestTruthyComparisonOperators(t *testing.T) {
	ctx := newTestContext(nil, nil)

	cases := []struct {
		expr string
		want bool
	}{
		{`"3.10" >= "3.9"`, true},
		{`"3.9" >= "3.10"`, false},
		{`"3.9" < "3.10"`, true},
		{`"3.10" < "3.9"`, false},
		{`"3.10" == "3.10"`, true},
		{`"3.10" != "3.9"`, true},
		{`5 > 3`, true},
		{`3 >= 3`, true},
		{`2 < 1`, false},
		{`"python" == "python"`, true},
		{`"python" in "python 3.10"`, true},
		{`"ruby" in "python 3.10"`, false},
		{`not false`, true},
		{`not true`, false},
		{`true and false`, false},
		{`true or false`, true},
		{`true and (1 < 2)`, true},
		{`"a" ~ "b" == "ab"`, true},
	}
	for _, c := range cases {
		got, err := Truthy(ctx, c.expr)
		assert.NilError(t, err, c.expr)
		assert.Equal(t, got, c.want, c.expr)
	}
}

func TestCompareNumericBuildNumbersUseFloatParsing(t *testing.T) {
	ctx := newTestContext(nil, nil)
	// No dot in either operand: these are plain build numbers, not versions,
	// so compareNumeric must not route them through the segment comparator.
	got, err := Truthy(ctx, `10 > 9`)
	assert.NilError(t, err)
	assert.Assert(t, got)

	got, err = Truthy(ctx, `2 > 10`)
	assert.NilError(t, err)
	assert.Assert(t, !got)
}

func TestEvalIdentLookup(t *testing.T) {
	ctx := newTestContext(map[string]string{"python": "3.10"}, nil)
	r, err := RenderTemplate(ctx, "${{ python }}")
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "3.10")
	assert.Assert(t, r.Truthy())
}

func TestEvalUndefinedIdentIsFalsyAndRecorded(t *testing.T) {
	ctx := newTestContext(nil, nil)
	r, err := RenderTemplate(ctx, "${{ some_unset_var }}")
	assert.NilError(t, err)
	assert.Equal(t, r.String(), "")
	assert.Assert(t, !r.Truthy())
	assert.Assert(t, contains(ctx.Undefined(), "some_unset_var"))
}

func TestRenderTemplateReturnsTypedDependency(t *testing.T) {
	ctx := newTestContext(nil, nil)
	r, err := RenderTemplate(ctx, "${{ pin_subpackage('mypkg', exact=True) }}")
	assert.NilError(t, err)
	assert.Equal(t, r.Kind, ResultDependency)
	assert.Equal(t, r.Dep.Name, "mypkg")
	assert.Assert(t, r.Dep.Exact)
}

func TestRenderTemplateMixedLiteralAndExpressionStaysString(t *testing.T) {
	ctx := newTestContext(map[string]string{"name": "mypkg"}, nil)
	s, err := RenderString(ctx, "prefix-${{ name }}-suffix")
	assert.NilError(t, err)
	assert.Equal(t, s, "prefix-mypkg-suffix")
}

func TestFreeIdentifiersExcludesCalleesKwargsAndMemberNames(t *testing.T) {
	ids, err := FreeIdentifiers(`pin_subpackage(name, exact=flag) ~ env.get(other)`)
	assert.NilError(t, err)
	assert.DeepEqual(t, ids, []string{"name", "flag", "other"})
}

func TestCompareNumericNonNumericOperandErrors(t *testing.T) {
	_, err := compareNumeric(scalarResult(recipe.StringVariable("abc")), scalarResult(recipe.StringVariable("def")), "<")
	assert.ErrorContains(t, err, "requires numeric operands")
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
