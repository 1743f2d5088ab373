package variantexpand

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/eval"
	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/variantconfig"
)

const singleOutputRecipe = `
package:
  name: mypkg
  version: "1.0"
requirements:
  host:
    - python
  run:
    - ${{ pin_compatible('python') }}
build:
  number: 0
`

func TestCollectUsedVars(t *testing.T) {
	r, err := recipe.ParseRecipe([]byte(singleOutputRecipe), "recipe.yaml")
	assert.NilError(t, err)

	used := CollectUsedVars(r)
	seen := map[string]bool{}
	for _, u := range used {
		seen[u] = true
	}
	assert.Assert(t, seen["python"], "expected python as a free-spec candidate key, got %v", used)
	assert.Assert(t, seen["target_platform"])
}

func TestEnumerateCrossProduct(t *testing.T) {
	cfgData := []byte(`
python:
  - "3.9"
  - "3.10"
zlib:
  - "1.2"
  - "1.3"
`)
	cfg, err := variantconfig.ParseConfig(cfgData, "variants.yaml")
	assert.NilError(t, err)
	platformCtx := eval.NewEvaluationContext(nil, "linux-64", "linux-64", "linux-64", nil, nil, nil)
	resolved, err := variantconfig.Resolve(cfg, platformCtx)
	assert.NilError(t, err)

	combos, err := Enumerate([]string{"python", "zlib"}, resolved)
	assert.NilError(t, err)
	assert.Equal(t, len(combos), 4)
}

func TestEnumerateZipGroup(t *testing.T) {
	cfgData := []byte(`
python:
  - "3.9"
  - "3.10"
numpy:
  - "1.20"
  - "1.21"
zip_keys:
  - [python, numpy]
`)
	cfg, err := variantconfig.ParseConfig(cfgData, "variants.yaml")
	assert.NilError(t, err)
	platformCtx := eval.NewEvaluationContext(nil, "linux-64", "linux-64", "linux-64", nil, nil, nil)
	resolved, err := variantconfig.Resolve(cfg, platformCtx)
	assert.NilError(t, err)

	combos, err := Enumerate([]string{"python", "numpy"}, resolved)
	assert.NilError(t, err)
	assert.Equal(t, len(combos), 2, "zipped keys iterate in lock-step, not cross-product")
}

func TestEnumerateNoUsedVarsEmitsOneCombination(t *testing.T) {
	cfgData := []byte(`
python:
  - "3.9"
  - "3.10"
`)
	cfg, err := variantconfig.ParseConfig(cfgData, "variants.yaml")
	assert.NilError(t, err)
	platformCtx := eval.NewEvaluationContext(nil, "linux-64", "linux-64", "linux-64", nil, nil, nil)
	resolved, err := variantconfig.Resolve(cfg, platformCtx)
	assert.NilError(t, err)

	combos, err := Enumerate(nil, resolved)
	assert.NilError(t, err)
	assert.Equal(t, len(combos), 1)
	assert.Equal(t, len(combos[0].Vars), 0)
}

func TestExpandSingleOutput(t *testing.T) {
	r, err := recipe.ParseRecipe([]byte(singleOutputRecipe), "recipe.yaml")
	assert.NilError(t, err)

	cfgData := []byte(`
python:
  - "3.9"
  - "3.10"
`)
	cfg, err := variantconfig.ParseConfig(cfgData, "variants.yaml")
	assert.NilError(t, err)
	platformCtx := eval.NewEvaluationContext(nil, "linux-64", "linux-64", "linux-64", nil, nil, nil)
	resolved, err := variantconfig.Resolve(cfg, platformCtx)
	assert.NilError(t, err)

	rendered, err := Expand(r, resolved, Platforms{Target: "linux-64", Build: "linux-64", Host: "linux-64"}, nil, nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(rendered), 2, "one RenderedVariant per python value")

	for _, rv := range rendered {
		_, ok := rv.Variant[recipe.Normalize("python")]
		assert.Assert(t, ok, "python should be recorded since it's a free-spec dependency")
		out := rv.Recipe.SingleOutput()
		assert.Assert(t, out != nil)
		assert.Equal(t, out.Name, "mypkg")
	}
}
