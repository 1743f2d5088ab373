package pipeline

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"
)

const singleOutputRecipe = `
package:
  name: mypkg
  version: "1.0"
requirements:
  host:
    - python
build:
  number: 0
`

const variantConfig = `
python:
  - "3.9"
  - "3.10"
`

func TestRunExpandsAndPlansEachVariant(t *testing.T) {
	opts := Options{
		Platforms: Platforms{Target: "linux-64", Build: "linux-64", Host: "linux-64"},
	}

	planned, err := Run(context.Background(), []byte(singleOutputRecipe), []byte(variantConfig), "recipe.yaml", "variants.yaml", opts)
	assert.NilError(t, err)
	assert.Equal(t, len(planned), 2)

	for _, pv := range planned {
		assert.Equal(t, len(pv.Outputs), 1)
		assert.Equal(t, pv.Outputs[0].Name, "mypkg")
		assert.Assert(t, pv.Outputs[0].BuildString != "")
		assert.Assert(t, pv.Outputs[0].Hash != "")
	}

	if planned[0].Outputs[0].BuildString == planned[1].Outputs[0].BuildString {
		t.Fatalf("expected distinct build strings across python variants, got %q twice", planned[0].Outputs[0].BuildString)
	}
}

func TestRunWithNoVariantConfigUsesSingleImplicitVariant(t *testing.T) {
	opts := Options{
		Platforms: Platforms{Target: "linux-64", Build: "linux-64", Host: "linux-64"},
	}

	planned, err := Run(context.Background(), []byte(singleOutputRecipe), nil, "recipe.yaml", "", opts)
	assert.NilError(t, err)
	assert.Equal(t, len(planned), 1)
	assert.Equal(t, planned[0].Outputs[0].Name, "mypkg")
}
