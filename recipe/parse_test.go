package recipe

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseRecipeSingleOutput(t *testing.T) {
	data := []byte(`
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
  script:
    - echo hello
`)
	r, err := ParseRecipe(data, "recipe.yaml")
	assert.NilError(t, err)
	assert.Assert(t, !r.IsMultiOutput)
	assert.Equal(t, r.Package.Name.Concrete, "mypkg")
	assert.Equal(t, r.Package.Version.Concrete, "1.0")
	assert.Equal(t, r.SchemaVersion, 1)
	assert.Assert(t, r.Requirements != nil)
	assert.Equal(t, len(r.Requirements.Host), 1)
	assert.Equal(t, len(r.Requirements.Run), 1)
	assert.Assert(t, !r.Requirements.Run[0].IsConditional)
	assert.Assert(t, r.Requirements.Run[0].Plain.IsTemplate)
}

func TestParseRecipeMultiOutput(t *testing.T) {
	data := []byte(`
recipe:
  name: myrecipe
  version: "2.0"
outputs:
  - package:
      name: liba
    requirements:
      run:
        - ${{ pin_subpackage('libb', exact=True) }}
  - package:
      name: libb
`)
	r, err := ParseRecipe(data, "recipe.yaml")
	assert.NilError(t, err)
	assert.Assert(t, r.IsMultiOutput)
	assert.Equal(t, len(r.Outputs), 2)
	assert.Equal(t, r.RecipeHeader.Name.Concrete, "myrecipe")
}

func TestParseRecipeRejectsUnknownTopLevelKey(t *testing.T) {
	data := []byte(`
package:
  name: mypkg
  version: "1.0"
bogus_key: true
`)
	_, err := ParseRecipe(data, "recipe.yaml")
	assert.ErrorContains(t, err, "bogus_key")
}

func TestParseRecipeRejectsDuplicateField(t *testing.T) {
	data := []byte(`
package:
  name: mypkg
  version: "1.0"
package:
  name: other
`)
	_, err := ParseRecipe(data, "recipe.yaml")
	assert.Assert(t, err != nil)
}

func TestParseRecipeRequiresPackageForSingleOutput(t *testing.T) {
	data := []byte(`
build:
  number: 0
`)
	_, err := ParseRecipe(data, "recipe.yaml")
	assert.ErrorContains(t, err, "package")
}

func TestParseRecipeRejectsCacheWithoutMultiOutput(t *testing.T) {
	data := []byte(`
package:
  name: mypkg
  version: "1.0"
cache:
  build:
    - somebuildtool
`)
	_, err := ParseRecipe(data, "recipe.yaml")
	assert.ErrorContains(t, err, "cache")
}
