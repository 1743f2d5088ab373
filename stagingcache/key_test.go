package stagingcache

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

func TestSelectVariantIntersectsFreeSpecs(t *testing.T) {
	def := recipe.StagingCache{
		Name: "common_build",
		Requirements: recipe.StagingRequirements{
			Build: []recipe.Dependency{
				recipe.MatchSpecDependency("cmake", nil),
				recipe.MatchSpecDependency("python", nil),
			},
			Host: []recipe.Dependency{
				recipe.MatchSpecDependency("libfoo", nil),
			},
		},
	}
	outputVariant := recipe.VariantSubset{
		recipe.Normalize("python"):        recipe.StringVariable("3.10"),
		recipe.Normalize("libfoo"):        recipe.StringVariable("1.2"),
		recipe.Normalize("host_platform"): recipe.StringVariable("linux-64"),
		recipe.Normalize("unrelated"):     recipe.StringVariable("x"),
	}

	sel := SelectVariant(def, outputVariant)

	_, hasPython := sel[recipe.Normalize("python")]
	_, hasLibfoo := sel[recipe.Normalize("libfoo")]
	_, hasHostPlatform := sel[recipe.Normalize("host_platform")]
	_, hasUnrelated := sel[recipe.Normalize("unrelated")]
	_, hasCmake := sel[recipe.Normalize("cmake")]

	assert.Assert(t, hasPython)
	assert.Assert(t, hasLibfoo)
	assert.Assert(t, hasHostPlatform, "host_platform is always carried")
	assert.Assert(t, !hasUnrelated)
	assert.Assert(t, !hasCmake, "cmake has no matching entry in outputVariant")
}

func TestKeyDeterministicAndVariantSensitive(t *testing.T) {
	def := recipe.StagingCache{
		Name: "common_build",
		Requirements: recipe.StagingRequirements{
			Build: []recipe.Dependency{recipe.MatchSpecDependency("python", nil)},
		},
	}
	selA := recipe.VariantSubset{recipe.Normalize("python"): recipe.StringVariable("3.10")}
	selB := recipe.VariantSubset{recipe.Normalize("python"): recipe.StringVariable("3.11")}

	k1, err := Key(def, selA)
	assert.NilError(t, err)
	k2, err := Key(def, selA)
	assert.NilError(t, err)
	assert.Equal(t, k1, k2, "key must be deterministic for identical inputs")

	k3, err := Key(def, selB)
	assert.NilError(t, err)
	assert.Assert(t, k1 != k3, "different selected variants must hash differently")
}
