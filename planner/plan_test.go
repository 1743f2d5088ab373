package planner

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
	"github.com/prefix-dev/rattler-build-go/stage1"
)

func TestPlanOrdersExactPinBeforeDependent(t *testing.T) {
	r := &stage1.Recipe{
		IsMultiOutput: true,
		Outputs: []stage1.Output{
			{
				Name:    "app",
				Version: "1.0",
				Requirements: recipe.Requirements{
					Run: []recipe.Dependency{
						recipe.PinSubpackageDependency("libfoo", true, nil),
					},
				},
			},
			{
				Name:    "libfoo",
				Version: "2.0",
			},
		},
	}

	planned, err := Plan(r, recipe.VariantSubset{}, "linux-64")
	assert.NilError(t, err)
	assert.Equal(t, len(planned), 2)

	byName := map[string]stage1.Output{}
	for _, o := range planned {
		byName[o.Name] = o
	}

	assert.Assert(t, byName["libfoo"].BuildString != "")
	assert.Assert(t, byName["app"].BuildString != "")

	run := byName["app"].Requirements.Run
	assert.Equal(t, len(run), 1)
	assert.Equal(t, run[0].Kind, recipe.DepMatchSpec)
	assert.Assert(t, run[0].MatchSpec != "", "exact pin must be substituted into a concrete MatchSpec")
}

func TestPlanDetectsCyclicExactPin(t *testing.T) {
	r := &stage1.Recipe{
		IsMultiOutput: true,
		Outputs: []stage1.Output{
			{
				Name: "a",
				Requirements: recipe.Requirements{
					Run: []recipe.Dependency{recipe.PinSubpackageDependency("b", true, nil)},
				},
			},
			{
				Name: "b",
				Requirements: recipe.Requirements{
					Run: []recipe.Dependency{recipe.PinSubpackageDependency("a", true, nil)},
				},
			},
		},
	}

	_, err := Plan(r, recipe.VariantSubset{}, "linux-64")
	assert.ErrorContains(t, err, "cyclic")
}

func TestPlanSingleOutputHash(t *testing.T) {
	r := &stage1.Recipe{
		IsMultiOutput: false,
		Outputs: []stage1.Output{
			{
				Name:        "mypkg",
				Version:     "1.0",
				BuildNumber: 0,
				Accessed:    []string{"python"},
			},
		},
	}

	combo := recipe.VariantSubset{
		recipe.Normalize("python"): recipe.StringVariable("3.10"),
	}

	out, err := PlanSingle(r, combo, "linux-64")
	assert.NilError(t, err)
	assert.Equal(t, len(out.Hash), 7)
	assert.Assert(t, out.BuildString != "")
}

func TestPlanDeterministicAcrossRuns(t *testing.T) {
	build := func() *stage1.Recipe {
		return &stage1.Recipe{
			IsMultiOutput: true,
			Outputs: []stage1.Output{
				{Name: "a", Accessed: []string{"python"}},
				{Name: "b", Requirements: recipe.Requirements{
					Run: []recipe.Dependency{recipe.PinSubpackageDependency("a", true, nil)},
				}},
			},
		}
	}
	combo := recipe.VariantSubset{recipe.Normalize("python"): recipe.StringVariable("3.10")}

	p1, err := Plan(build(), combo, "linux-64")
	assert.NilError(t, err)
	p2, err := Plan(build(), combo, "linux-64")
	assert.NilError(t, err)

	for i := range p1 {
		assert.Equal(t, p1[i].Hash, p2[i].Hash)
		assert.Equal(t, p1[i].BuildString, p2[i].BuildString)
	}
}
