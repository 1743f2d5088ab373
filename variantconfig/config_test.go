package variantconfig

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/eval"
	"github.com/prefix-dev/rattler-build-go/recipe"
)

func TestParseConfigModern(t *testing.T) {
	data := []byte(`
python:
  - "3.9"
  - "3.10"
zlib:
  - "1.2"
zip_keys:
  - [python, zlib]
`)
	cfg, err := ParseConfig(data, "variants.yaml")
	assert.NilError(t, err)
	assert.Equal(t, len(cfg.Keys), 2)
	assert.Equal(t, len(cfg.ZipKeys), 1)
	assert.DeepEqual(t, cfg.ZipKeys[0], []recipe.NormalizedKey{"python", "zlib"})

	items, err := cfg.Entries["python"].Flatten(func(string) (bool, error) { return true, nil })
	assert.NilError(t, err)
	assert.Equal(t, len(items), 2)
}

func TestParseConfigLegacySelectors(t *testing.T) {
	data := []byte(`
python:
  - 3.9  # [not win]
  - 3.10
`)
	cfg, err := ParseConfig(data, "conda_build_config.yaml")
	assert.NilError(t, err)
	assert.Equal(t, len(cfg.Keys), 1)
	assert.Equal(t, cfg.Keys[0], recipe.NormalizedKey("python"))
}

func TestParseConfigLegacyRejectsZipKeys(t *testing.T) {
	data := []byte(`
python:
  - 3.9  # [not win]
zip_keys:
  - [python]
`)
	_, err := ParseConfig(data, "conda_build_config.yaml")
	assert.ErrorContains(t, err, "zip_keys")
}

func TestResolve(t *testing.T) {
	data := []byte(`
python:
  - "3.9"
  - "3.10"
`)
	cfg, err := ParseConfig(data, "variants.yaml")
	assert.NilError(t, err)

	platformCtx := eval.NewEvaluationContext(nil, "linux-64", "linux-64", "linux-64", nil, nil, nil)
	resolved, err := Resolve(cfg, platformCtx)
	assert.NilError(t, err)
	assert.Equal(t, len(resolved.Values["python"]), 2)
	assert.Equal(t, resolved.Values["python"][0].String(), "3.9")
}

func TestValidateZipGroupsMismatch(t *testing.T) {
	cfg := &ResolvedConfig{
		Keys: []recipe.NormalizedKey{"a", "b"},
		Values: map[recipe.NormalizedKey][]recipe.Variable{
			"a": {recipe.StringVariable("1")},
			"b": {recipe.StringVariable("1"), recipe.StringVariable("2")},
		},
		ZipKeys: [][]recipe.NormalizedKey{{"a", "b"}},
	}
	err := validateZipGroups(cfg)
	var mismatch *ZipLengthMismatchError
	assert.Assert(t, errors.As(err, &mismatch))
}

func TestValidateZipGroupsUnknownKey(t *testing.T) {
	cfg := &ResolvedConfig{
		Keys: []recipe.NormalizedKey{"a"},
		Values: map[recipe.NormalizedKey][]recipe.Variable{
			"a": {recipe.StringVariable("1")},
		},
		ZipKeys: [][]recipe.NormalizedKey{{"a", "missing"}},
	}
	err := validateZipGroups(cfg)
	var unknown *UnknownKeyInZipGroupError
	assert.Assert(t, errors.As(err, &unknown))
}
