package stagingcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

type fakeBuilder struct {
	calls int
	deps  recipe.Requirements
	srcs  []recipe.SourceSpec
}

func (b *fakeBuilder) Build(ctx context.Context, def recipe.StagingCache, variant recipe.VariantSubset, prefixDir, workDir string) (recipe.Requirements, []recipe.SourceSpec, error) {
	b.calls++
	if err := os.WriteFile(filepath.Join(prefixDir, "libfoo.so"), []byte("binary"), 0o755); err != nil {
		return recipe.Requirements{}, nil, err
	}
	if err := os.WriteFile(filepath.Join(workDir, "build.log"), []byte("ok"), 0o644); err != nil {
		return recipe.Requirements{}, nil, err
	}
	return b.deps, b.srcs, nil
}

func TestBuildOrRestoreBuildsOnMissThenRestoresOnHit(t *testing.T) {
	cacheDir := t.TempDir()
	c := New(cacheDir, logrus.New())

	def := recipe.StagingCache{Name: "common_build"}
	variant := recipe.VariantSubset{}
	builder := &fakeBuilder{
		deps: recipe.Requirements{Run: []recipe.Dependency{recipe.MatchSpecDependency("libfoo==1.0", nil)}},
	}

	// prefixA/prefixB must be equal length: a restore that lands on a
	// different currentPrefix than it was built with triggers prefix
	// rewriting, which requires equal-length prefixes.
	prefixA := filepath.Join(t.TempDir(), "aaaaaaaaaaaaaaaaaaaa")
	assert.NilError(t, os.MkdirAll(prefixA, 0o755))
	workA := t.TempDir()

	res1, err := c.BuildOrRestore(context.Background(), def, nil, variant, prefixA, prefixA, workA, builder)
	assert.NilError(t, err)
	assert.Assert(t, !res1.Restored)
	assert.Equal(t, builder.calls, 1)

	data, err := os.ReadFile(filepath.Join(prefixA, "libfoo.so"))
	assert.NilError(t, err)
	assert.Equal(t, string(data), "binary")

	prefixB := prefixA[:len(prefixA)-len("aaaaaaaaaaaaaaaaaaaa")] + "bbbbbbbbbbbbbbbbbbbb"
	assert.NilError(t, os.MkdirAll(prefixB, 0o755))
	workB := t.TempDir()

	res2, err := c.BuildOrRestore(context.Background(), def, nil, variant, prefixB, prefixB, workB, builder)
	assert.NilError(t, err)
	assert.Assert(t, res2.Restored)
	assert.Equal(t, builder.calls, 1, "second call must hit the cache, not invoke the builder again")

	data2, err := os.ReadFile(filepath.Join(prefixB, "libfoo.so"))
	assert.NilError(t, err)
	assert.Equal(t, string(data2), "binary")

	assert.Equal(t, len(res2.FinalizedDependencies.Run), 1)
	assert.Equal(t, res2.FinalizedDependencies.Run[0].MatchSpec, "libfoo==1.0")
}

func TestBuildOrRestoreRewritesPrefixOnRestore(t *testing.T) {
	cacheDir := t.TempDir()
	c := New(cacheDir, logrus.New())

	def := recipe.StagingCache{Name: "common_build"}
	variant := recipe.VariantSubset{}

	oldPrefix := filepath.Join(t.TempDir(), "aaaaaaaaaaaaaaaaaaaa")
	assert.NilError(t, os.MkdirAll(oldPrefix, 0o755))
	builder := &textPrefixBuilder{prefix: oldPrefix}

	_, err := c.BuildOrRestore(context.Background(), def, nil, variant, oldPrefix, oldPrefix, t.TempDir(), builder)
	assert.NilError(t, err)

	// newPrefix must be exactly as long as oldPrefix for in-place rewriting
	// to apply (rewritePrefix requires equal-length prefixes).
	newPrefix := oldPrefix[:len(oldPrefix)-len("aaaaaaaaaaaaaaaaaaaa")] + "bbbbbbbbbbbbbbbbbbbb"
	assert.NilError(t, os.MkdirAll(newPrefix, 0o755))

	_, err = c.BuildOrRestore(context.Background(), def, nil, variant, newPrefix, newPrefix, t.TempDir(), builder)
	assert.NilError(t, err)

	data, err := os.ReadFile(filepath.Join(newPrefix, "marker.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(data), newPrefix+"\n", "restored file must have the build-time prefix rewritten to the new prefix")
}

type textPrefixBuilder struct{ prefix string }

func (b *textPrefixBuilder) Build(ctx context.Context, def recipe.StagingCache, variant recipe.VariantSubset, prefixDir, workDir string) (recipe.Requirements, []recipe.SourceSpec, error) {
	if err := os.WriteFile(filepath.Join(prefixDir, "marker.txt"), []byte(b.prefix+"\n"), 0o644); err != nil {
		return recipe.Requirements{}, nil, err
	}
	return recipe.Requirements{}, nil, nil
}
