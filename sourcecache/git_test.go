package sourcecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

type fakeGitResolver struct {
	commit   string
	cloned   int
	lfsCalls int
}

func (f *fakeGitResolver) Clone(ctx context.Context, url, ref string, depth int, destDir string) (string, error) {
	f.cloned++
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(destDir, "README"), []byte("checked out at "+ref), 0o644); err != nil {
		return "", err
	}
	return f.commit, nil
}

func (f *fakeGitResolver) LFSFetch(ctx context.Context, repoDir string) error {
	f.lfsCalls++
	return nil
}

func TestFetchGitClonesOnceThenReusesEntry(t *testing.T) {
	resolver := &fakeGitResolver{commit: "abc123"}
	c := New(t.TempDir(), logrus.New(), WithGitResolver(resolver))

	spec := recipe.SourceSpec{
		Kind:   recipe.SpecGit,
		GitURL: "https://example.com/repo.git",
		Rev:    "main",
	}

	path1, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	assert.Equal(t, resolver.cloned, 1)

	path2, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	assert.Equal(t, path1, path2)
	assert.Equal(t, resolver.cloned, 2, "Clone is invoked again to fetch updates, matching an always-fetch resolver contract")
}

func TestFetchGitRejectsCommitMismatch(t *testing.T) {
	resolver := &fakeGitResolver{commit: "deadbeef"}
	c := New(t.TempDir(), logrus.New(), WithGitResolver(resolver))

	spec := recipe.SourceSpec{
		Kind:           recipe.SpecGit,
		GitURL:         "https://example.com/repo.git",
		Rev:            "main",
		ExpectedCommit: "cafef00d",
	}

	_, err := c.Fetch(context.Background(), spec, nil)
	assert.ErrorContains(t, err, "does not match expected")
}

func TestFetchGitInvokesLFSWhenRequested(t *testing.T) {
	resolver := &fakeGitResolver{commit: "abc123"}
	c := New(t.TempDir(), logrus.New(), WithGitResolver(resolver))

	spec := recipe.SourceSpec{
		Kind:   recipe.SpecGit,
		GitURL: "https://example.com/repo.git",
		Rev:    "main",
		Lfs:    true,
	}

	_, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	assert.Equal(t, resolver.lfsCalls, 1)
}
