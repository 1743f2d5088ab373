package sourcecache

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moby/buildkit/util/gitutil"
	"github.com/pkg/errors"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// GitResolver performs the actual clone/fetch/checkout spec.md §4.6's Git
// protocol delegates to an "external git resolver". The default
// implementation shells out to the system git binary, mirroring how the
// teacher treats git.
type GitResolver interface {
	// Clone fetches url at the given ref into destDir (creating it if
	// absent, fetching/checking-out in place if it already holds a
	// checkout from a prior run), returning the resolved commit hash.
	Clone(ctx context.Context, url, ref string, depth int, destDir string) (commit string, err error)
	LFSFetch(ctx context.Context, repoDir string) error
}

type execGitResolver struct{}

func (execGitResolver) Clone(ctx context.Context, url, ref string, depth int, destDir string) (string, error) {
	if dirExists(filepath.Join(destDir, ".git")) {
		if err := runGit(ctx, destDir, "fetch", "--all"); err != nil {
			return "", err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
			return "", err
		}
		args := []string{"clone"}
		if depth > 0 {
			args = append(args, "--depth", strconv.Itoa(depth))
		}
		args = append(args, url, destDir)
		if err := runGit(ctx, "", args...); err != nil {
			return "", err
		}
	}

	checkoutRef := ref
	if checkoutRef == "" {
		checkoutRef = "HEAD"
	}
	if err := runGit(ctx, destDir, "checkout", checkoutRef); err != nil {
		return "", err
	}

	out, err := gitOutput(ctx, destDir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (execGitResolver) LFSFetch(ctx context.Context, repoDir string) error {
	if err := runGit(ctx, repoDir, "lfs", "fetch"); err != nil {
		return newErr(KindLfsUnavailable, "", repoDir, err)
	}
	return runGit(ctx, repoDir, "lfs", "checkout")
}

func runGit(ctx context.Context, dir string, args ...string) error {
	_, err := gitOutput(ctx, dir, args...)
	return err
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", newErr(KindGitError, "", dir, errors.Wrapf(err, "git %s: %s", strings.Join(args, " "), out))
	}
	return string(out), nil
}

// fetchGit implements spec.md §4.6's Git protocol: delegate to the
// resolver, optionally fetch LFS content, and record the resolved commit
// in the index.
func (c *Cache) fetchGit(ctx context.Context, spec recipe.SourceSpec) (string, error) {
	ref := spec.GitReferenceString()
	key := recipe.GitCacheKey(spec.GitURL, ref)

	if _, err := gitutil.ParseGitRef(spec.GitURL); err != nil {
		return "", newErr(KindGitError, spec.GitURL, "", errors.Wrap(err, "parsing git remote"))
	}

	var result string
	err := c.withKeyLock(ctx, key, 30*time.Minute, func() error {
		repoDir := filepath.Join(c.entryDir(key), "repo")

		commit, err := c.git.Clone(ctx, spec.GitURL, gitCheckoutRef(spec), spec.Depth, repoDir)
		if err != nil {
			return newErr(KindGitError, spec.GitURL, repoDir, err)
		}
		if spec.ExpectedCommit != "" && commit != spec.ExpectedCommit {
			return newErr(KindGitError, spec.GitURL, repoDir,
				errors.Errorf("resolved commit %s does not match expected %s", commit, spec.ExpectedCommit))
		}

		if spec.Lfs {
			if err := c.git.LFSFetch(ctx, repoDir); err != nil {
				return err
			}
		}

		rel, err := filepath.Rel(c.entryDir(key), repoDir)
		if err != nil {
			return err
		}
		entry := CacheEntry{
			SourceType:   "Git",
			URL:          spec.GitURL,
			GitCommit:    commit,
			GitRev:       ref,
			CachePath:    rel,
			LastAccessed: time.Now(),
			Created:      time.Now(),
			LockFile:     filepath.Join("locks", key+".lock"),
		}
		if err := c.writeEntry(key, entry); err != nil {
			return err
		}
		result = repoDir
		return nil
	})
	return result, err
}

func gitCheckoutRef(spec recipe.SourceSpec) string {
	switch {
	case spec.Rev != "":
		return spec.Rev
	case spec.Tag != "":
		return spec.Tag
	case spec.Branch != "":
		return spec.Branch
	default:
		return ""
	}
}
