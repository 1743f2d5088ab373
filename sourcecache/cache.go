package sourcecache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// ProgressFunc is invoked during a URL download with the bytes transferred
// so far and the total content length, or -1 if unknown (spec.md §4.6 URL
// protocol step 1c).
type ProgressFunc func(transferred, total int64)

// Cache is the on-disk source cache rooted at dir, indexed by cache.json.
type Cache struct {
	dir   string
	log   logrus.FieldLogger
	git   GitResolver
	fetch singleflight.Group
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithGitResolver overrides the default os/exec-based GitResolver, mainly
// for tests.
func WithGitResolver(g GitResolver) Option {
	return func(c *Cache) { c.git = g }
}

func New(dir string, log logrus.FieldLogger, opts ...Option) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Cache{dir: dir, log: log, git: execGitResolver{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) entryDir(key string) string { return filepath.Join(c.dir, key) }
func (c *Cache) lockPath(key string) string { return filepath.Join(c.dir, "locks", key+".lock") }

// Fetch resolves a SourceSpec to a local filesystem path per spec.md §4.6.
// Path sources are a pure passthrough: no locking, no cache.json entry.
//
// Concurrent Fetch calls for the same logical source within this process are
// collapsed through a singleflight.Group ahead of the cross-process flock in
// withKeyLock, so N variants referencing the same URL/git source in one
// planning run issue one download instead of N callers racing on the lock.
func (c *Cache) Fetch(ctx context.Context, spec recipe.SourceSpec, progress ProgressFunc) (string, error) {
	switch spec.Kind {
	case recipe.SpecPath:
		return spec.Path, nil
	case recipe.SpecURL:
		checksum, _ := spec.Checksum()
		sfKey := "url:" + checksum
		if checksum == "" && len(spec.URLs) > 0 {
			sfKey = "url:" + spec.URLs[0]
		}
		v, err, _ := c.fetch.Do(sfKey, func() (any, error) {
			return c.fetchURL(ctx, spec, progress)
		})
		if err != nil {
			return "", err
		}
		return v.(string), nil
	case recipe.SpecGit:
		sfKey := "git:" + recipe.GitCacheKey(spec.GitURL, spec.GitReferenceString())
		v, err, _ := c.fetch.Do(sfKey, func() (any, error) {
			return c.fetchGit(ctx, spec)
		})
		if err != nil {
			return "", err
		}
		return v.(string), nil
	default:
		return "", errors.Errorf("sourcecache: unknown source kind %d", spec.Kind)
	}
}

// withKeyLock acquires the per-key filesystem lock for the duration of fn.
// Locks are scoped to this call and released on every return path,
// including panics, matching spec.md §5's "acquired on entry... released
// on all exit paths".
func (c *Cache) withKeyLock(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	lockPath := c.lockPath(key)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return newErr(KindIO, "", lockPath, err)
	}
	if err := os.MkdirAll(c.entryDir(key), 0o755); err != nil {
		return newErr(KindIO, "", c.entryDir(key), err)
	}

	l := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := l.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("timed out waiting for lock")
		}
		return newErr(KindLockTimeout, "", lockPath, err)
	}
	defer l.Unlock()

	return fn()
}

// Cleanup implements spec.md §4.6's cleanup(max_age): entries whose
// last_accessed predates the cutoff are removed, their cache/extracted
// directories deleted, and stale lock files swept. Never invoked
// automatically.
func (c *Cache) Cleanup(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	return c.withIndex(func(idx *index) error {
		for key, entry := range idx.Entries {
			if entry.LastAccessed.After(cutoff) {
				continue
			}
			c.log.WithField("key", key).Info("evicting stale source cache entry")
			if err := os.RemoveAll(c.entryDir(key)); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "removing evicted entry %s", key)
			}
			if entry.LockFile != "" {
				if err := os.Remove(filepath.Join(c.dir, entry.LockFile)); err != nil && !os.IsNotExist(err) {
					c.log.WithError(err).Warn("failed to remove stale lock file")
				}
			}
			delete(idx.Entries, key)
		}
		return nil
	})
}
