package stagingcache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// Builder performs the external steps spec.md §2 places out of scope for
// this module: solving/installing S's environments and running S's build
// script. BuildOrRestore calls it only on a cache miss.
type Builder interface {
	Build(ctx context.Context, def recipe.StagingCache, variant recipe.VariantSubset, prefixDir, workDir string) (finalizedDeps recipe.Requirements, finalizedSources []recipe.SourceSpec, err error)
}

// Cache is the on-disk staging build cache rooted at dir (spec.md §4.5's
// <cache_dir>).
type Cache struct {
	dir string
	log logrus.FieldLogger
}

func New(dir string, log logrus.FieldLogger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{dir: dir, log: log}
}

func (c *Cache) entryDir(key string) string     { return filepath.Join(c.dir, "staging_"+key) }
func (c *Cache) metadataPath(key string) string { return filepath.Join(c.entryDir(key), "metadata.json") }
func (c *Cache) prefixDir(key string) string    { return filepath.Join(c.entryDir(key), "prefix") }
func (c *Cache) workDirPath(key string) string  { return filepath.Join(c.entryDir(key), "work_dir") }
func (c *Cache) lockPath(key string) string     { return filepath.Join(c.entryDir(key), "lock") }

// BuildOrRestore implements spec.md §4.5's "Build-or-restore protocol": it
// acquires the per-key lock, restores from a cached metadata.json if one
// parses cleanly, and otherwise drives builder through a fresh build and
// populates the cache entry.
func (c *Cache) BuildOrRestore(ctx context.Context, def recipe.StagingCache, alwaysInclude []string, outputVariant recipe.VariantSubset, currentPrefix, destPrefixDir, destWorkDir string, builder Builder) (*Result, error) {
	selected := SelectVariant(def, outputVariant)
	key, err := Key(def, selected)
	if err != nil {
		return nil, errors.Wrap(err, "computing staging cache key")
	}

	if err := os.MkdirAll(c.entryDir(key), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating staging cache entry directory")
	}

	lock := flock.New(c.lockPath(key))
	if err := lock.Lock(); err != nil {
		return nil, errors.Wrap(err, "acquiring staging cache lock")
	}
	defer lock.Unlock()

	if meta, ok := c.readMetadata(key); ok {
		result, err := c.restore(meta, key, currentPrefix, destPrefixDir, destWorkDir)
		if err == nil {
			return result, nil
		}
		// spec.md §4.5 "Failure model": a cache read error is never fatal.
		c.log.WithError(err).WithField("key", key).Warn("staging cache restore failed, rebuilding")
		if rmErr := os.RemoveAll(c.entryDir(key)); rmErr != nil {
			c.log.WithError(rmErr).Warn("failed to clear broken staging cache entry")
		}
		if err := os.MkdirAll(c.entryDir(key), 0o755); err != nil {
			return nil, errors.Wrap(err, "recreating staging cache entry directory")
		}
	}

	return c.buildFresh(ctx, def, alwaysInclude, selected, key, currentPrefix, destPrefixDir, destWorkDir, builder)
}

func (c *Cache) readMetadata(key string) (Metadata, bool) {
	data, err := os.ReadFile(c.metadataPath(key))
	if err != nil {
		return Metadata{}, false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false
	}
	return meta, true
}

// restore implements spec.md §4.5 step 2: wipe the destination prefix/
// work_dir, copy cached files in, rewrite the stored build-time prefix to
// currentPrefix, and return the cached finalized dependencies/sources.
func (c *Cache) restore(meta Metadata, key, currentPrefix, destPrefixDir, destWorkDir string) (*Result, error) {
	if err := removeAndRecreate(destPrefixDir); err != nil {
		return nil, errors.Wrap(err, "clearing destination prefix")
	}
	if err := removeAndRecreate(destWorkDir); err != nil {
		return nil, errors.Wrap(err, "clearing destination work_dir")
	}

	if err := copyTree(c.prefixDir(key), destPrefixDir, meta.PrefixFiles); err != nil {
		return nil, errors.Wrap(err, "copying cached prefix files")
	}
	if err := copyTree(c.workDirPath(key), destWorkDir, meta.WorkDirFiles); err != nil {
		return nil, errors.Wrap(err, "copying cached work_dir files")
	}

	if meta.Prefix != "" && meta.Prefix != currentPrefix {
		if err := rewritePrefix(destPrefixDir, meta.Prefix, currentPrefix); err != nil {
			return nil, errors.Wrap(err, "rewriting restored prefix")
		}
	}

	return &Result{
		FinalizedDependencies: meta.FinalizedDependencies,
		FinalizedSources:      meta.FinalizedSources,
		Prefix:                currentPrefix,
		Restored:              true,
	}, nil
}

// buildFresh implements spec.md §4.5 step 3: drive builder, collect the
// files under the destination prefix and work_dir (every file present after
// the build, not only those the build created), populate the cache entry,
// and write metadata.json.
func (c *Cache) buildFresh(ctx context.Context, def recipe.StagingCache, alwaysInclude []string, selected recipe.VariantSubset, key, currentPrefix, destPrefixDir, destWorkDir string, builder Builder) (*Result, error) {
	finalizedDeps, finalizedSources, err := builder.Build(ctx, def, selected, destPrefixDir, destWorkDir)
	if err != nil {
		return nil, errors.Wrap(err, "running staging build")
	}

	prefixFiles, err := collectFiles(destPrefixDir, alwaysInclude)
	if err != nil {
		return nil, errors.Wrap(err, "collecting prefix files")
	}
	workDirFiles, err := collectFiles(destWorkDir, nil)
	if err != nil {
		return nil, errors.Wrap(err, "collecting work_dir files")
	}

	if err := copyTree(destPrefixDir, c.prefixDir(key), prefixFiles); err != nil {
		return nil, errors.Wrap(err, "populating cached prefix")
	}
	if err := copyTree(destWorkDir, c.workDirPath(key), workDirFiles); err != nil {
		return nil, errors.Wrap(err, "populating cached work_dir")
	}

	meta := Metadata{
		Name:                  def.Name,
		FinalizedDependencies: finalizedDeps,
		FinalizedSources:      finalizedSources,
		PrefixFiles:           prefixFiles,
		WorkDirFiles:          workDirFiles,
		Prefix:                currentPrefix,
		Variant:               selected,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling staging metadata")
	}
	// spec.md §4.5 "Failure model": a cache write failure is reported but
	// must not fail the build that already succeeded.
	if err := os.WriteFile(c.metadataPath(key), data, 0o644); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("failed to persist staging cache metadata")
	}

	return &Result{
		FinalizedDependencies: finalizedDeps,
		FinalizedSources:      finalizedSources,
		Prefix:                currentPrefix,
	}, nil
}
