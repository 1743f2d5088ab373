// Package sourcecache implements the Source Cache (spec.md §4.6):
// content-addressed fetch of URL/Git/path sources with cross-process,
// per-key locking. Directory and locking discipline follow the same
// "locks are scoped, released on every exit path" rule stagingcache
// applies, using the same github.com/gofrs/flock dependency.
package sourcecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// CacheEntry is the on-disk schema from spec.md §6.
type CacheEntry struct {
	SourceType     string    `json:"source_type"`
	URL            string    `json:"url"`
	Checksum       string    `json:"checksum,omitempty"`
	ChecksumType   string    `json:"checksum_type,omitempty"`
	ActualFilename string    `json:"actual_filename,omitempty"`
	GitCommit      string    `json:"git_commit,omitempty"`
	GitRev         string    `json:"git_rev,omitempty"`
	CachePath      string    `json:"cache_path"`
	ExtractedPath  string    `json:"extracted_path,omitempty"`
	LastAccessed   time.Time `json:"last_accessed"`
	Created        time.Time `json:"created"`
	LockFile       string    `json:"lock_file,omitempty"`
}

// index is the in-memory, JSON-persisted cache.json: key -> CacheEntry.
type index struct {
	Entries map[string]CacheEntry `json:"entries"`
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, "cache.json")
}

// loadIndex reads cache.json, tolerating its absence (fresh cache) but
// surfacing a CorruptMetadata error for unparseable content so the caller
// can decide whether to discard and rebuild (spec.md §7 "not fatal —
// remove and rebuild").
func (c *Cache) loadIndex() (*index, error) {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &index{Entries: map[string]CacheEntry{}}, nil
		}
		return nil, newErr(KindIO, "", c.indexPath(), err)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, newErr(KindCorruptMetadata, "", c.indexPath(), err)
	}
	if idx.Entries == nil {
		idx.Entries = map[string]CacheEntry{}
	}
	return &idx, nil
}

func (c *Cache) saveIndex(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling source cache index")
	}
	tmp := c.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing source cache index")
	}
	return os.Rename(tmp, c.indexPath())
}

// withIndex loads the index, runs fn (which may mutate idx), and persists
// the result. Callers are expected to already hold the per-key lock that
// guards the entry fn touches; the index file itself is rewritten whole,
// so concurrent writers must still serialize through that lock.
func (c *Cache) withIndex(fn func(idx *index) error) error {
	idx, err := c.loadIndex()
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		return err
	}
	return c.saveIndex(idx)
}

func touchAccessed(e *CacheEntry) {
	e.LastAccessed = time.Now()
}
