package sourcecache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
)

func TestCleanupEvictsStaleEntriesOnly(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, logrus.New())

	staleKey := "stale0000000000000000000000000000000000000000000000000000"
	freshKey := "fresh0000000000000000000000000000000000000000000000000000"

	assert.NilError(t, os.MkdirAll(c.entryDir(staleKey), 0o755))
	assert.NilError(t, os.MkdirAll(c.entryDir(freshKey), 0o755))

	err := c.withIndex(func(idx *index) error {
		idx.Entries[staleKey] = CacheEntry{
			SourceType:   "Url",
			CachePath:    "archive.bin",
			LastAccessed: time.Now().Add(-48 * time.Hour),
		}
		idx.Entries[freshKey] = CacheEntry{
			SourceType:   "Url",
			CachePath:    "archive.bin",
			LastAccessed: time.Now(),
		}
		return nil
	})
	assert.NilError(t, err)

	assert.NilError(t, c.Cleanup(24*time.Hour))

	idx, err := c.loadIndex()
	assert.NilError(t, err)
	_, staleStillPresent := idx.Entries[staleKey]
	_, freshStillPresent := idx.Entries[freshKey]
	assert.Assert(t, !staleStillPresent)
	assert.Assert(t, freshStillPresent)

	_, err = os.Stat(c.entryDir(staleKey))
	assert.Assert(t, os.IsNotExist(err))
	_, err = os.Stat(c.entryDir(freshKey))
	assert.NilError(t, err)
}

func TestWithKeyLockSerializesAccess(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, logrus.New())

	order := []string{}
	done := make(chan struct{})

	go func() {
		_ = c.withKeyLock(context.Background(), "shared", 5*time.Second, func() error {
			order = append(order, "first-enter")
			time.Sleep(20 * time.Millisecond)
			order = append(order, "first-exit")
			return nil
		})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	_ = c.withKeyLock(context.Background(), "shared", 5*time.Second, func() error {
		order = append(order, "second-enter")
		return nil
	})
	<-done

	assert.Equal(t, len(order), 3)
	assert.Equal(t, order[0], "first-enter")
	assert.Equal(t, order[1], "first-exit")
	assert.Equal(t, order[2], "second-enter")
}
