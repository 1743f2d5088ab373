package sourcecache

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

// fetchURL implements spec.md §4.6's URL protocol: try each mirror URL in
// order, returning the extracted directory (if an archive) or the archive
// file path, persisting an index entry either way.
func (c *Cache) fetchURL(ctx context.Context, spec recipe.SourceSpec, progress ProgressFunc) (string, error) {
	checksum, checksumType := spec.Checksum()

	var lastErr error
	for _, u := range spec.URLs {
		key := recipe.URLCacheKey(u, checksum)
		path, err := c.fetchOneURL(ctx, key, u, spec, checksum, checksumType, progress)
		if err == nil {
			return path, nil
		}
		c.log.WithError(err).WithField("url", u).Warn("source mirror failed, trying next")
		lastErr = err
	}
	return "", errors.Wrap(lastErr, "all source mirrors failed")
}

func (c *Cache) fetchOneURL(ctx context.Context, key, u string, spec recipe.SourceSpec, checksum, checksumType string, progress ProgressFunc) (string, error) {
	var result string
	err := c.withKeyLock(ctx, key, 10*time.Minute, func() error {
		entry, ok := c.readEntry(key)

		if ok && entry.ExtractedPath != "" {
			extractedAbs := filepath.Join(c.entryDir(key), entry.ExtractedPath)
			if dirExists(extractedAbs) {
				c.touchEntry(key, entry)
				result = extractedAbs
				return nil
			}
		}

		archivePath := filepath.Join(c.entryDir(key), archiveFileName(spec, u))
		if ok && entry.CachePath != "" && fileExists(filepath.Join(c.entryDir(key), entry.CachePath)) {
			cached := filepath.Join(c.entryDir(key), entry.CachePath)
			if checksum == "" || validateChecksum(cached, checksum, checksumType) == nil {
				path, err := c.maybeExtract(key, cached, spec)
				if err != nil {
					return err
				}
				c.touchEntry(key, entry)
				result = path
				return nil
			}
			_ = os.Remove(cached)
		}

		if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
			return newErr(KindIO, u, archivePath, err)
		}
		if err := downloadTo(ctx, u, archivePath, progress); err != nil {
			return newErr(KindDownloadFailed, u, archivePath, err)
		}

		if checksum != "" {
			if err := validateChecksum(archivePath, checksum, checksumType); err != nil {
				os.Remove(archivePath)
				return newErr(KindChecksumMismatch, u, archivePath, err)
			}
		}

		path, err := c.maybeExtract(key, archivePath, spec)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(c.entryDir(key), archivePath)
		if err != nil {
			return err
		}
		newEntry := CacheEntry{
			SourceType:     "Url",
			URL:            u,
			Checksum:       checksum,
			ChecksumType:   checksumType,
			ActualFilename: spec.FileName,
			CachePath:      rel,
			LastAccessed:   time.Now(),
			Created:        time.Now(),
			LockFile:       filepath.Join("locks", key+".lock"),
		}
		if path != archivePath {
			extractedRel, err := filepath.Rel(c.entryDir(key), path)
			if err != nil {
				return err
			}
			newEntry.ExtractedPath = extractedRel
		}
		if err := c.writeEntry(key, newEntry); err != nil {
			return err
		}
		result = path
		return nil
	})
	return result, err
}

// maybeExtract extracts archivePath if it's an extractable archive and no
// explicit file_name was requested (spec.md §4.6 step 3), returning the
// extraction directory, or archivePath unchanged otherwise.
func (c *Cache) maybeExtract(key, archivePath string, spec recipe.SourceSpec) (string, error) {
	if spec.FileName != "" || !recipe.IsArchiveExtension(archivePath) {
		return archivePath, nil
	}
	destDir := archivePath + ".extracted"
	if dirExists(destDir) {
		return destDir, nil
	}

	// Extract into a scratch directory first and rename into place, so a
	// process crash mid-extraction can never leave destDir half-populated
	// for a later dirExists(destDir) check to mistake for a finished entry.
	scratchDir := archivePath + ".extracting-" + uuid.NewString()
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", newErr(KindIO, "", scratchDir, err)
	}
	if err := extractArchive(archivePath, scratchDir); err != nil {
		os.RemoveAll(scratchDir)
		return "", err
	}
	if err := os.Rename(scratchDir, destDir); err != nil {
		os.RemoveAll(scratchDir)
		return "", newErr(KindIO, "", destDir, err)
	}
	return destDir, nil
}

func archiveFileName(spec recipe.SourceSpec, u string) string {
	if spec.FileName != "" {
		return spec.FileName
	}
	return recipe.FilenameFromURL(u)
}

// downloadTo streams u to destPath, invoking progress with byte counts.
// file:// URLs are copied directly rather than routed through net/http.
func downloadTo(ctx context.Context, u, destPath string, progress ProgressFunc) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return err
	}
	if parsed.Scheme == "file" {
		return copyLocalFile(parsed.Path, destPath, progress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status %s fetching %s (content-length %s)", resp.Status, u, units.HumanSize(float64(resp.ContentLength)))
	}

	tmp := destPath + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	total := resp.ContentLength
	var transferred int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(tmp)
				return werr
			}
			transferred += int64(n)
			if progress != nil {
				progress(transferred, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			// spec.md §5 cancellation: a partial file must not survive a
			// failed/cancelled download.
			os.Remove(tmp)
			return readErr
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, destPath)
}

func copyLocalFile(srcPath, destPath string, progress ProgressFunc) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return newErr(KindFileNotFound, "", srcPath, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(n, info.Size())
	}
	return nil
}

func validateChecksum(path, checksum, checksumType string) error {
	var h hash.Hash
	switch checksumType {
	case "md5":
		h = md5.New()
	default:
		h = sha256.New()
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != checksum {
		return errors.Errorf("checksum mismatch: want %s, got %s", checksum, got)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (c *Cache) readEntry(key string) (CacheEntry, bool) {
	idx, err := c.loadIndex()
	if err != nil {
		return CacheEntry{}, false
	}
	e, ok := idx.Entries[key]
	return e, ok
}

func (c *Cache) writeEntry(key string, e CacheEntry) error {
	return c.withIndex(func(idx *index) error {
		idx.Entries[key] = e
		return nil
	})
}

func (c *Cache) touchEntry(key string, e CacheEntry) {
	_ = c.withIndex(func(idx *index) error {
		touchAccessed(&e)
		idx.Entries[key] = e
		return nil
	})
}
