package stagingcache

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
)

// collectFiles walks root and returns the path, relative to root, of every
// non-directory entry that matches one of patterns. A nil or empty patterns
// list matches everything. It takes no snapshot before a build, so files
// that were already present in root are returned along with newly created
// ones.
func collectFiles(root string, patterns []string) ([]string, error) {
	var matcher *patternmatcher.PatternMatcher
	if len(patterns) > 0 {
		m, err := patternmatcher.New(patterns)
		if err != nil {
			return nil, err
		}
		matcher = m
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if matcher != nil {
			matched, err := matcher.Matches(rel)
			if err != nil {
				return err
			}
			if !matched {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// copyTree copies every entry in relFiles from src to dst, preserving mode
// and symlink targets, creating intermediate directories as needed.
func copyTree(src, dst string, relFiles []string) error {
	for _, rel := range relFiles {
		if err := copyEntry(filepath.Join(src, rel), filepath.Join(dst, rel)); err != nil {
			return err
		}
	}
	return nil
}

func copyEntry(srcPath, dstPath string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(srcPath)
		if err != nil {
			return err
		}
		_ = os.Remove(dstPath)
		return os.Symlink(target, dstPath)
	}
	return copyFile(srcPath, dstPath, info.Mode().Perm())
}

func copyFile(srcPath, dstPath string, perm fs.FileMode) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func removeAndRecreate(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
