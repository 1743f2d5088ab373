package stagingcache

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// rewritePrefix implements spec.md §4.5's "Prefix rewriting": the stored
// and current prefixes are the same length, so every regular file whose
// bytes contain oldPrefix is rewritten in place, and every absolute
// symlink whose target lies inside oldPrefix is re-pointed. Files that
// don't contain oldPrefix (most binaries) are left untouched.
func rewritePrefix(root, oldPrefix, newPrefix string) error {
	if len(oldPrefix) != len(newPrefix) {
		return fmt.Errorf("stagingcache: prefix rewrite requires equal-length prefixes (%d vs %d)", len(oldPrefix), len(newPrefix))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return rewriteSymlink(path, oldPrefix, newPrefix)
		}
		return rewriteFile(path, oldPrefix, newPrefix, info.Mode().Perm())
	})
}

func rewriteFile(path, oldPrefix, newPrefix string, perm fs.FileMode) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	old := []byte(oldPrefix)
	if !bytes.Contains(data, old) {
		return nil
	}
	rewritten := bytes.ReplaceAll(data, old, []byte(newPrefix))
	if err := os.WriteFile(path, rewritten, perm); err != nil {
		return err
	}
	if strings.HasSuffix(path, ".py") {
		return sweepStalePyc(path)
	}
	return nil
}

func rewriteSymlink(path, oldPrefix, newPrefix string) error {
	target, err := os.Readlink(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(target, oldPrefix) {
		return nil
	}
	newTarget := newPrefix + strings.TrimPrefix(target, oldPrefix)
	if err := os.Remove(path); err != nil {
		return err
	}
	return os.Symlink(newTarget, path)
}

// sweepStalePyc implements spec.md §4.5's "Stale-bytecode hazard": delete
// every __pycache__/<stem>.*.pyc sibling of a .py file that was just
// substituted in place, since (source mtime, source size) alone can't
// distinguish the rewritten source from the one the cached bytecode was
// compiled against.
func sweepStalePyc(pyFile string) error {
	dir := filepath.Dir(pyFile)
	stem := strings.TrimSuffix(filepath.Base(pyFile), ".py")
	cacheDir := filepath.Join(dir, "__pycache__")

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	prefix := stem + "."
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".pyc") {
			if err := os.Remove(filepath.Join(cacheDir, name)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
