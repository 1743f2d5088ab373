package sourcecache

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func buildTestTarGz(t *testing.T, destPath string, files map[string]string) {
	t.Helper()
	f, err := os.Create(destPath)
	assert.NilError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		assert.NilError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		assert.NilError(t, err)
	}
}

func TestExtractArchiveRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thing.unknown")
	assert.NilError(t, os.WriteFile(path, []byte("data"), 0o644))

	err := extractArchive(path, t.TempDir())
	var sourceErr *Error
	assert.Assert(t, err != nil)
	assert.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, sourceErr.Kind, KindUnsupportedArchive)
}

func TestExtractArchiveTarGzRoundTrip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.tar.gz")
	buildTestTarGz(t, archivePath, map[string]string{
		"a.txt":     "alpha",
		"dir/b.txt": "beta",
	})

	destDir := t.TempDir()
	assert.NilError(t, extractArchive(archivePath, destDir))

	a, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(a), "alpha")

	b, err := os.ReadFile(filepath.Join(destDir, "dir", "b.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(b), "beta")
}

func TestExtractArchiveRejectsPathTraversal(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	buildTestTarGz(t, archivePath, map[string]string{
		"../../etc/passwd": "pwned",
	})

	err := extractArchive(archivePath, t.TempDir())
	assert.Assert(t, err != nil, "path traversal entries must be rejected")
}
