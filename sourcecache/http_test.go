package sourcecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"

	"github.com/prefix-dev/rattler-build-go/recipe"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestFetchURLDownloadsAndCachesOnSecondCall(t *testing.T) {
	payload := []byte("hello source cache")
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(payload)
	}))
	defer srv.Close()

	c := New(t.TempDir(), logrus.New())
	spec := recipe.SourceSpec{
		Kind:     recipe.SpecURL,
		URLs:     []string{srv.URL + "/pkg.bin"},
		Sha256:   sha256Hex(payload),
		FileName: "pkg.bin",
	}

	path1, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	data, err := os.ReadFile(path1)
	assert.NilError(t, err)
	assert.Equal(t, string(data), string(payload))
	assert.Equal(t, hits, 1)

	path2, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	assert.Equal(t, path2, path1)
	assert.Equal(t, hits, 1, "second fetch must be served from cache, not re-downloaded")
}

func TestFetchURLChecksumMismatchFailsMirrorThenTriesNext(t *testing.T) {
	goodPayload := []byte("correct bytes")
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wrong bytes"))
	}))
	defer badSrv.Close()
	goodSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(goodPayload)
	}))
	defer goodSrv.Close()

	c := New(t.TempDir(), logrus.New())
	spec := recipe.SourceSpec{
		Kind:     recipe.SpecURL,
		URLs:     []string{badSrv.URL + "/pkg.bin", goodSrv.URL + "/pkg.bin"},
		Sha256:   sha256Hex(goodPayload),
		FileName: "pkg.bin",
	}

	path, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(data), string(goodPayload))
}

func TestFetchURLAllMirrorsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(t.TempDir(), logrus.New())
	spec := recipe.SourceSpec{
		Kind:     recipe.SpecURL,
		URLs:     []string{srv.URL + "/missing.bin"},
		FileName: "missing.bin",
	}

	_, err := c.Fetch(context.Background(), spec, nil)
	assert.ErrorContains(t, err, "all source mirrors failed")
}

func TestFetchURLExtractsTarGz(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "src.tar.gz")
	buildTestTarGz(t, archivePath, map[string]string{"hello.txt": "world"})
	data, err := os.ReadFile(archivePath)
	assert.NilError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	c := New(t.TempDir(), logrus.New())
	spec := recipe.SourceSpec{
		Kind: recipe.SpecURL,
		URLs: []string{srv.URL + "/src.tar.gz"},
	}

	path, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)

	contents, err := os.ReadFile(filepath.Join(path, "hello.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(contents), "world")
}

func TestFetchPathIsPassthrough(t *testing.T) {
	c := New(t.TempDir(), logrus.New())
	spec := recipe.SourceSpec{Kind: recipe.SpecPath, Path: "/some/local/dir"}

	path, err := c.Fetch(context.Background(), spec, nil)
	assert.NilError(t, err)
	assert.Equal(t, path, "/some/local/dir")
}
