package store

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestEnsurePackageExtractsAndMarksComplete(t *testing.T) {
	tgz := buildTarball(t, map[string]string{
		"package/package.json": `{"name":"left-pad","version":"1.3.1"}`,
		"package/index.js":     "module.exports = function(){}",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tgz)
	}))
	defer srv.Close()

	s := New(t.TempDir())
	pkg := &sntypes.ResolvedPackage{
		ID:      sntypes.PackageId{Name: "left-pad", Version: "1.3.1"},
		Tarball: srv.URL + "/left-pad-1.3.1.tgz",
	}

	root, err := s.EnsurePackage(context.Background(), pkg)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "package.json"))
	assert.True(t, s.HasSentinel(pkg.ID))

	// idempotent: second call is a no-op extraction, same root returned
	root2, err := s.EnsurePackage(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, root, root2)
}

func TestEnsurePackageIsIdempotentAfterPartialExtraction(t *testing.T) {
	tgz := buildTarball(t, map[string]string{
		"package/package.json": `{"name":"foo","version":"1.0.0"}`,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tgz)
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := New(dir)
	pkg := &sntypes.ResolvedPackage{
		ID:      sntypes.PackageId{Name: "foo", Version: "1.0.0"},
		Tarball: srv.URL + "/foo.tgz",
	}

	pkgDir := s.PackageDir(pkg.ID)
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "garbage"), []byte("partial"), 0o644))
	assert.False(t, s.HasSentinel(pkg.ID))

	root, err := s.EnsurePackage(context.Background(), pkg)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "package.json"))
	assert.True(t, s.HasSentinel(pkg.ID))
}

func TestEnsurePackageReturnsRootWithoutPackageSubdir(t *testing.T) {
	tgz := buildTarball(t, map[string]string{
		"package.json": `{"name":"flat","version":"1.0.0"}`,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tgz)
	}))
	defer srv.Close()

	s := New(t.TempDir())
	pkg := &sntypes.ResolvedPackage{
		ID:      sntypes.PackageId{Name: "flat", Version: "1.0.0"},
		Tarball: srv.URL + "/flat.tgz",
	}
	root, err := s.EnsurePackage(context.Background(), pkg)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "package.json"))
}
