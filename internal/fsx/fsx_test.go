package fsx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snpm-dev/snpm/pkg/config"
)

func buildTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "index.js"), []byte("module.exports = {}"), 0o644))
	return dir
}

func TestPlaceCopyBackend(t *testing.T) {
	src := buildTree(t)
	dst := filepath.Join(t.TempDir(), "left-pad")

	require.NoError(t, Place(src, dst, config.LinkCopy, false))

	data, err := os.ReadFile(filepath.Join(dst, "lib", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {}", string(data))

	fi, err := os.Lstat(filepath.Join(dst, "package.json"))
	require.NoError(t, err)
	assert.Zero(t, fi.Mode()&os.ModeSymlink)
}

func TestPlaceHardlinkBackend(t *testing.T) {
	src := buildTree(t)
	dst := filepath.Join(t.TempDir(), "left-pad")

	require.NoError(t, Place(src, dst, config.LinkHardlink, false))

	srcInfo, err := os.Stat(filepath.Join(src, "package.json"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(dst, "package.json"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestPlaceSymlinkBackend(t *testing.T) {
	src := buildTree(t)
	dst := filepath.Join(t.TempDir(), "left-pad")

	require.NoError(t, Place(src, dst, config.LinkSymlink, false))

	fi, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)

	data, err := os.ReadFile(filepath.Join(dst, "package.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, string(data))
}

func TestPlaceDeepCopyForcesRealFiles(t *testing.T) {
	src := buildTree(t)
	dst := filepath.Join(t.TempDir(), "left-pad")

	require.NoError(t, Place(src, dst, config.LinkHardlink, true))

	srcInfo, err := os.Stat(filepath.Join(src, "package.json"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(dst, "package.json"))
	require.NoError(t, err)
	assert.False(t, os.SameFile(srcInfo, dstInfo))
}

func TestPlaceClearsExistingDestination(t *testing.T) {
	src := buildTree(t)
	dst := filepath.Join(t.TempDir(), "left-pad")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("old"), 0o644))

	require.NoError(t, Place(src, dst, config.LinkCopy, false))

	_, err := os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestLinkFileCopyBackend(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cli.js")
	require.NoError(t, os.WriteFile(src, []byte("#!/usr/bin/env node"), 0o755))
	dst := filepath.Join(dir, "bin", "cli")

	require.NoError(t, LinkFile(src, dst, config.LinkCopy, false))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env node", string(data))
}

func TestLinkFileHardlinkBackend(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cli.js")
	require.NoError(t, os.WriteFile(src, []byte("#!/usr/bin/env node"), 0o755))
	dst := filepath.Join(dir, "bin", "cli")

	require.NoError(t, LinkFile(src, dst, config.LinkHardlink, false))

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestCopyTreePreservesSymlinks(t *testing.T) {
	src := buildTree(t)
	require.NoError(t, os.Symlink("index.js", filepath.Join(src, "lib", "alias.js")))
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, CopyTree(src, dst))

	target, err := os.Readlink(filepath.Join(dst, "lib", "alias.js"))
	require.NoError(t, err)
	assert.Equal(t, "index.js", target)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
