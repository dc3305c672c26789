package manifest

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBasicManifest(t *testing.T) {
	doc := `{
		"name": "my-app",
		"version": "1.0.0",
		"dependencies": {"left-pad": "^1.3.0"},
		"devDependencies": {"jest": "^29.0.0"},
		"workspaces": ["packages/*"]
	}`
	m, err := Read(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "my-app", m.Name)
	assert.Equal(t, "^1.3.0", m.Dependencies["left-pad"])
	assert.Equal(t, "^29.0.0", m.DevDependencies["jest"])
	assert.Equal(t, []string{"packages/*"}, m.Workspaces)
}

func TestReadToolConfig(t *testing.T) {
	doc := `{
		"name": "my-app",
		"snpm": {
			"overrides": {"lodash": "^4.0.0"},
			"patchedDependencies": {"left-pad@1.3.1": "patches/left-pad@1.3.1.patch"}
		}
	}`
	m, err := Read(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "^4.0.0", m.Overrides["lodash"])
	assert.Equal(t, "patches/left-pad@1.3.1.patch", m.PatchedDependencies["left-pad@1.3.1"])
}

func TestWriteRoundTrip(t *testing.T) {
	m := &Manifest{
		Name:         "my-app",
		Version:      "1.0.0",
		Dependencies: map[string]string{"left-pad": "^1.3.0"},
		Overrides:    map[string]string{"lodash": "^4.0.0"},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))

	m2, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Name, m2.Name)
	assert.Equal(t, m.Dependencies, m2.Dependencies)
	assert.Equal(t, m.Overrides, m2.Overrides)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "package.json"))
	require.Error(t, err)
}

func TestWriteFileThenReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	m := &Manifest{Name: "roundtrip", Version: "2.0.0", Dependencies: map[string]string{"a": "^1.0.0"}}
	require.NoError(t, WriteFile(path, m))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", got.Name)
	assert.Equal(t, "^1.0.0", got.Dependencies["a"])
}

func TestEffectiveDependenciesIncludesDevWhenRequested(t *testing.T) {
	m := &Manifest{
		Dependencies:    map[string]string{"a": "^1.0.0"},
		DevDependencies: map[string]string{"b": "^2.0.0"},
	}
	withoutDev := m.EffectiveDependencies(false)
	assert.Len(t, withoutDev, 1)

	withDev := m.EffectiveDependencies(true)
	assert.Len(t, withDev, 2)
	assert.Equal(t, "^2.0.0", withDev["b"])
}
