package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

func sampleGraph() *sntypes.ResolutionGraph {
	g := sntypes.NewResolutionGraph()
	g.Root.Dependencies["left-pad"] = sntypes.RootDependency{
		Requested: "^1.0.0",
		Resolved:  sntypes.PackageId{Name: "left-pad", Version: "1.3.1"},
	}
	g.Packages[sntypes.PackageId{Name: "left-pad", Version: "1.3.1"}] = &sntypes.ResolvedPackage{
		ID:           sntypes.PackageId{Name: "left-pad", Version: "1.3.1"},
		Tarball:      "https://registry.npmjs.org/left-pad/-/left-pad-1.3.1.tgz",
		Integrity:    "sha512-deadbeef",
		Dependencies: map[string]sntypes.PackageId{"nested": {Name: "nested", Version: "2.0.0"}},
	}
	g.Packages[sntypes.PackageId{Name: "nested", Version: "2.0.0"}] = &sntypes.ResolvedPackage{
		ID:           sntypes.PackageId{Name: "nested", Version: "2.0.0"},
		Tarball:      "https://registry.npmjs.org/nested/-/nested-2.0.0.tgz",
		Dependencies: map[string]sntypes.PackageId{},
	}
	return g
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	graph := sampleGraph()
	require.NoError(t, Write(path, graph))

	lf, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Version, lf.Version)
	assert.Len(t, lf.Packages, 2)

	rebuilt, err := ToGraph(lf)
	require.NoError(t, err)

	if diff := cmp.Diff(graph.Root.Dependencies, rebuilt.Root.Dependencies); diff != "" {
		t.Errorf("root dependencies mismatch (-want +got):\n%s", diff)
	}

	origLeftPad := graph.Packages[sntypes.PackageId{Name: "left-pad", Version: "1.3.1"}]
	rebuiltLeftPad := rebuilt.Packages[sntypes.PackageId{Name: "left-pad", Version: "1.3.1"}]
	require.NotNil(t, rebuiltLeftPad)
	assert.Equal(t, origLeftPad.Tarball, rebuiltLeftPad.Tarball)
	assert.Equal(t, origLeftPad.Integrity, rebuiltLeftPad.Integrity)
	assert.Equal(t, origLeftPad.Dependencies, rebuiltLeftPad.Dependencies)
}

func TestWriteSortsMapKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, Write(path, sampleGraph()))

	data, err := Read(path)
	require.NoError(t, err)
	require.NoError(t, ToGraphValidates(data))
}

// ToGraphValidates is a small helper asserting the rebuilt graph obeys
// the edge/root invariants ResolutionGraph.Validate checks.
func ToGraphValidates(lf *Lockfile) error {
	g, err := ToGraph(lf)
	if err != nil {
		return err
	}
	return g.Validate()
}

func TestSplitNameVersionScoped(t *testing.T) {
	name, version, err := splitNameVersion("@scope/pkg@1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "@scope/pkg", name)
	assert.Equal(t, "1.2.3", version)
}

func TestSplitNameVersionUnscoped(t *testing.T) {
	name, version, err := splitNameVersion("left-pad@1.3.1")
	require.NoError(t, err)
	assert.Equal(t, "left-pad", name)
	assert.Equal(t, "1.3.1", version)
}

func TestSplitNameVersionMissingVersion(t *testing.T) {
	_, _, err := splitNameVersion("left-pad")
	require.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestSortedPackageRefsDeterministic(t *testing.T) {
	lf := FromGraph(sampleGraph())
	refs := SortedPackageRefs(lf)
	assert.Equal(t, []string{"left-pad@1.3.1", "nested@2.0.0"}, refs)
}
