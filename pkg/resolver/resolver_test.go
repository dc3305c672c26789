package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snpm-dev/snpm/internal/testregistry"
	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/registry"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

func putPackage(t *testing.T, srv *testregistry.Server, name string, versions map[string]interface{}, distTags map[string]string) {
	t.Helper()
	doc := map[string]interface{}{
		"name":      name,
		"versions":  versions,
		"dist-tags": distTags,
	}
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	srv.PutRaw(name, body)
}

func newTestClient(t *testing.T, srv *testregistry.Server) *registry.Client {
	t.Helper()
	cfg := &config.Config{DefaultRegistry: srv.URL}
	return registry.NewClient(cfg, registry.NewCache(t.TempDir(), 7))
}

func TestResolveSimpleTree(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "left-pad", map[string]interface{}{
		"1.3.1": map[string]interface{}{"version": "1.3.1"},
	}, map[string]string{"latest": "1.3.1"})

	client := newTestClient(t, srv)
	r := New(client, nil, Options{Now: time.Now()})

	graph, err := r.Resolve(context.Background(), map[string]RootSpec{
		"left-pad": {Range: "^1.0.0"},
	})
	require.NoError(t, err)
	require.NoError(t, graph.Validate())

	id := graph.Root.Dependencies["left-pad"].Resolved
	assert.Equal(t, sntypes.PackageId{Name: "left-pad", Version: "1.3.1"}, id)
}

func TestResolveFirstResolutionWinsOnNameCollision(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "a", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0", "dependencies": map[string]string{"c": "^1.0.0"}},
	}, map[string]string{"latest": "1.0.0"})
	putPackage(t, srv, "b", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0", "dependencies": map[string]string{"c": "^2.0.0"}},
	}, map[string]string{"latest": "1.0.0"})
	putPackage(t, srv, "c", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0"},
		"2.0.0": map[string]interface{}{"version": "2.0.0"},
	}, map[string]string{"latest": "2.0.0"})

	client := newTestClient(t, srv)
	r := New(client, nil, Options{Now: time.Now()})

	graph, err := r.Resolve(context.Background(), map[string]RootSpec{
		"a": {Range: "^1.0.0"},
		"b": {Range: "^1.0.0"},
	})
	require.NoError(t, err)

	// "a" is visited first (lexicographic root order) and fully resolves
	// its own subtree, including c@1.0.0, before "b" is ever visited.
	cCount := 0
	for id := range graph.Packages {
		if id.Name == "c" {
			cCount++
			assert.Equal(t, "1.0.0", id.Version)
		}
	}
	assert.Equal(t, 1, cCount, "only one version of c should appear in the graph")

	bID := graph.Root.Dependencies["b"].Resolved
	bNode := graph.Packages[bID]
	assert.Equal(t, sntypes.PackageId{Name: "c", Version: "1.0.0"}, bNode.Dependencies["c"])
}

func TestResolveOptionalDependencyDroppedSilently(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "has-optional", map[string]interface{}{
		"1.0.0": map[string]interface{}{
			"version":              "1.0.0",
			"optionalDependencies": map[string]string{"does-not-exist": "^1.0.0"},
		},
	}, map[string]string{"latest": "1.0.0"})

	client := newTestClient(t, srv)
	r := New(client, nil, Options{Now: time.Now()})

	graph, err := r.Resolve(context.Background(), map[string]RootSpec{
		"has-optional": {Range: "^1.0.0"},
	})
	require.NoError(t, err)

	id := graph.Root.Dependencies["has-optional"].Resolved
	node := graph.Packages[id]
	_, present := node.Dependencies["does-not-exist"]
	assert.False(t, present)
}

func TestResolveOverrideRedirectsByName(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "wants-old", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0", "dependencies": map[string]string{"lodash": "^3.0.0"}},
	}, map[string]string{"latest": "1.0.0"})
	putPackage(t, srv, "lodash", map[string]interface{}{
		"3.0.0": map[string]interface{}{"version": "3.0.0"},
		"4.17.21": map[string]interface{}{"version": "4.17.21"},
	}, map[string]string{"latest": "4.17.21"})

	client := newTestClient(t, srv)
	r := New(client, map[string]string{"lodash": "^4.0.0"}, Options{Now: time.Now()})

	graph, err := r.Resolve(context.Background(), map[string]RootSpec{
		"wants-old": {Range: "^1.0.0"},
	})
	require.NoError(t, err)

	id := graph.Root.Dependencies["wants-old"].Resolved
	node := graph.Packages[id]
	assert.Equal(t, sntypes.PackageId{Name: "lodash", Version: "4.17.21"}, node.Dependencies["lodash"])
}

func TestResolvePeerMissingFatalWhenStrict(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "needs-react", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0", "peerDependencies": map[string]string{"react": "^18.0.0"}},
	}, map[string]string{"latest": "1.0.0"})

	client := newTestClient(t, srv)
	r := New(client, nil, Options{Now: time.Now(), StrictPeers: true})

	_, err := r.Resolve(context.Background(), map[string]RootSpec{
		"needs-react": {Range: "^1.0.0"},
	})
	require.Error(t, err)
}

func TestResolvePeerMissingWarningWhenNotStrict(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "needs-react", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0", "peerDependencies": map[string]string{"react": "^18.0.0"}},
	}, map[string]string{"latest": "1.0.0"})

	client := newTestClient(t, srv)
	r := New(client, nil, Options{Now: time.Now(), StrictPeers: false})

	graph, err := r.Resolve(context.Background(), map[string]RootSpec{
		"needs-react": {Range: "^1.0.0"},
	})
	require.NoError(t, err)
	assert.NotNil(t, graph)
}

func TestResolvePeerSatisfied(t *testing.T) {
	srv := testregistry.New()
	defer srv.Close()

	putPackage(t, srv, "needs-react", map[string]interface{}{
		"1.0.0": map[string]interface{}{"version": "1.0.0", "peerDependencies": map[string]string{"react": "^18.0.0"}},
	}, map[string]string{"latest": "1.0.0"})
	putPackage(t, srv, "react", map[string]interface{}{
		"18.2.0": map[string]interface{}{"version": "18.2.0"},
	}, map[string]string{"latest": "18.2.0"})

	client := newTestClient(t, srv)
	r := New(client, nil, Options{Now: time.Now(), StrictPeers: true})

	_, err := r.Resolve(context.Background(), map[string]RootSpec{
		"needs-react": {Range: "^1.0.0"},
		"react":       {Range: "^18.0.0"},
	})
	require.NoError(t, err)
}

func TestParseSpecNpmAlias(t *testing.T) {
	ps := parseSpec("foo", "npm:bar@^1.2.3", sntypes.ProtocolNpm)
	assert.Equal(t, sntypes.ProtocolNpm, ps.Protocol)
	assert.Equal(t, "bar", ps.FetchName)
	assert.Equal(t, "^1.2.3", ps.RangeOrSource)
}

func TestParseSpecScopedNpmAlias(t *testing.T) {
	ps := parseSpec("foo", "npm:@scope/bar@^1.2.3", sntypes.ProtocolNpm)
	assert.Equal(t, "@scope/bar", ps.FetchName)
	assert.Equal(t, "^1.2.3", ps.RangeOrSource)
}

func TestParseSpecGithubShorthand(t *testing.T) {
	ps := parseSpec("foo", "github:user/repo#deadbeef", "")
	assert.Equal(t, sntypes.ProtocolGit, ps.Protocol)
	assert.Equal(t, "foo", ps.FetchName)
	assert.Equal(t, "https://github.com/user/repo.git#deadbeef", ps.RangeOrSource)
}

func TestParseSpecWorkspace(t *testing.T) {
	ps := parseSpec("sibling", "workspace:*", "")
	assert.True(t, ps.Workspace)
}

func TestParseSpecPlainRangeDefaultsToNpm(t *testing.T) {
	ps := parseSpec("left-pad", "^1.2.3", "")
	assert.Equal(t, sntypes.ProtocolNpm, ps.Protocol)
	assert.Equal(t, "left-pad", ps.FetchName)
	assert.Equal(t, "^1.2.3", ps.RangeOrSource)
}
