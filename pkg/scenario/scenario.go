// Package scenario implements the ScenarioDetector from spec.md §4.9:
// deciding, before touching the registry, how much of an install can
// be skipped by comparing the on-disk lockfile, its IntegrityMarker,
// and the content store against the project's current manifest.
package scenario

import (
	"reflect"

	"github.com/snpm-dev/snpm/pkg/integrity"
	"github.com/snpm-dev/snpm/pkg/lockfile"
	"github.com/snpm-dev/snpm/pkg/sntypes"
	"github.com/snpm-dev/snpm/pkg/store"
)

// Scenario is the install path the Orchestrator should take.
type Scenario int

const (
	// Cold means a full resolve is required; no cached graph applies.
	Cold Scenario = iota
	// Hot means nothing needs to change: resolution, materialization,
	// linking, and scripts are all skipped.
	Hot
	// WarmLinkOnly means the graph is known and every package is
	// already in the store; only relinking (and scripts) is needed.
	WarmLinkOnly
	// WarmPartialCache means the graph is known but some packages must
	// still be downloaded before linking.
	WarmPartialCache
)

func (s Scenario) String() string {
	switch s {
	case Hot:
		return "hot"
	case WarmLinkOnly:
		return "warm-link-only"
	case WarmPartialCache:
		return "warm-partial-cache"
	default:
		return "cold"
	}
}

// Detector decides a Scenario for one project install.
type Detector struct {
	Store *store.Store
}

// Detect implements the decision tree in spec.md §4.9. A nil graph
// accompanies Cold: the caller must run a full resolve. For every other
// scenario, the returned graph is the one to materialize/link/mark
// from without re-entering the Resolver.
func (d *Detector) Detect(lockfilePath string, rootRanges map[string]string, nodeModulesDir string, force bool) (Scenario, *sntypes.ResolutionGraph) {
	lf, err := lockfile.Read(lockfilePath)
	if err != nil {
		return Cold, nil
	}

	requested := make(map[string]string, len(lf.Root.Dependencies))
	for name, rd := range lf.Root.Dependencies {
		requested[name] = rd.Requested
	}
	if !reflect.DeepEqual(requested, rootRanges) {
		return Cold, nil
	}

	graph, err := lockfile.ToGraph(lf)
	if err != nil {
		return Cold, nil
	}

	if !force && integrity.Matches(nodeModulesDir, graph) {
		return Hot, graph
	}

	for id := range graph.Packages {
		if !d.Store.HasSentinel(id) {
			return WarmPartialCache, graph
		}
	}
	return WarmLinkOnly, graph
}
