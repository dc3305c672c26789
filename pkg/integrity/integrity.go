// Package integrity implements the IntegrityMarker described in
// spec.md §4.9/§6: a single-line fingerprint of the resolved graph
// written into node_modules, letting the ScenarioDetector recognize a
// Hot install without touching the registry or the store.
package integrity

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"

	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// FileName is the marker's name within a project's node_modules.
const FileName = ".snpm-integrity"

// MarkerPath returns the marker file path for a project's node_modules
// directory.
func MarkerPath(nodeModulesDir string) string {
	return filepath.Join(nodeModulesDir, FileName)
}

// Fingerprint computes a deterministic 64-bit hash over the stable
// fields of graph: root dependency names/requested ranges/resolved
// versions, and every package's name/version, in sorted iteration
// order. A collision only ever degrades a Hot install to a rebuild; it
// never causes silent corruption, so FNV-1a's 64 bits are sufficient
// (spec.md §4.9) without reaching for a cryptographic hash.
func Fingerprint(graph *sntypes.ResolutionGraph) string {
	h := fnv.New64a()

	rootNames := make([]string, 0, len(graph.Root.Dependencies))
	for name := range graph.Root.Dependencies {
		rootNames = append(rootNames, name)
	}
	sort.Strings(rootNames)
	for _, name := range rootNames {
		rd := graph.Root.Dependencies[name]
		fmt.Fprintf(h, "root:%s:%s:%s\n", name, rd.Requested, rd.Resolved)
	}

	ids := make([]sntypes.PackageId, 0, len(graph.Packages))
	for id := range graph.Packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	for _, id := range ids {
		fmt.Fprintf(h, "pkg:%s\n", id)
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

// Line renders the marker file's sole content line for graph.
func Line(graph *sntypes.ResolutionGraph) string {
	return fmt.Sprintf("lockfile: %s\n", Fingerprint(graph))
}

// Write (re)writes the marker for graph under nodeModulesDir.
func Write(nodeModulesDir string, graph *sntypes.ResolutionGraph) error {
	if err := os.MkdirAll(nodeModulesDir, 0o755); err != nil {
		return &snerr.WriteFile{Io: snerr.Io{Path: nodeModulesDir, Err: err}}
	}
	path := MarkerPath(nodeModulesDir)
	if err := os.WriteFile(path, []byte(Line(graph)), 0o644); err != nil {
		return &snerr.WriteFile{Io: snerr.Io{Path: path, Err: err}}
	}
	return nil
}

// Matches reports whether the marker already on disk under
// nodeModulesDir equals graph's fingerprint line - the Hot-install
// check in spec.md §4.9.
func Matches(nodeModulesDir string, graph *sntypes.ResolutionGraph) bool {
	data, err := os.ReadFile(MarkerPath(nodeModulesDir))
	if err != nil {
		return false
	}
	return string(data) == Line(graph)
}
