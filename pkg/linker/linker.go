// Package linker implements the Linker described in spec.md §4.8: it
// takes a closed ResolutionGraph plus a materialized content store and
// reproduces the graph as a nested node_modules tree, wiring binaries
// and workspace-local symlinks along the way. Nothing here talks to a
// registry; everything it needs (store paths, bin fields, bundled
// dependency lists) already lives on the graph or the store.
package linker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/internal/fsx"
	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/snpmver"
	"github.com/snpm-dev/snpm/pkg/sntypes"
	"github.com/snpm-dev/snpm/pkg/store"
)

// WorkspaceMember is what the Linker needs to know about one workspace
// catalog entry to wire a "workspace:" dependency: where its source
// tree lives and what version it currently declares, for validating a
// semver-constrained workspace reference.
type WorkspaceMember struct {
	Dir     string
	Version string
}

// Options configures a Linker instance for one project.
type Options struct {
	Backend  config.LinkBackend
	Hoisting config.Hoisting
	Store    *store.Store

	// ScriptsAllowed reports whether name's install script may run.
	// Packages it accepts are materialized by deep copy rather than
	// hardlink/symlink (spec.md §4.8: a script must never be able to
	// mutate shared store content through another project's link).
	ScriptsAllowed func(name string) bool

	// Patches maps a resolved package to the patch file that must be
	// applied after it is materialized (SPEC_FULL "Patched
	// dependencies"). A patched package is always deep-copied, for the
	// same shared-inode reason as an install-scripted one.
	Patches      map[sntypes.PackageId]string
	PatchApplier func(packageDir, patchFile string) error

	// Workspaces is the workspace catalog's member set, keyed by
	// package name, used to resolve "workspace:" dependencies.
	Workspaces map[string]WorkspaceMember
}

// Linker links one project's node_modules tree from a ResolutionGraph.
type Linker struct {
	opts Options
}

// New returns a Linker configured by opts.
func New(opts Options) *Linker {
	return &Linker{opts: opts}
}

// Link implements spec.md §4.8's procedure: remove and recreate
// node_modules, then materialize every root dependency (filtered by
// includeDev against devRootNames) and its transitive closure beneath
// it, applying the configured hoisting policy and wiring binaries and
// workspace symlinks. rootSpecs carries the manifest's raw dependency
// specifiers (including any "workspace:" ones, which never enter
// graph since the Resolver skips them) so workspace wiring can find
// them.
func (l *Linker) Link(ctx context.Context, rootDir string, graph *sntypes.ResolutionGraph, rootSpecs map[string]string, devRootNames map[string]bool, includeDev bool) ([]Placement, error) {
	nodeModulesDir := filepath.Join(rootDir, "node_modules")

	if err := os.RemoveAll(nodeModulesDir); err != nil {
		return nil, &snerr.WriteFile{Io: snerr.Io{Path: nodeModulesDir, Err: err}}
	}
	if err := fsx.EnsureDir(nodeModulesDir); err != nil {
		return nil, err
	}

	occs, err := l.collectOccurrences(rootDir, graph, devRootNames, includeDev)
	if err != nil {
		return nil, err
	}
	occs = l.applyHoisting(nodeModulesDir, occs)

	for _, o := range occs {
		if err := l.place(ctx, graph, o); err != nil {
			return nil, err
		}
	}
	if err := l.wireBins(occs, graph); err != nil {
		return nil, err
	}
	if err := l.linkWorkspaces(rootDir, rootSpecs, devRootNames, includeDev); err != nil {
		return nil, err
	}

	placements := make([]Placement, 0, len(occs))
	for _, o := range occs {
		placements = append(placements, Placement{
			ID:     o.ID,
			Dir:    o.Dir,
			BinDir: filepath.Join(o.NodeModulesDir, ".bin"),
		})
	}
	return placements, nil
}

// Placement reports where one resolved package ended up after
// linking, so a caller that needs to run its install script (spec.md
// §4.10) knows the working directory and the node_modules/.bin to put
// on PATH without recomputing the hoisting decision itself.
type Placement struct {
	ID     sntypes.PackageId
	Dir    string
	BinDir string
}

// place materializes one occurrence's store content at its target
// directory, using a deep copy instead of the configured backend when
// install scripts are allowed for the package or it carries a patch.
func (l *Linker) place(ctx context.Context, graph *sntypes.ResolutionGraph, o occurrence) error {
	node, ok := graph.Packages[o.ID]
	if !ok {
		return &snerr.StoreMissing{ID: o.ID.String()}
	}
	if !l.opts.Store.HasSentinel(o.ID) {
		return &snerr.StoreMissing{ID: o.ID.String()}
	}
	src := l.opts.Store.PackageRoot(o.ID)

	patchFile, patched := l.opts.Patches[o.ID]
	deepCopy := patched
	if l.opts.ScriptsAllowed != nil && l.opts.ScriptsAllowed(node.ID.Name) {
		deepCopy = true
	}

	if err := fsx.Place(src, o.Dir, l.opts.Backend, deepCopy); err != nil {
		return &snerr.WriteFile{Io: snerr.Io{Path: o.Dir, Err: err}}
	}

	if patched {
		if l.opts.PatchApplier == nil {
			return errors.Errorf("linker: %s has a patch but no PatchApplier is configured", o.ID)
		}
		if err := l.opts.PatchApplier(o.Dir, patchFile); err != nil {
			return errors.Wrapf(err, "linker: applying patch to %s", o.ID)
		}
	}
	return nil
}

// occurrence is one placement of a resolved package somewhere in the
// tree: either its natural nested slot or a hoisted root slot.
type occurrence struct {
	ID             sntypes.PackageId
	Name           string // the key this package is reached by from its parent
	NodeModulesDir string // the node_modules directory occurrence.Dir sits in
	Dir            string // NodeModulesDir joined with Name
}

// collectOccurrences performs the depth-first walk spec.md §4.8
// describes: every root dependency (filtered by devRootNames when
// includeDev is false) recursively linked beneath <parent>/node_modules.
// A cycle (A depends on B depends on A) is broken by placing the
// repeated package but not descending into it again; Node's own
// upward module resolution finds the rest of the cycle further up the
// ancestor chain.
func (l *Linker) collectOccurrences(rootDir string, graph *sntypes.ResolutionGraph, devRootNames map[string]bool, includeDev bool) ([]occurrence, error) {
	var out []occurrence

	var walk func(parentDir string, name string, id sntypes.PackageId, ancestors map[sntypes.PackageId]bool) error
	walk = func(parentDir string, name string, id sntypes.PackageId, ancestors map[sntypes.PackageId]bool) error {
		nodeModulesDir := filepath.Join(parentDir, "node_modules")
		dir := filepath.Join(nodeModulesDir, name)
		out = append(out, occurrence{ID: id, Name: name, NodeModulesDir: nodeModulesDir, Dir: dir})

		if ancestors[id] {
			return nil
		}
		node, ok := graph.Packages[id]
		if !ok {
			return &snerr.StoreMissing{ID: id.String()}
		}

		next := make(map[sntypes.PackageId]bool, len(ancestors)+1)
		for a := range ancestors {
			next[a] = true
		}
		next[id] = true

		for _, childName := range sortedDepNames(node.Dependencies) {
			if err := walk(dir, childName, node.Dependencies[childName], next); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range sortedRootDepNames(graph.Root.Dependencies) {
		if devRootNames[name] && !includeDev {
			continue
		}
		rd := graph.Root.Dependencies[name]
		if err := walk(rootDir, name, rd.Resolved, map[sntypes.PackageId]bool{}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func sortedDepNames(m map[string]sntypes.PackageId) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedRootDepNames(m map[string]sntypes.RootDependency) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// linkWorkspaces wires every "workspace:" root dependency to a
// directory symlink at <root>/node_modules/<name> pointing at the
// member's source tree, per spec.md §4.8. A semver-constrained
// reference ("workspace:^1.0.0") must be satisfied by the member's
// declared version or the link fails with WorkspaceConfig.
func (l *Linker) linkWorkspaces(rootDir string, rootSpecs map[string]string, devRootNames map[string]bool, includeDev bool) error {
	nodeModulesDir := filepath.Join(rootDir, "node_modules")

	names := make([]string, 0, len(rootSpecs))
	for n := range rootSpecs {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		rng, ok := workspaceRange(rootSpecs[name])
		if !ok {
			continue
		}
		if devRootNames[name] && !includeDev {
			continue
		}

		member, ok := l.opts.Workspaces[name]
		if !ok {
			return &snerr.WorkspaceConfig{Reason: fmt.Sprintf("%q declares a workspace: dependency but is not a workspace member", name)}
		}
		if rng != "" && rng != "*" {
			rangeSet, err := snpmver.Parse(rng)
			if err != nil {
				return &snerr.WorkspaceConfig{Reason: fmt.Sprintf("%q: invalid workspace range %q: %v", name, rng, err)}
			}
			v, err := snpmver.ParseVersion(member.Version)
			if err != nil {
				return &snerr.WorkspaceConfig{Reason: fmt.Sprintf("%q: member version %q is not valid semver: %v", name, member.Version, err)}
			}
			if !rangeSet.Matches(v) {
				return &snerr.WorkspaceConfig{Reason: fmt.Sprintf("%q: workspace member version %s does not satisfy %s", name, member.Version, rng)}
			}
		}

		target := filepath.Join(nodeModulesDir, name)
		if err := os.RemoveAll(target); err != nil {
			return &snerr.WriteFile{Io: snerr.Io{Path: target, Err: err}}
		}
		if err := fsx.EnsureDir(filepath.Dir(target)); err != nil {
			return err
		}
		abs, err := filepath.Abs(member.Dir)
		if err != nil {
			return &snerr.WorkspaceConfig{Reason: fmt.Sprintf("%q: resolving workspace path: %v", name, err)}
		}
		if err := os.Symlink(abs, target); err != nil {
			return &snerr.WriteFile{Io: snerr.Io{Path: target, Err: err}}
		}
	}
	return nil
}

// workspaceRange reports whether spec is a "workspace:" protocol
// reference and, if so, the range (or "*") after the prefix.
func workspaceRange(spec string) (string, bool) {
	if !strings.HasPrefix(spec, "workspace:") {
		return "", false
	}
	return strings.TrimPrefix(spec, "workspace:"), true
}
