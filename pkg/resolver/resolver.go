// Package resolver implements the dependency resolver described in
// spec.md §4.6: a depth-first walk from a project's root dependencies
// that produces a closed ResolutionGraph, applying overrides, version
// selection, optional-dependency tolerance, and peer validation along
// the way.
package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/registry"
	"github.com/snpm-dev/snpm/pkg/selector"
	"github.com/snpm-dev/snpm/pkg/snlog"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// errWorkspaceSkip signals that a dependency edge points at a
// "workspace:" protocol target, which the resolver does not graph -
// the Linker wires workspace-local symlinks directly from the
// workspace catalog (SPEC_FULL "Workspace catalog").
var errWorkspaceSkip = errors.New("resolver: workspace dependency is linked, not resolved")

// RootSpec is one root dependency as the manifest declared it: the
// range text plus its default protocol (npm unless the manifest's
// loader says otherwise; a protocol tag embedded in Range still wins).
type RootSpec struct {
	Range    string
	Protocol sntypes.Protocol
}

// Options configures a single resolve.
type Options struct {
	MinAgeDays    *int
	Force         bool
	StrictPeers   bool
	OnMaterialize func(*sntypes.ResolvedPackage)
	Logger        snlog.Logger

	// Now fixes the clock min-age gating compares against; tests set
	// this explicitly, production callers leave it zero and Resolve
	// substitutes time.Now().
	Now time.Time
}

// Resolver runs one resolve against a RegistryClient.
type Resolver struct {
	client    *registry.Client
	overrides *overrideTrie
	opts      Options

	pkgMeta     *pkgMetaTrie
	nameWinners *nameWinnerTrie
	graph       *sntypes.ResolutionGraph
}

// New builds a Resolver. overrides maps a package name (or scope
// prefix ending in "/") to a replacement specifier applied to any
// transitive edge naming it, per spec.md §4.6 step 1.
func New(client *registry.Client, overrides map[string]string, opts Options) *Resolver {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &Resolver{
		client:      client,
		overrides:   newOverrideTrie(overrides),
		opts:        opts,
		pkgMeta:     newPkgMetaTrie(),
		nameWinners: newNameWinnerTrie(),
	}
}

// Resolve builds a ResolutionGraph from roots, traversing child names
// in lexicographic order for reproducibility and applying peer
// validation once the graph is closed.
func (r *Resolver) Resolve(ctx context.Context, roots map[string]RootSpec) (*sntypes.ResolutionGraph, error) {
	r.graph = sntypes.NewResolutionGraph()

	for _, name := range sortedRootNames(roots) {
		rs := roots[name]
		id, err := r.resolveEdge(ctx, name, rs.Range, rs.Protocol)
		if err != nil {
			if errors.Cause(err) == errWorkspaceSkip {
				continue
			}
			return nil, errors.Wrapf(err, "resolving root dependency %s", name)
		}
		r.graph.Root.Dependencies[name] = sntypes.RootDependency{Requested: rs.Range, Resolved: id}
	}

	if err := r.graph.Validate(); err != nil {
		return nil, err
	}
	if err := r.validatePeers(); err != nil {
		return nil, err
	}
	return r.graph, nil
}

func sortedRootNames(roots map[string]RootSpec) []string {
	names := make([]string, 0, len(roots))
	for n := range roots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedStringMapKeys(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolveEdge resolves one dependency edge (keyName, rawSpec) to a
// PackageId, recursing into its dependencies and optionalDependencies
// the first time that registry package name is encountered in this
// resolve. Subsequent edges naming the same registry package, from any
// parent and with any range, reuse the first winner (spec.md §4.6/§9).
func (r *Resolver) resolveEdge(ctx context.Context, keyName, rawSpec string, defaultProtocol sntypes.Protocol) (sntypes.PackageId, error) {
	spec := rawSpec
	if ov, ok := r.overrides.lookup(keyName); ok {
		spec = ov
	}

	ps := parseSpec(keyName, spec, defaultProtocol)
	if ps.Workspace {
		return sntypes.PackageId{}, errWorkspaceSkip
	}

	if id, ok := r.nameWinners.get(ps.FetchName); ok {
		return id, nil
	}

	pkg, err := r.fetchPackage(ctx, ps.Protocol, ps.FetchName)
	if err != nil {
		return sntypes.PackageId{}, err
	}

	var sel selector.Result
	if ps.Protocol == sntypes.ProtocolGit || ps.Protocol == sntypes.ProtocolFile {
		sel, err = soleVersion(pkg)
	} else {
		sel, err = selector.Select(keyName, ps.RangeOrSource, pkg, r.opts.MinAgeDays, r.opts.Force, r.opts.Now)
	}
	if err != nil {
		return sntypes.PackageId{}, err
	}

	id := sntypes.PackageId{Name: pkg.Name, Version: sel.Version}
	r.nameWinners.put(ps.FetchName, id)

	if _, exists := r.graph.Packages[id]; exists {
		return id, nil
	}

	node := &sntypes.ResolvedPackage{
		ID:                   id,
		Tarball:              sel.Entry.Dist.Tarball,
		Integrity:            sel.Entry.Dist.Integrity,
		Dependencies:         make(map[string]sntypes.PackageId),
		PeerDependencies:     sel.Entry.PeerDependencies,
		PeerDependenciesMeta: sel.Entry.PeerDependenciesMeta,
		BundledDependencies:  effectiveBundled(sel.Entry),
		HasBin:               len(sel.Entry.Bin) > 0,
		Bin:                  sel.Entry.Bin,
	}
	r.graph.Packages[id] = node

	if r.opts.OnMaterialize != nil {
		r.opts.OnMaterialize(node)
	}

	for _, childName := range sortedStringMapKeys(sel.Entry.Dependencies) {
		childID, err := r.resolveEdge(ctx, childName, sel.Entry.Dependencies[childName], sntypes.ProtocolNpm)
		if err != nil {
			if errors.Cause(err) == errWorkspaceSkip {
				continue
			}
			return sntypes.PackageId{}, errors.Wrapf(err, "resolving %s, a dependency of %s", childName, id)
		}
		node.Dependencies[childName] = childID
	}

	for _, childName := range sortedStringMapKeys(sel.Entry.OptionalDependencies) {
		childID, err := r.resolveEdge(ctx, childName, sel.Entry.OptionalDependencies[childName], sntypes.ProtocolNpm)
		if err != nil {
			if errors.Cause(err) != errWorkspaceSkip && r.opts.Logger != nil {
				r.opts.Logger.Verbosef("optional dependency %s of %s dropped: %v", childName, id, err)
			}
			continue
		}
		node.Dependencies[childName] = childID
	}

	return id, nil
}

func (r *Resolver) fetchPackage(ctx context.Context, protocol sntypes.Protocol, name string) (*sntypes.RegistryPackage, error) {
	key := string(protocol) + ":" + name
	if pkg, ok := r.pkgMeta.get(key); ok {
		return pkg, nil
	}
	pkg, err := r.client.Fetch(ctx, registry.DepRequest{Name: name, Protocol: protocol})
	if err != nil {
		return nil, err
	}
	r.pkgMeta.put(key, pkg)
	return pkg, nil
}

// soleVersion returns the single synthetic version a git/file-protocol
// RegistryPackage always carries (see registry.liftManifest); there is
// no range to match against since the committish or local path already
// pins the content.
func soleVersion(pkg *sntypes.RegistryPackage) (selector.Result, error) {
	for v, entry := range pkg.Versions {
		return selector.Result{Version: v, Entry: entry}, nil
	}
	return selector.Result{}, errors.Errorf("resolver: %s produced no installable version", pkg.Name)
}

// effectiveBundled expands the "bundledDependencies: true" shorthand
// into the package's full direct-dependency name list.
func effectiveBundled(rv sntypes.RegistryVersion) []string {
	if !rv.AllBundled {
		return rv.BundledDependencies
	}
	names := make([]string, 0, len(rv.Dependencies))
	for name := range rv.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
