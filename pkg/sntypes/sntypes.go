// Package sntypes holds the data model shared by every core component:
// the resolution graph and its constituent package records. None of the
// types here know how to fetch, store, or link anything; they are the
// nouns that the other packages operate on.
package sntypes

import "fmt"

// Protocol selects which RegistryClient dispatch path resolves a
// dependency edge.
type Protocol string

const (
	ProtocolNpm  Protocol = "npm"
	ProtocolJSR  Protocol = "jsr"
	ProtocolGit  Protocol = "git"
	ProtocolFile Protocol = "file"
)

// PackageId is the canonical key for a resolved package: a concrete
// name and version. It is totally ordered lexicographically on
// (name, version) so that graph iteration is deterministic.
type PackageId struct {
	Name    string
	Version string
}

func (id PackageId) String() string {
	return fmt.Sprintf("%s@%s", id.Name, id.Version)
}

// Less orders two ids lexicographically on (Name, Version).
func (id PackageId) Less(other PackageId) bool {
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	return id.Version < other.Version
}

// PeerMeta carries the optional flag recorded for a peerDependency entry.
type PeerMeta struct {
	Optional bool
}

// Dist describes where and how to fetch a version's tarball.
type Dist struct {
	Tarball   string
	Integrity string
}

// RegistryVersion is one published release of a package, as reported by
// a registry metadata document.
type RegistryVersion struct {
	Version              string
	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerDependenciesMeta map[string]PeerMeta
	// BundledDependencies is either a list of names, or, if AllBundled is
	// set, every direct dependency is considered bundled (the "bundledDependencies: true"
	// form).
	BundledDependencies []string
	AllBundled          bool
	Dist                Dist
	OS                  []string
	CPU                 []string
	Bin                 map[string]string
}

// RegistryPackage is the full metadata document for one package name.
type RegistryPackage struct {
	Name     string
	Versions map[string]RegistryVersion
	DistTags map[string]string
	// Time maps a version string (plus the synthetic keys "created" and
	// "modified") to an RFC3339 publish timestamp.
	Time map[string]string
}

// ResolvedPackage is a node in the ResolutionGraph.
type ResolvedPackage struct {
	ID                  PackageId
	Tarball             string
	Integrity           string
	Dependencies        map[string]PackageId
	PeerDependencies    map[string]string
	PeerDependenciesMeta map[string]PeerMeta
	BundledDependencies []string
	HasBin              bool
	Bin                 map[string]string
}

// RootDependency is a single entry of the synthetic root's dependency map.
type RootDependency struct {
	Requested string
	Resolved  PackageId
}

// ResolutionRoot represents the project manifest's direct dependencies
// as they were actually resolved.
type ResolutionRoot struct {
	Dependencies map[string]RootDependency
}

// ResolutionGraph is the closed set of concrete packages implied by a
// manifest: the synthetic root plus every package reachable from it.
type ResolutionGraph struct {
	Root     ResolutionRoot
	Packages map[PackageId]*ResolvedPackage
}

// NewResolutionGraph returns an empty graph ready for population.
func NewResolutionGraph() *ResolutionGraph {
	return &ResolutionGraph{
		Root:     ResolutionRoot{Dependencies: make(map[string]RootDependency)},
		Packages: make(map[PackageId]*ResolvedPackage),
	}
}

// Validate checks the graph invariants from the data model section:
// every dependency edge and every root resolution must point at a node
// that actually exists in Packages.
func (g *ResolutionGraph) Validate() error {
	for id, pkg := range g.Packages {
		for dep, depID := range pkg.Dependencies {
			if _, ok := g.Packages[depID]; !ok {
				return fmt.Errorf("sntypes: %s depends on %s (%s) which is missing from the graph", id, dep, depID)
			}
		}
	}
	for name, rd := range g.Root.Dependencies {
		if _, ok := g.Packages[rd.Resolved]; !ok {
			return fmt.Errorf("sntypes: root dependency %s resolves to %s which is missing from the graph", name, rd.Resolved)
		}
	}
	return nil
}
