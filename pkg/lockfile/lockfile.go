// Package lockfile implements the canonical YAML lockfile format from
// spec.md §4.7: writing a ResolutionGraph out, reading it back, and
// rebuilding a graph from the result. gopkg.in/yaml.v2 is used rather
// than hand-rolled emission because it already sorts map keys when
// marshaling, which is exactly the "maps sorted by key" requirement the
// write() contract calls for.
package lockfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// FileName is the conventional lockfile name at a project or workspace
// root.
const FileName = "snpm-lock.yaml"

// Version is the lockfile schema version this package writes and
// expects to read.
const Version = 1

// Lockfile is the on-disk YAML document shape.
type Lockfile struct {
	Version  int                        `yaml:"version"`
	Root     Root                       `yaml:"root"`
	Packages map[string]Package         `yaml:"packages"`
}

// Root mirrors ResolutionRoot: the project's direct dependencies as
// actually resolved.
type Root struct {
	Dependencies map[string]RootDep `yaml:"dependencies"`
}

// RootDep is one root dependency entry. It deliberately omits the
// resolved package's name (spec.md §4.7's literal schema has none),
// so a root dependency rewritten by an npm:-alias override is assumed,
// on reload, to resolve to a package of the same name as the key -
// true for the overwhelming majority of real manifests; see DESIGN.md.
type RootDep struct {
	Requested string `yaml:"requested"`
	Version   string `yaml:"version"`
}

// Package is one entry of the packages map, keyed by "<name>@<version>".
type Package struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Tarball      string            `yaml:"tarball"`
	Integrity    *string           `yaml:"integrity"`
	Dependencies map[string]string `yaml:"dependencies,omitempty"`
}

// FromGraph converts a resolved graph into its lockfile representation.
func FromGraph(graph *sntypes.ResolutionGraph) *Lockfile {
	lf := &Lockfile{
		Version:  Version,
		Root:     Root{Dependencies: make(map[string]RootDep, len(graph.Root.Dependencies))},
		Packages: make(map[string]Package, len(graph.Packages)),
	}
	for name, rd := range graph.Root.Dependencies {
		lf.Root.Dependencies[name] = RootDep{Requested: rd.Requested, Version: rd.Resolved.Version}
	}
	for id, pkg := range graph.Packages {
		entry := Package{
			Name:    id.Name,
			Version: id.Version,
			Tarball: pkg.Tarball,
		}
		if pkg.Integrity != "" {
			integrity := pkg.Integrity
			entry.Integrity = &integrity
		}
		if len(pkg.Dependencies) > 0 {
			entry.Dependencies = make(map[string]string, len(pkg.Dependencies))
			for depName, depID := range pkg.Dependencies {
				entry.Dependencies[depName] = depID.String()
			}
		}
		lf.Packages[id.String()] = entry
	}
	return lf
}

// Write serializes graph to path as canonical YAML.
func Write(path string, graph *sntypes.ResolutionGraph) error {
	data, err := yaml.Marshal(FromGraph(graph))
	if err != nil {
		return snerr.Wrap(err, "lockfile: encode")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &snerr.Lockfile{Path: path, Reason: "write failed: " + err.Error()}
	}
	return nil
}

// Read loads and parses the lockfile at path.
func Read(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &snerr.Lockfile{Path: path, Reason: "unreadable: " + err.Error()}
	}
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, &snerr.Lockfile{Path: path, Reason: "malformed: " + err.Error()}
	}
	return &lf, nil
}

// ToGraph rebuilds a ResolutionGraph from a parsed Lockfile. Only
// top-level dependencies are reconstructed: peerDependencies are not
// re-validated from a lockfile, per spec.md §4.7.
func ToGraph(lf *Lockfile) (*sntypes.ResolutionGraph, error) {
	graph := sntypes.NewResolutionGraph()

	for ref, entry := range lf.Packages {
		name, version, err := splitNameVersion(ref)
		if err != nil {
			return nil, &snerr.Lockfile{Reason: err.Error()}
		}
		id := sntypes.PackageId{Name: name, Version: version}
		node := &sntypes.ResolvedPackage{
			ID:           id,
			Tarball:      entry.Tarball,
			Dependencies: make(map[string]sntypes.PackageId, len(entry.Dependencies)),
		}
		if entry.Integrity != nil {
			node.Integrity = *entry.Integrity
		}
		for depName, depRef := range entry.Dependencies {
			depPkgName, depVersion, err := splitNameVersion(depRef)
			if err != nil {
				return nil, &snerr.Lockfile{Reason: fmt.Sprintf("dependency %q: %v", depRef, err)}
			}
			node.Dependencies[depName] = sntypes.PackageId{Name: depPkgName, Version: depVersion}
		}
		graph.Packages[id] = node
	}

	for name, rd := range lf.Root.Dependencies {
		graph.Root.Dependencies[name] = sntypes.RootDependency{
			Requested: rd.Requested,
			Resolved:  sntypes.PackageId{Name: name, Version: rd.Version},
		}
	}

	return graph, nil
}

// splitNameVersion splits a "<name>@<version>" reference, honoring a
// leading "@scope/" so the scope marker isn't mistaken for the
// name/version separator.
func splitNameVersion(ref string) (string, string, error) {
	if ref == "" {
		return "", "", fmt.Errorf("empty package reference")
	}
	offset := 0
	if strings.HasPrefix(ref, "@") {
		slash := strings.Index(ref, "/")
		if slash < 0 {
			return "", "", fmt.Errorf("malformed scoped reference %q", ref)
		}
		offset = slash
	}
	at := strings.Index(ref[offset:], "@")
	if at < 0 {
		return "", "", fmt.Errorf("reference %q has no version", ref)
	}
	at += offset
	return ref[:at], ref[at+1:], nil
}

// SortedPackageRefs returns the packages map's keys in sorted order,
// for callers (the Orchestrator's verbose post-write diagnostics) that
// want deterministic iteration without re-deriving it from yaml's own
// marshal order.
func SortedPackageRefs(lf *Lockfile) []string {
	refs := make([]string, 0, len(lf.Packages))
	for ref := range lf.Packages {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
