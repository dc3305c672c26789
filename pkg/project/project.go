// Package project implements the workspace catalog described in
// SPEC_FULL's "Workspace catalog" module: a snpm-workspace.toml at the
// workspace root, parsed with pelletier/go-toml the way the teacher's
// own registry config reads its TOML (struct tags plus toml.Unmarshal,
// no manual tree queries), and the discovery of workspace member
// projects from a root manifest's "workspaces" glob list.
package project

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/manifest"
	"github.com/snpm-dev/snpm/pkg/snerr"
)

// WorkspaceFileName is the workspace-root config file snpm reads for a
// dependency catalog.
const WorkspaceFileName = "snpm-workspace.toml"

// Catalog is the name -> range table a snpm-workspace.toml declares
// under [catalog]. A zero-value Catalog (nil Entries) behaves as an
// empty one: Resolve always reports no match.
type Catalog struct {
	Entries map[string]string
}

type rawCatalogFile struct {
	Catalog map[string]string `toml:"catalog"`
}

// ReadCatalog parses a snpm-workspace.toml document from r.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "project: reading workspace config")
	}
	var raw rawCatalogFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "project: parsing snpm-workspace.toml")
	}
	return &Catalog{Entries: raw.Catalog}, nil
}

// ReadCatalogFile loads the catalog at path. A missing file is not an
// error: most workspaces don't declare one, so this returns an empty
// Catalog instead.
func ReadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{Entries: map[string]string{}}, nil
		}
		return nil, errors.Wrapf(err, "project: opening %s", path)
	}
	defer f.Close()
	return ReadCatalog(f)
}

// Resolve implements the "Catalog" glossary entry: a manifest
// dependency range of the literal form "catalog:" looks up depName
// itself in the catalog; "catalog:<name>" looks up name instead.
// Resolve reports false for any other range text, or when c is nil.
func (c *Catalog) Resolve(depName, rangeText string) (string, bool) {
	if c == nil {
		return "", false
	}
	if rangeText == "catalog:" {
		r, ok := c.Entries[depName]
		return r, ok
	}
	if name, ok := strings.CutPrefix(rangeText, "catalog:"); ok {
		r, ok := c.Entries[name]
		return r, ok
	}
	return "", false
}

// Member is one workspace-local project: a directory containing its
// own package.json, discovered by expanding the workspace root
// manifest's "workspaces" glob patterns.
type Member struct {
	Name    string
	Dir     string
	Version string
}

// Project is a loaded workspace root: its own manifest, its catalog,
// and every discovered member.
type Project struct {
	RootDir  string
	Manifest *manifest.Manifest
	Catalog  *Catalog
	Members  []Member
}

// Load reads rootDir's package.json, its optional snpm-workspace.toml,
// and discovers every workspace member the manifest's "workspaces"
// field names.
func Load(rootDir string) (*Project, error) {
	m, err := manifest.ReadFile(filepath.Join(rootDir, manifest.FileName))
	if err != nil {
		return nil, err
	}
	catalog, err := ReadCatalogFile(filepath.Join(rootDir, WorkspaceFileName))
	if err != nil {
		return nil, err
	}
	members, err := discoverMembers(rootDir, m.Workspaces)
	if err != nil {
		return nil, err
	}
	return &Project{RootDir: rootDir, Manifest: m, Catalog: catalog, Members: members}, nil
}

// MemberByName indexes Members for the Linker's workspace-symlink step.
func (p *Project) MemberByName() map[string]Member {
	out := make(map[string]Member, len(p.Members))
	for _, mem := range p.Members {
		out[mem.Name] = mem
	}
	return out
}

func discoverMembers(rootDir string, patterns []string) ([]Member, error) {
	seen := make(map[string]bool)
	var members []Member

	for _, pattern := range patterns {
		dirs, err := expandPattern(rootDir, pattern)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			if seen[dir] {
				continue
			}
			mf, err := manifest.ReadFile(filepath.Join(dir, manifest.FileName))
			if err != nil {
				var missing *snerr.ManifestMissing
				if errors.As(err, &missing) {
					continue // glob matched a directory with no package.json
				}
				return nil, err
			}
			seen[dir] = true
			members = append(members, Member{Name: mf.Name, Dir: dir, Version: mf.Version})
		}
	}

	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

// expandPattern resolves one "workspaces" glob entry to a set of
// directories. A pattern ending in "/**" walks recursively (via
// godirwalk, skipping node_modules) for every directory that directly
// contains a package.json; anything else is handled by the standard
// library's filepath.Glob, which covers the common "packages/*" case
// without pulling in a dedicated glob library the example pack doesn't
// carry.
func expandPattern(rootDir, pattern string) ([]string, error) {
	if rest, ok := strings.CutSuffix(pattern, "/**"); ok {
		return walkForPackageDirs(filepath.Join(rootDir, rest))
	}

	matches, err := filepath.Glob(filepath.Join(rootDir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "project: invalid workspaces pattern %q", pattern)
	}
	var dirs []string
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.IsDir() {
			dirs = append(dirs, m)
		}
	}
	return dirs, nil
}

func walkForPackageDirs(base string) ([]string, error) {
	var dirs []string
	err := godirwalk.Walk(base, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if de.Name() == "node_modules" {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, manifest.FileName)); err == nil {
				dirs = append(dirs, path)
			}
			return nil
		},
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return dirs, nil
}
