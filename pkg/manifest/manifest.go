// Package manifest reads and writes package.json, as scoped by
// spec.md §6: name, version, dependencies, devDependencies,
// optionalDependencies, scripts, workspaces, and a tool-specific object
// carrying overrides and patchedDependencies. It is grounded on the
// teacher's types/manifest.go raw-struct-then-convert shape, generalized
// from Go's gps.ProjectConstraints to snpm's own dependency maps.
package manifest

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/snerr"
)

// FileName is the conventional manifest name.
const FileName = "package.json"

// Manifest is a parsed package.json.
type Manifest struct {
	Name                 string
	Version              string
	Dependencies         map[string]string
	DevDependencies      map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerDependenciesMeta map[string]PeerMeta
	Scripts              map[string]string
	Workspaces           []string
	Bin                  json.RawMessage

	Overrides           map[string]string
	PatchedDependencies map[string]string // "<name>@<version>" -> relative patch file path

	BundledDependencies json.RawMessage

	OnlyBuiltDependencies     []string
	IgnoredBuiltDependencies  []string
}

// PeerMeta mirrors sntypes.PeerMeta at the manifest layer.
type PeerMeta struct {
	Optional bool
}

// rawManifest is the literal on-wire shape; fields absent from Manifest
// stay in extra so a round-tripped write doesn't silently drop them.
type rawManifest struct {
	Name                 string                  `json:"name,omitempty"`
	Version              string                  `json:"version,omitempty"`
	Dependencies         map[string]string       `json:"dependencies,omitempty"`
	DevDependencies      map[string]string       `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string       `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string       `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]rawPeerMeta  `json:"peerDependenciesMeta,omitempty"`
	Scripts              map[string]string       `json:"scripts,omitempty"`
	Workspaces           []string                `json:"workspaces,omitempty"`
	Bin                  json.RawMessage         `json:"bin,omitempty"`
	BundledDependencies  json.RawMessage         `json:"bundledDependencies,omitempty"`

	Snpm *rawToolConfig `json:"snpm,omitempty"`
}

type rawPeerMeta struct {
	Optional bool `json:"optional,omitempty"`
}

// rawToolConfig is the tool-specific object spec.md §6 describes,
// nested under a top-level "snpm" key so it doesn't collide with
// fields other package managers read from the same package.json.
type rawToolConfig struct {
	Overrides                map[string]string `json:"overrides,omitempty"`
	PatchedDependencies       map[string]string `json:"patchedDependencies,omitempty"`
	OnlyBuiltDependencies     []string          `json:"onlyBuiltDependencies,omitempty"`
	IgnoredBuiltDependencies  []string          `json:"ignoredBuiltDependencies,omitempty"`
}

// Read parses a package.json from r.
func Read(r io.Reader) (*Manifest, error) {
	var raw rawManifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "manifest: decode")
	}

	m := &Manifest{
		Name:                 raw.Name,
		Version:              raw.Version,
		Dependencies:         raw.Dependencies,
		DevDependencies:      raw.DevDependencies,
		OptionalDependencies: raw.OptionalDependencies,
		PeerDependencies:     raw.PeerDependencies,
		Scripts:              raw.Scripts,
		Workspaces:           raw.Workspaces,
		Bin:                  raw.Bin,
		BundledDependencies:  raw.BundledDependencies,
	}
	if len(raw.PeerDependenciesMeta) > 0 {
		m.PeerDependenciesMeta = make(map[string]PeerMeta, len(raw.PeerDependenciesMeta))
		for name, rm := range raw.PeerDependenciesMeta {
			m.PeerDependenciesMeta[name] = PeerMeta{Optional: rm.Optional}
		}
	}
	if raw.Snpm != nil {
		m.Overrides = raw.Snpm.Overrides
		m.PatchedDependencies = raw.Snpm.PatchedDependencies
		m.OnlyBuiltDependencies = raw.Snpm.OnlyBuiltDependencies
		m.IgnoredBuiltDependencies = raw.Snpm.IgnoredBuiltDependencies
	}
	return m, nil
}

// ReadFile loads and parses the package.json at path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &snerr.ManifestMissing{Path: path}
		}
		return nil, &snerr.ManifestInvalid{Path: path, Err: err}
	}
	defer f.Close()
	m, err := Read(f)
	if err != nil {
		return nil, &snerr.ManifestInvalid{Path: path, Err: err}
	}
	return m, nil
}

// Write serializes m to w as indented JSON, field order matching the
// struct declaration order above - "best effort" preservation, per
// spec.md §6, since a full diff-minimal rewrite would require retaining
// the original byte layout, which this module does not attempt.
func Write(w io.Writer, m *Manifest) error {
	raw := rawManifest{
		Name:                 m.Name,
		Version:              m.Version,
		Dependencies:         m.Dependencies,
		DevDependencies:      m.DevDependencies,
		OptionalDependencies: m.OptionalDependencies,
		PeerDependencies:     m.PeerDependencies,
		Scripts:              m.Scripts,
		Workspaces:           m.Workspaces,
		Bin:                  m.Bin,
		BundledDependencies:  m.BundledDependencies,
	}
	if len(m.PeerDependenciesMeta) > 0 {
		raw.PeerDependenciesMeta = make(map[string]rawPeerMeta, len(m.PeerDependenciesMeta))
		for name, pm := range m.PeerDependenciesMeta {
			raw.PeerDependenciesMeta[name] = rawPeerMeta{Optional: pm.Optional}
		}
	}
	if len(m.Overrides) > 0 || len(m.PatchedDependencies) > 0 || len(m.OnlyBuiltDependencies) > 0 || len(m.IgnoredBuiltDependencies) > 0 {
		raw.Snpm = &rawToolConfig{
			Overrides:                m.Overrides,
			PatchedDependencies:      m.PatchedDependencies,
			OnlyBuiltDependencies:    m.OnlyBuiltDependencies,
			IgnoredBuiltDependencies: m.IgnoredBuiltDependencies,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(raw), "manifest: encode")
}

// WriteFile writes m to path.
func WriteFile(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return &snerr.WriteFile{Io: snerr.Io{Path: path, Err: err}}
	}
	defer f.Close()
	return Write(f, m)
}

// EffectiveDependencies merges Dependencies and, when includeDev is
// set, DevDependencies - the root dependency map the Resolver consumes.
func (m *Manifest) EffectiveDependencies(includeDev bool) map[string]string {
	out := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for name, spec := range m.Dependencies {
		out[name] = spec
	}
	if includeDev {
		for name, spec := range m.DevDependencies {
			out[name] = spec
		}
	}
	return out
}

// DevNames returns the set of dependency names declared only under
// devDependencies, so callers filtering a root-dependency map by
// includeDev (the Linker, in particular) know which root entries to
// skip when it is false.
func (m *Manifest) DevNames() map[string]bool {
	out := make(map[string]bool, len(m.DevDependencies))
	for name := range m.DevDependencies {
		out[name] = true
	}
	return out
}
