package registry

import (
	"encoding/json"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// rawRegistryPackage mirrors the on-the-wire npm registry metadata
// document shape closely enough to decode it directly; scoped-registry
// and jsr responses share the same shape.
type rawRegistryPackage struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]rawVersion     `json:"versions"`
	Time     map[string]string         `json:"time"`
}

type rawVersion struct {
	Version              string                        `json:"version"`
	Dependencies         map[string]string              `json:"dependencies"`
	OptionalDependencies map[string]string              `json:"optionalDependencies"`
	PeerDependencies     map[string]string              `json:"peerDependencies"`
	PeerDependenciesMeta map[string]rawPeerMeta          `json:"peerDependenciesMeta"`
	BundledDependencies  json.RawMessage                 `json:"bundledDependencies"`
	BundleDependencies   json.RawMessage                 `json:"bundleDependencies"`
	Dist                 rawDist                         `json:"dist"`
	OS                   []string                        `json:"os"`
	CPU                  []string                        `json:"cpu"`
	Bin                  json.RawMessage                 `json:"bin"`
}

type rawPeerMeta struct {
	Optional bool `json:"optional"`
}

type rawDist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
}

func (d rawRegistryPackage) toRegistryPackage(fallbackName string) sntypes.RegistryPackage {
	name := d.Name
	if name == "" {
		name = fallbackName
	}
	pkg := sntypes.RegistryPackage{
		Name:     name,
		DistTags: d.DistTags,
		Time:     d.Time,
		Versions: make(map[string]sntypes.RegistryVersion, len(d.Versions)),
	}
	for vstr, rv := range d.Versions {
		pkg.Versions[vstr] = rv.toRegistryVersion(name)
	}
	return pkg
}

func (rv rawVersion) toRegistryVersion(pkgName string) sntypes.RegistryVersion {
	out := sntypes.RegistryVersion{
		Version:              rv.Version,
		Dependencies:         rv.Dependencies,
		OptionalDependencies: rv.OptionalDependencies,
		PeerDependencies:     rv.PeerDependencies,
		Dist: sntypes.Dist{
			Tarball:   rv.Dist.Tarball,
			Integrity: rv.Dist.Integrity,
		},
		OS:  rv.OS,
		CPU: rv.CPU,
	}
	if len(rv.PeerDependenciesMeta) > 0 {
		out.PeerDependenciesMeta = make(map[string]sntypes.PeerMeta, len(rv.PeerDependenciesMeta))
		for name, m := range rv.PeerDependenciesMeta {
			out.PeerDependenciesMeta[name] = sntypes.PeerMeta{Optional: m.Optional}
		}
	}

	bundled := rv.BundledDependencies
	if len(bundled) == 0 {
		bundled = rv.BundleDependencies
	}
	if len(bundled) > 0 {
		var asBool bool
		if err := json.Unmarshal(bundled, &asBool); err == nil {
			out.AllBundled = asBool
		} else {
			var asList []string
			if err := json.Unmarshal(bundled, &asList); err == nil {
				out.BundledDependencies = asList
			}
		}
	}

	if len(rv.Bin) > 0 {
		var asString string
		if err := json.Unmarshal(rv.Bin, &asString); err == nil && asString != "" {
			out.Bin = map[string]string{binName(pkgName): asString}
		} else {
			var asMap map[string]string
			if err := json.Unmarshal(rv.Bin, &asMap); err == nil {
				out.Bin = asMap
			}
		}
	}
	return out
}

// binName derives the default binary name for a string-form "bin"
// field: the unscoped tail of the package name.
func binName(pkgName string) string {
	if idx := lastSlash(pkgName); idx >= 0 {
		return pkgName[idx+1:]
	}
	return pkgName
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
