package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

func gitSource(req DepRequest) string {
	// The resolver passes the git remote (optionally "#committish"
	// suffixed) through Name itself for this protocol, mirroring how
	// overrides rewrite (name, range) together in spec.md §4.6.1.
	return req.Name
}

func fileSource(req DepRequest) string {
	return req.Name
}

// gitCacheRoot is where cloned repositories are kept between resolves,
// analogous to the teacher's vcs_repo.go cache-and-update-in-place
// strategy (clone once, fetch thereafter).
var gitCacheRoot = filepath.Join(os.TempDir(), "snpm-git-cache")

// fetchGit clones (or updates an existing clone of) remote, optionally
// checking out "#committish", and lifts its package.json into a
// synthetic single-version RegistryPackage whose one Dist.Tarball is a
// file:// URL pointing at the checked-out tree, per spec.md §4.3.
func (c *Client) fetchGit(name, remote string) (*sntypes.RegistryPackage, error) {
	repoURL := remote
	committish := ""
	if idx := strings.LastIndex(remote, "#"); idx >= 0 {
		repoURL = remote[:idx]
		committish = remote[idx+1:]
	}

	localPath := filepath.Join(gitCacheRoot, sanitizeName(repoURL))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "registry: git cache dir for %s", repoURL)
	}

	repo, err := vcs.NewGitRepo(repoURL, localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "registry: init git repo for %s", repoURL)
	}

	if repo.CheckLocal() {
		if err := repo.Update(); err != nil {
			return nil, errors.Wrapf(err, "registry: git fetch %s", repoURL)
		}
	} else {
		if err := repo.Get(); err != nil {
			return nil, errors.Wrapf(err, "registry: git clone %s", repoURL)
		}
	}

	if committish != "" {
		if err := repo.UpdateVersion(committish); err != nil {
			return nil, errors.Wrapf(err, "registry: git checkout %s@%s", repoURL, committish)
		}
	}

	return liftManifest(name, localPath, "file://"+localPath)
}

// fetchFile lifts a local directory's package.json into a synthetic
// single-version RegistryPackage.
func (c *Client) fetchFile(name, dir string) (*sntypes.RegistryPackage, error) {
	return liftManifest(name, dir, "file://"+dir)
}

// liftManifest reads <dir>/package.json and wraps its version-bearing
// fields as the sole entry of a RegistryPackage, so that git/file
// dependencies flow through the same VersionSelector and Resolver code
// paths as npm/jsr ones.
func liftManifest(fallbackName, dir, tarballURL string) (*sntypes.RegistryPackage, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "registry: reading package.json in %s", dir)
	}

	var raw struct {
		Name                 string            `json:"name"`
		Version              string            `json:"version"`
		Dependencies         map[string]string `json:"dependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		Bin                  json.RawMessage   `json:"bin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "registry: decoding package.json in %s", dir)
	}

	name := raw.Name
	if name == "" {
		name = fallbackName
	}
	version := raw.Version
	if version == "" {
		version = "0.0.0"
	}

	rv := sntypes.RegistryVersion{
		Version:              version,
		Dependencies:         raw.Dependencies,
		OptionalDependencies: raw.OptionalDependencies,
		PeerDependencies:     raw.PeerDependencies,
		Dist:                 sntypes.Dist{Tarball: tarballURL},
	}
	if len(raw.Bin) > 0 {
		var asString string
		if err := json.Unmarshal(raw.Bin, &asString); err == nil && asString != "" {
			rv.Bin = map[string]string{binName(name): asString}
		} else {
			var asMap map[string]string
			if err := json.Unmarshal(raw.Bin, &asMap); err == nil {
				rv.Bin = asMap
			}
		}
	}

	return &sntypes.RegistryPackage{
		Name:     name,
		DistTags: map[string]string{"latest": version},
		Time:     map[string]string{version: "1970-01-01T00:00:00Z"},
		Versions: map[string]sntypes.RegistryVersion{version: rv},
	}, nil
}
