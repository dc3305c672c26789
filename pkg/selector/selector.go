// Package selector implements VersionSelector (spec.md §4.5): picking
// a concrete version out of a RegistryPackage for a given range,
// honoring dist-tags, min-age gating, and OS/CPU compatibility.
package selector

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/snpmver"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// Result is the outcome of a successful selection: the chosen version
// plus enough context for the resolver to build a ResolvedPackage.
type Result struct {
	Version string
	Entry   sntypes.RegistryVersion
}

// Select picks the greatest version of pkg satisfying rangeText,
// following the precedence in spec.md §4.5: exact dist-tag match first,
// then range matching over all versions, always subject to min-age
// gating unless force is set.
func Select(name, rangeText string, pkg *sntypes.RegistryPackage, minAgeDays *int, force bool, now time.Time) (Result, error) {
	res, err := selectCandidate(name, rangeText, pkg, minAgeDays, force, now)
	if err != nil {
		return Result{}, err
	}
	if ok, reason := CompatiblePlatform(res.Entry, CurrentOS(), CurrentCPU()); !ok {
		return Result{}, &snerr.ResolutionFailed{Name: name, Range: rangeText, Reason: fmt.Sprintf("%s@%s is incompatible with this platform: %s", name, res.Version, reason)}
	}
	return res, nil
}

func selectCandidate(name, rangeText string, pkg *sntypes.RegistryPackage, minAgeDays *int, force bool, now time.Time) (Result, error) {
	if target, ok := pkg.DistTags[rangeText]; ok {
		if !force && minAgeDays != nil && youngerThan(pkg, target, *minAgeDays, now) {
			return Result{}, &snerr.ResolutionFailed{
				Name: name, Range: rangeText,
				Reason: fmt.Sprintf("dist-tag %q resolves to %s, which is fewer than %d days old", rangeText, target, *minAgeDays),
			}
		}
		entry, ok := pkg.Versions[target]
		if !ok {
			return Result{}, &snerr.ResolutionFailed{Name: name, Range: rangeText, Reason: fmt.Sprintf("dist-tag %q points at missing version %s", rangeText, target)}
		}
		return Result{Version: target, Entry: entry}, nil
	}

	rs, err := snpmver.Parse(rangeText)
	if err != nil {
		return Result{}, &snerr.Semver{Range: rangeText, Err: err}
	}

	var candidates []snpmver.Version
	var youngestRejected string

	for vstr := range pkg.Versions {
		v, err := snpmver.ParseVersion(vstr)
		if err != nil {
			continue
		}
		if !rs.Matches(v) {
			continue
		}
		if !force && minAgeDays != nil && youngerThan(pkg, vstr, *minAgeDays, now) {
			youngestRejected = vstr
			continue
		}
		candidates = append(candidates, v)
	}

	if len(candidates) == 0 {
		if youngestRejected != "" {
			return Result{}, &snerr.ResolutionFailed{
				Name: name, Range: rangeText,
				Reason: fmt.Sprintf("only candidates younger than %d days old were found (e.g. %s)", *minAgeDays, youngestRejected),
			}
		}
		return Result{}, &snerr.ResolutionFailed{Name: name, Range: rangeText, Reason: "no version satisfies range"}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].LessThan(candidates[j]) })
	best := candidates[len(candidates)-1]
	return Result{Version: best.String(), Entry: pkg.Versions[best.String()]}, nil
}

func youngerThan(pkg *sntypes.RegistryPackage, version string, minAgeDays int, now time.Time) bool {
	ts, ok := pkg.Time[version]
	if !ok {
		return false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false
	}
	return now.Sub(t) < time.Duration(minAgeDays)*24*time.Hour
}

var osAliases = map[string]string{"macos": "darwin", "windows": "win32"}
var cpuAliases = map[string]string{"x86_64": "x64", "aarch64": "arm64"}

func normalizeOS(tok string) string {
	if alias, ok := osAliases[tok]; ok {
		return alias
	}
	return tok
}

func normalizeCPU(tok string) string {
	if alias, ok := cpuAliases[tok]; ok {
		return alias
	}
	return tok
}

// CurrentOS returns the npm-style OS token for the running platform.
func CurrentOS() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}

// CurrentCPU returns the npm-style CPU token for the running platform.
func CurrentCPU() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	default:
		return runtime.GOARCH
	}
}

// CompatiblePlatform checks a RegistryVersion's os/cpu lists against the
// current platform, per spec.md §4.5: empty means any; a negated entry
// that matches immediately rejects; otherwise, if any positive entries
// exist, one of them must match.
func CompatiblePlatform(rv sntypes.RegistryVersion, currentOS, currentCPU string) (bool, string) {
	if ok, reason := platformListMatches(rv.OS, currentOS, normalizeOS, "OS"); !ok {
		return false, reason
	}
	if ok, reason := platformListMatches(rv.CPU, currentCPU, normalizeCPU, "CPU"); !ok {
		return false, reason
	}
	return true, ""
}

func platformListMatches(list []string, current string, normalize func(string) string, label string) (bool, string) {
	if len(list) == 0 {
		return true, ""
	}
	var positives []string
	for _, tok := range list {
		negated := strings.HasPrefix(tok, "!")
		tok = normalize(strings.TrimPrefix(tok, "!"))
		if negated {
			if tok == current {
				return false, fmt.Sprintf("%s %q is excluded", label, current)
			}
			continue
		}
		positives = append(positives, tok)
	}
	if len(positives) == 0 {
		return true, ""
	}
	for _, tok := range positives {
		if tok == current {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s %q is not in the supported list %v", label, current, positives)
}
