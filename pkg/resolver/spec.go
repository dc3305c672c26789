package resolver

import (
	"strings"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// parsedSpec is what a raw dependency specifier (as found in a
// package.json dependencies map, or substituted in by an override)
// decomposes into: which protocol handles it, the name to actually
// fetch from that protocol, and either a semver range (npm/jsr) or a
// source address (git/file).
type parsedSpec struct {
	Protocol      sntypes.Protocol
	FetchName     string
	RangeOrSource string
	Workspace     bool
}

// parseSpec decomposes rawSpec, applying defaultProtocol when no
// protocol tag is present. keyName is the dependency's key in its
// parent's map - the node_modules directory name it will occupy,
// independent of which package ends up fetched under an npm:/jsr: alias.
func parseSpec(keyName, rawSpec string, defaultProtocol sntypes.Protocol) parsedSpec {
	spec := strings.TrimSpace(rawSpec)

	switch {
	case strings.HasPrefix(spec, "workspace:"):
		return parsedSpec{Workspace: true}

	case strings.HasPrefix(spec, "npm:"):
		name, rng := splitAliasSpec(strings.TrimPrefix(spec, "npm:"))
		return parsedSpec{Protocol: sntypes.ProtocolNpm, FetchName: name, RangeOrSource: rng}

	case strings.HasPrefix(spec, "jsr:"):
		name, rng := splitAliasSpec(strings.TrimPrefix(spec, "jsr:"))
		return parsedSpec{Protocol: sntypes.ProtocolJSR, FetchName: name, RangeOrSource: rng}

	case strings.HasPrefix(spec, "github:"):
		return parsedSpec{Protocol: sntypes.ProtocolGit, FetchName: keyName, RangeOrSource: githubURL(strings.TrimPrefix(spec, "github:"))}

	case strings.HasPrefix(spec, "git+"):
		return parsedSpec{Protocol: sntypes.ProtocolGit, FetchName: keyName, RangeOrSource: strings.TrimPrefix(spec, "git+")}

	case strings.HasPrefix(spec, "git://"):
		return parsedSpec{Protocol: sntypes.ProtocolGit, FetchName: keyName, RangeOrSource: spec}

	case strings.HasPrefix(spec, "file:"):
		return parsedSpec{Protocol: sntypes.ProtocolFile, FetchName: keyName, RangeOrSource: strings.TrimPrefix(spec, "file:")}

	default:
		proto := defaultProtocol
		if proto == "" {
			proto = sntypes.ProtocolNpm
		}
		return parsedSpec{Protocol: proto, FetchName: keyName, RangeOrSource: spec}
	}
}

// splitAliasSpec splits "bar@^1.2.3" or "@scope/bar@^1.2.3" into
// ("bar"/"@scope/bar", "^1.2.3"), defaulting the range to "*" when
// absent, honoring the scope-leading '@' so it isn't mistaken for the
// name/range separator.
func splitAliasSpec(rest string) (string, string) {
	if rest == "" {
		return "", "*"
	}
	if strings.HasPrefix(rest, "@") {
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return rest, "*"
		}
		if at := strings.Index(rest[slash:], "@"); at >= 0 {
			return rest[:slash+at], rest[slash+at+1:]
		}
		return rest, "*"
	}
	if idx := strings.Index(rest, "@"); idx >= 0 {
		return rest[:idx], rest[idx+1:]
	}
	return rest, "*"
}

// githubURL expands the "user/repo#committish" shorthand into a full
// https clone URL, preserving the committish suffix.
func githubURL(rest string) string {
	repo := rest
	committish := ""
	if idx := strings.LastIndex(rest, "#"); idx >= 0 {
		repo = rest[:idx]
		committish = rest[idx:]
	}
	return "https://github.com/" + repo + ".git" + committish
}
