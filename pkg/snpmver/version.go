// Package snpmver implements range parsing and matching for dependency
// specifiers: the extended comparator grammar (^, ~, hyphen ranges,
// ||, dist-tag passthrough, npm:/jsr: protocol-tag stripping) described
// in spec.md §4.1. Version ordering and the pre-release visibility rule
// are delegated to github.com/Masterminds/semver/v3, which the teacher's
// own vendor tree already carries (as v1; the pack's turborepo sibling
// carries the v3 successor, which has the cleaner Prerelease() API this
// package relies on).
package snpmver

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a concrete, already-resolved release.
type Version struct {
	raw string
	v   *semver.Version
}

// ParseVersion parses a concrete version string (no range operators).
func ParseVersion(s string) (Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return Version{}, err
	}
	return Version{raw: s, v: v}, nil
}

// String returns the original, un-normalized text the version was
// parsed from.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other, per standard semver precedence (build metadata ignored).
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// LessThan reports whether v orders strictly before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// IsPrerelease reports whether the version carries a pre-release
// component, e.g. "2.0.0-beta.1".
func (v Version) IsPrerelease() bool { return v.v.Prerelease() != "" }

// SameTuple reports whether v and other share the same
// (major, minor, patch) triple, ignoring pre-release/build metadata.
func (v Version) SameTuple(other Version) bool {
	return v.v.Major() == other.v.Major() && v.v.Minor() == other.v.Minor() && v.v.Patch() == other.v.Patch()
}

func (v Version) major() int64 { return v.v.Major() }
func (v Version) minor() int64 { return v.v.Minor() }
func (v Version) patch() int64 { return v.v.Patch() }
