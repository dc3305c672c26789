package snpmver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustV(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	require.NoError(t, err)
	return v
}

func TestParseAndMatches(t *testing.T) {
	cases := []struct {
		rng   string
		ver   string
		match bool
	}{
		{"^1.3.0", "1.3.1", true},
		{"^1.3.0", "2.0.0", false},
		{"^1.3.0", "1.2.9", false},
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{">=1.0.0 <2.0.0", "1.9.9", true},
		{">=1.0.0 <2.0.0", "2.0.0", false},
		{"1.2.3 - 2.3.4", "2.3.4", true},
		{"1.2.3 - 2.3.4", "2.3.5", false},
		{"*", "9.9.9", true},
		{"", "0.0.1", true},
		{"latest", "3.0.0", true},
		{"1.0.0 || 2.0.0", "2.0.0", true},
		{"1.0.0 || 2.0.0", "1.5.0", false},
		{"npm:^1.0.0", "1.0.5", true},
		{"@1.2.3", "1.2.3", true},
	}

	for _, c := range cases {
		rs, err := Parse(c.rng)
		require.NoError(t, err, "parsing %q", c.rng)
		v := mustV(t, c.ver)
		assert.Equal(t, c.match, rs.Matches(v), "range %q vs version %q", c.rng, c.ver)
	}
}

func TestWhitespaceSeparatedComparator(t *testing.T) {
	rs, err := Parse(">= 4.21.0")
	require.NoError(t, err)
	assert.True(t, rs.Matches(mustV(t, "4.21.0")))
	assert.False(t, rs.Matches(mustV(t, "4.20.9")))
}

func TestPrereleaseOnlyMatchesExplicitRange(t *testing.T) {
	rs, err := Parse("^1.0.0")
	require.NoError(t, err)
	assert.False(t, rs.Matches(mustV(t, "1.1.0-beta.1")), "plain range should exclude prereleases")

	rs2, err := Parse("1.1.0-beta.1")
	require.NoError(t, err)
	assert.True(t, rs2.Matches(mustV(t, "1.1.0-beta.1")))
	assert.False(t, rs2.Matches(mustV(t, "1.1.0-beta.2")))
}

func TestBareMajorTildeAndCaretWidenToNextMajor(t *testing.T) {
	cases := []struct {
		rng   string
		ver   string
		match bool
	}{
		{"~1", "1.9.9", true},
		{"~1", "2.0.0", false},
		{"^0", "0.9.9", true},
		{"^0", "1.0.0", false},
		{"^0.0", "0.0.9", true},
		{"^0.0", "0.1.0", false},
		{"^0.0.3", "0.0.3", true},
		{"^0.0.3", "0.0.4", false},
	}
	for _, c := range cases {
		rs, err := Parse(c.rng)
		require.NoError(t, err, "parsing %q", c.rng)
		v := mustV(t, c.ver)
		assert.Equal(t, c.match, rs.Matches(v), "range %q vs version %q", c.rng, c.ver)
	}
}

func TestOrDecomposition(t *testing.T) {
	a, err := Parse("1.0.0")
	require.NoError(t, err)
	b, err := Parse("2.0.0")
	require.NoError(t, err)
	combined, err := Parse("1.0.0 || 2.0.0")
	require.NoError(t, err)

	for _, v := range []string{"1.0.0", "2.0.0", "3.0.0"} {
		ver := mustV(t, v)
		want := a.Matches(ver) || b.Matches(ver)
		assert.Equal(t, want, combined.Matches(ver), "version %s", v)
	}
}
