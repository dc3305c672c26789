package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

func samplePackage() *sntypes.RegistryPackage {
	return &sntypes.RegistryPackage{
		Name:     "left-pad",
		DistTags: map[string]string{"latest": "1.3.1", "next": "2.0.0-beta.1"},
		Versions: map[string]sntypes.RegistryVersion{
			"1.2.0":       {Version: "1.2.0"},
			"1.3.0":       {Version: "1.3.0"},
			"1.3.1":       {Version: "1.3.1"},
			"2.0.0-beta.1": {Version: "2.0.0-beta.1"},
		},
		Time: map[string]string{
			"1.2.0":        "2020-01-01T00:00:00Z",
			"1.3.0":        "2020-06-01T00:00:00Z",
			"1.3.1":        "2026-07-25T00:00:00Z",
			"2.0.0-beta.1": "2026-07-29T00:00:00Z",
		},
	}
}

func TestSelectExactDistTag(t *testing.T) {
	res, err := Select("left-pad", "latest", samplePackage(), nil, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "1.3.1", res.Version)
}

func TestSelectGreatestInRange(t *testing.T) {
	res, err := Select("left-pad", "^1.2.0", samplePackage(), nil, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "1.3.1", res.Version)
}

func TestSelectExcludesPrereleaseUnlessRangeNamesOne(t *testing.T) {
	res, err := Select("left-pad", "*", samplePackage(), nil, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "1.3.1", res.Version)
}

func TestSelectMinAgeGating(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-07-31T00:00:00Z")
	minAge := 7
	res, err := Select("left-pad", "^1.2.0", samplePackage(), &minAge, false, now)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", res.Version, "1.3.1 is younger than 7 days, 1.3.0 should win")
}

func TestSelectMinAgeGatingBypassedByForce(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-07-31T00:00:00Z")
	minAge := 7
	res, err := Select("left-pad", "^1.2.0", samplePackage(), &minAge, true, now)
	require.NoError(t, err)
	assert.Equal(t, "1.3.1", res.Version)
}

func TestSelectDistTagMinAgeRejected(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-07-31T00:00:00Z")
	minAge := 7
	_, err := Select("left-pad", "latest", samplePackage(), &minAge, false, now)
	require.Error(t, err)
}

func TestSelectNoSatisfyingVersion(t *testing.T) {
	_, err := Select("left-pad", "^9.0.0", samplePackage(), nil, false, time.Now())
	require.Error(t, err)
}

func TestCompatiblePlatformEmptyListsAlwaysMatch(t *testing.T) {
	ok, _ := CompatiblePlatform(sntypes.RegistryVersion{}, "darwin", "arm64")
	assert.True(t, ok)
}

func TestCompatiblePlatformPositiveList(t *testing.T) {
	rv := sntypes.RegistryVersion{OS: []string{"darwin", "linux"}, CPU: []string{"x64", "arm64"}}
	ok, _ := CompatiblePlatform(rv, "darwin", "arm64")
	assert.True(t, ok)

	ok, reason := CompatiblePlatform(rv, "win32", "x64")
	assert.False(t, ok)
	assert.Contains(t, reason, "win32")
}

func TestCompatiblePlatformNegatedEntry(t *testing.T) {
	rv := sntypes.RegistryVersion{OS: []string{"!win32"}}
	ok, _ := CompatiblePlatform(rv, "darwin", "arm64")
	assert.True(t, ok)

	ok, reason := CompatiblePlatform(rv, "win32", "x64")
	assert.False(t, ok)
	assert.Contains(t, reason, "excluded")
}

func TestCompatiblePlatformAliasNormalization(t *testing.T) {
	rv := sntypes.RegistryVersion{OS: []string{"macos"}, CPU: []string{"x86_64"}}
	ok, _ := CompatiblePlatform(rv, "darwin", "x64")
	assert.True(t, ok)
}

func TestCurrentOSAndCPUProduceNpmTokens(t *testing.T) {
	os := CurrentOS()
	assert.NotEmpty(t, os)
	cpu := CurrentCPU()
	assert.NotEmpty(t, cpu)
}
