// Package config defines the Config collaborator: every external,
// environment-sourced setting the core reads, threaded through by
// reference rather than read from ambient global state. A CLI front-end
// or any other caller builds one of these from .npmrc-style files,
// flags, or whatever it likes; this module never parses such files
// itself (that parsing is explicitly out of scope, spec.md §1).
package config

import (
	"path/filepath"
	"time"
)

// AuthScheme selects how a bearer/basic token is framed on the wire.
type AuthScheme string

const (
	SchemeBearer AuthScheme = "Bearer"
	SchemeBasic  AuthScheme = "Basic"
)

// LinkBackend selects how the Linker materializes store content into a
// project tree.
type LinkBackend string

const (
	LinkAuto     LinkBackend = "auto"
	LinkHardlink LinkBackend = "hardlink"
	LinkSymlink  LinkBackend = "symlink"
	LinkCopy     LinkBackend = "copy"
)

// Hoisting selects the Linker's hoisting policy.
type Hoisting string

const (
	HoistNone          Hoisting = "none"
	HoistSingleVersion Hoisting = "single-version"
	HoistAll           Hoisting = "all"
)

// Config is every setting the core needs from its environment.
type Config struct {
	DefaultRegistry        string
	ScopedRegistries       map[string]string // "@scope" -> base URL
	RegistryAuth           map[string]string // host -> token
	DefaultRegistryAuthToken  string
	DefaultRegistryAuthScheme AuthScheme
	AlwaysAuth             bool

	JSRRegistry string // defaults to https://npm.jsr.io when empty

	LinkBackend LinkBackend
	Hoisting    Hoisting
	StrictPeers bool

	FrozenLockfileDefault bool

	MinPackageAgeDays      *int // nil disables min-age gating
	MinPackageCacheAgeDays *int // nil => default of 7, see PackageCacheAge

	RegistryConcurrency int // default 64

	AllowScripts map[string]bool

	Verbose bool

	DataDir string // root holding packages/ and metadata/ subtrees

	RequestTimeout time.Duration // per-request deadline; zero uses the registry client's default

	// PatchApplier is the opaque external hook used to apply a
	// patchedDependencies entry to a store-materialized package. It is
	// never invoked by this module for anything other than patched
	// dependencies (SPEC_FULL "Patched dependencies"); diff/patch
	// authoring itself stays out of scope.
	PatchApplier func(packageDir, patchFilePath string) error
}

// PackagesDir returns <DataDir>/packages, the content store root.
func (c *Config) PackagesDir() string {
	return filepath.Join(c.DataDir, "packages")
}

// MetadataDir returns <DataDir>/metadata, the registry cache root.
func (c *Config) MetadataDir() string {
	return filepath.Join(c.DataDir, "metadata")
}

// PackageCacheAge returns MinPackageCacheAgeDays or its default of 7.
func (c *Config) PackageCacheAge() int {
	if c.MinPackageCacheAgeDays != nil {
		return *c.MinPackageCacheAgeDays
	}
	return 7
}

// Concurrency returns RegistryConcurrency or its default of 64.
func (c *Config) Concurrency() int {
	if c.RegistryConcurrency > 0 {
		return c.RegistryConcurrency
	}
	return 64
}

// ScriptsAllowed reports whether a package's install script may run,
// honoring the precedence spec.md §4.10 describes: a workspace member's
// onlyBuiltDependencies list overrides everything; absent that, its
// ignoredBuiltDependencies subtracts from the Config-wide allowlist.
func ScriptsAllowed(cfg *Config, name string, onlyBuilt, ignoredBuilt []string) bool {
	if len(onlyBuilt) > 0 {
		for _, n := range onlyBuilt {
			if n == name {
				return true
			}
		}
		return false
	}
	for _, n := range ignoredBuilt {
		if n == name {
			return false
		}
	}
	return cfg.AllowScripts[name]
}

// RegistryBaseFor returns the registry base URL to use for a package
// name, honoring scoped-registry overrides.
func (c *Config) RegistryBaseFor(name string) string {
	if len(name) > 0 && name[0] == '@' {
		if idx := indexByte(name, '/'); idx >= 0 {
			scope := name[:idx]
			if base, ok := c.ScopedRegistries[scope]; ok {
				return base
			}
		}
	}
	return c.DefaultRegistry
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
