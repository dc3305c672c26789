// Package snerr collects the error kinds that can cross a package
// boundary in snpm, as enumerated in the spec's error handling design.
// Each kind is a small struct implementing error; callers type-switch
// or errors.As on these rather than matching strings. Every kind wraps
// its root cause with github.com/pkg/errors so %+v printing still shows
// the underlying stack.
package snerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Io wraps a generic filesystem error with the path it concerns.
type Io struct {
	Path string
	Err  error
}

func (e *Io) Error() string { return fmt.Sprintf("io error at %s: %v", e.Path, e.Err) }
func (e *Io) Unwrap() error { return e.Err }

// ReadFile and WriteFile narrow Io to a specific direction; kept
// distinct because the recovery policy differs (write failures to the
// registry cache are swallowed, read failures to it return nil).
type ReadFile struct{ Io }
type WriteFile struct{ Io }

// ParseJSON / ParseYAML report a malformed manifest or lockfile.
type ParseJSON struct {
	Path string
	Err  error
}

func (e *ParseJSON) Error() string { return fmt.Sprintf("invalid JSON in %s: %v", e.Path, e.Err) }
func (e *ParseJSON) Unwrap() error { return e.Err }

type ParseYAML struct {
	Path string
	Err  error
}

func (e *ParseYAML) Error() string { return fmt.Sprintf("invalid YAML in %s: %v", e.Path, e.Err) }
func (e *ParseYAML) Unwrap() error { return e.Err }

// ManifestMissing / ManifestInvalid report problems loading package.json.
type ManifestMissing struct{ Path string }

func (e *ManifestMissing) Error() string { return fmt.Sprintf("no manifest at %s", e.Path) }

type ManifestInvalid struct {
	Path string
	Err  error
}

func (e *ManifestInvalid) Error() string { return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err) }
func (e *ManifestInvalid) Unwrap() error { return e.Err }

// Http reports a network, status, or decode failure reaching a registry
// or tarball URL.
type Http struct {
	URL    string
	Reason string
	Err    error
}

func (e *Http) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("http %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("http %s: %v", e.URL, e.Err)
}
func (e *Http) Unwrap() error { return e.Err }

// Archive reports a tar/gzip failure while materializing a package.
type Archive struct {
	Path string
	Err  error
}

func (e *Archive) Error() string { return fmt.Sprintf("archive error extracting to %s: %v", e.Path, e.Err) }
func (e *Archive) Unwrap() error { return e.Err }

// Semver reports a range-expression parse failure.
type Semver struct {
	Range string
	Err   error
}

func (e *Semver) Error() string { return fmt.Sprintf("invalid range %q: %v", e.Range, e.Err) }
func (e *Semver) Unwrap() error { return e.Err }

// ResolutionFailed reports that no candidate version satisfied a
// dependency edge, for whatever reason.
type ResolutionFailed struct {
	Name   string
	Range  string
	Reason string
}

func (e *ResolutionFailed) Error() string {
	return fmt.Sprintf("could not resolve %s@%s: %s", e.Name, e.Range, e.Reason)
}

// PeerMissing reports a required peerDependency with no satisfying
// version present anywhere in the graph.
type PeerMissing struct {
	Peer    string
	Range   string
	Wanters []string
}

func (e *PeerMissing) Error() string {
	return fmt.Sprintf("peer dependency %s@%s not found in tree (wanted by %v)", e.Peer, e.Range, e.Wanters)
}

// PeerUnsatisfied reports a peerDependency whose range none of the
// installed versions of that peer satisfy.
type PeerUnsatisfied struct {
	Peer      string
	Range     string
	Installed []string
	Wanters   []string
}

func (e *PeerUnsatisfied) Error() string {
	return fmt.Sprintf("peer dependency %s@%s unsatisfied by installed versions %v (wanted by %v)", e.Peer, e.Range, e.Installed, e.Wanters)
}

// Lockfile reports a frozen-lockfile violation or an unreadable/malformed
// lockfile.
type Lockfile struct {
	Path   string
	Reason string
}

func (e *Lockfile) Error() string { return fmt.Sprintf("lockfile %s: %s", e.Path, e.Reason) }

// StoreMissing is an internal-invariant violation: the graph names a
// PackageId the linker can't find a store path for.
type StoreMissing struct {
	ID string
}

func (e *StoreMissing) Error() string { return fmt.Sprintf("no store path materialized for %s", e.ID) }

// WorkspaceConfig reports an invalid workspace catalog, glob, or
// workspace: protocol constraint.
type WorkspaceConfig struct {
	Reason string
}

func (e *WorkspaceConfig) Error() string { return "workspace config: " + e.Reason }

// Auth reports a missing or invalid token where one was required.
type Auth struct {
	Host   string
	Reason string
}

func (e *Auth) Error() string { return fmt.Sprintf("auth for %s: %s", e.Host, e.Reason) }

// ScriptFailed reports a non-zero exit from an allowed install script.
type ScriptFailed struct {
	Name string
	Code int
}

func (e *ScriptFailed) Error() string {
	return fmt.Sprintf("install script for %s exited %d", e.Name, e.Code)
}

// StoreTask reports a panic recovered from a spawned materialization
// task.
type StoreTask struct {
	ID  string
	Err error
}

func (e *StoreTask) Error() string { return fmt.Sprintf("store task for %s panicked: %v", e.ID, e.Err) }
func (e *StoreTask) Unwrap() error { return e.Err }

// Cancelled is returned when an install is aborted via context
// cancellation. No lockfile or integrity marker is written in this case.
var Cancelled = errors.New("snpm: install cancelled")

// Wrap attaches a message to err using the same convention the rest of
// the module uses for ambient (non-typed) error context.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is the formatted form of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
