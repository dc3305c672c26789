// Package store implements the content-addressed package store
// described in spec.md §4.4: idempotent extraction under a completion
// sentinel, safe for concurrent and cross-process callers.
package store

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	flock "github.com/theckman/go-flock"
	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// CompleteSentinel is the marker file signifying a finished extraction.
const CompleteSentinel = ".snpm_complete"

// Store is a content-addressed filesystem store of unpacked tarballs.
type Store struct {
	PackagesDir string
	HTTP        *http.Client

	mu       sync.Mutex
	inflight map[sntypes.PackageId]*singleflight
}

type singleflight struct {
	done chan struct{}
	path string
	err  error
}

// New returns a Store rooted at packagesDir.
func New(packagesDir string) *Store {
	return &Store{
		PackagesDir: packagesDir,
		HTTP:        http.DefaultClient,
		inflight:    make(map[sntypes.PackageId]*singleflight),
	}
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// PackageDir returns the store directory for id, without regard to
// whether it has been materialized yet.
func (s *Store) PackageDir(id sntypes.PackageId) string {
	return filepath.Join(s.PackagesDir, sanitizeName(id.Name), id.Version)
}

// HasSentinel reports whether id's store entry is already complete,
// without performing any materialization work. ScenarioDetector uses
// this to decide between WarmLinkOnly and WarmPartialCache.
func (s *Store) HasSentinel(id sntypes.PackageId) bool {
	_, err := os.Stat(filepath.Join(s.PackageDir(id), CompleteSentinel))
	return err == nil
}

// PackageRoot returns the directory a Linker should mirror into
// node_modules for an already-complete id, without touching the
// network or re-extracting anything. Callers must check HasSentinel
// (or have just called EnsurePackage) first; PackageRoot itself does
// not verify completeness.
func (s *Store) PackageRoot(id sntypes.PackageId) string {
	return packageRoot(s.PackageDir(id))
}

// packageRoot returns pkg_dir/package if that subdirectory exists
// (the common case: npm tarballs are rooted at "package/"), else
// pkg_dir itself.
func packageRoot(pkgDir string) string {
	candidate := filepath.Join(pkgDir, "package")
	if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
		return candidate
	}
	return pkgDir
}

// EnsurePackage materializes pkg into the store, returning its root
// directory. It is idempotent: a second call against an already
// complete entry is a stat plus nothing else. Concurrent callers
// racing on the same PackageId within one process are coalesced by an
// in-memory single-flight map; cross-process races are tolerated
// because extraction is idempotent under the sentinel rule, guarded
// additionally by an advisory file lock so two processes don't
// interleave writes into the same directory.
func (s *Store) EnsurePackage(ctx context.Context, pkg *sntypes.ResolvedPackage) (string, error) {
	s.mu.Lock()
	if call, ok := s.inflight[pkg.ID]; ok {
		s.mu.Unlock()
		<-call.done
		return call.path, call.err
	}
	call := &singleflight{done: make(chan struct{})}
	s.inflight[pkg.ID] = call
	s.mu.Unlock()

	call.path, call.err = s.ensureUncached(ctx, pkg)

	s.mu.Lock()
	delete(s.inflight, pkg.ID)
	s.mu.Unlock()
	close(call.done)
	return call.path, call.err
}

func (s *Store) ensureUncached(ctx context.Context, pkg *sntypes.ResolvedPackage) (string, error) {
	pkgDir := s.PackageDir(pkg.ID)
	sentinel := filepath.Join(pkgDir, CompleteSentinel)

	if _, err := os.Stat(sentinel); err == nil {
		return packageRoot(pkgDir), nil
	}

	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return "", &snerr.WriteFile{Io: snerr.Io{Path: pkgDir, Err: err}}
	}

	lockPath := pkgDir + ".lock"
	fl := flock.NewFlock(lockPath)
	if err := fl.Lock(); err != nil {
		return "", errors.Wrapf(err, "store: acquiring lock for %s", pkg.ID)
	}
	defer fl.Unlock()

	// Another process may have finished while we waited for the lock.
	if _, err := os.Stat(sentinel); err == nil {
		return packageRoot(pkgDir), nil
	}

	if strings.HasPrefix(pkg.Tarball, "file://") {
		if err := s.materializeLocal(strings.TrimPrefix(pkg.Tarball, "file://"), pkgDir); err != nil {
			return "", err
		}
	} else {
		tmpFile := filepath.Join(os.TempDir(), "snpm-dl-"+uuid.NewString()+".tgz")
		defer os.Remove(tmpFile)

		if err := s.download(ctx, pkg.Tarball, tmpFile); err != nil {
			return "", err
		}

		if err := s.extract(tmpFile, pkgDir); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(sentinel, nil, 0o644); err != nil {
		return "", &snerr.WriteFile{Io: snerr.Io{Path: sentinel, Err: err}}
	}

	return packageRoot(pkgDir), nil
}

// materializeLocal copies a git/file-protocol source tree directly into
// the store, skipping the tar/gzip pipeline entirely since there is no
// tarball to fetch.
func (s *Store) materializeLocal(srcDir, destDir string) error {
	root := filepath.Join(destDir, "package")
	if err := shutilCopyTree(srcDir, root); err != nil {
		return &snerr.Archive{Path: destDir, Err: err}
	}
	return nil
}

func (s *Store) download(ctx context.Context, tarballURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL, nil)
	if err != nil {
		return &snerr.Http{URL: tarballURL, Err: err}
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return &snerr.Http{URL: tarballURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &snerr.Http{URL: tarballURL, Reason: httpStatusReason(resp.StatusCode)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &snerr.WriteFile{Io: snerr.Io{Path: dest, Err: err}}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &snerr.Http{URL: tarballURL, Reason: "download interrupted", Err: err}
	}
	return nil
}

func httpStatusReason(code int) string {
	return "unexpected status " + http.StatusText(code)
}

func (s *Store) httpClient() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return http.DefaultClient
}

// extract gunzips and untars src into destDir, preserving entry names.
func (s *Store) extract(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return &snerr.Archive{Path: destDir, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &snerr.Archive{Path: destDir, Err: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &snerr.Archive{Path: destDir, Err: err}
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			// reject path traversal from a malicious/corrupt tarball
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &snerr.Archive{Path: target, Err: err}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return &snerr.Archive{Path: target, Err: err}
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return &snerr.Archive{Path: target, Err: err}
			}
			_, copyErr := io.Copy(out, tr)
			out.Close()
			if copyErr != nil {
				return &snerr.Archive{Path: target, Err: copyErr}
			}
		case tar.TypeSymlink:
			os.MkdirAll(filepath.Dir(target), 0o755)
			_ = os.Symlink(hdr.Linkname, target)
		default:
			// skip device nodes, hardlinks, etc - not relevant to npm tarballs
		}
	}
	return nil
}
