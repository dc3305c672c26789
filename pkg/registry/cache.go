// Package registry implements the metadata cache and the protocol-
// dispatching client described in spec.md §4.2-4.3: per-package
// freshness-gated disk cache, and npm/jsr/git/file fetch paths with
// host-based authentication.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// Cache persists RegistryPackage documents under a freshness policy.
// It is an optimization only: every failure is swallowed and reported
// through the logger rather than returned, per spec.md §4.2.
type Cache struct {
	Dir       string
	MaxAgeDays int
	now       func() time.Time
}

// NewCache returns a Cache rooted at dir, with documents considered
// fresh for maxAgeDays.
func NewCache(dir string, maxAgeDays int) *Cache {
	return &Cache{Dir: dir, MaxAgeDays: maxAgeDays, now: time.Now}
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(name, "/", "__")
}

func (c *Cache) docPath(name string) string {
	return filepath.Join(c.Dir, sanitizeName(name), "index.json")
}

// Load returns the cached document for name if it exists and is fresh,
// or nil otherwise. Read errors are never fatal: they simply produce a
// cache miss.
func (c *Cache) Load(name string) *sntypes.RegistryPackage {
	path := c.docPath(name)
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	age := now().Sub(info.ModTime())
	if age >= time.Duration(c.MaxAgeDays)*24*time.Hour {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var pkg sntypes.RegistryPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	return &pkg
}

// Save atomically writes pkg to the cache. Write failures are logged by
// the caller, never returned as fatal; the return value lets callers
// decide whether to log.
func (c *Cache) Save(name string, pkg *sntypes.RegistryPackage) error {
	path := c.docPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "registry cache: mkdir for %s", name)
	}
	data, err := json.Marshal(pkg)
	if err != nil {
		return errors.Wrapf(err, "registry cache: encode %s", name)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "registry cache: write %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "registry cache: rename %s", name)
	}
	return nil
}
