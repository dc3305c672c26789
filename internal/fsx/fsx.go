// Package fsx collects the filesystem primitives the Linker builds on:
// placing one store-materialized package under a project's
// node_modules by hardlink, symlink, or deep copy, plus the directory
// removal/walk helpers that go with it. None of this is npm-specific;
// it is the same territory as internal/fs in the dependency-management
// tooling this module grew out of, generalized to the three link
// backends spec.md §4.8 requires.
package fsx

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/snpm-dev/snpm/pkg/config"
)

// Place installs the contents of srcDir (a store package root) at dst
// using backend. auto prefers hardlinking and falls back to copying
// when the store and destination are on different devices; deepCopy
// forces a real copy regardless of backend, which the Linker uses for
// packages whose install scripts are allowed to run (spec.md §4.8: a
// script must never be able to mutate another project's shared store
// content through a hardlink).
func Place(srcDir, dst string, backend config.LinkBackend, deepCopy bool) error {
	if err := os.RemoveAll(dst); err != nil {
		return errors.Wrapf(err, "fsx: clearing %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "fsx: mkdir %s", filepath.Dir(dst))
	}

	if deepCopy {
		return CopyTree(srcDir, dst)
	}

	switch backend {
	case config.LinkSymlink:
		return symlinkTree(srcDir, dst)
	case config.LinkCopy:
		return CopyTree(srcDir, dst)
	case config.LinkHardlink:
		if err := hardlinkTree(srcDir, dst); err != nil {
			if isCrossDevice(err) {
				return CopyTree(srcDir, dst)
			}
			return err
		}
		return nil
	default: // LinkAuto
		if err := hardlinkTree(srcDir, dst); err != nil {
			if isCrossDevice(err) || os.IsPermission(err) {
				return CopyTree(srcDir, dst)
			}
			return err
		}
		return nil
	}
}

func isCrossDevice(err error) bool {
	if linkErr, ok := errors.Cause(err).(*os.LinkError); ok {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return false
}

// symlinkTree replaces dst with a single symlink to srcDir. This is
// the cheapest backend but exposes the store layout directly to
// whatever reads dst, so the Linker only picks it when asked
// explicitly via LinkSymlink.
func symlinkTree(srcDir, dst string) error {
	abs, err := filepath.Abs(srcDir)
	if err != nil {
		return errors.Wrapf(err, "fsx: resolving %s", srcDir)
	}
	if err := os.Symlink(abs, dst); err != nil {
		return errors.Wrapf(err, "fsx: symlinking %s -> %s", dst, abs)
	}
	return nil
}

// hardlinkTree recreates srcDir's tree at dst, hardlinking every
// regular file and cloning symlinks, so dst and the store share inode
// data without sharing directory entries. Returns an *os.LinkError
// wrapped error when the devices differ; callers use isCrossDevice to
// detect that and fall back to CopyTree.
func hardlinkTree(srcDir, dst string) error {
	return walkInto(srcDir, dst, func(src, d string, mode os.FileMode) error {
		if mode&os.ModeSymlink != 0 {
			return cloneSymlink(src, d)
		}
		if err := os.Link(src, d); err != nil {
			return err
		}
		return nil
	})
}

// CopyTree recursively copies srcDir's contents to dst, preserving
// file modes and symlinks. Used for the deep-copy backend and as the
// fallback when hardlinking isn't possible.
func CopyTree(srcDir, dst string) error {
	return walkInto(srcDir, dst, func(src, d string, mode os.FileMode) error {
		if mode&os.ModeSymlink != 0 {
			return cloneSymlink(src, d)
		}
		return copyFile(src, d, mode)
	})
}

// walkInto mirrors srcDir's tree under dst, creating directories as
// needed and invoking placeFile for every non-directory entry. It uses
// godirwalk for the traversal since node_modules trees can be tens of
// thousands of files deep and godirwalk avoids the extra per-entry
// os.Lstat that filepath.Walk performs.
func walkInto(srcDir, dst string, placeFile func(src, dst string, mode os.FileMode) error) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrapf(err, "fsx: mkdir %s", dst)
	}

	return godirwalk.Walk(srcDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(srcDir, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			target := filepath.Join(dst, rel)

			if de.IsDir() {
				fi, err := os.Lstat(path)
				if err != nil {
					return err
				}
				return os.MkdirAll(target, fi.Mode().Perm())
			}

			fi, err := os.Lstat(path)
			if err != nil {
				return err
			}
			return placeFile(path, target, fi.Mode())
		},
	})
}

func cloneSymlink(src, dst string) error {
	resolved, err := os.Readlink(src)
	if err != nil {
		return errors.Wrapf(err, "fsx: reading symlink %s", src)
	}
	if err := os.Symlink(resolved, dst); err != nil {
		return errors.Wrapf(err, "fsx: symlinking %s", dst)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "fsx: opening %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return errors.Wrapf(err, "fsx: creating %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "fsx: copying %s to %s", src, dst)
	}
	return out.Sync()
}

// LinkFile places a single file (used for .bin entries) at dst,
// honoring the same backend/deepCopy rules as Place but for one file
// rather than a tree.
func LinkFile(src, dst string, backend config.LinkBackend, deepCopy bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "fsx: mkdir %s", filepath.Dir(dst))
	}
	os.Remove(dst)

	if deepCopy || backend == config.LinkCopy {
		fi, err := os.Stat(src)
		if err != nil {
			return errors.Wrapf(err, "fsx: stat %s", src)
		}
		return copyFile(src, dst, fi.Mode())
	}
	if backend == config.LinkSymlink {
		abs, err := filepath.Abs(src)
		if err != nil {
			return errors.Wrapf(err, "fsx: resolving %s", src)
		}
		if err := os.Symlink(abs, dst); err != nil {
			fi, statErr := os.Stat(src)
			if statErr != nil {
				return errors.Wrapf(statErr, "fsx: stat %s", src)
			}
			return copyFile(src, dst, fi.Mode())
		}
		return nil
	}

	if err := os.Link(src, dst); err != nil {
		if isCrossDevice(err) || os.IsPermission(err) {
			fi, statErr := os.Stat(src)
			if statErr != nil {
				return errors.Wrapf(statErr, "fsx: stat %s", src)
			}
			return copyFile(src, dst, fi.Mode())
		}
		return errors.Wrapf(err, "fsx: hardlinking %s", dst)
	}
	return nil
}

// EnsureDir is a thin wrapper so callers don't reach for os directly
// when all they need is mkdir -p semantics with a wrapped error.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "fsx: mkdir %s", dir)
	}
	return nil
}
