package store

import (
	"os"

	shutil "github.com/termie/go-shutil"
)

// shutilCopyTree recursively copies src into dst using
// github.com/termie/go-shutil, the same library and ignore-list
// approach the teacher's vcs_source.go uses when exporting a checked-
// out VCS tree into gps's package cache.
func shutilCopyTree(src, dst string) error {
	opts := &shutil.CopyTreeOptions{
		Symlinks:     true,
		CopyFunction: shutil.Copy,
		Ignore: func(src string, contents []os.FileInfo) (ignore []string) {
			for _, fi := range contents {
				if !fi.IsDir() {
					continue
				}
				switch fi.Name() {
				case ".git", ".hg", ".svn", "node_modules":
					ignore = append(ignore, fi.Name())
				}
			}
			return
		},
	}
	return shutil.CopyTree(src, dst, opts)
}
