package linker

import (
	"os"
	"path/filepath"

	"github.com/snpm-dev/snpm/internal/fsx"
	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// wireBins implements spec.md §4.8's binary wiring: after a package is
// placed, every entry of its "bin" field gets a .bin symlink (falling
// back to copy) in the node_modules directory that contains it. A
// package carrying bundledDependencies also promotes whatever its own
// internal node_modules/.bin already contains - those binaries shipped
// inside the tarball itself, one level deep.
func (l *Linker) wireBins(occs []occurrence, graph *sntypes.ResolutionGraph) error {
	for _, o := range occs {
		node, ok := graph.Packages[o.ID]
		if !ok {
			continue
		}

		binDir := filepath.Join(o.NodeModulesDir, ".bin")
		if node.HasBin {
			for cmdName, rel := range node.Bin {
				src := filepath.Join(o.Dir, rel)
				dst := filepath.Join(binDir, cmdName)
				if err := fsx.LinkFile(src, dst, config.LinkSymlink, false); err != nil {
					return err
				}
			}
		}

		if len(node.BundledDependencies) > 0 {
			if err := promoteBundledBins(o.Dir, binDir); err != nil {
				return err
			}
		}
	}
	return nil
}

// promoteBundledBins links every entry already present in
// pkgDir/node_modules/.bin (binaries shipped by a bundled dependency
// that was extracted as part of pkgDir's own tarball content) into
// binDir, so a consumer one level up can still invoke them.
func promoteBundledBins(pkgDir, binDir string) error {
	innerBinDir := filepath.Join(pkgDir, "node_modules", ".bin")
	entries, err := os.ReadDir(innerBinDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		src := filepath.Join(innerBinDir, e.Name())
		dst := filepath.Join(binDir, e.Name())
		if err := fsx.LinkFile(src, dst, config.LinkSymlink, false); err != nil {
			return err
		}
	}
	return nil
}
