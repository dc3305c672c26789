package linker

import (
	"path/filepath"

	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// applyHoisting rewrites occs per spec.md §4.8's hoisting policies.
// none leaves the nested placements untouched. single-version and all
// each pick, for every package name, one PackageId to promote to
// <node_modules>/<name>; every other occurrence of that same (name,
// id) pair is dropped in favor of the hoisted copy, on the assumption
// that Node's own module resolution walks up parent directories to
// find it. Occurrences of a *different* version of a hoisted name stay
// nested, since they can't share the root slot.
func (l *Linker) applyHoisting(nodeModulesRoot string, occs []occurrence) []occurrence {
	switch l.opts.Hoisting {
	case config.HoistSingleVersion:
		return hoistOccurrences(nodeModulesRoot, occs, singleVersionPick)
	case config.HoistAll:
		return hoistOccurrences(nodeModulesRoot, occs, firstEncounteredPick)
	default:
		return occs
	}
}

// singleVersionPick hoists name only when every occurrence of it in
// the tree resolves to the same version.
func singleVersionPick(group []occurrence) (sntypes.PackageId, bool) {
	first := group[0].ID
	for _, o := range group[1:] {
		if o.ID != first {
			return sntypes.PackageId{}, false
		}
	}
	return first, true
}

// firstEncounteredPick hoists whichever version of name the
// deterministic traversal order visited first.
func firstEncounteredPick(group []occurrence) (sntypes.PackageId, bool) {
	return group[0].ID, true
}

// hoistOccurrences groups occs by Name in traversal order, asks pick
// for each group's hoist target (or "no hoist"), then rewrites the
// list: the hoisted (name, id) pair appears exactly once at the root
// node_modules, every other occurrence of that same pair is dropped,
// and anything pick declined (a different version, or a name pick
// rejected outright) is left as a plain nested occurrence.
func hoistOccurrences(nodeModulesRoot string, occs []occurrence, pick func(group []occurrence) (sntypes.PackageId, bool)) []occurrence {
	order := make([]string, 0)
	groups := make(map[string][]occurrence)
	for _, o := range occs {
		if _, ok := groups[o.Name]; !ok {
			order = append(order, o.Name)
		}
		groups[o.Name] = append(groups[o.Name], o)
	}

	hoistID := make(map[string]sntypes.PackageId, len(order))
	for _, name := range order {
		if id, ok := pick(groups[name]); ok {
			hoistID[name] = id
		}
	}

	out := make([]occurrence, 0, len(occs))
	rootPlaced := make(map[string]bool, len(order))
	for _, o := range occs {
		id, hoisted := hoistID[o.Name]
		if !hoisted || id != o.ID {
			out = append(out, o)
			continue
		}
		if rootPlaced[o.Name] {
			continue
		}
		rootPlaced[o.Name] = true
		out = append(out, occurrence{
			ID:             id,
			Name:           o.Name,
			NodeModulesDir: nodeModulesRoot,
			Dir:            filepath.Join(nodeModulesRoot, o.Name),
		})
	}
	return out
}
