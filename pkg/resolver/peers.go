package resolver

import (
	"sort"

	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/snpmver"
	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// peerRequirement is one (peerName, peerRange) pair as declared by a
// single package node, kept alongside enough context to report a
// useful error or warning.
type peerRequirement struct {
	wanter   sntypes.PackageId
	peerName string
	range_   string
	optional bool
}

// validatePeers walks every graphed package's peerDependencies,
// per spec.md §4.6: a required peer absent from the graph entirely is
// PeerMissing; one present but not satisfying the requested range is
// PeerUnsatisfied. With StrictPeers unset, problems are logged as
// warnings and do not abort the resolve.
func (r *Resolver) validatePeers() error {
	reqs := r.collectPeerRequirements()

	versionsByName := map[string][]string{}
	for id := range r.graph.Packages {
		versionsByName[id.Name] = append(versionsByName[id.Name], id.Version)
	}
	for name := range versionsByName {
		sort.Strings(versionsByName[name])
	}

	var firstErr error
	for _, req := range reqs {
		installed := versionsByName[req.peerName]

		if len(installed) == 0 {
			if req.optional {
				continue
			}
			err := &snerr.PeerMissing{Peer: req.peerName, Range: req.range_, Wanters: []string{req.wanter.String()}}
			if !r.opts.StrictPeers {
				r.warn(err)
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		rs, err := snpmver.Parse(req.range_)
		if err != nil {
			if !r.opts.StrictPeers {
				r.warn(err)
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		satisfied := false
		for _, vstr := range installed {
			v, err := snpmver.ParseVersion(vstr)
			if err != nil {
				continue
			}
			if rs.Matches(v) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			unsatisfied := &snerr.PeerUnsatisfied{Peer: req.peerName, Range: req.range_, Installed: installed, Wanters: []string{req.wanter.String()}}
			if !r.opts.StrictPeers {
				r.warn(unsatisfied)
				continue
			}
			if firstErr == nil {
				firstErr = unsatisfied
			}
		}
	}

	return firstErr
}

func (r *Resolver) collectPeerRequirements() []peerRequirement {
	ids := make([]sntypes.PackageId, 0, len(r.graph.Packages))
	for id := range r.graph.Packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	var reqs []peerRequirement
	for _, id := range ids {
		pkg := r.graph.Packages[id]
		peerNames := make([]string, 0, len(pkg.PeerDependencies))
		for name := range pkg.PeerDependencies {
			peerNames = append(peerNames, name)
		}
		sort.Strings(peerNames)
		for _, name := range peerNames {
			reqs = append(reqs, peerRequirement{
				wanter:   id,
				peerName: name,
				range_:   pkg.PeerDependencies[name],
				optional: pkg.PeerDependenciesMeta[name].Optional,
			})
		}
	}
	return reqs
}

func (r *Resolver) warn(err error) {
	if r.opts.Logger != nil {
		r.opts.Logger.Warnf("peer dependency warning: %v\n", err)
	}
}
