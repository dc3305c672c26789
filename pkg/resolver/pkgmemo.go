package resolver

import (
	"github.com/armon/go-radix"

	"github.com/snpm-dev/snpm/pkg/sntypes"
)

// pkgMetaTrie memoizes a fetched RegistryPackage by "<protocol>:<name>"
// for the lifetime of one resolve, the per-name metadata memoization
// spec.md §4.6 calls for ("avoid re-fetching within one resolve"). The
// Client underneath has its own in-flight/cache memoization too; this
// layer exists so a name already settled by nameWinnerTrie never even
// reaches the Client.
type pkgMetaTrie struct{ t *radix.Tree }

func newPkgMetaTrie() *pkgMetaTrie { return &pkgMetaTrie{t: radix.New()} }

func (p *pkgMetaTrie) get(key string) (*sntypes.RegistryPackage, bool) {
	v, ok := p.t.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*sntypes.RegistryPackage), true
}

func (p *pkgMetaTrie) put(key string, pkg *sntypes.RegistryPackage) {
	p.t.Insert(key, pkg)
}

// nameWinnerTrie records, for each registry package name, the first
// PackageId a resolve settled on. spec.md §4.6's tie-break rule - "two
// siblings requesting the same name with different ranges do NOT split
// ... the first resolution wins" - is implemented by consulting this
// before ever fetching metadata or selecting a version for a given
// name again.
type nameWinnerTrie struct{ t *radix.Tree }

func newNameWinnerTrie() *nameWinnerTrie { return &nameWinnerTrie{t: radix.New()} }

func (n *nameWinnerTrie) get(name string) (sntypes.PackageId, bool) {
	v, ok := n.t.Get(name)
	if !ok {
		return sntypes.PackageId{}, false
	}
	return v.(sntypes.PackageId), true
}

func (n *nameWinnerTrie) put(name string, id sntypes.PackageId) {
	n.t.Insert(name, id)
}
