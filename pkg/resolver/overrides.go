package resolver

import (
	"strings"

	"github.com/armon/go-radix"
)

// overrideTrie is a typed wrapper over armon/go-radix, the same pattern
// the teacher's gps/typed_radix.go uses to avoid type-asserting at every
// call site. It is keyed on package name (or scope prefix, e.g.
// "@babel/") so a single override entry can redirect a whole scope,
// the way solver.go's intersectConstraintsWithImports uses LongestPrefix
// to map a reached import path back to its owning project root.
type overrideTrie struct {
	t *radix.Tree
}

func newOverrideTrie(overrides map[string]string) *overrideTrie {
	t := radix.New()
	for name, spec := range overrides {
		t.Insert(name, spec)
	}
	return &overrideTrie{t: t}
}

// lookup returns the override spec for name, preferring an exact match
// and falling back to the longest scope-prefix match (a key ending in
// "/" is treated as a scope prefix, never a package name on its own).
func (o *overrideTrie) lookup(name string) (string, bool) {
	if o == nil {
		return "", false
	}
	if v, ok := o.t.Get(name); ok {
		return v.(string), true
	}
	if prefix, v, ok := o.t.LongestPrefix(name); ok && strings.HasSuffix(prefix, "/") {
		return v.(string), true
	}
	return "", false
}
