// Package install implements the top-level Orchestrator spec.md §5 and
// §4.9 describe: it threads a project's Config and manifest through the
// Resolver, Store, Linker, ScenarioDetector, Lockfile, and
// IntegrityMarker collaborators, deciding per §4.9's decision tree how
// much of an install can be skipped, fanning out store materialization
// the way the retrieval pack's own JS tooling (vercel-turborepo's
// context.go) fans out its package-graph population with
// golang.org/x/sync/errgroup, and finally running allowed install
// scripts with os/exec.
package install

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/integrity"
	"github.com/snpm-dev/snpm/pkg/linker"
	"github.com/snpm-dev/snpm/pkg/lockfile"
	"github.com/snpm-dev/snpm/pkg/manifest"
	"github.com/snpm-dev/snpm/pkg/project"
	"github.com/snpm-dev/snpm/pkg/registry"
	"github.com/snpm-dev/snpm/pkg/resolver"
	"github.com/snpm-dev/snpm/pkg/scenario"
	"github.com/snpm-dev/snpm/pkg/snerr"
	"github.com/snpm-dev/snpm/pkg/snlog"
	"github.com/snpm-dev/snpm/pkg/sntypes"
	"github.com/snpm-dev/snpm/pkg/store"
)

// Options configures one Orchestrator for one project root.
type Options struct {
	Config   *config.Config
	Manifest *manifest.Manifest
	RootDir  string

	Client *registry.Client
	Store  *store.Store

	// Catalog resolves "catalog:" / "catalog:<name>" root dependency
	// ranges before they ever reach the resolver; nil behaves as an
	// empty catalog (any such range fails to resolve).
	Catalog *project.Catalog

	IncludeDev     bool
	Force          bool
	FrozenLockfile bool

	// Workspaces resolves a "workspace:" root dependency for the
	// Linker; nil for a standalone (non-workspace) project.
	Workspaces map[string]linker.WorkspaceMember

	Logger snlog.Logger
}

// Result reports what an Install call actually did.
type Result struct {
	Scenario       scenario.Scenario
	PackageCount   int
	BlockedScripts []string
}

// Orchestrator drives one project's install end to end.
type Orchestrator struct {
	opts Options
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts}
}

func (o *Orchestrator) nodeModulesDir() string {
	return filepath.Join(o.opts.RootDir, "node_modules")
}

func (o *Orchestrator) lockfilePath() string {
	return filepath.Join(o.opts.RootDir, lockfile.FileName)
}

func (o *Orchestrator) scriptsAllowed(name string) bool {
	return config.ScriptsAllowed(o.opts.Config, name, o.opts.Manifest.OnlyBuiltDependencies, o.opts.Manifest.IgnoredBuiltDependencies)
}

// resolveCatalogRanges implements the "Workspace catalog" module:
// catalogs are resolved before a dependency ever reaches the resolver,
// so this runs once, up front, before scenario detection, the graph
// build, and the lockfile ever see a "catalog:" literal.
func (o *Orchestrator) resolveCatalogRanges(ranges map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(ranges))
	for name, rng := range ranges {
		if !strings.HasPrefix(rng, "catalog:") {
			out[name] = rng
			continue
		}
		resolved, ok := o.opts.Catalog.Resolve(name, rng)
		if !ok {
			return nil, &snerr.WorkspaceConfig{Reason: fmt.Sprintf("%s: no catalog entry for %q", name, rng)}
		}
		out[name] = resolved
	}
	return out, nil
}

// Install runs spec.md §4.9's decision tree and performs whichever
// subset of {resolve, materialize, link, write lockfile, write
// integrity marker, run scripts} the detected scenario calls for.
func (o *Orchestrator) Install(ctx context.Context) (*Result, error) {
	m := o.opts.Manifest
	rootRanges, err := o.resolveCatalogRanges(m.EffectiveDependencies(o.opts.IncludeDev))
	if err != nil {
		return nil, err
	}
	devNames := m.DevNames()

	lockPath := o.lockfilePath()
	nodeModulesDir := o.nodeModulesDir()

	det := &scenario.Detector{Store: o.opts.Store}
	sc, graph := det.Detect(lockPath, rootRanges, nodeModulesDir, o.opts.Force)

	if err := o.checkFrozenLockfile(sc, lockPath, rootRanges); err != nil {
		return nil, err
	}

	switch sc {
	case scenario.Hot:
		return o.runHot(graph)
	case scenario.WarmLinkOnly:
		return o.runWarm(ctx, sc, graph, devNames, nil)
	case scenario.WarmPartialCache:
		missing := missingIDs(o.opts.Store, graph)
		return o.runWarm(ctx, sc, graph, devNames, missing)
	default:
		return o.runCold(ctx, rootRanges, devNames)
	}
}

// checkFrozenLockfile implements spec.md §6's frozen-lockfile mode: it
// refuses an install before touching the store if the lockfile is
// missing, new packages would be added, or the lockfile's root
// diverges from the manifest. A Cold scenario with frozen mode enabled
// is exactly "the lockfile doesn't already cover this manifest", which
// covers all three conditions at once.
func (o *Orchestrator) checkFrozenLockfile(sc scenario.Scenario, lockPath string, rootRanges map[string]string) error {
	if !o.opts.FrozenLockfile {
		return nil
	}
	if sc == scenario.Cold {
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			return &snerr.Lockfile{Path: lockPath, Reason: "frozen-lockfile mode: no lockfile present"}
		}
		return &snerr.Lockfile{Path: lockPath, Reason: "frozen-lockfile mode: lockfile does not match manifest"}
	}
	return nil
}

func (o *Orchestrator) runHot(graph *sntypes.ResolutionGraph) (*Result, error) {
	return &Result{Scenario: scenario.Hot, PackageCount: len(graph.Packages)}, nil
}

// runWarm handles WarmLinkOnly and WarmPartialCache: the graph is
// already known (from the lockfile), so resolution is skipped
// entirely. WarmPartialCache first downloads the ids missing from the
// store, in parallel, before relinking.
func (o *Orchestrator) runWarm(ctx context.Context, sc scenario.Scenario, graph *sntypes.ResolutionGraph, devNames map[string]bool, missing []sntypes.PackageId) (*Result, error) {
	if len(missing) > 0 {
		if err := o.materialize(ctx, graph, missing); err != nil {
			return nil, err
		}
	}

	placements, err := o.link(ctx, graph, devNames)
	if err != nil {
		return nil, err
	}
	if err := integrity.Write(o.nodeModulesDir(), graph); err != nil {
		return nil, err
	}

	blocked, err := o.runScripts(ctx, graph, placements)
	if err != nil {
		return nil, err
	}
	return &Result{Scenario: sc, PackageCount: len(graph.Packages), BlockedScripts: blocked}, nil
}

// runCold performs a full resolve, decoupling materialization from
// resolution via the resolver's OnMaterialize hook exactly as spec.md
// §5 describes: every time a new PackageId enters the graph, a
// fire-and-forget ensure_package task is spawned and its handle
// recorded; after Resolve returns, every handle is joined before
// linking proceeds.
func (o *Orchestrator) runCold(ctx context.Context, rootRanges map[string]string, devNames map[string]bool) (*Result, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(o.opts.Config.Concurrency()))

	overrides := o.opts.Manifest.Overrides
	r := resolver.New(o.opts.Client, overrides, resolver.Options{
		MinAgeDays:  o.opts.Config.MinPackageAgeDays,
		Force:       o.opts.Force,
		StrictPeers: o.opts.Config.StrictPeers,
		Logger:      o.opts.Logger,
		OnMaterialize: func(pkg *sntypes.ResolvedPackage) {
			node := pkg
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				_, err := o.opts.Store.EnsurePackage(gctx, node)
				return err
			})
		},
	})

	roots := make(map[string]resolver.RootSpec, len(rootRanges))
	for name, rng := range rootRanges {
		roots[name] = resolver.RootSpec{Range: rng, Protocol: sntypes.ProtocolNpm}
	}

	graph, resolveErr := r.Resolve(ctx, roots)
	waitErr := g.Wait()

	if resolveErr != nil {
		return nil, resolveErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, snerr.Cancelled
		}
		return nil, waitErr
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	if o.opts.IncludeDev {
		lf := lockfile.FromGraph(graph)
		if err := lockfile.Write(o.lockfilePath(), graph); err != nil {
			return nil, err
		}
		if o.opts.Logger != nil {
			for _, ref := range lockfile.SortedPackageRefs(lf) {
				o.opts.Logger.Verbosef("locked %s\n", ref)
			}
		}
	}

	placements, err := o.link(ctx, graph, devNames)
	if err != nil {
		return nil, err
	}
	if err := integrity.Write(o.nodeModulesDir(), graph); err != nil {
		return nil, err
	}

	blocked, err := o.runScripts(ctx, graph, placements)
	if err != nil {
		return nil, err
	}
	return &Result{Scenario: scenario.Cold, PackageCount: len(graph.Packages), BlockedScripts: blocked}, nil
}

// materialize downloads ids in parallel, bounded by the configured
// registry concurrency, the same fan-out shape runCold uses for fresh
// resolution.
func (o *Orchestrator) materialize(ctx context.Context, graph *sntypes.ResolutionGraph, ids []sntypes.PackageId) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(o.opts.Config.Concurrency()))

	for _, id := range ids {
		node, ok := graph.Packages[id]
		if !ok {
			return &snerr.StoreMissing{ID: id.String()}
		}
		node := node
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			_, err := o.opts.Store.EnsurePackage(gctx, node)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return snerr.Cancelled
		}
		return err
	}
	return checkCancelled(ctx)
}

func (o *Orchestrator) link(ctx context.Context, graph *sntypes.ResolutionGraph, devNames map[string]bool) ([]linker.Placement, error) {
	l := linker.New(linker.Options{
		Backend:        o.opts.Config.LinkBackend,
		Hoisting:       o.opts.Config.Hoisting,
		Store:          o.opts.Store,
		ScriptsAllowed: o.scriptsAllowed,
		Patches:        patchMap(o.opts.Manifest, graph),
		PatchApplier:   o.opts.Config.PatchApplier,
		Workspaces:     o.opts.Workspaces,
	})
	return l.Link(ctx, o.opts.RootDir, graph, rootSpecsFromManifest(o.opts.Manifest), devNames, o.opts.IncludeDev)
}

// patchMap resolves the manifest's "<name>@<version>" patchedDependencies
// keys to the PackageId the graph actually resolved for that name, so
// the Linker can key its Patches map by PackageId.
func patchMap(m *manifest.Manifest, graph *sntypes.ResolutionGraph) map[sntypes.PackageId]string {
	if len(m.PatchedDependencies) == 0 {
		return nil
	}
	byRef := make(map[string]string, len(m.PatchedDependencies))
	for ref, patchFile := range m.PatchedDependencies {
		byRef[ref] = patchFile
	}
	out := make(map[sntypes.PackageId]string, len(byRef))
	for id := range graph.Packages {
		if patchFile, ok := byRef[id.String()]; ok {
			out[id] = patchFile
		}
	}
	return out
}

// rootSpecsFromManifest returns the manifest's raw root dependency
// specifiers (dependencies + devDependencies), the form the Linker
// needs to find "workspace:" root entries that the resolver never
// graphs.
func rootSpecsFromManifest(m *manifest.Manifest) map[string]string {
	out := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for name, spec := range m.Dependencies {
		out[name] = spec
	}
	for name, spec := range m.DevDependencies {
		out[name] = spec
	}
	return out
}

// missingIDs returns every PackageId in graph without a store sentinel,
// in deterministic order.
func missingIDs(s *store.Store, graph *sntypes.ResolutionGraph) []sntypes.PackageId {
	var out []sntypes.PackageId
	for id := range graph.Packages {
		if !s.HasSentinel(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return snerr.Cancelled
	}
	return nil
}

// runScripts implements spec.md §4.10: for every placement whose
// package declares an "install" script, run it with the package root
// as working directory and PATH augmented with its node_modules/.bin,
// if the package is on the effective allowlist; otherwise its name is
// collected and returned rather than run.
func (o *Orchestrator) runScripts(ctx context.Context, graph *sntypes.ResolutionGraph, placements []linker.Placement) ([]string, error) {
	var blocked []string

	sort.Slice(placements, func(i, j int) bool { return placements[i].ID.Less(placements[j].ID) })

	for _, p := range placements {
		script, ok, err := installScript(o.opts.Store, p.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !o.scriptsAllowed(p.ID.Name) {
			blocked = append(blocked, p.ID.Name)
			continue
		}
		if err := runScript(ctx, script, p); err != nil {
			return nil, err
		}
	}
	return blocked, nil
}

// installScript reads a package's materialized package.json directly
// from the store rather than its linked copy: store content is always
// present and identical regardless of hoisting, so this is the one
// reliable place to find the scripts.install field no matter how the
// package ended up placed in node_modules.
func installScript(s *store.Store, id sntypes.PackageId) (string, bool, error) {
	if !s.HasSentinel(id) {
		return "", false, nil
	}
	path := filepath.Join(s.PackageRoot(id), manifest.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, &snerr.ReadFile{Io: snerr.Io{Path: path, Err: err}}
	}
	var doc struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false, &snerr.ManifestInvalid{Path: path, Err: err}
	}
	script, ok := doc.Scripts["install"]
	return script, ok && script != "", nil
}

// runScript executes one package's install script with cwd = its
// linked directory and PATH prefixed with its own .bin directory, the
// way a shell script invoked by npm would see it.
func runScript(ctx context.Context, script string, p linker.Placement) error {
	shell, shellFlag := shellCommand()
	cmd := exec.CommandContext(ctx, shell, shellFlag, script)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), "PATH="+p.BinDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return snerr.Cancelled
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &snerr.ScriptFailed{Name: p.ID.Name, Code: exitErr.ExitCode()}
	}
	return errors.Wrapf(err, "install: running script for %s", p.ID)
}

func shellCommand() (string, string) {
	if strings.EqualFold(os.Getenv("OS"), "Windows_NT") {
		return "cmd", "/C"
	}
	return "/bin/sh", "-c"
}
