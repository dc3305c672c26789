// Command snpm is a thin demonstration entrypoint over the install
// core. The command-line front-end proper — flag parsing beyond a
// handful of install-affecting switches, terminal formatting,
// interactive login, and .npmrc-style configuration loading — is out
// of scope (spec.md §1); this only wires Config/Project together and
// calls Orchestrator.Install the way the teacher's cmd/dep/main.go
// wires its own Ctx and hands off to one of its subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snpm-dev/snpm/pkg/config"
	"github.com/snpm-dev/snpm/pkg/install"
	"github.com/snpm-dev/snpm/pkg/linker"
	"github.com/snpm-dev/snpm/pkg/project"
	"github.com/snpm-dev/snpm/pkg/registry"
	"github.com/snpm-dev/snpm/pkg/snlog"
	"github.com/snpm-dev/snpm/pkg/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("snpm", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		includeDev     = fs.Bool("dev", true, "include devDependencies")
		force          = fs.Bool("force", false, "bypass the Hot scenario and re-verify the store")
		frozenLockfile = fs.Bool("frozen-lockfile", false, "refuse to install if the lockfile would change")
		verbose        = fs.Bool("verbose", false, "enable verbose logging")
		registryURL    = fs.String("registry", "https://registry.npmjs.org", "default package registry")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := snlog.New(stdout, stderr, *verbose)

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(stderr, "snpm:", err)
		return 1
	}

	proj, err := project.Load(wd)
	if err != nil {
		fmt.Fprintln(stderr, "snpm:", err)
		return 1
	}

	dataDir, err := defaultDataDir()
	if err != nil {
		fmt.Fprintln(stderr, "snpm:", err)
		return 1
	}

	cfg := &config.Config{
		DefaultRegistry: *registryURL,
		LinkBackend:     config.LinkAuto,
		Hoisting:        config.HoistSingleVersion,
		DataDir:         dataDir,
		Verbose:         *verbose,
	}

	s := store.New(cfg.PackagesDir())
	client := registry.NewClient(cfg, registry.NewCache(cfg.MetadataDir(), cfg.PackageCacheAge()))

	workspaces := make(map[string]linker.WorkspaceMember, len(proj.Members))
	for _, mem := range proj.Members {
		workspaces[mem.Name] = linker.WorkspaceMember{Dir: mem.Dir, Version: mem.Version}
	}

	orch := install.New(install.Options{
		Config:         cfg,
		Manifest:       proj.Manifest,
		RootDir:        wd,
		Client:         client,
		Store:          s,
		Catalog:        proj.Catalog,
		IncludeDev:     *includeDev,
		Force:          *force,
		FrozenLockfile: *frozenLockfile,
		Workspaces:     workspaces,
		Logger:         logger,
	})

	res, err := orch.Install(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, "snpm:", err)
		return 1
	}

	logger.Logf("%s: %d packages\n", res.Scenario, res.PackageCount)
	for _, name := range res.BlockedScripts {
		logger.Warnf("blocked install script for %s (not on allowlist)\n", name)
	}
	return 0
}

// defaultDataDir returns the store/metadata root a CLI front-end would
// normally derive from .npmrc or an environment variable; absent that
// configuration layer (out of scope, spec.md §1) this falls back to
// the conventional per-user cache location.
func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".snpm"), nil
}
