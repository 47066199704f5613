// Package pipeline drives the bootstrap state machine per spec.md §4.8:
// manifest acquisition, dependency resolution, download, stage 1 filesystem
// extraction, and stage 2 in-guest installation.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/rootstrap/rootstrap/internal/config"
	"github.com/rootstrap/rootstrap/internal/debarchive"
	"github.com/rootstrap/rootstrap/internal/diskguard"
	"github.com/rootstrap/rootstrap/internal/fetch"
	"github.com/rootstrap/rootstrap/internal/fsprep"
	"github.com/rootstrap/rootstrap/internal/guest"
	"github.com/rootstrap/rootstrap/internal/httputil"
	"github.com/rootstrap/rootstrap/internal/log"
	"github.com/rootstrap/rootstrap/internal/manifest"
	"github.com/rootstrap/rootstrap/internal/rootstraperr"
	"github.com/rootstrap/rootstrap/internal/universe"
)

// Options configures one pipeline run.
type Options struct {
	Mirror       string
	Branch       string
	Target       string
	Arches       []string
	ConfigPath   string
	Includes     []string // cli_includes, spec.md §4.8
	IncludeFiles []string
	Scripts      []string // user-provided extra install scripts, concatenated verbatim
	DownloadOnly bool
	Stage1Only   bool
	CleanUp      bool
}

// Driver runs the bootstrap pipeline's state machine.
type Driver struct {
	opts     Options
	logger   log.Logger
	fetcher  *manifest.Fetcher
	dl       *fetch.Downloader
	archives string // target/var/cache/apt/archives
	lists    string // target/var/lib/apt/lists
}

func New(opts Options, logger log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	// spec.md §4.1: "all" is architecture-independent packages' home
	// manifest and must always be fetched, regardless of which concrete
	// architectures the caller asked for.
	opts.Arches = dedupe(append(append([]string{}, opts.Arches...), "all"))
	// Manifest and package fetches share one client whose per-request
	// timeout comes from ROOTSTRAP_API_TIMEOUT.
	httpOpts := httputil.DefaultOptions()
	httpOpts.Timeout = config.GetAPITimeout()
	client := httputil.NewSecureClient(httpOpts)
	return &Driver{
		opts:     opts,
		logger:   logger,
		fetcher:  manifest.New(manifest.WithLogger(logger), manifest.WithHTTPClient(client)),
		dl:       fetch.New(fetch.WithLogger(logger), fetch.WithHTTPClient(client)),
		archives: filepath.Join(opts.Target, "var", "cache", "apt", "archives"),
		lists:    filepath.Join(opts.Target, "var", "lib", "apt", "lists"),
	}
}

// Run executes the full state machine described in spec.md §4.8, returning
// at the state machine's END or at the configured early-exit point
// (download_only or stage1_only).
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("INIT", "target", d.opts.Target, "branch", d.opts.Branch)

	cfg, err := config.LoadBootstrapConfig(d.opts.ConfigPath)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindConfig, "INIT", err)
	}

	if err := d.prepareDirs(); err != nil {
		return err
	}

	manifestNames, err := d.fetcher.FetchManifests(ctx, d.opts.Mirror, d.opts.Branch, d.opts.Arches, d.lists)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindNetwork, "FETCH_MANIFESTS", err)
	}

	pool := universe.NewPool()
	manifestPaths := make([]string, len(manifestNames))
	for i, n := range manifestNames {
		manifestPaths[i] = filepath.Join(d.lists, n)
	}
	if err := pool.Populate(manifestPaths); err != nil {
		return rootstraperr.New(rootstraperr.KindResolution, "FETCH_MANIFESTS", err)
	}

	seed, err := d.composeSeed(cfg)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindConfig, "RESOLVE_FULL", err)
	}

	fullSet, err := pool.Solve(seed, d.opts.Arches)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindResolution, "RESOLVE_FULL", err)
	}
	d.logger.Info("RESOLVE_FULL", "packages", len(fullSet.Packages), "installed_size", humanize.IBytes(uint64(fullSet.GetSizeChange())*1024))

	if err := diskguard.Check(fullSet.GetSizeChange(), d.opts.Target); err != nil {
		return err
	}

	if err := d.dl.BatchDownload(ctx, fullSet.Packages, d.opts.Mirror, d.archives); err != nil {
		return rootstraperr.New(rootstraperr.KindNetwork, "DOWNLOAD", err)
	}
	sync()

	if d.opts.DownloadOnly {
		d.logger.Info("END", "reason", "download_only")
		return nil
	}

	stubSet, err := pool.Solve(cfg.StubPackages, d.opts.Arches)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindResolution, "RESOLVE_STUB", err)
	}

	// spec.md §9: resolved_stub must be a subset of resolved_full. The two
	// solves are independent calls and alternation/conflict selection can
	// differ between them, so this has to be checked at runtime rather than
	// assumed from shared code paths.
	fullNames := make(map[string]bool, len(fullSet.Packages))
	for _, pkg := range fullSet.Packages {
		fullNames[pkg.Name] = true
	}
	for _, pkg := range stubSet.Packages {
		if !fullNames[pkg.Name] {
			return &rootstraperr.ResolutionError{
				Phase:   "RESOLVE_STUB",
				Message: fmt.Sprintf("stub package %q resolved but is absent from the full set", pkg.Name),
			}
		}
	}

	if err := diskguard.Check(stubSet.GetSizeChange(), d.opts.Target); err != nil {
		return err
	}

	if err := d.stage1Prep(manifestNames); err != nil {
		return err
	}

	if err := d.stage1Extract(stubSet); err != nil {
		return err
	}
	sync()

	if d.opts.Stage1Only {
		d.logger.Info("END", "reason", "stage1_only")
		return nil
	}

	if err := diskguard.Check(fullSet.GetSizeChange(), d.opts.Target); err != nil {
		return err
	}

	scriptPath, err := d.writeInstallScript(fullSet)
	if err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "WRITE_SCRIPT", err)
	}

	if err := d.includeExtraScripts(scriptPath); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "INCLUDE_EXTRA_SCRIPTS", err)
	}

	scriptName := filepath.Base(scriptPath)
	if err := guest.RunInGuest(d.opts.Target, []string{"bash", "-e", "/" + scriptName}, d.logger); err != nil {
		return rootstraperr.New(rootstraperr.KindGuest, "GUEST_EXEC", err)
	}
	sync()

	d.logger.Info("END", "reason", "complete")
	return nil
}

func (d *Driver) prepareDirs() error {
	for _, dir := range []string{d.lists, d.archives} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "PREPARE_DIRS", err)
		}
	}
	return nil
}

// composeSeed computes stub_packages ∪ base_packages ∪ cli_includes ∪
// (lines of each --include-file), per spec.md §4.8.
func (d *Driver) composeSeed(cfg *config.BootstrapConfig) ([]string, error) {
	seed := make([]string, 0, len(cfg.StubPackages)+len(cfg.BasePackages)+len(d.opts.Includes))
	seed = append(seed, cfg.StubPackages...)
	seed = append(seed, cfg.BasePackages...)
	seed = append(seed, d.opts.Includes...)

	if len(d.opts.IncludeFiles) > 0 {
		fromFiles, err := config.CollectPackagesFromLists(d.opts.IncludeFiles)
		if err != nil {
			return nil, err
		}
		d.logger.Info("RESOLVE_FULL", "extra_packages_from_files", len(fromFiles))
		seed = append(seed, fromFiles...)
	}

	return dedupe(seed), nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func (d *Driver) stage1Prep(manifestNames []string) error {
	manifestPaths := make([]string, len(manifestNames))
	for i, n := range manifestNames {
		manifestPaths[i] = filepath.Join(d.lists, n)
	}

	if err := os.MkdirAll(filepath.Join(d.opts.Target, "dev"), 0o755); err != nil {
		return rootstraperr.New(rootstraperr.KindExtraction, "STAGE1_PREP", err)
	}
	if err := fsprep.BootstrapAPT(d.opts.Target, d.opts.Mirror, d.opts.Branch, manifestPaths); err != nil {
		return err
	}
	if err := fsprep.ExtractBootstrapPack(d.opts.Target); err != nil {
		return err
	}
	if err := fsprep.MakeDeviceNodes(d.opts.Target); err != nil {
		return err
	}
	return nil
}

func (d *Driver) stage1Extract(stubSet *universe.ResolvedSet) error {
	for i, pkg := range stubSet.Packages {
		archivePath := filepath.Join(d.archives, filepath.Base(pkg.Path))
		d.logger.Info("STAGE1_EXTRACT", "index", i+1, "total", len(stubSet.Packages), "package", pkg.Name)

		f, err := os.Open(archivePath)
		if err != nil {
			return rootstraperr.New(rootstraperr.KindExtraction, "STAGE1_EXTRACT", err)
		}
		err = debarchive.ExtractDeb(f, d.opts.Target)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// writeInstallScript writes the stage-2 install script into the target
// root, invoking the in-guest installer with every archive filename from
// fullSet in solver order, per spec.md §4.8.
func (d *Driver) writeInstallScript(fullSet *universe.ResolvedSet) (string, error) {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\nset -e\n\n")

	sb.WriteString("dpkg -i \\\n")
	for i, pkg := range fullSet.Packages {
		filename := filepath.Base(pkg.Path)
		sep := " \\\n"
		if i == len(fullSet.Packages)-1 {
			sep = "\n"
		}
		sb.WriteString(fmt.Sprintf("  /var/cache/apt/archives/%s%s", filename, sep))
	}

	if d.opts.CleanUp {
		sb.WriteString("\nrm -f /var/cache/apt/archives/*.deb\n")
	}

	scriptPath := filepath.Join(d.opts.Target, "rootstrap-install.sh")
	if err := os.WriteFile(scriptPath, []byte(sb.String()), 0o755); err != nil {
		return "", err
	}
	return scriptPath, nil
}

// includeExtraScripts appends each user-provided script to the install
// script, preceded by a comment banner naming its source path, per
// spec.md §4.8.
func (d *Driver) includeExtraScripts(scriptPath string) error {
	if len(d.opts.Scripts) == 0 {
		return nil
	}

	f, err := os.OpenFile(scriptPath, os.O_APPEND|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, path := range d.opts.Scripts {
		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(f, "\n# --- from %s ---\n", path); err != nil {
			return err
		}
		if _, err := f.Write(contents); err != nil {
			return err
		}
	}
	return nil
}

// sync flushes the kernel page cache, protecting against power loss during
// long-running bulk-mutation phases per spec.md §4.8.
func sync() {
	unix.Sync()
}
