// Package install drives the recursive install walk and its inverse.
//
// # Install
//
// [Installer.Install] walks the requested packages depth-first in
// declaration order. For each package name not yet visited by the run's
// [Context] it fetches registry metadata, resolves a version, extracts the
// tarball under node_modules, records the package in the project manifest
// (local installs into the project root only), recurses into the
// version's dependencies and finally, for global installs, writes bin
// shims.
//
// Deduplication is by name: the first version reached wins and later
// requests for the same name are skipped, whatever version they ask for.
//
// # Failure Model
//
// Registry, resolution and download failures abort the whole run. Work
// already done stays on disk, including manifest entries of packages that
// finished before the failure. Shim failures are logged as warnings and do
// not abort.
//
// Every package that finished extracting is written to the manifest,
// transitive dependencies included.
package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/manifest"
	"github.com/minpm/minpm/pkg/observability"
	"github.com/minpm/minpm/pkg/registry"
	"github.com/minpm/minpm/pkg/shim"
)

// MetadataSource fetches registry metadata. *registry.Client implements it.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, name string) (*registry.Metadata, error)
}

// Extractor downloads a tarball into a directory. *archive.Fetcher
// implements it.
type Extractor interface {
	FetchAndExtract(ctx context.Context, url, dest string) error
}

// Installer installs and removes packages.
type Installer struct {
	Registry  MetadataSource
	Extractor Extractor
	Manifest  *manifest.Store // project manifest; nil disables manifest updates

	GlobalRoot  string // root for global installs, holding node_modules and bin
	Interpreter string // interpreter named in shims
	Logger      *log.Logger
}

// NewInstaller creates an Installer. A nil logger discards output.
func NewInstaller(src MetadataSource, ext Extractor, store *manifest.Store, globalRoot string, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Installer{
		Registry:    src,
		Extractor:   ext,
		Manifest:    store,
		GlobalRoot:  globalRoot,
		Interpreter: shim.DefaultInterpreter,
		Logger:      logger,
	}
}

// BinDir returns the directory global shims are written to.
func (i *Installer) BinDir() string { return filepath.Join(i.GlobalRoot, "bin") }

// PackageDir returns where name is installed below root.
func PackageDir(root, name string) string {
	return filepath.Join(root, "node_modules", filepath.FromSlash(name))
}

// Install installs reqs and their dependencies and returns how many
// package names the call visited. With no requests, the dependencies
// recorded in the project manifest are installed instead, with one leading
// "^" or "~" stripped from each range.
func (i *Installer) Install(ctx context.Context, reqs []Request, ictx *Context) (int, error) {
	if len(reqs) == 0 {
		reqs = i.manifestRequests()
	}

	before := len(ictx.visited)
	for _, req := range reqs {
		if err := i.install(ctx, req, ictx); err != nil {
			return len(ictx.visited) - before, err
		}
	}
	return len(ictx.visited) - before, nil
}

func (i *Installer) manifestRequests() []Request {
	if i.Manifest == nil {
		return nil
	}
	var reqs []Request
	i.Manifest.Read().Dependencies.Each(func(name, rng string) {
		reqs = append(reqs, Request{Name: name, Version: stripRange(rng)})
	})
	return reqs
}

func (i *Installer) install(ctx context.Context, req Request, ictx *Context) (err error) {
	if !ictx.visit(req.Name) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := i.Logger.With("pkg", req.Name, "run", ictx.RunID)
	hooks := observability.Install()
	hooks.OnPackageStart(ctx, req.Name, req.Version)

	start := time.Now()
	version := ""
	defer func() {
		// completion of a successful extraction is reported below
		if err != nil && version == "" {
			hooks.OnPackageComplete(ctx, req.Name, version, time.Since(start), err)
		}
	}()

	if err := errors.ValidateNpmPackageName(req.Name); err != nil {
		return err
	}

	logger.Debug("fetching metadata", "requested", req.Version)
	meta, err := i.Registry.FetchMetadata(ctx, req.Name)
	if err != nil {
		return fmt.Errorf("install %s: %w", req.Name, err)
	}
	res, err := registry.Resolve(meta, req.Version)
	if err != nil {
		return fmt.Errorf("install %s: %w", req.Name, err)
	}
	if res.Degraded {
		logger.Warn("version range not supported, installing latest", "requested", req.Version, "version", res.Version)
	}
	if res.Record.TarballURL == "" {
		return errors.New(errors.ErrCodeMetadataParse, "%s@%s has no tarball", req.Name, res.Version)
	}

	root := ictx.BaseDir
	if ictx.Global {
		root = i.GlobalRoot
	}
	dest := PackageDir(root, req.Name)

	logger.Debug("downloading", "version", res.Version, "dest", dest)
	if err := i.Extractor.FetchAndExtract(ctx, res.Record.TarballURL, dest); err != nil {
		return fmt.Errorf("install %s@%s: %w", req.Name, res.Version, err)
	}
	version = res.Version
	hooks.OnPackageComplete(ctx, req.Name, version, time.Since(start), nil)
	logger.Info("installed", "version", version)

	if i.recordsManifest(ictx) {
		if err := i.record(req.Name, version); err != nil {
			return err
		}
	}

	for _, dep := range res.Record.Dependencies.Keys() {
		rng, _ := res.Record.Dependencies.Get(dep)
		if err := i.install(ctx, Request{Name: dep, Version: rng}, ictx); err != nil {
			return err
		}
	}

	if ictx.Global {
		i.shims(logger, dest)
	}
	return nil
}

// recordsManifest reports whether the run installs into the project root
// the manifest store belongs to.
func (i *Installer) recordsManifest(ictx *Context) bool {
	if ictx.Global || i.Manifest == nil {
		return false
	}
	return filepath.Clean(ictx.BaseDir) == filepath.Clean(i.Manifest.Dir())
}

func (i *Installer) record(name, version string) error {
	m := i.Manifest.Read()
	m.Dependencies.Set(name, "^"+version)
	if err := i.Manifest.Write(m); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "write %s", i.Manifest.Path())
	}
	return nil
}

func (i *Installer) shims(logger *log.Logger, dest string) {
	pkg, err := shim.ReadPackage(dest)
	if err != nil {
		logger.Warn("could not read package.json, skipping bin shims", "err", errors.UserMessage(err))
		return
	}
	written, err := shim.Create(pkg, dest, i.BinDir(), i.Interpreter)
	if err != nil {
		logger.Warn("could not create bin shims", "err", errors.UserMessage(err))
	}
	for _, path := range written {
		logger.Debug("created shim", "path", path)
	}
}

// Uninstall removes the named packages and returns how many were removed.
//
// Every name is validated before anything is removed. Global removal
// deletes <globalRoot>/node_modules/<name> along with its shims. Local
// removal deletes node_modules/<name> in the project root and then, if a
// manifest file exists, drops the handled names from its dependencies in a
// single rewrite, even when a later removal fails. Names that are not
// installed are logged as warnings and not counted.
func (i *Installer) Uninstall(ctx context.Context, names []string, global bool) (int, error) {
	root := i.GlobalRoot
	if !global {
		if i.Manifest == nil {
			return 0, errors.New(errors.ErrCodeInternal, "local uninstall needs a project manifest store")
		}
		root = i.Manifest.Dir()
	}
	for _, name := range names {
		if err := errors.ValidateNpmPackageName(name); err != nil {
			return 0, err
		}
	}

	removed := 0
	var handled []string
	var failure error
	for _, name := range names {
		dir := PackageDir(root, name)
		if _, err := os.Stat(dir); err != nil {
			i.Logger.Warn("package not installed", "pkg", name, "global", global)
			handled = append(handled, name)
			continue
		}

		var bins []string
		if global {
			bins = i.shimNames(name, dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			failure = errors.Wrap(errors.ErrCodeInternal, err, "remove %s", dir)
			break
		}
		for _, bin := range bins {
			i.removeShim(bin)
		}

		removed++
		handled = append(handled, name)
		observability.Install().OnPackageRemoved(ctx, name, global)
		i.Logger.Info("uninstalled", "pkg", name, "global", global)
	}

	if !global && len(handled) > 0 && i.Manifest.Exists() {
		m := i.Manifest.Read()
		for _, name := range handled {
			m.Dependencies.Delete(name)
		}
		if err := i.Manifest.Write(m); err != nil && failure == nil {
			failure = errors.Wrap(errors.ErrCodeInvalidManifest, err, "write %s", i.Manifest.Path())
		}
	}
	return removed, failure
}

// shimNames lists the shims a global package owns: the declared bins when
// its manifest is readable, plus its own name.
func (i *Installer) shimNames(name, dir string) []string {
	names := []string{filepath.Base(filepath.FromSlash(name))}
	if pkg, err := shim.ReadPackage(dir); err == nil {
		for _, bin := range pkg.Bins().Keys() {
			if bin != names[0] {
				names = append(names, bin)
			}
		}
	}
	return names
}

func (i *Installer) removeShim(bin string) {
	path := filepath.Join(i.BinDir(), bin)
	for _, p := range []string{path, path + ".cmd"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			i.Logger.Warn("could not remove shim", "path", p, "err", err)
		}
	}
}
