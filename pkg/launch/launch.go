// Package launch installs a single package into a scratch directory and
// runs its entry point, the way create and execute commands do.
package launch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/minpm/minpm/pkg/install"
	"github.com/minpm/minpm/pkg/runner"
	"github.com/minpm/minpm/pkg/shim"
)

// Launcher installs packages with Installer and spawns their entry point
// through Runner.
type Launcher struct {
	Installer   *install.Installer
	Runner      runner.Runner
	Interpreter string
	Logger      *log.Logger
}

// New returns a Launcher that runs entry points with interpreter.
func New(inst *install.Installer, r runner.Runner, interpreter string, logger *log.Logger) *Launcher {
	if interpreter == "" {
		interpreter = shim.DefaultInterpreter
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Launcher{Installer: inst, Runner: r, Interpreter: interpreter, Logger: logger}
}

// Run installs req into dir/node_modules, locates the package's entry point
// (first bin, else main) and runs it with args. Standard streams are
// inherited. A nonzero exit is returned as a ChildProcessError carrying the
// code.
func (l *Launcher) Run(ctx context.Context, req install.Request, dir string, args []string) error {
	ictx := install.NewContext(dir, false)
	n, err := l.Installer.Install(ctx, []install.Request{req}, ictx)
	if err != nil {
		return err
	}
	l.Logger.Debug("installed for launch", "pkg", req.Name, "packages", n, "dir", dir)

	pkgDir := install.PackageDir(ictx.BaseDir, req.Name)
	pkg, err := shim.ReadPackage(pkgDir)
	if err != nil {
		return fmt.Errorf("launch %s: %w", req.Name, err)
	}
	entry, err := shim.Entry(pkg, pkgDir)
	if err != nil {
		return err
	}

	l.Logger.Debug("running", "entry", filepath.ToSlash(entry), "args", args)
	return l.Runner.Run(ctx, l.Interpreter, append([]string{entry}, args...)...)
}
