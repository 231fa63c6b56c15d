package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	minerrors "github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/install"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:     "install [package[@version]...]",
		Aliases: []string{"i", "add", "get"},
		Short:   "Install packages and their dependencies",
		Long: `Install packages and their dependencies into ./node_modules and record
them in package.json. Without arguments, the dependencies listed in
package.json are installed.

With --global, packages go to the global root and their executables are
linked into <global root>/bin.`,
		Example: `  minpm install express
  minpm i lodash@4.17.21 @types/node
  minpm install -g cowsay`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), args, global)
		},
	}

	cmd.Flags().BoolVarP(&global, "global", "g", false, "install into the global root and create bin shims")
	return cmd
}

// runInstall reports install failures but does not fail the command;
// only invalid arguments and interruption do.
func (c *CLI) runInstall(ctx context.Context, args []string, global bool) error {
	logger := loggerFromContext(ctx)

	reqs, err := install.ParseRequests(args)
	if err != nil {
		return err
	}
	if global && len(reqs) == 0 {
		return minerrors.New(minerrors.ErrCodeInvalidInput, "specify packages to install globally")
	}

	inst := c.newInstaller()
	ictx := install.NewContext(c.WorkDir, global)
	if len(reqs) == 0 {
		printInfo("Installing dependencies from %s", inst.Manifest.Path())
	}
	logger.Debug("install", "run", ictx.RunID, "global", global, "requests", len(reqs))

	prog := newProgress(logger)
	n, err := inst.Install(ctx, reqs, ictx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		logger.Error("install failed", "run", ictx.RunID, "err", err)
		printError("Install failed: %s", minerrors.UserMessage(err))
		return nil
	}

	printSuccess("Installed %s in %s", plural(n, "package"), prog.elapsed())
	switch {
	case global:
		printDetail("into %s", inst.GlobalRoot)
		printNextStep("Make sure this directory is in your PATH", inst.BinDir())
	case n > 0:
		printDetail("updated %s", inst.Manifest.Path())
	}
	return nil
}

// uninstallCommand creates the uninstall command.
func (c *CLI) uninstallCommand() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:     "uninstall <package>...",
		Aliases: []string{"remove", "rm", "uni"},
		Short:   "Remove installed packages",
		Long: `Remove packages from ./node_modules and from the dependencies in
package.json. With --global, remove them from the global root together
with their bin shims. Packages that are not installed are skipped with a
warning.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.newInstaller().Uninstall(cmd.Context(), args, global)
			if err != nil {
				return err
			}
			if n == 0 {
				printWarning("Nothing was removed")
				return nil
			}
			printSuccess("Removed %s", plural(n, "package"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&global, "global", "g", false, "remove from the global root")
	return cmd
}
