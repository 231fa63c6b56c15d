package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minpm/minpm/pkg/install"
)

// createCommand creates the create command.
func (c *CLI) createCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create <tool>[@version] [args...]",
		Aliases: []string{"c", "init"},
		Short:   "Scaffold a project with a create-<tool> package",
		Long: `Install create-<tool> into a scratch directory and run its entry point
with the remaining arguments. For a scoped tool, @scope/name maps to
@scope/create-name. The scratch directory is removed afterwards.`,
		Example: `  minpm create vite my-app --template react
  minpm init react-app@5.0.1 web`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := createRequest(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			root := filepath.Join(c.WorkDir, createDir)
			defer func() {
				if err := os.RemoveAll(root); err != nil {
					loggerFromContext(ctx).Warn("could not remove scratch directory", "dir", root, "err", err)
				}
			}()
			return c.launch(ctx, req, filepath.Join(root, filepath.FromSlash(req.Name)), args[1:])
		},
	}

	// Everything after the tool name belongs to the tool.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// executeCommand creates the execute command.
func (c *CLI) executeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execute <package>[@version] [args...]",
		Aliases: []string{"exec"},
		Short:   "Install a package into a scratch directory and run it",
		Example: `  minpm exec cowsay hello
  minpm execute typescript@5.4.5 --version`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.execute(cmd.Context(), args)
		},
	}

	cmd.Flags().SetInterspersed(false)
	return cmd
}

// execute installs args[0] into the exec scratch directory and runs it
// with args[1:].
func (c *CLI) execute(ctx context.Context, args []string) error {
	req, err := install.ParseRequest(args[0])
	if err != nil {
		return err
	}
	return c.launch(ctx, req, filepath.Join(c.WorkDir, execDir), args[1:])
}

func (c *CLI) launch(ctx context.Context, req install.Request, dir string, args []string) error {
	loggerFromContext(ctx).Debug("launching", "pkg", req.String(), "dir", dir)
	printInfo("Running %s", StyleHighlight.Render(req.String()))
	return c.newLauncher().Run(ctx, req, dir, args)
}

// createRequest maps a create target to its package: "vite" becomes
// "create-vite" and "@scope/app" becomes "@scope/create-app".
func createRequest(arg string) (install.Request, error) {
	req, err := install.ParseRequest(arg)
	if err != nil {
		return install.Request{}, err
	}
	if scope, name, ok := strings.Cut(req.Name, "/"); ok {
		req.Name = scope + "/create-" + name
	} else {
		req.Name = "create-" + req.Name
	}
	return req, nil
}
