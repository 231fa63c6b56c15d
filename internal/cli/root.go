package cli

import (
	"github.com/spf13/cobra"

	"github.com/minpm/minpm/pkg/buildinfo"
)

// PxCommand creates the minpx root command: it installs a package into the
// exec scratch directory and runs its entry point, like "minpm execute".
//
// Flags are only recognized before the package argument; everything after
// it is passed to the package unchanged:
//
//	minpx -v cowsay@1.6.0 --help
func (c *CLI) PxCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "minpx <package>[@version] [args...]",
		Short:             "minpx runs a package's executable from the registry",
		Example:           "  minpx cowsay hello\n  minpx @angular/cli@17 new web",
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: c.preRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.execute(cmd.Context(), args)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.Flags().SetInterspersed(false)
	c.addConfigFlags(root)
	return root
}
