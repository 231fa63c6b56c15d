package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	minerrors "github.com/minpm/minpm/pkg/errors"
)

// publishCommand creates the publish command.
func (c *CLI) publishCommand() *cobra.Command {
	return c.delegateCommand("publish", []string{"pub"}, "Publish the current package with the configured publish tool")
}

// unpublishCommand creates the unpublish command.
func (c *CLI) unpublishCommand() *cobra.Command {
	return c.delegateCommand("unpublish", []string{"unpub"}, "Unpublish a package with the configured publish tool")
}

// delegateCommand builds a command that runs "<publish_tool> <verb> args...".
// minpm's own persistent flags are taken out of args and applied before the
// tool runs. The tool's exit code becomes minpm's.
func (c *CLI) delegateCommand(verb string, aliases []string, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     verb + " [args...]",
		Aliases: aliases,
		Short:   short,
		Long: fmt.Sprintf(`Run "<publish_tool> %s" with the given arguments. The publish tool
defaults to npm and is set with the publish_tool config key.

minpm's global flags (--config, --registry, -v and the rest) are applied
by minpm and not passed on. Arguments after "--" go to the tool as is,
so "minpm %s -- --registry <url>" hands --registry to the tool.`, verb, verb),
		RunE: func(cmd *cobra.Command, args []string) error {
			args, err := c.applyOwnFlags(cmd, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			tool := c.Config.PublishTool
			logger := loggerFromContext(ctx)
			logger.Debug("delegating", "tool", tool, "verb", verb, "args", args)

			prog := newProgress(logger)
			if err := c.Runner.Run(ctx, tool, append([]string{verb}, args...)...); err != nil {
				return err
			}
			prog.done(fmt.Sprintf("%s %s finished", tool, verb))
			return nil
		},
		// Flags such as --access or --tag belong to the tool.
		DisableFlagParsing: true,
	}
	return cmd
}

// applyOwnFlags parses the persistent minpm flags found in args, reloads
// the configuration when there were any, and returns the remaining
// arguments for the tool.
func (c *CLI) applyOwnFlags(cmd *cobra.Command, args []string) ([]string, error) {
	inherited := cmd.InheritedFlags()
	own, rest := splitFlags(inherited, args)
	if len(own) == 0 {
		return rest, nil
	}

	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	fs.AddFlagSet(inherited)
	if err := fs.Parse(own); err != nil {
		return nil, minerrors.Wrap(minerrors.ErrCodeInvalidInput, err, "parse flags")
	}
	if hook := cmd.Root().PersistentPreRunE; hook != nil {
		if err := hook(cmd, rest); err != nil {
			return nil, err
		}
	}
	return rest, nil
}

// splitFlags separates the flags defined in fs from the other arguments.
// A value given as a separate argument stays with its flag. The first "--"
// ends the scan and is dropped.
func splitFlags(fs *pflag.FlagSet, args []string) (own, rest []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return own, append(rest, args[i+1:]...)
		}
		flag := lookupFlag(fs, arg)
		if flag == nil {
			rest = append(rest, arg)
			continue
		}
		own = append(own, arg)
		if !strings.Contains(arg, "=") && flag.NoOptDefVal == "" && i+1 < len(args) {
			i++
			own = append(own, args[i])
		}
	}
	return own, rest
}

func lookupFlag(fs *pflag.FlagSet, arg string) *pflag.Flag {
	switch {
	case strings.HasPrefix(arg, "--"):
		name, _, _ := strings.Cut(arg[2:], "=")
		return fs.Lookup(name)
	case strings.HasPrefix(arg, "-"):
		short, _, _ := strings.Cut(arg[1:], "=")
		if len(short) == 1 {
			return fs.ShorthandLookup(short)
		}
	}
	return nil
}
