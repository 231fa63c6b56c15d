package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging defaults, the config file,
MINPM_* environment variables and command-line flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.Config

			source := cfg.Source
			if source == "" {
				source = "(defaults)"
			}
			token := ""
			if cfg.Registry.Token != "" {
				token = "(set)"
			}

			printKeyValue("config file", source)
			printKeyValue("registry.url", cfg.Registry.URL)
			printKeyValue("registry.token", token)
			printKeyValue("registry.timeout", cfg.Registry.Timeout.String())
			printKeyValue("registry.retries", strconv.Itoa(cfg.Registry.Retries))
			printKeyValue("global_root", cfg.GlobalRoot)
			printKeyValue("interpreter", cfg.Interpreter)
			printKeyValue("publish_tool", cfg.PublishTool)
			printKeyValue("progress", strconv.FormatBool(cfg.Progress))
			return nil
		},
	}
}
