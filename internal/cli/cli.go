// Package cli implements the minpm command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/minpm/minpm/internal/config"
	"github.com/minpm/minpm/pkg/archive"
	"github.com/minpm/minpm/pkg/buildinfo"
	"github.com/minpm/minpm/pkg/httputil"
	"github.com/minpm/minpm/pkg/install"
	"github.com/minpm/minpm/pkg/launch"
	"github.com/minpm/minpm/pkg/manifest"
	"github.com/minpm/minpm/pkg/registry"
	"github.com/minpm/minpm/pkg/runner"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display.
	appName = "minpm"

	// createDir holds create-<tool> installs and is removed after each run.
	createDir = ".minpm-create"

	// execDir holds packages installed by execute and minpx.
	execDir = ".minpm-exec"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Config is loaded before every command runs.
	Config *config.Config

	// Runner spawns entry points and the publish tool.
	Runner runner.Runner

	// Stderr receives download progress bars.
	Stderr io.Writer

	// WorkDir is the project directory: the manifest lives here and the
	// scratch directories are created below it.
	WorkDir string

	configFile string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:  newLogger(w, level),
		Runner:  &runner.Exec{},
		Stderr:  w,
		WorkDir: ".",
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the minpm root command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "minpm installs packages from an npm registry",
		Long: `minpm is a minimal package manager for npm registries. It resolves
packages, extracts them into node_modules, installs their dependencies
recursively and records them in package.json.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.preRun,
	}

	root.SetVersionTemplate(buildinfo.Template())
	c.addConfigFlags(root)

	root.AddCommand(c.installCommand())
	root.AddCommand(c.uninstallCommand())
	root.AddCommand(c.createCommand())
	root.AddCommand(c.executeCommand())
	root.AddCommand(c.publishCommand())
	root.AddCommand(c.unpublishCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// addConfigFlags registers the persistent flags that override config keys.
func (c *CLI) addConfigFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/minpm/config.toml)")
	f.String("registry", "", "registry base URL")
	f.String("global-root", "", "root directory for global installs")
	f.String("interpreter", "", "interpreter for bin shims and launched packages")
	f.Int("retries", 0, "extra attempts for failed registry requests")
	f.Duration("timeout", 0, "HTTP request timeout")
	f.Bool("no-progress", false, "disable download progress bars")
}

// preRun loads the configuration and attaches the logger to the context.
func (c *CLI) preRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: c.configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	c.Config = cfg
	c.Logger.Debug("config loaded", "source", cfg.Source, "registry", cfg.Registry.URL)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(withLogger(ctx, c.Logger))
	return nil
}

// =============================================================================
// Installer Factory
// =============================================================================

// newInstaller wires an Installer from the loaded configuration.
func (c *CLI) newInstaller() *install.Installer {
	cfg := c.Config
	client := registry.NewClient(cfg.Registry.URL,
		registry.WithTimeout(cfg.Registry.Timeout),
		registry.WithToken(cfg.Registry.Token),
		registry.WithRetries(cfg.Registry.Retries, httputil.DefaultRetryDelay),
	)

	fetcher := &archive.Fetcher{Client: client.HTTPClient()}
	if cfg.Registry.Token != "" {
		fetcher.Headers = map[string]string{"Authorization": "Bearer " + cfg.Registry.Token}
	}
	if cfg.Progress {
		fetcher.Progress = c.Stderr
	}

	inst := install.NewInstaller(client, fetcher, manifest.NewStore(c.WorkDir), cfg.GlobalRoot, c.Logger)
	inst.Interpreter = cfg.Interpreter
	return inst
}

func (c *CLI) newLauncher() *launch.Launcher {
	return launch.New(c.newInstaller(), c.Runner, c.Config.Interpreter, c.Logger)
}
