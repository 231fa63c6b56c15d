// Package config loads minpm settings.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults ([DefaultConfig])
//  2. a TOML file: --config, else $XDG_CONFIG_HOME/minpm/config.toml
//  3. MINPM_* environment variables (MINPM_REGISTRY_URL, MINPM_GLOBAL_ROOT, ...)
//  4. command-line flags bound through [LoadOptions.Flags]
//
// Example config.toml:
//
//	global_root = "~/.minpm-global"
//	interpreter = "node"
//
//	[registry]
//	url = "https://registry.npmjs.org/"
//	timeout = "30s"
//	retries = 2
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/httputil"
	"github.com/minpm/minpm/pkg/registry"
	"github.com/minpm/minpm/pkg/shim"
)

const (
	// AppName names the config directory and environment prefix.
	AppName = "minpm"

	// FileName is the config file looked up in [Dir].
	FileName = "config.toml"

	// GlobalDirName is the default global root below the home directory.
	GlobalDirName = ".minpm-global"

	envPrefix = "MINPM"
)

// Config holds the effective settings.
type Config struct {
	Registry    RegistryConfig `toml:"registry" mapstructure:"registry"`
	GlobalRoot  string         `toml:"global_root" mapstructure:"global_root"`
	Interpreter string         `toml:"interpreter" mapstructure:"interpreter"`
	PublishTool string         `toml:"publish_tool" mapstructure:"publish_tool"`
	Progress    bool           `toml:"progress" mapstructure:"progress"`

	// Source is the config file that was read, empty if none.
	Source string `toml:"-" mapstructure:"-"`
}

// RegistryConfig configures the registry client.
type RegistryConfig struct {
	URL     string        `toml:"url" mapstructure:"url"`
	Token   string        `toml:"token" mapstructure:"token"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
	Retries int           `toml:"retries" mapstructure:"retries"`
}

// LoadOptions controls [Load].
type LoadOptions struct {
	// ConfigFile is an explicit config path. It must exist when set.
	ConfigFile string

	// Flags are bound by name: "registry" → registry.url, "global-root" →
	// global_root, "interpreter", "retries" → registry.retries,
	// "no-progress" inverts progress. Missing flags are ignored.
	Flags *pflag.FlagSet
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"registry":    "registry.url",
	"global-root": "global_root",
	"interpreter": "interpreter",
	"retries":     "registry.retries",
	"timeout":     "registry.timeout",
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	globalRoot := GlobalDirName
	if home, err := os.UserHomeDir(); err == nil {
		globalRoot = filepath.Join(home, GlobalDirName)
	}
	return &Config{
		Registry: RegistryConfig{
			URL:     registry.DefaultURL,
			Timeout: httputil.DefaultTimeout,
		},
		GlobalRoot:  globalRoot,
		Interpreter: shim.DefaultInterpreter,
		PublishTool: "npm",
		Progress:    true,
	}
}

// Dir returns the config directory following the XDG convention
// (~/.config/minpm).
func Dir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// Load builds the effective configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("registry.url", defaults.Registry.URL)
	v.SetDefault("registry.token", defaults.Registry.Token)
	v.SetDefault("registry.timeout", defaults.Registry.Timeout)
	v.SetDefault("registry.retries", defaults.Registry.Retries)
	v.SetDefault("global_root", defaults.GlobalRoot)
	v.SetDefault("interpreter", defaults.Interpreter)
	v.SetDefault("publish_tool", defaults.PublishTool)
	v.SetDefault("progress", defaults.Progress)

	source, err := resolveFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if source != "" {
		if err := mergeTOML(v, source); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := opts.Flags.Lookup("no-progress"); f != nil && f.Changed && f.Value.String() == "true" {
			v.Set("progress", false)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config")
	}
	cfg.Source = source
	cfg.GlobalRoot = expandHome(cfg.GlobalRoot)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if err := errors.ValidateURL(c.Registry.URL); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "registry.url")
	}
	if c.Registry.Retries < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "registry.retries must not be negative")
	}
	if c.Registry.Timeout < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "registry.timeout must not be negative")
	}
	if c.GlobalRoot == "" {
		return errors.New(errors.ErrCodeInvalidInput, "global_root must not be empty")
	}
	if c.Interpreter == "" {
		return errors.New(errors.ErrCodeInvalidInput, "interpreter must not be empty")
	}
	return nil
}

// BinDir returns the directory holding global shims.
func (c *Config) BinDir() string { return filepath.Join(c.GlobalRoot, "bin") }

func resolveFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidInput, err, "config file %s", explicit)
		}
		return explicit, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", nil
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

func mergeTOML(v *viper.Viper, path string) error {
	var m map[string]any
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	if err := v.MergeConfigMap(m); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "merge %s", path)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
