package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ocelbridge/config"
	"ocelbridge/internal/logger"
)

const defaultConfigName = "ocelbridge.yml"

type rootOptions struct {
	ConfigPath string
	Verbose    bool
}

func main() {
	// Session headers usually come from a local .env.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded .env file")
	}

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ocelbridge",
		Short: "Flatten OCEL 2.0 logs and provision them on a process mining platform",
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ./ocelbridge.yml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newProvisionCommand(opts))
	cmd.AddCommand(newFlattenCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	return cmd
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// setup loads the config, applies defaults and initializes logging. A missing
// config file yields the defaults.
func setup(opts *rootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	path := findConfigFile(opts.ConfigPath)
	if path == "" {
		cfg, err = config.Parse([]byte("ocelbridge: {}\n"))
	} else {
		cfg, err = config.LoadConfig(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyDefaults(cfg)

	lc := cfg.OcelBridge.Logging
	if opts.Verbose {
		lc.Level = "debug"
	}
	if err := logger.Init(lc.Enabled, lc.Level, lc.File, lc.Console); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if path != "" {
		logger.Infof("Config loaded from: %s", path)
	}
	return cfg, nil
}

func inputPath(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.OcelBridge.Input.Path
}
