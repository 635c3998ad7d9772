package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tartil/internal/config"
)

var version = "dev"

// logLevel is shared by every command so a config reload can change the
// verbosity of the running server.
var logLevel = new(slog.LevelVar)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "tartil",
		Short: "Tartil - recitation pronunciation analysis",
		Long: `Tartil scores a Quran recitation against a reference rendition.

It aligns the acoustic features of both renditions, checks the recited text
against the Tajweed rule catalog, compares prosody, aligns the recognised
words and fuses everything into one report with an overall score,
per-term scores, findings and suggestions.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logLevel != "" {
				l := config.LogLevel(opts.logLevel)
				if !l.IsValid() {
					return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", opts.logLevel)
				}
				setLogLevel(l)
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newRulesCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

// loadConfig reads the configuration file named by --config. Without one the
// zero configuration applies: every analysis default, the built-in rule
// catalog and no collaborators.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", o.configPath)
		}
		return nil, err
	}
	// The flag wins over the file.
	if o.logLevel == "" && cfg.Server.LogLevel != "" {
		setLogLevel(cfg.Server.LogLevel)
	}
	return cfg, nil
}
