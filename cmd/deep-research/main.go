// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the deep-research CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from the secrets directory at startup.
var loadedSecrets *secrets.Dir

// rootCmd is the base command for the deep-research CLI.
var rootCmd = &cobra.Command{
	Use:   "deep-research",
	Short: "Multi-stage research assistant backed by a generative model",
	Long: `deep-research answers an open-ended question by planning sub-tasks,
gathering and analyzing evidence for each, and writing a cited report.

Run a query from the terminal with "research", or host the pipeline over
HTTP with "serve". Findings are kept per session so a repeated query builds
on earlier work; "memory" inspects and manages what is stored.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("secrets-dir")
		logger, err := newLogger()
		if err != nil {
			return err
		}
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if s.Len() > 0 {
			fmt.Fprintf(os.Stderr, "Loaded %d secret(s) from %s\n", s.Len(), dir)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./deep-research.yaml or ~/.config/deep-research/config.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of credential files (fireworks-api-key, jina-api-key)")
	pf.Bool("debug", false, "verbose diagnostics on stderr")
	pf.String("fireworks-api-key", "", "completion API key (overrides FIREWORKS_API_KEY)")
	pf.String("jina-api-key", "", "embedding API key (overrides JINA_API_KEY)")
	pf.String("memory-backend", "", "memory persistence: memory, file, sqlite, or redis")
	pf.String("memory-path", "", "file or SQLite path for persisted memory")
	pf.String("redis-addr", "", "Redis host:port for the redis memory backend")

	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deep-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "deep-research"))
		}
	}

	viper.SetEnvPrefix("DEEP_RESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
