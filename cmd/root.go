// Package cmd provides the command-line interface for livemark with
// configuration loading from multiple sources.
//
// Configuration precedence, highest first:
//  1. Command-line flags (--port, --host, ...)
//  2. Environment variables with the LIVEMARK_ prefix
//     (LIVEMARK_SERVER_PORT, LIVEMARK_PREVIEW_LATEX, ...)
//  3. Configuration file (.livemark.yml in the current directory, or the
//     path given with --config)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "livemark",
	Short: "A live markdown preview server",
	Long: `Livemark renders a live-edited markdown document to HTML and pushes
updates to connected browsers in near-real time.

It resolves [[wiki-links]] and [[!file]] inclusions, protects $math$ spans
for client-side typesetting, and caches renders so rapid edits stay cheap.

Quick start:
  livemark init                 Write a default .livemark.yml
  livemark serve                Start the preview server
  livemark serve notes.md       Serve a file and re-render it on change

Editors submit updates by POSTing {"content": ..., "path": ...} to /update;
browsers receive rendered HTML over the /ws websocket.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscores in flag names so flags line up with config keys.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .livemark.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".livemark")
		viper.SetConfigType("yml")
	}

	viper.SetEnvPrefix("LIVEMARK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else should be loud.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: reading config file: %v\n", err)
		}
	}
}
