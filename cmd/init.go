package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const configFileName = ".livemark.yml"

// fileConfig mirrors config.Config with human-friendly duration strings for
// the generated file.
type fileConfig struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
		Open bool   `yaml:"open"`
	} `yaml:"server"`
	Preview struct {
		Wikilinks bool `yaml:"wikilinks"`
		Latex     bool `yaml:"latex"`
		Sanitize  bool `yaml:"sanitize"`
	} `yaml:"preview"`
	Cache struct {
		RenderMaxBytes    int64  `yaml:"render_max_bytes"`
		InclusionMaxBytes int64  `yaml:"inclusion_max_bytes"`
		TTL               string `yaml:"ttl"`
	} `yaml:"cache"`
	Watch struct {
		Enabled    bool     `yaml:"enabled"`
		Debounce   string   `yaml:"debounce"`
		Extensions []string `yaml:"extensions"`
	} `yaml:"watch"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Write a default ` + configFileName + ` to the current directory.`,
	RunE:  runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(configFileName); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configFileName)
		}
	}

	var fc fileConfig
	fc.Server.Port = 8765
	fc.Server.Host = "localhost"
	fc.Preview.Wikilinks = true
	fc.Preview.Latex = true
	fc.Preview.Sanitize = true
	fc.Cache.RenderMaxBytes = 8 << 20
	fc.Cache.InclusionMaxBytes = 4 << 20
	fc.Cache.TTL = "1h"
	fc.Watch.Enabled = true
	fc.Watch.Debounce = "300ms"
	fc.Watch.Extensions = []string{".md", ".markdown"}
	fc.Log.Level = "info"
	fc.Log.Format = "text"

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(configFileName, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configFileName, err)
	}

	fmt.Printf("Wrote %s\n", configFileName)
	return nil
}
