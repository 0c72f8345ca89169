// SPDX-License-Identifier: MIT

//go:build linux

// A utility to control GPIO lines.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rootCmd = &cobra.Command{
	Use:               "linectl",
	Short:             "linectl is a utility to control GPIO lines",
	Long:              "linectl is a utility to control GPIO lines on Linux GPIO character devices",
	PersistentPreRunE: loadDefaults,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// defaults are fallback flag values loaded from the config file.
type defaults struct {
	// The chip to resolve bare offsets on.
	Chip string `yaml:"chip"`

	// The consumer label applied to requested lines.
	Consumer string `yaml:"consumer"`

	// The uAPI version to force, 0 to probe.
	ABI int `yaml:"abi"`
}

var (
	cfgFile string
	cfg     defaults
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file with default flag values (default ~/.linectl.yaml)")
}

// loadDefaults populates cfg from the config file, if present.
//
// Flags given on the command line still take precedence - the file only
// provides fallbacks.
func loadDefaults(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".linectl.yaml")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if cfgFile == "" {
			// the default file is optional.
			return nil
		}
		return err
	}
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func consumer(cmd *cobra.Command) string {
	if cfg.Consumer != "" {
		return cfg.Consumer
	}
	return "linectl-" + cmd.Name()
}

func parseOffsets(args []string) ([]int, error) {
	oo := []int(nil)
	for _, arg := range args {
		o, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("can't parse offset '%s'", arg)
		}
		oo = append(oo, int(o))
	}
	return oo, nil
}
