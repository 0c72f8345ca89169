// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"fmt"

	"github.com/halwell/gpioline"
	"github.com/spf13/cobra"
)

func init() {
	findCmd.Flags().BoolVarP(&findOpts.Strict, "strict", "s", false,
		"fail names found on more than one chip")
	rootCmd.AddCommand(findCmd)
}

var (
	findCmd = &cobra.Command{
		Use:                   "find <name>...",
		Short:                 "Find lines by name",
		Long:                  `Find the chip and offset of named lines.`,
		Args:                  cobra.MinimumNArgs(1),
		RunE:                  find,
		DisableFlagsInUseLine: true,
	}
	findOpts = struct {
		Strict bool
	}{}
)

func find(cmd *cobra.Command, args []string) error {
	opts := []gpioline.ResolveOption{}
	if cfg.Chip != "" {
		opts = append(opts, gpioline.ResolveOnChip(cfg.Chip))
	}
	if findOpts.Strict {
		opts = append(opts, gpioline.ResolveStrict)
	}
	plan, err := gpioline.Resolve(args, opts...)
	if err != nil {
		return err
	}
	for _, l := range plan.Lines {
		fmt.Printf("%s %s %d\n", l.Ident, l.Chip, l.Offset)
	}
	return nil
}
