// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"fmt"

	"github.com/halwell/gpioline"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List the GPIO chips in the system",
	Long:  `List the GPIO character devices, their labels and line counts.`,
	Args:  cobra.NoArgs,
	RunE:  detect,
}

func detect(cmd *cobra.Command, args []string) error {
	cc := gpioline.Chips()
	for _, path := range cc {
		c, err := gpioline.OpenChip(path)
		if err != nil {
			fmt.Printf("%s: %s\n", path, err)
			continue
		}
		fmt.Printf("%s [%s] (%d lines) uAPI v%d\n",
			c.Name, c.Label, c.Lines(), c.ABIVersion())
		c.Close()
	}
	return nil
}
