// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"fmt"
	"strings"

	"github.com/halwell/gpioline"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:                   "info [chip]...",
	Short:                 "Info about chip lines",
	Long:                  `Print the publicly available information on lines of the selected chips, or all chips by default.`,
	RunE:                  info,
	DisableFlagsInUseLine: true,
}

func info(cmd *cobra.Command, args []string) error {
	cc := args
	if len(cc) == 0 {
		if cfg.Chip != "" {
			cc = []string{cfg.Chip}
		} else {
			cc = gpioline.Chips()
		}
	}
	for _, path := range cc {
		c, err := gpioline.OpenChip(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s - %d lines:\n", c.Name, c.Lines())
		for o := 0; o < c.Lines(); o++ {
			inf, err := c.LineInfo(o)
			if err != nil {
				c.Close()
				return err
			}
			printLineInfo(inf)
		}
		c.Close()
	}
	return nil
}

func printLineInfo(inf gpioline.LineInfo) {
	name := inf.Name
	if name == "" {
		name = "unnamed"
	}
	consumer := inf.Consumer
	if consumer == "" {
		consumer = "unused"
	}
	attrs := []string{directionStr(inf.Config.Direction)}
	if inf.Config.ActiveLow {
		attrs = append(attrs, "active-low")
	} else {
		attrs = append(attrs, "active-high")
	}
	switch inf.Config.Drive {
	case gpioline.DriveOpenDrain:
		attrs = append(attrs, "open-drain")
	case gpioline.DriveOpenSource:
		attrs = append(attrs, "open-source")
	}
	switch inf.Config.Bias {
	case gpioline.BiasPullUp:
		attrs = append(attrs, "pull-up")
	case gpioline.BiasPullDown:
		attrs = append(attrs, "pull-down")
	case gpioline.BiasDisabled:
		attrs = append(attrs, "bias-disabled")
	}
	if inf.Config.Debounced {
		attrs = append(attrs, fmt.Sprintf("debounce=%s", inf.Config.DebouncePeriod))
	}
	if inf.Used {
		attrs = append(attrs, "used")
	}
	fmt.Printf("\tline %3d:%18s%16s %s\n", inf.Offset, name, consumer,
		strings.Join(attrs, " "))
}

func directionStr(d gpioline.Direction) string {
	if d == gpioline.DirectionOutput {
		return "output"
	}
	return "input"
}
