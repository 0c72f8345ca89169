// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halwell/gpioline"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:                   "watch <chip> <offset>...",
	Short:                 "Watch lines for changes to their info",
	Long:                  `Report changes to the info of lines as they are requested, released and reconfigured.`,
	Args:                  cobra.MinimumNArgs(2),
	RunE:                  watch,
	DisableFlagsInUseLine: true,
}

func watch(cmd *cobra.Command, args []string) error {
	oo, err := parseOffsets(args[1:])
	if err != nil {
		return err
	}
	c, err := gpioline.OpenChip(args[0])
	if err != nil {
		return err
	}
	defer c.Close()
	for _, o := range oo {
		inf, err := c.WatchLineInfo(o, printInfoChange)
		if err != nil {
			return fmt.Errorf("error watching line %d: %w", o, err)
		}
		printLineInfo(inf)
	}
	sigdone := make(chan os.Signal, 1)
	signal.Notify(sigdone, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigdone)
	<-sigdone
	return nil
}

func printInfoChange(ev gpioline.LineInfoChangeEvent) {
	t := time.Now()
	change := "reconfigured"
	switch ev.Type {
	case gpioline.LineRequested:
		change = "requested"
	case gpioline.LineReleased:
		change = "released"
	}
	fmt.Printf("%s line %d %s:\n", t.Format(time.RFC3339Nano), ev.Info.Offset, change)
	printLineInfo(ev.Info)
}
