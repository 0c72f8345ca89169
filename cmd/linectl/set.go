// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/halwell/gpioline"
	"github.com/spf13/cobra"
)

func init() {
	setCmd.Flags().BoolVarP(&setOpts.ActiveLow, "active-low", "l", false,
		"treat the line state as active low")
	setCmd.Flags().StringVarP(&setOpts.Bias, "bias", "b", "as-is", "set the line bias.")
	setCmd.Flags().StringVarP(&setOpts.Drive, "drive", "d", "push-pull", "set the line drive.")
	setCmd.Flags().StringVarP(&setOpts.Chip, "chip", "c", "",
		"restrict line resolution to this chip")
	setCmd.Flags().BoolVarP(&setOpts.Strict, "strict", "s", false,
		"fail names found on more than one chip")
	setCmd.Flags().DurationVarP(&setOpts.Hold, "hold", "t", 0,
		"hold the lines for this period then exit (default hold until interrupted)")
	setCmd.Flags().IntVar(&setOpts.AbiV, "abiv", 0, "use specified uAPI version.")
	setCmd.Flags().MarkHidden("abiv")
	setCmd.SetHelpTemplate(setCmd.HelpTemplate() + extendedSetHelp)
	rootCmd.AddCommand(setCmd)
}

var extendedSetHelp = `
Values:
  each line is set with <line>=<value>, where the value is one of
  0, 1, active, inactive, high or low.

Biases:
  as-is:        leave bias unchanged
  disable:      disable bias
  pull-up:      enable pull-up
  pull-down:    enable pull-down

Drives:
  push-pull:    drive the line both high and low
  open-drain:   drive the line low only
  open-source:  drive the line high only
`

var (
	setCmd = &cobra.Command{
		Use:                   "set [flags] <line>=<value>...",
		Short:                 "Set the state of a line or lines",
		Long:                  `Set the state of a line or lines, holding them until exit.`,
		Args:                  cobra.MinimumNArgs(1),
		RunE:                  set,
		DisableFlagsInUseLine: true,
	}
	setOpts = struct {
		ActiveLow bool
		Bias      string
		Drive     string
		Chip      string
		Strict    bool
		Hold      time.Duration
		AbiV      int
	}{}
)

func set(cmd *cobra.Command, args []string) error {
	idents, vv, err := parseLineValues(args)
	if err != nil {
		return err
	}
	plan, err := resolveLines(idents, setOpts.Chip, setOpts.Strict)
	if err != nil {
		return err
	}
	// initial values are positional within each request, so group them
	// by chip alongside the offsets.
	groupVals := map[string][]gpioline.Value{}
	for i, l := range plan.Lines {
		groupVals[l.Chip] = append(groupVals[l.Chip], vv[i])
	}
	var requests []*gpioline.Request
	defer func() {
		for _, req := range requests {
			req.Close()
		}
	}()
	for _, g := range plan.ChipGroups() {
		opts := makeSetOpts(cmd, groupVals[g.Chip])
		req, err := gpioline.RequestLines(g.Chip, g.Offsets, opts...)
		if err != nil {
			return fmt.Errorf("error requesting GPIO lines on %s: %w", g.Chip, err)
		}
		requests = append(requests, req)
	}
	setWait()
	return nil
}

// setWait holds the request open so the lines stay driven.
func setWait() {
	if setOpts.Hold > 0 {
		time.Sleep(setOpts.Hold)
		return
	}
	sigdone := make(chan os.Signal, 1)
	signal.Notify(sigdone, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigdone)
	<-sigdone
}

func parseLineValues(args []string) ([]string, []gpioline.Value, error) {
	ii := make([]string, len(args))
	vv := make([]gpioline.Value, len(args))
	for i, arg := range args {
		ident, vstr, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, nil, fmt.Errorf("can't parse line value '%s'", arg)
		}
		v, err := parseValue(vstr)
		if err != nil {
			return nil, nil, err
		}
		ii[i] = ident
		vv[i] = v
	}
	return ii, vv, nil
}

func parseValue(vstr string) (gpioline.Value, error) {
	switch strings.ToLower(vstr) {
	case "0", "inactive", "low", "false":
		return gpioline.Inactive, nil
	case "1", "active", "high", "true":
		return gpioline.Active, nil
	}
	return gpioline.Inactive, fmt.Errorf("can't parse value '%s'", vstr)
}

func makeSetOpts(cmd *cobra.Command, vv []gpioline.Value) []gpioline.LineReqOption {
	opts := []gpioline.LineReqOption{
		gpioline.WithConsumer(consumer(cmd)),
		gpioline.AsOutput(vv...),
	}
	if setOpts.ActiveLow {
		opts = append(opts, gpioline.AsActiveLow)
	}
	switch strings.ToLower(setOpts.Drive) {
	case "open-drain":
		opts = append(opts, gpioline.AsOpenDrain)
	case "open-source":
		opts = append(opts, gpioline.AsOpenSource)
	}
	opts = append(opts, biasOpts(setOpts.Bias)...)
	abi := setOpts.AbiV
	if abi == 0 {
		abi = cfg.ABI
	}
	if abi != 0 {
		opts = append(opts, gpioline.WithABIVersion(abi))
	}
	return opts
}
