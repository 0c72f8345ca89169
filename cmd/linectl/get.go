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
	getCmd.Flags().BoolVarP(&getOpts.ActiveLow, "active-low", "l", false,
		"treat the line state as active low")
	getCmd.Flags().StringVarP(&getOpts.Bias, "bias", "b", "as-is", "set the line bias.")
	getCmd.Flags().StringVarP(&getOpts.Chip, "chip", "c", "",
		"restrict line resolution to this chip")
	getCmd.Flags().BoolVarP(&getOpts.Strict, "strict", "s", false,
		"fail names found on more than one chip")
	getCmd.Flags().IntVar(&getOpts.AbiV, "abiv", 0, "use specified uAPI version.")
	getCmd.Flags().MarkHidden("abiv")
	getCmd.SetHelpTemplate(getCmd.HelpTemplate() + extendedGetHelp)
	rootCmd.AddCommand(getCmd)
}

var extendedGetHelp = `
Lines:
  lines are identified by name, or by offset when a single chip is
  selected with --chip.

Biases:
  as-is:        leave bias unchanged
  disable:      disable bias
  pull-up:      enable pull-up
  pull-down:    enable pull-down
`

var (
	getCmd = &cobra.Command{
		Use:                   "get [flags] <line>...",
		Short:                 "Get the state of a line or lines",
		Long:                  `Read the state of a line or lines.`,
		Args:                  cobra.MinimumNArgs(1),
		RunE:                  get,
		DisableFlagsInUseLine: true,
	}
	getOpts = struct {
		ActiveLow bool
		Bias      string
		Chip      string
		Strict    bool
		AbiV      int
	}{}
)

func get(cmd *cobra.Command, args []string) error {
	plan, err := resolveLines(args, getOpts.Chip, getOpts.Strict)
	if err != nil {
		return err
	}
	opts := makeGetOpts(cmd)
	rs, err := gpioline.RequestPlan(plan, opts...)
	if rs != nil {
		defer rs.Close()
	}
	if err != nil {
		return fmt.Errorf("error requesting GPIO lines: %w", err)
	}
	vv, err := rs.Values()
	if err != nil {
		return fmt.Errorf("error reading GPIO state: %w", err)
	}
	ss := make([]string, len(vv))
	for i, v := range vv {
		ss[i] = fmt.Sprintf("%d", int(v))
	}
	fmt.Println(strings.Join(ss, " "))
	return nil
}

func resolveLines(idents []string, chip string, strict bool) (*gpioline.Plan, error) {
	opts := []gpioline.ResolveOption{}
	if chip == "" {
		chip = cfg.Chip
	}
	if chip != "" {
		opts = append(opts, gpioline.ResolveOnChip(chip))
	}
	if strict {
		opts = append(opts, gpioline.ResolveStrict)
	}
	return gpioline.Resolve(idents, opts...)
}

func makeGetOpts(cmd *cobra.Command) []gpioline.LineReqOption {
	opts := []gpioline.LineReqOption{
		gpioline.WithConsumer(consumer(cmd)),
		gpioline.AsInput,
	}
	if getOpts.ActiveLow {
		opts = append(opts, gpioline.AsActiveLow)
	}
	opts = append(opts, biasOpts(getOpts.Bias)...)
	abi := getOpts.AbiV
	if abi == 0 {
		abi = cfg.ABI
	}
	if abi != 0 {
		opts = append(opts, gpioline.WithABIVersion(abi))
	}
	return opts
}

func biasOpts(bias string) []gpioline.LineReqOption {
	switch strings.ToLower(bias) {
	case "pull-up":
		return []gpioline.LineReqOption{gpioline.WithPullUp}
	case "pull-down":
		return []gpioline.LineReqOption{gpioline.WithPullDown}
	case "disable":
		return []gpioline.LineReqOption{gpioline.WithBiasDisabled}
	}
	return nil
}
