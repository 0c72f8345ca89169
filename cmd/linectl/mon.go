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
	monCmd.Flags().BoolVarP(&monOpts.ActiveLow, "active-low", "l", false,
		"treat the line state as active low")
	monCmd.Flags().StringVarP(&monOpts.Bias, "bias", "b", "as-is", "set the line bias.")
	monCmd.Flags().StringVarP(&monOpts.Edge, "edge", "e", "both", "select the edge detection.")
	monCmd.Flags().StringVarP(&monOpts.Chip, "chip", "c", "",
		"restrict line resolution to this chip")
	monCmd.Flags().DurationVarP(&monOpts.Debounce, "debounce", "d", 0,
		"debounce the lines for this period")
	monCmd.Flags().UintVarP(&monOpts.NumEvents, "num-events", "n", 0, "exit after n edges")
	monCmd.Flags().BoolVarP(&monOpts.Quiet, "quiet", "q", false, "don't display event details")
	monCmd.Flags().IntVar(&monOpts.EventBufferSize, "event-buffer-size", 0,
		"suggest a minimum number of events the kernel should buffer")
	monCmd.Flags().IntVar(&monOpts.AbiV, "abiv", 0, "use specified uAPI version.")
	monCmd.Flags().MarkHidden("abiv")
	monCmd.SetHelpTemplate(monCmd.HelpTemplate() + extendedMonHelp)
	rootCmd.AddCommand(monCmd)
}

var extendedMonHelp = `
Edges:
  both:         both rising and falling edge events are detected
                and reported
  rising:       only rising edge events are detected and reported
  falling:      only falling edge events are detected and reported

Biases:
  as-is:        leave bias unchanged
  disable:      disable bias
  pull-up:      enable pull-up
  pull-down:    enable pull-down
`

var (
	monCmd = &cobra.Command{
		Use:                   "mon [flags] <line>...",
		Short:                 "Monitor the state of a line or lines",
		Long:                  `Wait for edge events on GPIO lines and print them to standard output.`,
		Args:                  cobra.MinimumNArgs(1),
		RunE:                  mon,
		DisableFlagsInUseLine: true,
	}
	monOpts = struct {
		ActiveLow       bool
		Bias            string
		Edge            string
		Chip            string
		Debounce        time.Duration
		Quiet           bool
		NumEvents       uint
		EventBufferSize int
		AbiV            int
	}{}
)

func mon(cmd *cobra.Command, args []string) error {
	plan, err := resolveLines(args, monOpts.Chip, false)
	if err != nil {
		return err
	}
	opts := makeMonOpts(cmd)
	rs, err := gpioline.RequestPlan(plan, opts...)
	if rs != nil {
		defer rs.Close()
	}
	if err != nil {
		return fmt.Errorf("error requesting GPIO lines: %w", err)
	}

	evtchan := make(chan gpioline.EdgeEvent)
	for _, req := range rs.Requests() {
		req := req
		go func() {
			for {
				evt, err := req.ReadEvent(-1)
				if err != nil {
					return
				}
				evtchan <- evt
			}
		}()
	}
	monWait(evtchan)
	return nil
}

func monWait(evtchan <-chan gpioline.EdgeEvent) {
	sigdone := make(chan os.Signal, 1)
	signal.Notify(sigdone, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigdone)
	count := uint(0)
	for {
		select {
		case evt := <-evtchan:
			if !monOpts.Quiet {
				t := time.Now()
				edge := "rising"
				if evt.Type == gpioline.EventFallingEdge {
					edge = "falling"
				}
				lost := ""
				if evt.LostEvents > 0 {
					lost = fmt.Sprintf(" (%d events lost)", evt.LostEvents)
				}
				fmt.Printf("event:%3d %-7s %s (%s)%s\n",
					evt.Offset,
					edge,
					t.Format(time.RFC3339Nano),
					evt.Timestamp,
					lost)
			}
			count++
			if monOpts.NumEvents > 0 && count >= monOpts.NumEvents {
				return
			}
		case <-sigdone:
			return
		}
	}
}

func makeMonOpts(cmd *cobra.Command) []gpioline.LineReqOption {
	opts := []gpioline.LineReqOption{
		gpioline.WithConsumer(consumer(cmd)),
	}
	switch strings.ToLower(monOpts.Edge) {
	case "falling":
		opts = append(opts, gpioline.WithFallingEdge)
	case "rising":
		opts = append(opts, gpioline.WithRisingEdge)
	default:
		opts = append(opts, gpioline.WithBothEdges)
	}
	if monOpts.ActiveLow {
		opts = append(opts, gpioline.AsActiveLow)
	}
	if monOpts.Debounce > 0 {
		opts = append(opts, gpioline.WithDebounce(monOpts.Debounce))
	}
	if monOpts.EventBufferSize > 0 {
		opts = append(opts, gpioline.WithEventBufferSize(monOpts.EventBufferSize))
	}
	opts = append(opts, biasOpts(monOpts.Bias)...)
	abi := monOpts.AbiV
	if abi == 0 {
		abi = cfg.ABI
	}
	if abi != 0 {
		opts = append(opts, gpioline.WithABIVersion(abi))
	}
	return opts
}
