// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"time"

	"github.com/halwell/gpioline/kapi"
)

// Direction indicates the direction of a line.
type Direction int

const (
	// DirectionAsIs leaves the line direction unchanged.
	DirectionAsIs Direction = iota

	// DirectionInput requests the line as an input.
	DirectionInput

	// DirectionOutput requests the line as an output.
	DirectionOutput
)

// Bias indicates the pull applied to a line.
type Bias int

const (
	// BiasAsIs leaves the line bias unchanged.
	BiasAsIs Bias = iota

	// BiasDisabled disables the internal bias.
	BiasDisabled

	// BiasPullUp enables the internal pull-up.
	BiasPullUp

	// BiasPullDown enables the internal pull-down.
	BiasPullDown
)

// Drive indicates how an output line is driven.
type Drive int

const (
	// DrivePushPull drives the line both high and low.
	DrivePushPull Drive = iota

	// DriveOpenDrain drives the line low and floats it high.
	DriveOpenDrain

	// DriveOpenSource drives the line high and floats it low.
	DriveOpenSource
)

// Edge indicates the logical transitions detected on a line.
type Edge int

const (
	// EdgeNone disables edge detection.
	EdgeNone Edge = iota

	// EdgeRising detects inactive to active transitions.
	EdgeRising

	// EdgeFalling detects active to inactive transitions.
	EdgeFalling

	// EdgeBoth detects transitions in both directions.
	EdgeBoth = EdgeRising | EdgeFalling
)

// EventClock indicates the clock used to timestamp edge events.
type EventClock int

const (
	// EventClockMonotonic timestamps events with CLOCK_MONOTONIC.
	EventClockMonotonic EventClock = iota

	// EventClockRealtime timestamps events with CLOCK_REALTIME.
	// Requires uAPI v2.
	EventClockRealtime
)

// LineConfig is the logical configuration of a line.
type LineConfig struct {
	// ActiveLow inverts the sense of the line - active becomes a
	// physical low.  The inversion is applied in the request layer;
	// the kernel is never passed the active-low flag, so raw protocol
	// values remain physical.
	ActiveLow bool

	// The line direction.
	Direction Direction

	// The line bias.
	Bias Bias

	// The line drive.  Only applies to outputs.
	Drive Drive

	// The logical edges detected on the line.  Only applies to inputs.
	Edge Edge

	// Debounced indicates the line has a debounce period applied.
	// Requires uAPI v2.
	Debounced bool

	// The debounce period.
	DebouncePeriod time.Duration

	// The clock used to timestamp edge events.
	EventClock EventClock
}

// physicalEdge returns the edges to request from the kernel.
//
// For active-low lines the logical sense is inverted, so a logical rising
// edge is a physical falling edge.
func (lc LineConfig) physicalEdge() Edge {
	if !lc.ActiveLow {
		return lc.Edge
	}
	switch lc.Edge {
	case EdgeRising:
		return EdgeFalling
	case EdgeFalling:
		return EdgeRising
	default:
		return lc.Edge
	}
}

// v1Supported returns an error if the configuration cannot be expressed in
// the v1 uAPI at all.
func (lc LineConfig) v1Supported() error {
	if lc.Debounced {
		return ABISupportError{"debounce", 1}
	}
	if lc.EventClock != EventClockMonotonic {
		return ABISupportError{"event clock selection", 1}
	}
	return nil
}

// v1Uniform returns true if the two configs are identical in all the
// attributes v1 applies uniformly to a request.  Active-low is excluded,
// being applied in the request layer, as are output values.
func (lc LineConfig) v1Uniform(o LineConfig) bool {
	return lc.Direction == o.Direction &&
		lc.Bias == o.Bias &&
		lc.Drive == o.Drive &&
		lc.Edge == o.Edge &&
		lc.Debounced == o.Debounced &&
		lc.EventClock == o.EventClock
}

func (lc LineConfig) handleFlags() kapi.HandleFlag {
	var flags kapi.HandleFlag
	switch lc.Direction {
	case DirectionInput:
		flags |= kapi.HandleFlagInput
	case DirectionOutput:
		flags |= kapi.HandleFlagOutput
	}
	switch lc.Drive {
	case DriveOpenDrain:
		flags |= kapi.HandleFlagOpenDrain
	case DriveOpenSource:
		flags |= kapi.HandleFlagOpenSource
	}
	switch lc.Bias {
	case BiasDisabled:
		flags |= kapi.HandleFlagBiasDisable
	case BiasPullUp:
		flags |= kapi.HandleFlagPullUp
	case BiasPullDown:
		flags |= kapi.HandleFlagPullDown
	}
	return flags
}

func (lc LineConfig) eventFlags() kapi.EventFlag {
	switch lc.physicalEdge() {
	case EdgeRising:
		return kapi.EventFlagRising
	case EdgeFalling:
		return kapi.EventFlagFalling
	case EdgeBoth:
		return kapi.EventFlagBoth
	}
	return 0
}

func (lc LineConfig) flagsV2() kapi.FlagV2 {
	var flags kapi.FlagV2
	switch lc.Direction {
	case DirectionInput:
		flags |= kapi.FlagV2Input
	case DirectionOutput:
		flags |= kapi.FlagV2Output
	}
	if lc.Direction != DirectionOutput {
		pe := lc.physicalEdge()
		if pe&EdgeRising != 0 {
			flags |= kapi.FlagV2EdgeRising
		}
		if pe&EdgeFalling != 0 {
			flags |= kapi.FlagV2EdgeFalling
		}
		if lc.Edge != EdgeNone && lc.EventClock == EventClockRealtime {
			flags |= kapi.FlagV2EventClockRealtime
		}
	}
	if lc.Direction == DirectionOutput {
		switch lc.Drive {
		case DriveOpenDrain:
			flags |= kapi.FlagV2OpenDrain
		case DriveOpenSource:
			flags |= kapi.FlagV2OpenSource
		}
	}
	switch lc.Bias {
	case BiasDisabled:
		flags |= kapi.FlagV2BiasDisabled
	case BiasPullUp:
		flags |= kapi.FlagV2BiasPullUp
	case BiasPullDown:
		flags |= kapi.FlagV2BiasPullDown
	}
	return flags
}

// LineInfo is the publicly available information about a line.
//
// This is a snapshot as of the info query - it is not updated as the line
// state changes.
type LineInfo struct {
	// The offset of the line within the chip.
	Offset int

	// The system name for the line.  Empty if unnamed.
	Name string

	// The consumer label.  Empty if the line is not requested.
	Consumer string

	// Used indicates the line is reserved, by any consumer or the kernel.
	Used bool

	// The reported configuration of the line.
	Config LineConfig
}

func lineInfoFromV1(li kapi.LineInfo) LineInfo {
	lc := LineConfig{
		ActiveLow: li.Flags.IsActiveLow(),
		Direction: DirectionInput,
	}
	if li.Flags.IsOut() {
		lc.Direction = DirectionOutput
		if li.Flags.IsOpenDrain() {
			lc.Drive = DriveOpenDrain
		} else if li.Flags.IsOpenSource() {
			lc.Drive = DriveOpenSource
		}
	}
	if li.Flags.IsPullUp() {
		lc.Bias = BiasPullUp
	} else if li.Flags.IsPullDown() {
		lc.Bias = BiasPullDown
	} else if li.Flags.IsBiasDisable() {
		lc.Bias = BiasDisabled
	}
	return LineInfo{
		Offset:   int(li.Offset),
		Name:     kapi.CString(li.Name[:]),
		Consumer: kapi.CString(li.Consumer[:]),
		Used:     li.Flags.IsUsed(),
		Config:   lc,
	}
}

func lineInfoFromV2(li kapi.LineInfoV2) LineInfo {
	lc := LineConfig{
		ActiveLow: li.Flags.IsActiveLow(),
		Direction: DirectionInput,
	}
	if li.Flags.IsOutput() {
		lc.Direction = DirectionOutput
		if li.Flags.IsOpenDrain() {
			lc.Drive = DriveOpenDrain
		} else if li.Flags.IsOpenSource() {
			lc.Drive = DriveOpenSource
		}
	}
	if li.Flags.IsRisingEdge() {
		lc.Edge |= EdgeRising
	}
	if li.Flags.IsFallingEdge() {
		lc.Edge |= EdgeFalling
	}
	if li.Flags.IsBiasPullUp() {
		lc.Bias = BiasPullUp
	} else if li.Flags.IsBiasPullDown() {
		lc.Bias = BiasPullDown
	} else if li.Flags.IsBiasDisabled() {
		lc.Bias = BiasDisabled
	}
	if li.Flags.HasRealtimeEventClock() {
		lc.EventClock = EventClockRealtime
	}
	for i := 0; i < int(li.NumAttrs); i++ {
		if li.Attrs[i].ID == kapi.LineAttrDebounce {
			var d kapi.DebouncePeriod
			d.Decode(li.Attrs[i])
			lc.Debounced = true
			lc.DebouncePeriod = time.Duration(d)
		}
	}
	return LineInfo{
		Offset:   int(li.Offset),
		Name:     kapi.CString(li.Name[:]),
		Consumer: kapi.CString(li.Consumer[:]),
		Used:     li.Flags.IsUsed(),
		Config:   lc,
	}
}
