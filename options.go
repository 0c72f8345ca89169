// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"time"
)

// ChipOption is an option that applies when opening a Chip.
type ChipOption interface {
	applyChipOption(*chipOptions)
}

type chipOptions struct {
	consumer string
	abi      int
}

// LineReqOption is an option that applies to a line request.
type LineReqOption interface {
	applyLineReqOption(*lineReqOptions)
}

// LineConfigOption is an option that applies to the configuration of
// requested lines, either at request time or via Reconfigure.
type LineConfigOption interface {
	applyLineConfigOption(*lineConfigOptions)
}

type lineConfigOptions struct {
	// the offsets being configured, in request order.
	offsets []int

	// the configuration applied to lines without an override.
	defCfg LineConfig

	// per-line overrides, keyed by offset.
	lineCfg map[int]LineConfig

	// initial values for output lines, keyed by offset.
	outVals map[int]Value
}

// effective returns the configuration applying to the given offset.
func (lco *lineConfigOptions) effective(offset int) LineConfig {
	if cfg, ok := lco.lineCfg[offset]; ok {
		return cfg
	}
	return lco.defCfg
}

type lineReqOptions struct {
	lineConfigOptions
	consumer        string
	abi             int
	eventBufferSize int
}

// ConsumerOption defines the consumer label applied to requested lines.
type ConsumerOption string

// WithConsumer sets the consumer label for a request, or the default
// consumer label for all requests made from a chip.
//
// The kernel stores the label in a fixed 32 byte buffer, so longer labels
// are silently truncated.
func WithConsumer(consumer string) ConsumerOption {
	return ConsumerOption(consumer)
}

func (o ConsumerOption) applyChipOption(c *chipOptions) {
	c.consumer = string(o)
}

func (o ConsumerOption) applyLineReqOption(l *lineReqOptions) {
	l.consumer = string(o)
}

// ABIVersionOption forces the uAPI version used for a chip or request.
type ABIVersionOption int

// WithABIVersion forces the given uAPI version (1 or 2) instead of
// probing.  Requests fail if the kernel does not support the forced
// version.  Intended for testing.
func WithABIVersion(version int) ABIVersionOption {
	return ABIVersionOption(version)
}

func (o ABIVersionOption) applyChipOption(c *chipOptions) {
	c.abi = int(o)
}

func (o ABIVersionOption) applyLineReqOption(l *lineReqOptions) {
	l.abi = int(o)
}

// InputOption requests lines as inputs.
type InputOption struct{}

// AsInput requests lines as inputs, clearing any drive option.
var AsInput = InputOption{}

func (o InputOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o InputOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.Direction = DirectionInput
	l.defCfg.Drive = DrivePushPull
}

// OutputOption requests lines as outputs with initial values.
type OutputOption []Value

// AsOutput requests lines as outputs.
//
// The values provide the initial logical state of the lines, in request
// order.  Lines without a value start inactive.  Edge detection is
// cleared.
func AsOutput(values ...Value) OutputOption {
	return OutputOption(values)
}

func (o OutputOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o OutputOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.Direction = DirectionOutput
	l.defCfg.Edge = EdgeNone
	for i, offset := range l.offsets {
		v := Inactive
		if i < len(o) {
			v = o[i]
		}
		l.outVals[offset] = v
	}
}

// ActiveLowOption requests lines as active low.
type ActiveLowOption struct{}

// AsActiveLow requests lines with the active state corresponding to a
// physical low.
var AsActiveLow = ActiveLowOption{}

func (o ActiveLowOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o ActiveLowOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.ActiveLow = true
}

// ActiveHighOption requests lines as active high.
type ActiveHighOption struct{}

// AsActiveHigh requests lines with the active state corresponding to a
// physical high.  This is the default.
var AsActiveHigh = ActiveHighOption{}

func (o ActiveHighOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o ActiveHighOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.ActiveLow = false
}

// DriveOption requests a drive for output lines.
type DriveOption Drive

// AsOpenDrain requests outputs be driven low and floated high.
var AsOpenDrain = DriveOption(DriveOpenDrain)

// AsOpenSource requests outputs be driven high and floated low.
var AsOpenSource = DriveOption(DriveOpenSource)

// AsPushPull requests outputs be driven in both directions.  This is the
// default.
var AsPushPull = DriveOption(DrivePushPull)

func (o DriveOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o DriveOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.Direction = DirectionOutput
	l.defCfg.Drive = Drive(o)
	l.defCfg.Edge = EdgeNone
}

// BiasOption requests a bias for lines.
type BiasOption Bias

// WithBiasDisabled requests the internal bias be disabled.
var WithBiasDisabled = BiasOption(BiasDisabled)

// WithPullUp requests the internal pull-up be enabled.
var WithPullUp = BiasOption(BiasPullUp)

// WithPullDown requests the internal pull-down be enabled.
var WithPullDown = BiasOption(BiasPullDown)

func (o BiasOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o BiasOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.Bias = Bias(o)
}

// EdgeOption requests edge detection on input lines.
type EdgeOption Edge

// WithRisingEdge requests events on transitions from inactive to active.
var WithRisingEdge = EdgeOption(EdgeRising)

// WithFallingEdge requests events on transitions from active to inactive.
var WithFallingEdge = EdgeOption(EdgeFalling)

// WithBothEdges requests events on transitions in both directions.
var WithBothEdges = EdgeOption(EdgeBoth)

func (o EdgeOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o EdgeOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.Direction = DirectionInput
	l.defCfg.Drive = DrivePushPull
	l.defCfg.Edge = Edge(o)
}

// DebounceOption requests a debounce period for input lines.
type DebounceOption time.Duration

// WithDebounce requests input lines be debounced for the given period.
//
// Requires uAPI v2.
func WithDebounce(period time.Duration) DebounceOption {
	return DebounceOption(period)
}

func (o DebounceOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o DebounceOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.Direction = DirectionInput
	l.defCfg.Debounced = true
	l.defCfg.DebouncePeriod = time.Duration(o)
}

// EventClockOption selects the clock used to timestamp edge events.
type EventClockOption EventClock

// WithMonotonicEventClock timestamps edge events with CLOCK_MONOTONIC.
// This is the default.
var WithMonotonicEventClock = EventClockOption(EventClockMonotonic)

// WithRealtimeEventClock timestamps edge events with CLOCK_REALTIME.
//
// Requires uAPI v2 and Linux 5.11 or later.
var WithRealtimeEventClock = EventClockOption(EventClockRealtime)

func (o EventClockOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o EventClockOption) applyLineConfigOption(l *lineConfigOptions) {
	l.defCfg.EventClock = EventClock(o)
}

// EventBufferSizeOption suggests a minimum edge event buffer size.
type EventBufferSizeOption int

// WithEventBufferSize suggests a minimum number of events the kernel
// should buffer for the request.
//
// The kernel may round the size up, and ignores it entirely on uAPI v1.
func WithEventBufferSize(size int) EventBufferSizeOption {
	return EventBufferSizeOption(size)
}

func (o EventBufferSizeOption) applyLineReqOption(l *lineReqOptions) {
	l.eventBufferSize = int(o)
}

// LinesOption applies configuration options to a subset of the requested
// lines.
type LinesOption struct {
	offsets []int
	options []LineConfigOption
}

// WithLines applies the options to the given subset of the requested
// lines, overriding the request defaults for those lines.
//
// The options are applied on top of the request defaults as they stand
// when WithLines is processed.  Heterogeneous configurations within one
// request require uAPI v2, with the exception of active-low and output
// values, which the request layer applies per line on either version.
func WithLines(offsets []int, options ...LineConfigOption) LinesOption {
	return LinesOption{offsets: offsets, options: options}
}

func (o LinesOption) applyLineReqOption(l *lineReqOptions) {
	o.applyLineConfigOption(&l.lineConfigOptions)
}

func (o LinesOption) applyLineConfigOption(l *lineConfigOptions) {
	sub := lineConfigOptions{
		offsets: o.offsets,
		defCfg:  l.defCfg,
		lineCfg: map[int]LineConfig{},
		outVals: map[int]Value{},
	}
	for _, option := range o.options {
		option.applyLineConfigOption(&sub)
	}
	if l.lineCfg == nil {
		l.lineCfg = map[int]LineConfig{}
	}
	for _, offset := range o.offsets {
		l.lineCfg[offset] = sub.defCfg
	}
	for offset, v := range sub.outVals {
		l.outVals[offset] = v
	}
}
