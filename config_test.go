// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"testing"
	"time"

	"github.com/halwell/gpioline/kapi"
	"github.com/stretchr/testify/assert"
)

func TestPhysicalEdge(t *testing.T) {
	patterns := []struct {
		name string
		cfg  LineConfig
		out  Edge
	}{
		{"rising", LineConfig{Edge: EdgeRising}, EdgeRising},
		{"falling", LineConfig{Edge: EdgeFalling}, EdgeFalling},
		{"both", LineConfig{Edge: EdgeBoth}, EdgeBoth},
		{"low rising", LineConfig{ActiveLow: true, Edge: EdgeRising}, EdgeFalling},
		{"low falling", LineConfig{ActiveLow: true, Edge: EdgeFalling}, EdgeRising},
		{"low both", LineConfig{ActiveLow: true, Edge: EdgeBoth}, EdgeBoth},
		{"low none", LineConfig{ActiveLow: true}, EdgeNone},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, p.out, p.cfg.physicalEdge())
		})
	}
}

func TestV1Supported(t *testing.T) {
	assert.Nil(t, LineConfig{Direction: DirectionInput}.v1Supported())

	err := LineConfig{Debounced: true}.v1Supported()
	assert.IsType(t, ABISupportError{}, err)

	err = LineConfig{EventClock: EventClockRealtime}.v1Supported()
	assert.IsType(t, ABISupportError{}, err)
}

func TestV1Uniform(t *testing.T) {
	base := LineConfig{Direction: DirectionInput, Bias: BiasPullUp}
	assert.True(t, base.v1Uniform(base))

	// active-low is applied in the request layer, so may vary per line.
	low := base
	low.ActiveLow = true
	assert.True(t, base.v1Uniform(low))

	out := base
	out.Direction = DirectionOutput
	assert.False(t, base.v1Uniform(out))

	bias := base
	bias.Bias = BiasPullDown
	assert.False(t, base.v1Uniform(bias))
}

// The kernel must never see the active-low flag - inversion is performed
// in the request layer.
func TestFlagsPhysical(t *testing.T) {
	cfg := LineConfig{ActiveLow: true, Direction: DirectionInput, Edge: EdgeRising}
	assert.Zero(t, cfg.flagsV2()&kapi.FlagV2ActiveLow)
	assert.Zero(t, cfg.handleFlags()&kapi.HandleFlagActiveLow)

	// and the edge sense is flipped instead
	assert.NotZero(t, cfg.flagsV2()&kapi.FlagV2EdgeFalling)
	assert.Zero(t, cfg.flagsV2()&kapi.FlagV2EdgeRising)
	assert.Equal(t, kapi.EventFlagFalling, cfg.eventFlags())
}

func TestFlagsV2(t *testing.T) {
	patterns := []struct {
		name string
		cfg  LineConfig
		out  kapi.FlagV2
	}{
		{"input", LineConfig{Direction: DirectionInput}, kapi.FlagV2Input},
		{"output", LineConfig{Direction: DirectionOutput}, kapi.FlagV2Output},
		{
			"edges",
			LineConfig{Direction: DirectionInput, Edge: EdgeBoth},
			kapi.FlagV2Input | kapi.FlagV2EdgeBoth,
		},
		{
			"open drain",
			LineConfig{Direction: DirectionOutput, Drive: DriveOpenDrain},
			kapi.FlagV2Output | kapi.FlagV2OpenDrain,
		},
		{
			"pull up",
			LineConfig{Direction: DirectionInput, Bias: BiasPullUp},
			kapi.FlagV2Input | kapi.FlagV2BiasPullUp,
		},
		{
			"realtime clock",
			LineConfig{Direction: DirectionInput, Edge: EdgeRising, EventClock: EventClockRealtime},
			kapi.FlagV2Input | kapi.FlagV2EdgeRising | kapi.FlagV2EventClockRealtime,
		},
		{
			// the clock flag only applies to edge detection
			"realtime clock no edges",
			LineConfig{Direction: DirectionInput, EventClock: EventClockRealtime},
			kapi.FlagV2Input,
		},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, p.out, p.cfg.flagsV2())
		})
	}
}

func TestBuildConfigV2(t *testing.T) {
	offsets := []int{1, 3, 5}
	index := map[int]int{1: 0, 3: 1, 5: 2}
	in := LineConfig{Direction: DirectionInput}
	out := LineConfig{Direction: DirectionOutput}

	// homogeneous - no attributes
	lc, err := buildConfigV2(offsets, index, map[int]LineConfig{1: in, 3: in, 5: in}, nil)
	assert.Nil(t, err)
	assert.Equal(t, kapi.FlagV2Input, lc.Flags)
	assert.Zero(t, lc.NumAttrs)

	// one override group plus output values
	lc, err = buildConfigV2(offsets, index,
		map[int]LineConfig{1: in, 3: out, 5: out},
		map[int]Value{3: Active, 5: Inactive})
	assert.Nil(t, err)
	assert.Equal(t, kapi.FlagV2Input, lc.Flags)
	assert.Equal(t, uint32(2), lc.NumAttrs)
	assert.Equal(t, kapi.LineAttrFlags, lc.Attrs[0].Attr.ID)
	assert.Equal(t, kapi.LineBitmap(0b110), lc.Attrs[0].Mask)
	assert.Equal(t, kapi.LineAttrOutputValues, lc.Attrs[1].Attr.ID)
	assert.Equal(t, kapi.LineBitmap(0b110), lc.Attrs[1].Mask)
	assert.Equal(t, uint64(0b010), lc.Attrs[1].Attr.Value64())

	// active-low output value is inverted on the wire
	lo := out
	lo.ActiveLow = true
	lc, err = buildConfigV2([]int{1}, map[int]int{1: 0},
		map[int]LineConfig{1: lo}, map[int]Value{1: Active})
	assert.Nil(t, err)
	assert.Equal(t, uint32(1), lc.NumAttrs)
	assert.Equal(t, kapi.LineAttrOutputValues, lc.Attrs[0].Attr.ID)
	assert.Equal(t, uint64(0), lc.Attrs[0].Attr.Value64())

	// too many distinct debounce periods to map
	cfgs := map[int]LineConfig{}
	oo := make([]int, 12)
	idx := map[int]int{}
	for i := 0; i < 12; i++ {
		oo[i] = i
		idx[i] = i
		cfgs[i] = LineConfig{
			Direction:      DirectionInput,
			Debounced:      true,
			DebouncePeriod: time.Duration(i+1) * time.Millisecond,
		}
	}
	_, err = buildConfigV2(oo, idx, cfgs, nil)
	assert.Equal(t, ErrConfigOverflow, err)
}
