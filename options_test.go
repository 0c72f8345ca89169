// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func applyReqOptions(offsets []int, options ...LineReqOption) *lineReqOptions {
	lro := lineReqOptions{
		lineConfigOptions: lineConfigOptions{
			offsets: offsets,
			defCfg:  LineConfig{Direction: DirectionInput},
			lineCfg: map[int]LineConfig{},
			outVals: map[int]Value{},
		},
	}
	for _, option := range options {
		option.applyLineReqOption(&lro)
	}
	return &lro
}

func TestAsOutputValues(t *testing.T) {
	lro := applyReqOptions([]int{3, 5, 7}, AsOutput(Active, Inactive))

	assert.Equal(t, DirectionOutput, lro.defCfg.Direction)
	assert.Equal(t, Active, lro.outVals[3])
	assert.Equal(t, Inactive, lro.outVals[5])
	// lines without a value start inactive
	assert.Equal(t, Inactive, lro.outVals[7])
}

func TestWithLinesOverrides(t *testing.T) {
	lro := applyReqOptions([]int{3, 5},
		AsOutput(Active, Active),
		WithLines([]int{5}, AsActiveLow))

	// the override starts from the request defaults as they stood
	cfg := lro.effective(5)
	assert.True(t, cfg.ActiveLow)
	assert.Equal(t, DirectionOutput, cfg.Direction)

	cfg = lro.effective(3)
	assert.False(t, cfg.ActiveLow)

	// later default options do not touch overridden lines
	WithPullUp.applyLineReqOption(lro)
	assert.Equal(t, BiasPullUp, lro.effective(3).Bias)
	assert.Equal(t, BiasAsIs, lro.effective(5).Bias)
}

func TestEdgeOptionsForceInput(t *testing.T) {
	lro := applyReqOptions([]int{1}, AsOutput(Active), WithBothEdges)
	assert.Equal(t, DirectionInput, lro.defCfg.Direction)
	assert.Equal(t, EdgeBoth, lro.defCfg.Edge)

	// and output options clear edge detection
	lro = applyReqOptions([]int{1}, WithBothEdges, AsOutput(Active))
	assert.Equal(t, DirectionOutput, lro.defCfg.Direction)
	assert.Equal(t, EdgeNone, lro.defCfg.Edge)
}
