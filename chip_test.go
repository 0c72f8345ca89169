// SPDX-License-Identifier: MIT

//go:build linux

package gpioline_test

import (
	"testing"
	"time"

	"github.com/halwell/gpioline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiosim"
)

// newSim constructs a simulated chip, skipping the test if the gpio-sim
// kernel module is not available.
func newSim(t *testing.T, numLines int) *gpiosim.Simpleton {
	t.Helper()
	s, err := gpiosim.NewSimpleton(numLines)
	if err != nil {
		t.Skip("gpio-sim unavailable -", err)
	}
	t.Cleanup(s.Close)
	return s
}

func newChip(t *testing.T, s *gpiosim.Simpleton, options ...gpioline.ChipOption) *gpioline.Chip {
	t.Helper()
	c, err := gpioline.OpenChip(s.DevPath(), options...)
	require.Nil(t, err)
	require.NotNil(t, c)
	return c
}

// abiVersions returns the uAPI versions to test against, as supported by
// the running kernel.
func abiVersions(t *testing.T, s *gpiosim.Simpleton) []int {
	t.Helper()
	c := newChip(t, s)
	defer c.Close()
	if c.ABIVersion() == 2 {
		return []int{1, 2}
	}
	return []int{1}
}

func TestOpenChip(t *testing.T) {
	s := newSim(t, 8)

	// non-existent
	c, err := gpioline.OpenChip(s.DevPath() + "not")
	assert.NotNil(t, err)
	assert.Nil(t, c)

	// not a character device
	c, err = gpioline.OpenChip("/dev/null")
	assert.Equal(t, gpioline.ErrNotCharacterDevice, err)
	assert.Nil(t, c)

	// success
	c, err = gpioline.OpenChip(s.DevPath())
	assert.Nil(t, err)
	require.NotNil(t, c)
	assert.Equal(t, s.ChipName(), c.Name)
	assert.Equal(t, 8, c.Lines())
	assert.Nil(t, c.Close())

	// name only
	c, err = gpioline.OpenChip(s.ChipName())
	assert.Nil(t, err)
	require.NotNil(t, c)
	assert.Nil(t, c.Close())

	// options
	c, err = gpioline.OpenChip(s.DevPath(), gpioline.WithConsumer("linetest"))
	assert.Nil(t, err)
	require.NotNil(t, c)
	assert.Nil(t, c.Close())
}

func TestOpenChipForcedABI(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		c, err := gpioline.OpenChip(s.DevPath(), gpioline.WithABIVersion(abi))
		assert.Nil(t, err)
		require.NotNil(t, c)
		assert.Equal(t, abi, c.ABIVersion())
		assert.Nil(t, c.Close())
	}
}

func TestChips(t *testing.T) {
	s := newSim(t, 8)
	cc := gpioline.Chips()
	assert.Contains(t, cc, s.DevPath())
}

func TestIsChip(t *testing.T) {
	s := newSim(t, 8)
	assert.Nil(t, gpioline.IsChip(s.DevPath()))
	assert.Equal(t, gpioline.ErrNotCharacterDevice, gpioline.IsChip("/dev/null"))
	assert.NotNil(t, gpioline.IsChip("/dev/nonexistent"))
}

func TestChipClose(t *testing.T) {
	s := newSim(t, 8)
	c := newChip(t, s)
	assert.Nil(t, c.Close())

	// closed
	assert.Equal(t, gpioline.ErrClosed, c.Close())

	// operations fail once closed
	_, err := c.LineInfo(0)
	assert.Equal(t, gpioline.ErrClosed, err)
	_, err = c.RequestLines([]int{0})
	assert.Equal(t, gpioline.ErrClosed, err)

	// requests survive the chip
	c = newChip(t, s)
	r, err := c.RequestLines([]int{1}, gpioline.AsInput)
	require.Nil(t, err)
	assert.Nil(t, c.Close())
	_, err = r.Value(1)
	assert.Nil(t, err)
	assert.Nil(t, r.Close())
}

func TestLineInfo(t *testing.T) {
	s := newSim(t, 8)
	c := newChip(t, s)
	defer c.Close()

	// out of range
	_, err := c.LineInfo(-1)
	assert.Equal(t, gpioline.ErrLineNotFound, err)
	_, err = c.LineInfo(8)
	assert.Equal(t, gpioline.ErrLineNotFound, err)

	// unrequested
	inf, err := c.LineInfo(3)
	require.Nil(t, err)
	assert.Equal(t, 3, inf.Offset)
	assert.False(t, inf.Used)
	assert.Empty(t, inf.Consumer)

	// requested
	r, err := c.RequestLines([]int{3},
		gpioline.AsOutput(gpioline.Active),
		gpioline.WithConsumer("infotest"))
	require.Nil(t, err)
	defer r.Close()
	inf, err = c.LineInfo(3)
	require.Nil(t, err)
	assert.True(t, inf.Used)
	assert.Equal(t, "infotest", inf.Consumer)
	assert.Equal(t, gpioline.DirectionOutput, inf.Config.Direction)
}

func TestFindLine(t *testing.T) {
	sim, err := gpiosim.NewSim(
		gpiosim.WithBank(gpiosim.NewBank("findline", 8,
			gpiosim.WithNamedLine(2, "LED0"),
			gpiosim.WithNamedLine(5, "BUTTON0"),
			gpiosim.WithNamedLine(6, "dupe"),
			gpiosim.WithNamedLine(7, "dupe"),
		)),
	)
	if err != nil {
		t.Skip("gpio-sim unavailable -", err)
	}
	defer sim.Close()
	c, err := gpioline.OpenChip(sim.Chips[0].DevPath())
	require.Nil(t, err)
	defer c.Close()

	o, err := c.FindLine("LED0")
	assert.Nil(t, err)
	assert.Equal(t, 2, o)

	_, err = c.FindLine("MISSING")
	assert.Equal(t, gpioline.ErrLineNotFound, err)

	_, err = c.FindLine("dupe")
	assert.Equal(t, gpioline.ErrAmbiguousIdentifier, err)
}

func TestWatchLineInfo(t *testing.T) {
	s := newSim(t, 8)
	c := newChip(t, s)
	defer c.Close()

	evtchan := make(chan gpioline.LineInfoChangeEvent, 3)
	inf, err := c.WatchLineInfo(4, func(ev gpioline.LineInfoChangeEvent) {
		evtchan <- ev
	})
	require.Nil(t, err)
	assert.Equal(t, 4, inf.Offset)

	r, err := c.RequestLines([]int{4}, gpioline.AsInput)
	require.Nil(t, err)
	ev := waitInfoEvent(t, evtchan)
	assert.Equal(t, gpioline.LineRequested, ev.Type)
	assert.Equal(t, 4, ev.Info.Offset)

	require.Nil(t, r.Close())
	ev = waitInfoEvent(t, evtchan)
	assert.Equal(t, gpioline.LineReleased, ev.Type)

	// unwatched - no further events
	require.Nil(t, c.UnwatchLineInfo(4))
	r, err = c.RequestLines([]int{4}, gpioline.AsInput)
	require.Nil(t, err)
	defer r.Close()
	select {
	case ev = <-evtchan:
		assert.Fail(t, "received event after unwatch", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func waitInfoEvent(t *testing.T, evtchan <-chan gpioline.LineInfoChangeEvent) gpioline.LineInfoChangeEvent {
	t.Helper()
	select {
	case ev := <-evtchan:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for info change event")
	}
	return gpioline.LineInfoChangeEvent{}
}
