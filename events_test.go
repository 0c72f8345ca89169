// SPDX-License-Identifier: MIT

//go:build linux

package gpioline_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/halwell/gpioline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventNoEdges(t *testing.T) {
	s := newSim(t, 8)
	c := newChip(t, s)
	defer c.Close()
	r, err := c.RequestLines([]int{1}, gpioline.AsInput)
	require.Nil(t, err)
	defer r.Close()

	_, err = r.ReadEvent(-1)
	assert.Equal(t, gpioline.ErrNoEdgeDetection, err)
}

func TestReadEventTimeout(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			r, err := c.RequestLines([]int{1},
				gpioline.WithBothEdges,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)
			defer r.Close()

			// poll
			_, err = r.ReadEvent(0)
			assert.Equal(t, gpioline.ErrEventReadTimeout, err)

			// expiry
			start := time.Now()
			_, err = r.ReadEvent(20 * time.Millisecond)
			assert.Equal(t, gpioline.ErrEventReadTimeout, err)
			assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		})
	}
}

func TestReadEvent(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			require.Nil(t, s.Pulldown(3))
			r, err := c.RequestLines([]int{3},
				gpioline.WithBothEdges,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)
			defer r.Close()

			require.Nil(t, s.Pullup(3))
			ev, err := r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, 3, ev.Offset)
			assert.Equal(t, gpioline.EventRisingEdge, ev.Type)
			assert.Equal(t, uint32(1), ev.Seqno)
			assert.Equal(t, uint32(1), ev.LineSeqno)
			assert.Zero(t, ev.LostEvents)
			assert.NotZero(t, ev.Timestamp)

			require.Nil(t, s.Pulldown(3))
			ev, err = r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, gpioline.EventFallingEdge, ev.Type)
			assert.Equal(t, uint32(2), ev.Seqno)
			assert.Equal(t, uint32(2), ev.LineSeqno)

			// drained
			_, err = r.ReadEvent(0)
			assert.Equal(t, gpioline.ErrEventReadTimeout, err)
		})
	}
}

func TestReadEventRisingOnly(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			require.Nil(t, s.Pulldown(3))
			r, err := c.RequestLines([]int{3},
				gpioline.WithRisingEdge,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)
			defer r.Close()

			require.Nil(t, s.Pullup(3))
			ev, err := r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, gpioline.EventRisingEdge, ev.Type)

			// falling edges are not detected
			require.Nil(t, s.Pulldown(3))
			_, err = r.ReadEvent(50 * time.Millisecond)
			assert.Equal(t, gpioline.ErrEventReadTimeout, err)
		})
	}
}

// For active-low lines the reported edges are logical, so a physical
// falling edge arrives as a rising event.
func TestReadEventActiveLow(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			require.Nil(t, s.Pullup(3))
			r, err := c.RequestLines([]int{3},
				gpioline.WithBothEdges,
				gpioline.AsActiveLow,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)
			defer r.Close()

			require.Nil(t, s.Pulldown(3))
			ev, err := r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, gpioline.EventRisingEdge, ev.Type)

			require.Nil(t, s.Pullup(3))
			ev, err = r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, gpioline.EventFallingEdge, ev.Type)
		})
	}
}

// A rising-edge request on an active-low line must report activations,
// which are physical falling edges.
func TestReadEventActiveLowRising(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			require.Nil(t, s.Pullup(3))
			r, err := c.RequestLines([]int{3},
				gpioline.WithRisingEdge,
				gpioline.AsActiveLow,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)
			defer r.Close()

			require.Nil(t, s.Pulldown(3))
			ev, err := r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, gpioline.EventRisingEdge, ev.Type)

			// deactivation is not detected
			require.Nil(t, s.Pullup(3))
			_, err = r.ReadEvent(50 * time.Millisecond)
			assert.Equal(t, gpioline.ErrEventReadTimeout, err)
		})
	}
}

func TestReadEventMultipleLines(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			require.Nil(t, s.Pulldown(1))
			require.Nil(t, s.Pulldown(4))
			r, err := c.RequestLines([]int{1, 4},
				gpioline.WithBothEdges,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)
			defer r.Close()

			require.Nil(t, s.Pullup(1))
			ev, err := r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, 1, ev.Offset)
			assert.Equal(t, uint32(1), ev.LineSeqno)

			require.Nil(t, s.Pullup(4))
			ev, err = r.ReadEvent(time.Second)
			require.Nil(t, err)
			assert.Equal(t, 4, ev.Offset)
			// line seqnos count per line
			assert.Equal(t, uint32(1), ev.LineSeqno)
		})
	}
}

func TestCloseWakesReader(t *testing.T) {
	s := newSim(t, 8)
	for _, abi := range abiVersions(t, s) {
		t.Run(fmt.Sprintf("v%d", abi), func(t *testing.T) {
			c := newChip(t, s)
			defer c.Close()
			r, err := c.RequestLines([]int{1},
				gpioline.WithBothEdges,
				gpioline.WithABIVersion(abi))
			require.Nil(t, err)

			done := make(chan error)
			go func() {
				_, err := r.ReadEvent(-1)
				done <- err
			}()
			// let the reader block
			time.Sleep(20 * time.Millisecond)
			require.Nil(t, r.Close())
			select {
			case err := <-done:
				assert.Equal(t, gpioline.ErrClosed, err)
			case <-time.After(time.Second):
				t.Fatal("blocked reader not woken by close")
			}
		})
	}
}
