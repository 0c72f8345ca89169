// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"testing"
	"time"
	"unsafe"

	"github.com/halwell/gpioline/kapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newPipeStream builds an eventStream reading v2 records from a pipe, so
// the decode path can be exercised without a kernel event source.
func newPipeStream(t *testing.T) (*eventStream, int) {
	t.Helper()
	var p [2]int
	require.Nil(t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	s, err := newEventStream(map[int]int{p[0]: -1}, 2, map[int]bool{})
	if err != nil {
		unix.Close(p[0])
		unix.Close(p[1])
		require.Nil(t, err)
	}
	t.Cleanup(s.close)
	t.Cleanup(func() { unix.Close(p[1]) })
	return s, p[1]
}

// writeLineEvents writes records packed contiguously, as the kernel does.
// The structs are the wire format, so their memory is written directly.
func writeLineEvents(t *testing.T, fd int, ee ...kapi.LineEvent) {
	t.Helper()
	buf := make([]byte, 0, len(ee)*kapi.LineEventSize)
	for i := range ee {
		b := unsafe.Slice((*byte)(unsafe.Pointer(&ee[i])), kapi.LineEventSize)
		buf = append(buf, b...)
	}
	n, err := unix.Write(fd, buf)
	require.Nil(t, err)
	require.Equal(t, len(buf), n)
}

func TestEventStreamLostEvents(t *testing.T) {
	s, wfd := newPipeStream(t)

	writeLineEvents(t, wfd, kapi.LineEvent{
		Timestamp: 1000,
		ID:        kapi.LineEventRisingEdge,
		Offset:    3,
		Seqno:     1,
		LineSeqno: 1,
	})
	evt, err := s.readEvent(time.Second)
	require.Nil(t, err)
	assert.Equal(t, 3, evt.Offset)
	assert.Equal(t, EventRisingEdge, evt.Type)
	assert.Equal(t, uint32(1), evt.Seqno)
	assert.Equal(t, uint32(0), evt.LostEvents)

	// a gap in seqnos is kernel buffer overflow - the dropped count is
	// surfaced on the next event through.
	writeLineEvents(t, wfd, kapi.LineEvent{
		Timestamp: 2000,
		ID:        kapi.LineEventFallingEdge,
		Offset:    3,
		Seqno:     5,
		LineSeqno: 5,
	})
	evt, err = s.readEvent(time.Second)
	require.Nil(t, err)
	assert.Equal(t, EventFallingEdge, evt.Type)
	assert.Equal(t, uint32(5), evt.Seqno)
	assert.Equal(t, uint32(3), evt.LostEvents)
}

func TestEventStreamLostBeforeFirstEvent(t *testing.T) {
	s, wfd := newPipeStream(t)

	// seqnos count from 1, so a first event with a higher seqno means
	// events were already lost.
	writeLineEvents(t, wfd, kapi.LineEvent{
		Timestamp: 1000,
		ID:        kapi.LineEventRisingEdge,
		Offset:    0,
		Seqno:     4,
		LineSeqno: 4,
	})
	evt, err := s.readEvent(time.Second)
	require.Nil(t, err)
	assert.Equal(t, uint32(4), evt.Seqno)
	assert.Equal(t, uint32(3), evt.LostEvents)
}

func TestEventStreamSeqnoOrder(t *testing.T) {
	s, wfd := newPipeStream(t)

	// several records may arrive packed in one read.
	writeLineEvents(t, wfd,
		kapi.LineEvent{
			Timestamp: 1000,
			ID:        kapi.LineEventRisingEdge,
			Offset:    1,
			Seqno:     1,
			LineSeqno: 1,
		},
		kapi.LineEvent{
			Timestamp: 2000,
			ID:        kapi.LineEventFallingEdge,
			Offset:    1,
			Seqno:     2,
			LineSeqno: 2,
		})
	evt, err := s.readEvent(time.Second)
	require.Nil(t, err)
	assert.Equal(t, uint32(1), evt.Seqno)
	evt, err = s.readEvent(time.Second)
	require.Nil(t, err)
	assert.Equal(t, uint32(2), evt.Seqno)

	// the kernel guarantees strictly increasing seqnos, so a repeat is a
	// protocol violation, not an event.
	writeLineEvents(t, wfd, kapi.LineEvent{
		Timestamp: 3000,
		ID:        kapi.LineEventRisingEdge,
		Offset:    1,
		Seqno:     2,
		LineSeqno: 3,
	})
	_, err = s.readEvent(time.Second)
	assert.Equal(t, kapi.ErrProtocol, err)
}
