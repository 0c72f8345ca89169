// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"sync"
	"time"

	"github.com/halwell/gpioline/kapi"
	"golang.org/x/sys/unix"
)

// EventType indicates the type of logical transition reported by an edge
// event.
//
// For active-low lines the logical sense is inverted, so a physical
// falling edge on an active-low line is reported as a rising (inactive to
// active) event.
type EventType int

const (
	_ EventType = iota

	// EventRisingEdge indicates an inactive to active transition.
	EventRisingEdge

	// EventFallingEdge indicates an active to inactive transition.
	EventFallingEdge
)

// EdgeEvent is a single edge transition on a requested line.
type EdgeEvent struct {
	// The offset of the line that transitioned.
	Offset int

	// The type of transition, in logical terms.
	Type EventType

	// The kernel timestamp of the event, in nanoseconds.
	//
	// Based on CLOCK_MONOTONIC unless the request selected the realtime
	// event clock.
	Timestamp time.Duration

	// The sequence number of the event within the request.
	//
	// Strictly increasing.  On uAPI v1 the kernel does not provide
	// sequence numbers so they are synthesized in delivery order.
	Seqno uint32

	// The sequence number of the event within its line.
	LineSeqno uint32

	// The number of preceding events the kernel dropped due to event
	// buffer overflow, as indicated by a gap in sequence numbers.
	//
	// Always zero on uAPI v1, which cannot detect loss.
	LostEvents uint32
}

// eventStream turns the reservation fds of an edge request into a pull
// sequence of EdgeEvents.
//
// Reads block in epoll so that closing the stream, from any goroutine,
// wakes them via an eventfd.  The last actor out - the closer or the last
// woken reader - releases the fds.
type eventStream struct {
	epfd int

	// eventfd used to wake blocked readers on close.
	donefd int

	// reservation fd to offset.  On v2 the single fd maps to -1 as the
	// record itself carries the offset.
	fds map[int]int

	abi int

	// read buffer for packed v2 event records.
	buf []byte

	// mu covers the decode state and lifecycle below.
	mu sync.Mutex

	// offsets configured active-low, so the edge sense can be flipped
	// to logical.  Updated on reconfigure.
	sense map[int]bool

	pending   []EdgeEvent
	lastSeqno uint32
	seq       uint32
	lineSeq   map[int]uint32
	readers   int
	closed    bool
	released  bool
}

func newEventStream(fds map[int]int, abi int, sense map[int]bool) (*eventStream, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	donefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	epv := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(donefd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, donefd, &epv); err != nil {
		unix.Close(donefd)
		unix.Close(epfd)
		return nil, err
	}
	for fd := range fds {
		unix.SetNonblock(fd, true)
		epv.Fd = int32(fd)
		if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &epv); err != nil {
			unix.Close(donefd)
			unix.Close(epfd)
			return nil, err
		}
	}
	return &eventStream{
		epfd:    epfd,
		donefd:  donefd,
		fds:     fds,
		abi:     abi,
		sense:   sense,
		buf:     make([]byte, 16*kapi.LineEventSize),
		lineSeq: map[int]uint32{},
	}, nil
}

// setSense replaces the active-low map following a reconfigure.
func (s *eventStream) setSense(sense map[int]bool) {
	s.mu.Lock()
	s.sense = sense
	s.mu.Unlock()
}

// readEvent returns the next edge event from the stream.
//
// A zero timeout polls, a negative timeout blocks indefinitely.  Expiry
// fails with ErrEventReadTimeout and closure with ErrClosed.
func (s *eventStream) readEvent(timeout time.Duration) (EdgeEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return EdgeEvent{}, ErrClosed
	}
	if len(s.pending) > 0 {
		ev := s.pop()
		s.mu.Unlock()
		return ev, nil
	}
	s.readers++
	s.mu.Unlock()
	defer s.exitRead()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	epollEvents := make([]unix.EpollEvent, len(s.fds)+1)
	for {
		ms := -1
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			ms = int(remaining / time.Millisecond)
			if remaining > 0 && ms == 0 {
				ms = 1
			}
		}
		n, err := unix.EpollWait(s.epfd, epollEvents, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			// epfd closed under us
			return EdgeEvent{}, ErrClosed
		}
		if n == 0 {
			return EdgeEvent{}, ErrEventReadTimeout
		}
		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			if fd == s.donefd {
				// the eventfd is deliberately left unread so any other
				// blocked readers wake too.
				return EdgeEvent{}, ErrClosed
			}
			if err = s.service(fd); err != nil {
				return EdgeEvent{}, err
			}
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return EdgeEvent{}, ErrClosed
		}
		if len(s.pending) > 0 {
			ev := s.pop()
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()
	}
}

// pop removes and returns the head of the pending queue.
// Assumes s.mu is held and the queue is non-empty.
func (s *eventStream) pop() EdgeEvent {
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev
}

// service drains one readable reservation fd into the pending queue.
func (s *eventStream) service(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abi == 1 {
		return s.serviceV1(fd)
	}
	return s.serviceV2(fd)
}

func (s *eventStream) serviceV1(fd int) error {
	ed, err := kapi.ReadEvent(uintptr(fd))
	if err != nil {
		// raced another reader to the record
		return nil
	}
	offset := s.fds[fd]
	s.seq++
	s.lineSeq[offset]++
	typ := EventRisingEdge
	if ed.ID == kapi.EventFalling {
		typ = EventFallingEdge
	}
	if s.sense[offset] {
		typ = flipEventType(typ)
	}
	s.pending = append(s.pending, EdgeEvent{
		Offset:    offset,
		Type:      typ,
		Timestamp: time.Duration(ed.Timestamp),
		Seqno:     s.seq,
		LineSeqno: s.lineSeq[offset],
	})
	return nil
}

func (s *eventStream) serviceV2(fd int) error {
	n, err := unix.Read(fd, s.buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
	// a single read may return several packed records.
	ee, err := kapi.UnpackLineEvents(s.buf[:n])
	if err != nil {
		return err
	}
	for _, le := range ee {
		if le.Seqno <= s.lastSeqno {
			// the kernel guarantees strictly increasing seqnos.
			return kapi.ErrProtocol
		}
		// seqnos count from 1, so a gap anywhere, including before the
		// first event seen, is kernel buffer overflow.
		lost := le.Seqno - s.lastSeqno - 1
		s.lastSeqno = le.Seqno
		offset := int(le.Offset)
		typ := EventRisingEdge
		if le.ID == kapi.LineEventFallingEdge {
			typ = EventFallingEdge
		}
		if s.sense[offset] {
			typ = flipEventType(typ)
		}
		s.pending = append(s.pending, EdgeEvent{
			Offset:     offset,
			Type:       typ,
			Timestamp:  time.Duration(le.Timestamp),
			Seqno:      le.Seqno,
			LineSeqno:  le.LineSeqno,
			LostEvents: lost,
		})
	}
	return nil
}

func flipEventType(t EventType) EventType {
	if t == EventRisingEdge {
		return EventFallingEdge
	}
	return EventRisingEdge
}

func (s *eventStream) exitRead() {
	s.mu.Lock()
	s.readers--
	if s.closed && s.readers == 0 && !s.released {
		s.released = true
		s.mu.Unlock()
		s.release()
		return
	}
	s.mu.Unlock()
}

// close wakes any blocked readers and releases the stream's fds once the
// last reader has returned.
func (s *eventStream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unix.Write(s.donefd, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	if s.readers == 0 && !s.released {
		s.released = true
		s.mu.Unlock()
		s.release()
		return
	}
	s.mu.Unlock()
}

// release closes all the fds owned by the stream, including the
// reservation fds.
func (s *eventStream) release() {
	for fd := range s.fds {
		unix.Close(fd)
	}
	unix.Close(s.donefd)
	unix.Close(s.epfd)
}
