// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"sync"
	"time"

	"github.com/halwell/gpioline/kapi"
	"golang.org/x/sys/unix"
)

// InfoChangeType indicates the type of change to a line's info.
type InfoChangeType int

const (
	_ InfoChangeType = iota

	// LineRequested indicates the line has been requested.
	LineRequested

	// LineReleased indicates the line has been released.
	LineReleased

	// LineReconfigured indicates the line configuration has changed.
	LineReconfigured
)

// LineInfoChangeEvent reports a change to the info of a watched line.
type LineInfoChangeEvent struct {
	// The updated info.
	Info LineInfo

	// The time of the change.
	Timestamp time.Duration

	// The type of change.
	Type InfoChangeType
}

// InfoChangeHandler is called for changes to the info of watched lines.
//
// Called from the chip's watch goroutine, so should not block.
type InfoChangeHandler func(LineInfoChangeEvent)

// infoWatcher waits on the chip fd for line info change events and passes
// them to the handler.
//
// One watcher serves all the watched lines of a chip.
type infoWatcher struct {
	epfd int

	// eventfd to signal the goroutine to exit.
	donefd int

	// the chip fd, watched but not owned.
	fd int

	handler InfoChangeHandler

	abi int

	// closed once the goroutine has exited.
	doneCh chan struct{}

	mu     sync.Mutex
	closed bool
}

func newInfoWatcher(fd int, handler InfoChangeHandler, abi int) (*infoWatcher, error) {
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
	epv.Fd = int32(fd)
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &epv); err != nil {
		unix.Close(donefd)
		unix.Close(epfd)
		return nil, err
	}
	iw := infoWatcher{
		epfd:    epfd,
		donefd:  donefd,
		fd:      fd,
		handler: handler,
		abi:     abi,
		doneCh:  make(chan struct{}),
	}
	go iw.watch()
	return &iw, nil
}

// close terminates the watch goroutine and waits for it to exit.
func (iw *infoWatcher) close() {
	iw.mu.Lock()
	if iw.closed {
		iw.mu.Unlock()
		return
	}
	iw.closed = true
	iw.mu.Unlock()
	unix.Write(iw.donefd, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	<-iw.doneCh
	unix.Close(iw.donefd)
	unix.Close(iw.epfd)
}

func (iw *infoWatcher) watch() {
	defer close(iw.doneCh)
	epollEvents := make([]unix.EpollEvent, 2)
	for {
		n, err := unix.EpollWait(iw.epfd, epollEvents, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			if int(epollEvents[i].Fd) == iw.donefd {
				return
			}
			iw.service()
		}
	}
}

func (iw *infoWatcher) service() {
	if iw.abi == 1 {
		lic, err := kapi.ReadLineInfoChanged(uintptr(iw.fd))
		if err != nil {
			return
		}
		iw.handler(LineInfoChangeEvent{
			Info:      lineInfoFromV1(lic.Info),
			Timestamp: time.Duration(lic.Timestamp),
			Type:      InfoChangeType(lic.Type),
		})
		return
	}
	lic, err := kapi.ReadLineInfoChangedV2(uintptr(iw.fd))
	if err != nil {
		return
	}
	iw.handler(LineInfoChangeEvent{
		Info:      lineInfoFromV2(lic.Info),
		Timestamp: time.Duration(lic.Timestamp),
		Type:      InfoChangeType(lic.Type),
	})
}
