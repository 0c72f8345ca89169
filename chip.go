// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"fmt"
	"os"
	"sync"

	"github.com/halwell/gpioline/kapi"
	"golang.org/x/sys/unix"
)

// Chip represents an open GPIO character device.
//
// A Chip provides chip and line info queries and is the factory for line
// requests.  Requests are independent of the Chip - closing the Chip does
// not release them.
type Chip struct {
	f *os.File

	// The system name of the chip, e.g. "gpiochip0".
	Name string

	// A more descriptive label added by the device driver.
	Label string

	// The path of the device node.
	Path string

	// The number of lines on the chip.
	lines int

	// The negotiated uAPI version, 1 or 2.
	abi int

	// The default consumer label for requests made from this chip.
	consumer string

	// mu covers the mutable state below.
	mu sync.Mutex

	// watcher for line info changes, created on first watch.
	iw *infoWatcher

	// handlers for info changes, keyed by offset.
	handlers map[int]InfoChangeHandler

	closed bool
}

// OpenChip opens a GPIO character device.
//
// The path may be a full device path or a bare chip name, which is assumed
// to live under /dev.
func OpenChip(path string, options ...ChipOption) (*Chip, error) {
	path = chipPath(path)
	if err := IsChip(path); err != nil {
		return nil, err
	}
	co := chipOptions{
		consumer: fmt.Sprintf("gpioline-%d", os.Getpid()),
	}
	for _, option := range options {
		option.applyChipOption(&co)
	}
	f, err := os.OpenFile(path, unix.O_CLOEXEC|unix.O_RDWR, 0)
	if err != nil {
		// device removed or relocked since the IsChip check.
		return nil, err
	}
	ci, err := kapi.GetChipInfo(f.Fd())
	if err != nil {
		f.Close()
		return nil, err
	}
	c := Chip{
		f:        f,
		Name:     kapi.CString(ci.Name[:]),
		Label:    kapi.CString(ci.Label[:]),
		Path:     path,
		lines:    int(ci.Lines),
		abi:      co.abi,
		consumer: co.consumer,
	}
	if c.abi == 0 {
		c.abi, err = probeABI(f.Fd())
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	if len(c.Label) == 0 {
		c.Label = "unknown"
	}
	return &c, nil
}

// probeABI determines the best uAPI version the kernel provides for the
// chip.
//
// v2 is preferred, being a superset of v1, and is probed first with a
// minimal line info query.  The result holds for the life of the chip
// session - the kernel ABI does not change at runtime.
func probeABI(fd uintptr) (int, error) {
	if _, err := kapi.GetLineInfoV2(fd, 0); err == nil {
		return 2, nil
	}
	if _, err := kapi.GetLineInfo(fd, 0); err == nil {
		return 1, nil
	}
	return 0, ErrNoUsableABI
}

// Close releases the Chip.
//
// Any requests made from the chip remain valid and must be closed
// independently.  Close is idempotent in effect, though a second call
// returns ErrClosed.
func (c *Chip) Close() error {
	c.mu.Lock()
	closed := c.closed
	c.closed = true
	iw := c.iw
	c.iw = nil
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if iw != nil {
		iw.close()
	}
	return c.f.Close()
}

// Lines returns the number of lines on the chip.
func (c *Chip) Lines() int {
	return c.lines
}

// ABIVersion returns the uAPI version negotiated for the chip.
func (c *Chip) ABIVersion() int {
	return c.abi
}

// LineInfo returns the publicly available information about one line.
//
// This does not require the line to be requested.  Offsets outside the
// chip fail with ErrLineNotFound.
func (c *Chip) LineInfo(offset int) (LineInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return LineInfo{}, ErrClosed
	}
	if offset < 0 || offset >= c.lines {
		return LineInfo{}, ErrLineNotFound
	}
	if c.abi == 1 {
		li, err := kapi.GetLineInfo(c.f.Fd(), offset)
		if err != nil {
			return LineInfo{}, err
		}
		return lineInfoFromV1(li), nil
	}
	li, err := kapi.GetLineInfoV2(c.f.Fd(), offset)
	if err != nil {
		return LineInfo{}, err
	}
	return lineInfoFromV2(li), nil
}

// FindLine returns the offset of the line with the given name.
//
// Fails with ErrLineNotFound if no line has that name, and with
// ErrAmbiguousIdentifier if more than one does.
func (c *Chip) FindLine(name string) (int, error) {
	found := -1
	for o := 0; o < c.lines; o++ {
		inf, err := c.LineInfo(o)
		if err != nil {
			return 0, err
		}
		if inf.Name != name {
			continue
		}
		if found != -1 {
			return 0, ErrAmbiguousIdentifier
		}
		found = o
	}
	if found == -1 {
		return 0, ErrLineNotFound
	}
	return found, nil
}

// WatchLineInfo enables watching changes to the info of the given line.
//
// Changes are passed to the handler.  Repeated calls for an offset replace
// the handler.  Requires Linux 5.7 or later.
func (c *Chip) WatchLineInfo(offset int, handler InfoChangeHandler) (LineInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return LineInfo{}, ErrClosed
	}
	if c.iw == nil {
		iw, err := newInfoWatcher(int(c.f.Fd()), c.dispatchInfoChange, c.abi)
		if err != nil {
			return LineInfo{}, err
		}
		c.iw = iw
		c.handlers = map[int]InfoChangeHandler{}
	}
	if c.abi == 1 {
		li := kapi.LineInfo{Offset: uint32(offset)}
		if err := kapi.WatchLineInfo(c.f.Fd(), &li); err != nil {
			return LineInfo{}, err
		}
		c.handlers[offset] = handler
		return lineInfoFromV1(li), nil
	}
	li := kapi.LineInfoV2{Offset: uint32(offset)}
	if err := kapi.WatchLineInfoV2(c.f.Fd(), &li); err != nil {
		return LineInfo{}, err
	}
	c.handlers[offset] = handler
	return lineInfoFromV2(li), nil
}

// UnwatchLineInfo disables watching changes to the info of the given line.
func (c *Chip) UnwatchLineInfo(offset int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	delete(c.handlers, offset)
	return kapi.UnwatchLineInfo(c.f.Fd(), uint32(offset))
}

func (c *Chip) dispatchInfoChange(ev LineInfoChangeEvent) {
	c.mu.Lock()
	handler := c.handlers[ev.Info.Offset]
	c.mu.Unlock()
	// handler called outside the lock
	if handler != nil {
		handler(ev)
	}
}

// RequestLine is a convenience wrapper requesting a single line on the
// named chip.  The returned Request is independent of any Chip.
func RequestLine(chip string, offset int, options ...LineReqOption) (*Request, error) {
	return RequestLines(chip, []int{offset}, options...)
}

// RequestLines is a convenience wrapper requesting a set of lines on the
// named chip.  The returned Request is independent of any Chip.
func RequestLines(chip string, offsets []int, options ...LineReqOption) (*Request, error) {
	c, err := OpenChip(chip)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.RequestLines(offsets, options...)
}
