// SPDX-License-Identifier: MIT

//go:build linux

// Package gpioline accesses GPIO lines on Linux via the GPIO character
// device.
//
// It supports both generations of the kernel GPIO uAPI - the deprecated v1
// handle/event protocol and the v2 line protocol - selecting the best
// available for each chip at open.
//
// Lines are reserved with a Request, which provides value I/O and edge
// event streaming for its lines until closed:
//
//	c, err := gpioline.OpenChip("/dev/gpiochip0")
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
//	r, err := c.RequestLines([]int{4}, gpioline.AsOutput(gpioline.Inactive))
//	if err != nil {
//		panic(err)
//	}
//	defer r.Close()
//	r.SetValue(4, gpioline.Active)
//
// Unlike the raw uAPI, active-low handling is performed in the request
// layer, so the kapi layer always carries physical line levels and callers
// always see logical levels.
package gpioline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Value is the logical state of a line.
type Value int

const (
	// Inactive is the logical low state of a line.
	Inactive Value = 0

	// Active is the logical high state of a line.
	Active Value = 1
)

func (v Value) String() string {
	if v == Inactive {
		return "inactive"
	}
	return "active"
}

var (
	// ErrClosed indicates the chip or request has already been closed.
	ErrClosed = errors.New("already closed")

	// ErrInvalidOffset indicates an offset outside the chip on request,
	// or outside the reservation for request operations.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrEmptyRequest indicates a request for no lines.
	ErrEmptyRequest = errors.New("request contains no lines")

	// ErrRepeatedOffset indicates an offset appears more than once in a
	// request.
	ErrRepeatedOffset = errors.New("offset repeated in request")

	// ErrTooManyLines indicates a request exceeds the uAPI limit on lines
	// per request.
	ErrTooManyLines = errors.New("request exceeds lines per request limit")

	// ErrConfigOverflow indicates the configuration is too complex to map
	// to the kernel uAPI.  Reduce the per-line variation or split the
	// request.
	ErrConfigOverflow = errors.New("configuration too complex to map to kernel uAPI")

	// ErrNotCharacterDevice indicates the device is not a GPIO character
	// device.
	ErrNotCharacterDevice = errors.New("not a character device")

	// ErrPermissionDenied indicates the operation is not permitted, e.g.
	// setting values on an input line.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoUsableABI indicates the kernel supports neither GPIO uAPI
	// version.
	ErrNoUsableABI = errors.New("no usable GPIO uAPI version")

	// ErrEventReadTimeout indicates an edge event read timed out.
	ErrEventReadTimeout = errors.New("timeout waiting for edge event")

	// ErrNoEdgeDetection indicates an edge event read on a request with
	// no edge detection configured.
	ErrNoEdgeDetection = errors.New("request has no edge detection")

	// ErrLineNotFound indicates no line matches the identifier.
	ErrLineNotFound = errors.New("line not found")

	// ErrAmbiguousIdentifier indicates an identifier matches more than
	// one line, or is an offset with no single chip in scope.
	ErrAmbiguousIdentifier = errors.New("identifier is ambiguous")
)

// ABISupportError indicates a feature is not supported by the uAPI version
// negotiated for the chip.
type ABISupportError struct {
	// The unsupported feature.
	Feature string

	// The negotiated uAPI version.
	Version int
}

func (e ABISupportError) Error() string {
	return fmt.Sprintf("%s not supported by GPIO uAPI v%d", e.Feature, e.Version)
}

// Chips returns the paths of the available GPIO character devices, in
// lexicographic order.
func Chips() []string {
	ee, err := os.ReadDir("/dev")
	if err != nil {
		return nil
	}
	var cc []string
	for _, e := range ee {
		name := e.Name()
		if !strings.HasPrefix(name, "gpiochip") {
			continue
		}
		path := "/dev/" + name
		if IsChip(path) == nil {
			cc = append(cc, path)
		}
	}
	return cc
}

// IsChip returns nil if the path identifies an accessible GPIO character
// device, else an error.
func IsChip(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeCharDevice == 0 {
		return ErrNotCharacterDevice
	}
	// cross-check the device numbers against sysfs to exclude impostors.
	sysfspath := fmt.Sprintf("/sys/bus/gpio/devices/%s/dev", fi.Name())
	sysfsf, err := os.Open(sysfspath)
	if err != nil {
		return ErrNotCharacterDevice
	}
	var sysfsdev [16]byte
	n, err := sysfsf.Read(sysfsdev[:])
	sysfsf.Close()
	if err != nil || n <= 0 {
		return ErrNotCharacterDevice
	}
	var stat unix.Stat_t
	if err = unix.Lstat(path, &stat); err != nil {
		return err
	}
	devstr := fmt.Sprintf("%d:%d", unix.Major(uint64(stat.Rdev)), unix.Minor(uint64(stat.Rdev)))
	sysstr := string(sysfsdev[:n-1])
	if devstr != sysstr {
		return ErrNotCharacterDevice
	}
	return nil
}

func chipPath(name string) string {
	if strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}
