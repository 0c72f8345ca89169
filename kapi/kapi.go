// SPDX-License-Identifier: MIT

//go:build linux

// Package kapi mirrors the Linux GPIO character device uAPI.
//
// The structs in this package reproduce the exact memory layout the kernel
// ioctls exchange, for both the deprecated v1 handle/event protocol and the
// v2 line protocol.  They contain no policy - values are physical line
// levels and flags are kernel flags.  Translation to logical levels and
// richer configuration types is the caller's concern.
package kapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// labelSize is the size of the name and consumer fields in kernel structs.
//
// Strings longer than labelSize-1 are silently truncated by the kernel, so
// they are truncated here on encode as well.
const labelSize = 32

// ErrProtocol indicates a kernel response that is inconsistent with the
// request, such as an event buffer that is not a whole number of records.
//
// This is a defect, either here or in the kernel, and is never coerced into
// a partial result.
var ErrProtocol = errors.New("kernel response inconsistent with request")

// CString converts a null-terminated byte array, as contained in kernel
// structs, into a string.
func CString(a []byte) string {
	n := bytes.IndexByte(a, 0)
	if n == -1 {
		return string(a)
	}
	return string(a[:n])
}

// setCString copies s into the fixed-size field a, truncating silently and
// always leaving a terminating null.
func setCString(a []byte, s string) {
	copy(a[:len(a)-1], s)
}

type fdReader int

func (fd fdReader) Read(b []byte) (int, error) {
	return unix.Read(int(fd), b[:])
}

func ioctlPtr(fd uintptr, cmd ioctl, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Semver is a kernel version triple, e.g. Semver{5, 10}.
type Semver []int

func (v Semver) String() string {
	if len(v) == 0 {
		return ""
	}
	s := fmt.Sprintf("%d", v[0])
	for _, f := range v[1:] {
		s += fmt.Sprintf(".%d", f)
	}
	return s
}

// Compare returns -1 if v is older than o, 0 if equal and 1 if newer.
// Missing fields are treated as zero.
func (v Semver) Compare(o Semver) int {
	for i := 0; i < len(v) || i < len(o); i++ {
		var a, b int
		if i < len(v) {
			a = v[i]
		}
		if i < len(o) {
			b = o[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// KernelVersion returns the version of the running kernel.
func KernelVersion() (Semver, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return nil, err
	}
	release := CString(u.Release[:])
	v := Semver{}
	field := 0
	for _, c := range release {
		if c >= '0' && c <= '9' {
			field = field*10 + int(c-'0')
			continue
		}
		v = append(v, field)
		field = 0
		if c != '.' || len(v) == 3 {
			break
		}
	}
	if len(v) < 3 {
		v = append(v, field)
	}
	return v, nil
}

// CheckKernelVersion returns an error if the running kernel is older than
// min.  Used by tests to skip features the kernel does not provide.
func CheckKernelVersion(min Semver) error {
	kv, err := KernelVersion()
	if err != nil {
		return err
	}
	if kv.Compare(min) < 0 {
		return fmt.Errorf("requires kernel %s or later, have %s", min, kv)
	}
	return nil
}

var nativeEndian binary.ByteOrder = findEndian()

func findEndian() binary.ByteOrder {
	// the standard trick to determine native endianness.
	buf := [2]byte{}
	*(*uint16)(unsafe.Pointer(&buf[0])) = uint16(0xABCD)
	switch buf {
	case [2]byte{0xCD, 0xAB}:
		return binary.LittleEndian
	case [2]byte{0xAB, 0xCD}:
		return binary.BigEndian
	default:
		panic("could not determine native endianness")
	}
}
