// SPDX-License-Identifier: MIT

//go:build linux

package kapi

import (
	"encoding/binary"
	"unsafe"
)

// HandlesMax is the maximum number of lines in one v1 handle request.
const HandlesMax = 64

var (
	getChipInfoIoctl     ioctl
	getLineInfoIoctl     ioctl
	getLineHandleIoctl   ioctl
	getLineEventIoctl    ioctl
	getHandleValuesIoctl ioctl
	setHandleValuesIoctl ioctl
	setHandleConfigIoctl ioctl
	watchLineInfoIoctl   ioctl
	unwatchLineInfoIoctl ioctl
)

func init() {
	// ioctl codes embed the struct size, so are composed at runtime.
	var ci ChipInfo
	getChipInfoIoctl = ior(0xB4, 0x01, unsafe.Sizeof(ci))
	var li LineInfo
	getLineInfoIoctl = iorw(0xB4, 0x02, unsafe.Sizeof(li))
	var hr HandleRequest
	getLineHandleIoctl = iorw(0xB4, 0x03, unsafe.Sizeof(hr))
	var er EventRequest
	getLineEventIoctl = iorw(0xB4, 0x04, unsafe.Sizeof(er))
	var hd HandleData
	getHandleValuesIoctl = iorw(0xB4, 0x08, unsafe.Sizeof(hd))
	setHandleValuesIoctl = iorw(0xB4, 0x09, unsafe.Sizeof(hd))
	var hc HandleConfig
	setHandleConfigIoctl = iorw(0xB4, 0x0a, unsafe.Sizeof(hc))
	watchLineInfoIoctl = iorw(0xB4, 0x0b, unsafe.Sizeof(li))
	unwatchLineInfoIoctl = iorw(0xB4, 0x0c, unsafe.Sizeof(li.Offset))
}

// ChipInfo contains the details of a GPIO chip.
type ChipInfo struct {
	// The system name of the chip device.
	Name [labelSize]byte

	// An identifying label added by the device driver.
	Label [labelSize]byte

	// The number of lines on the chip.
	Lines uint32
}

// LineInfo contains the v1 details of a single line.
type LineInfo struct {
	// The offset of the line within the chip.
	Offset uint32

	// The current state of the line.
	Flags LineFlag

	// The system name for this line.
	Name [labelSize]byte

	// The consumer label, if the line is requested.
	Consumer [labelSize]byte
}

// LineFlag is the v1 line info flags.
type LineFlag uint32

const (
	// LineFlagUsed indicates the line is in use, by this process, another
	// process, or the kernel, and cannot be requested until clear.
	LineFlagUsed LineFlag = 1 << iota

	// LineFlagIsOut indicates the line is an output.
	LineFlagIsOut

	// LineFlagActiveLow indicates the line is active low.
	LineFlagActiveLow

	// LineFlagOpenDrain indicates an open drain output.
	LineFlagOpenDrain

	// LineFlagOpenSource indicates an open source output.
	LineFlagOpenSource

	// LineFlagPullUp indicates internal pull-up is enabled.
	LineFlagPullUp

	// LineFlagPullDown indicates internal pull-down is enabled.
	LineFlagPullDown

	// LineFlagBiasDisable indicates internal bias is disabled.
	LineFlagBiasDisable
)

// IsUsed returns true if the line is in use.
func (f LineFlag) IsUsed() bool { return f&LineFlagUsed != 0 }

// IsOut returns true if the line is an output.
func (f LineFlag) IsOut() bool { return f&LineFlagIsOut != 0 }

// IsActiveLow returns true if the line is active low.
func (f LineFlag) IsActiveLow() bool { return f&LineFlagActiveLow != 0 }

// IsOpenDrain returns true if the line is an open drain output.
func (f LineFlag) IsOpenDrain() bool { return f&LineFlagOpenDrain != 0 }

// IsOpenSource returns true if the line is an open source output.
func (f LineFlag) IsOpenSource() bool { return f&LineFlagOpenSource != 0 }

// IsPullUp returns true if the line has pull-up enabled.
func (f LineFlag) IsPullUp() bool { return f&LineFlagPullUp != 0 }

// IsPullDown returns true if the line has pull-down enabled.
func (f LineFlag) IsPullDown() bool { return f&LineFlagPullDown != 0 }

// IsBiasDisable returns true if the line has bias disabled.
func (f LineFlag) IsBiasDisable() bool { return f&LineFlagBiasDisable != 0 }

// HandleRequest is a v1 request for control of a set of lines.
//
// All lines must be on the same chip and share the same flags.
// The first Lines entries of the fixed-size arrays are significant.
type HandleRequest struct {
	// The offsets of the lines to be requested.
	Offsets [HandlesMax]uint32

	// The flags applied to all lines in the request.
	Flags HandleFlag

	// The initial values for output lines.
	DefaultValues [HandlesMax]uint8

	// The consumer label applied to the lines.
	//
	// Truncated silently to labelSize-1 characters.
	Consumer [labelSize]byte

	// The number of lines requested.
	Lines uint32

	// The file descriptor for the reservation, set by the kernel on success.
	Fd int32
}

// SetConsumer sets the consumer label in the request.
func (hr *HandleRequest) SetConsumer(consumer string) {
	setCString(hr.Consumer[:], consumer)
}

// HandleConfig changes the config of an existing v1 request.
type HandleConfig struct {
	// The flags applied to all lines in the request.
	Flags HandleFlag

	// The values applied to output lines.
	DefaultValues [HandlesMax]uint8

	// reserved for future use, must be zero.
	Padding [4]uint32
}

// HandleFlag is the v1 request flags, applied uniformly to all lines in
// the request.
type HandleFlag uint32

const (
	// HandleFlagInput requests the lines as inputs.
	HandleFlagInput HandleFlag = 1 << iota

	// HandleFlagOutput requests the lines as outputs, taking precedence
	// over HandleFlagInput.
	HandleFlagOutput

	// HandleFlagActiveLow requests the lines as active low.
	HandleFlagActiveLow

	// HandleFlagOpenDrain requests open drain outputs.
	HandleFlagOpenDrain

	// HandleFlagOpenSource requests open source outputs.
	HandleFlagOpenSource

	// HandleFlagPullUp requests pull-up bias.
	HandleFlagPullUp

	// HandleFlagPullDown requests pull-down bias.
	HandleFlagPullDown

	// HandleFlagBiasDisable requests bias be disabled.
	HandleFlagBiasDisable
)

// HandleData contains a value for each line in a v1 request.
// Zero is low, any other value high.
type HandleData [HandlesMax]uint8

// EventRequest is a v1 request for a single line with edge detection.
type EventRequest struct {
	// The offset of the line to be requested.
	Offset uint32

	// The flags applied to the line.
	HandleFlags HandleFlag

	// The edges to be detected.
	EventFlags EventFlag

	// The consumer label applied to the line.
	//
	// Truncated silently to labelSize-1 characters.
	Consumer [labelSize]byte

	// The file descriptor for the reservation, set by the kernel on success.
	Fd int32
}

// SetConsumer sets the consumer label in the request.
func (er *EventRequest) SetConsumer(consumer string) {
	setCString(er.Consumer[:], consumer)
}

// EventFlag selects the edges reported by a v1 event request.
type EventFlag uint32

const (
	// EventFlagRising requests events on rising edges.
	EventFlagRising EventFlag = 1 << iota

	// EventFlagFalling requests events on falling edges.
	EventFlagFalling

	// EventFlagBoth requests events on both edges.
	EventFlagBoth = EventFlagRising | EventFlagFalling
)

const (
	// EventRising identifies a rising edge in EventData.ID.
	EventRising uint32 = 1

	// EventFalling identifies a falling edge in EventData.ID.
	EventFalling uint32 = 2
)

// LineInfoChanged reports a change to the info of a watched line.
type LineInfoChanged struct {
	// The updated info.
	Info LineInfo

	// The time of the change.
	Timestamp uint64

	// The type of change.
	Type ChangeType

	// reserved for future use, must be zero.
	Padding [5]uint32
}

// ChangeType indicates the type of change to a watched line.
type ChangeType uint32

const (
	_ ChangeType = iota

	// ChangeRequested indicates the line has been requested.
	ChangeRequested

	// ChangeReleased indicates the line has been released.
	ChangeReleased

	// ChangeConfig indicates the line configuration has changed.
	ChangeConfig
)

// GetChipInfo returns the ChipInfo for an open GPIO character device.
func GetChipInfo(fd uintptr) (ChipInfo, error) {
	var ci ChipInfo
	err := ioctlPtr(fd, getChipInfoIoctl, unsafe.Pointer(&ci))
	if err != nil {
		return ChipInfo{}, err
	}
	return ci, nil
}

// GetLineInfo returns the v1 LineInfo for one line of a chip.
func GetLineInfo(fd uintptr, offset int) (LineInfo, error) {
	li := LineInfo{Offset: uint32(offset)}
	err := ioctlPtr(fd, getLineInfoIoctl, unsafe.Pointer(&li))
	if err != nil {
		return LineInfo{}, err
	}
	return li, nil
}

// RequestHandle reserves a set of lines for value I/O.
//
// The fd is an open GPIO character device.
// On success the kernel returns the reservation fd in hr.Fd.  Closing that
// fd is the only way to release the reservation.
func RequestHandle(fd uintptr, hr *HandleRequest) error {
	return ioctlPtr(fd, getLineHandleIoctl, unsafe.Pointer(hr))
}

// RequestEvent reserves a single input line with edge detection.
//
// The fd is an open GPIO character device.
// On success the kernel returns the reservation fd in er.Fd.  Edge events
// are read from that fd.
func RequestEvent(fd uintptr, er *EventRequest) error {
	return ioctlPtr(fd, getLineEventIoctl, unsafe.Pointer(er))
}

// GetHandleValues reads the values of the lines in a v1 reservation.
//
// The fd is a reservation fd returned by RequestHandle or RequestEvent.
func GetHandleValues(fd uintptr, values *HandleData) error {
	return ioctlPtr(fd, getHandleValuesIoctl, unsafe.Pointer(&values[0]))
}

// SetHandleValues writes the values of the lines in a v1 reservation.
//
// The fd is a reservation fd returned by RequestHandle.
func SetHandleValues(fd uintptr, values HandleData) error {
	return ioctlPtr(fd, setHandleValuesIoctl, unsafe.Pointer(&values[0]))
}

// SetHandleConfig applies a new configuration to an existing v1
// reservation.  The flags apply to all lines in the reservation.
func SetHandleConfig(fd uintptr, config *HandleConfig) error {
	return ioctlPtr(fd, setHandleConfigIoctl, unsafe.Pointer(config))
}

// WatchLineInfo sets a watch on the line identified by info.Offset.
//
// On success the current line info is returned in info.
func WatchLineInfo(fd uintptr, info *LineInfo) error {
	return ioctlPtr(fd, watchLineInfoIoctl, unsafe.Pointer(info))
}

// UnwatchLineInfo clears a line info watch.
func UnwatchLineInfo(fd uintptr, offset uint32) error {
	return ioctlPtr(fd, unwatchLineInfoIoctl, unsafe.Pointer(&offset))
}

// ReadEvent reads a single v1 edge event from a reservation fd.
//
// Blocks until an event is available, so should only be called when the fd
// is known to be readable.
func ReadEvent(fd uintptr) (EventData, error) {
	var ed EventData
	err := binary.Read(fdReader(fd), nativeEndian, &ed)
	return ed, err
}

// ReadLineInfoChanged reads a v1 line info change event from a chip fd.
//
// Blocks until an event is available, so should only be called when the fd
// is known to be readable.
func ReadLineInfoChanged(fd uintptr) (LineInfoChanged, error) {
	var lic LineInfoChanged
	err := binary.Read(fdReader(fd), nativeEndian, &lic)
	return lic, err
}
