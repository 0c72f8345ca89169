// SPDX-License-Identifier: MIT

//go:build linux

package kapi

import (
	"bytes"
	"encoding/binary"
	"time"
	"unsafe"
)

const (
	// LinesMax is the maximum number of lines in one v2 line request.
	LinesMax = 64

	// AttrsMax is the maximum number of config attributes in one v2
	// request.  Configurations requiring more cannot be mapped to the
	// uAPI and must be split or simplified.
	AttrsMax = 10

	// the reserved field sizes of the v2 structs.
	lineConfigPadSize        = 5
	lineRequestPadSize       = 5
	lineEventPadSize         = 6
	lineInfoV2PadSize        = 4
	lineInfoChangedV2PadSize = 5
)

var (
	getLineInfoV2Ioctl   ioctl
	getLineIoctl         ioctl
	getLineValuesIoctl   ioctl
	setLineValuesIoctl   ioctl
	setLineConfigIoctl   ioctl
	watchLineInfoV2Ioctl ioctl
)

func init() {
	var li LineInfoV2
	getLineInfoV2Ioctl = iorw(0xB4, 0x05, unsafe.Sizeof(li))
	watchLineInfoV2Ioctl = iorw(0xB4, 0x06, unsafe.Sizeof(li))
	var lr LineRequest
	getLineIoctl = iorw(0xB4, 0x07, unsafe.Sizeof(lr))
	var lc LineConfig
	setLineConfigIoctl = iorw(0xB4, 0x0D, unsafe.Sizeof(lc))
	var lv LineValues
	getLineValuesIoctl = iorw(0xB4, 0x0E, unsafe.Sizeof(lv))
	setLineValuesIoctl = iorw(0xB4, 0x0F, unsafe.Sizeof(lv))
}

// LineInfoV2 contains the v2 details of a single line.
type LineInfoV2 struct {
	// The system name for this line.
	Name [labelSize]byte

	// The consumer label, if the line is requested.
	Consumer [labelSize]byte

	// The offset of the line within the chip.
	Offset uint32

	// The number of valid entries in Attrs.
	NumAttrs uint32

	// The current state of the line.
	Flags FlagV2

	// The configuration attributes applied to the line.
	Attrs [AttrsMax]LineAttribute

	// reserved for future use, must be zero.
	Padding [lineInfoV2PadSize]uint32
}

// LineInfoChangedV2 reports a change to the info of a watched line.
type LineInfoChangedV2 struct {
	// The updated info.
	Info LineInfoV2

	// The time of the change.
	Timestamp uint64

	// The type of change.
	Type ChangeType

	// reserved for future use, must be zero.
	Padding [lineInfoChangedV2PadSize]uint32
}

// FlagV2 is the v2 line flags, used in both line info and line config.
type FlagV2 uint64

const (
	// FlagV2Used indicates the line is in use and cannot be requested
	// until clear.
	FlagV2Used FlagV2 = 1 << iota

	// FlagV2ActiveLow indicates the line is active low.
	FlagV2ActiveLow

	// FlagV2Input indicates the line is an input.
	FlagV2Input

	// FlagV2Output indicates the line is an output.
	FlagV2Output

	// FlagV2EdgeRising indicates edge detection on rising edges.
	FlagV2EdgeRising

	// FlagV2EdgeFalling indicates edge detection on falling edges.
	FlagV2EdgeFalling

	// FlagV2OpenDrain indicates an open drain output.
	FlagV2OpenDrain

	// FlagV2OpenSource indicates an open source output.
	FlagV2OpenSource

	// FlagV2BiasPullUp indicates pull-up bias.
	FlagV2BiasPullUp

	// FlagV2BiasPullDown indicates pull-down bias.
	FlagV2BiasPullDown

	// FlagV2BiasDisabled indicates bias is disabled.
	FlagV2BiasDisabled

	// FlagV2EventClockRealtime indicates edge events are timestamped
	// with CLOCK_REALTIME rather than CLOCK_MONOTONIC.
	FlagV2EventClockRealtime

	// FlagV2DirectionMask covers the direction flags.
	FlagV2DirectionMask = FlagV2Input | FlagV2Output

	// FlagV2EdgeBoth covers both edge detection flags.
	FlagV2EdgeBoth = FlagV2EdgeRising | FlagV2EdgeFalling
)

// IsUsed returns true if the line is in use.
func (f FlagV2) IsUsed() bool { return f&FlagV2Used != 0 }

// IsActiveLow returns true if the line is active low.
func (f FlagV2) IsActiveLow() bool { return f&FlagV2ActiveLow != 0 }

// IsInput returns true if the line is an input.
func (f FlagV2) IsInput() bool { return f&FlagV2Input != 0 }

// IsOutput returns true if the line is an output.
func (f FlagV2) IsOutput() bool { return f&FlagV2Output != 0 }

// IsRisingEdge returns true if rising edge detection is enabled.
func (f FlagV2) IsRisingEdge() bool { return f&FlagV2EdgeRising != 0 }

// IsFallingEdge returns true if falling edge detection is enabled.
func (f FlagV2) IsFallingEdge() bool { return f&FlagV2EdgeFalling != 0 }

// IsBothEdges returns true if edge detection is enabled on both edges.
func (f FlagV2) IsBothEdges() bool { return f&FlagV2EdgeBoth == FlagV2EdgeBoth }

// IsOpenDrain returns true if the line is an open drain output.
func (f FlagV2) IsOpenDrain() bool { return f&FlagV2OpenDrain != 0 }

// IsOpenSource returns true if the line is an open source output.
func (f FlagV2) IsOpenSource() bool { return f&FlagV2OpenSource != 0 }

// IsBiasPullUp returns true if the line has pull-up bias.
func (f FlagV2) IsBiasPullUp() bool { return f&FlagV2BiasPullUp != 0 }

// IsBiasPullDown returns true if the line has pull-down bias.
func (f FlagV2) IsBiasPullDown() bool { return f&FlagV2BiasPullDown != 0 }

// IsBiasDisabled returns true if the line has bias disabled.
func (f FlagV2) IsBiasDisabled() bool { return f&FlagV2BiasDisabled != 0 }

// HasRealtimeEventClock returns true if edge events carry CLOCK_REALTIME
// timestamps.
func (f FlagV2) HasRealtimeEventClock() bool { return f&FlagV2EventClockRealtime != 0 }

// LineAttrID identifies the content of a LineAttribute.
type LineAttrID uint32

const (
	// LineAttrFlags indicates the attribute carries FlagV2 flags.
	LineAttrFlags LineAttrID = iota + 1

	// LineAttrOutputValues indicates the attribute carries output values.
	LineAttrOutputValues

	// LineAttrDebounce indicates the attribute carries a debounce period
	// in microseconds.
	LineAttrDebounce
)

// LineAttribute is a single v2 configuration attribute.
type LineAttribute struct {
	// The content of Value.
	ID LineAttrID

	// reserved for future use, must be zero.
	Padding [1]uint32

	// The attribute value, 32 or 64 bits depending on ID.
	Value [8]byte
}

// Encode32 populates the attribute with a 32-bit value.
func (la *LineAttribute) Encode32(id LineAttrID, value uint32) {
	la.ID = id
	nativeEndian.PutUint32(la.Value[:], value)
}

// Encode64 populates the attribute with a 64-bit value.
func (la *LineAttribute) Encode64(id LineAttrID, value uint64) {
	la.ID = id
	nativeEndian.PutUint64(la.Value[:], value)
}

// Value32 returns the attribute value as 32 bits.
func (la LineAttribute) Value32() uint32 {
	return nativeEndian.Uint32(la.Value[:])
}

// Value64 returns the attribute value as 64 bits.
func (la LineAttribute) Value64() uint64 {
	return nativeEndian.Uint64(la.Value[:])
}

// DebouncePeriod is the time a line must be stable before a level
// transition is recognized.
type DebouncePeriod time.Duration

// Encode returns the debounce period as a LineAttribute.
//
// The uAPI carries debounce in microseconds, so finer precision is lost.
func (d DebouncePeriod) Encode() (la LineAttribute) {
	la.Encode32(LineAttrDebounce, uint32(time.Duration(d)/time.Microsecond))
	return
}

// Decode populates the DebouncePeriod from a LineAttribute.
func (d *DebouncePeriod) Decode(la LineAttribute) {
	*d = DebouncePeriod(time.Duration(la.Value32()) * time.Microsecond)
}

// OutputValues is a bitmap of initial values for output lines.
type OutputValues LineBitmap

// Encode returns the output values as a LineAttribute.
func (ov OutputValues) Encode() (la LineAttribute) {
	la.Encode64(LineAttrOutputValues, uint64(ov))
	return
}

// Decode populates the OutputValues from a LineAttribute.
func (ov *OutputValues) Decode(la LineAttribute) {
	*ov = OutputValues(la.Value64())
}

// ConfigAttr associates a configuration attribute with a subset of the
// requested lines.
type ConfigAttr struct {
	// The attribute to be applied.
	Attr LineAttribute

	// The lines the attribute applies to, as a bitmap of indexes into
	// LineRequest.Offsets.
	Mask LineBitmap
}

// LineConfig is the v2 configuration for a set of lines.
type LineConfig struct {
	// The flags applied to lines not covered by a flags attribute.
	Flags FlagV2

	// The number of valid entries in Attrs.
	NumAttrs uint32

	// reserved for future use, must be zero.
	Padding [lineConfigPadSize]uint32

	// Attribute overrides for subsets of the lines.
	Attrs [AttrsMax]ConfigAttr
}

// AddAttribute appends an attribute to the configuration.
//
// Returns false if the configuration already holds AttrsMax attributes.
func (lc *LineConfig) AddAttribute(ca ConfigAttr) bool {
	if lc.NumAttrs >= AttrsMax {
		return false
	}
	lc.Attrs[lc.NumAttrs] = ca
	lc.NumAttrs++
	return true
}

// LineRequest is a v2 request for control of a set of lines.
// The lines must all be on the same GPIO chip.
type LineRequest struct {
	// The offsets of the lines to be requested.
	Offsets [LinesMax]uint32

	// The consumer label applied to the lines.
	//
	// Truncated silently to labelSize-1 characters.
	Consumer [labelSize]byte

	// The configuration for the requested lines.
	Config LineConfig

	// The number of lines requested.
	Lines uint32

	// A suggested minimum size for the edge event buffer.
	EventBufferSize uint32

	// reserved for future use, must be zero.
	Padding [lineRequestPadSize]uint32

	// The file descriptor for the reservation, set by the kernel on
	// success.  Closing it is the only way to release the reservation.
	Fd int32
}

// SetConsumer sets the consumer label in the request.
func (lr *LineRequest) SetConsumer(consumer string) {
	setCString(lr.Consumer[:], consumer)
}

// LineBitmap holds one bit for each line in a request, indexed by position
// in LineRequest.Offsets.
type LineBitmap uint64

// LineMask returns a bitmap with the low n bits set.
func LineMask(n int) LineBitmap {
	if n >= LinesMax {
		return ^LineBitmap(0)
	}
	return (LineBitmap(1) << uint(n)) - 1
}

// Get returns the value of the nth bit.
func (lb LineBitmap) Get(n int) int {
	if lb&(LineBitmap(1)<<uint(n)) != 0 {
		return 1
	}
	return 0
}

// Set returns the bitmap with the nth bit set to v.
func (lb LineBitmap) Set(n, v int) LineBitmap {
	mask := LineBitmap(1) << uint(n)
	if v == 0 {
		return lb &^ mask
	}
	return lb | mask
}

// LineValues identifies a subset of requested lines and their values.
type LineValues struct {
	// The line values, 0 for low and 1 for high.
	Bits LineBitmap

	// The lines to get or set.
	Mask LineBitmap
}

// Get returns the value of the nth line.
func (lv LineValues) Get(n int) int {
	return lv.Bits.Get(n)
}

// LineEventID indicates the edge detected.
type LineEventID uint32

const (
	// LineEventRisingEdge indicates a rising edge.
	LineEventRisingEdge LineEventID = iota + 1

	// LineEventFallingEdge indicates a falling edge.
	LineEventFallingEdge
)

// LineEvent is a single v2 edge event record.
//
// Read from the reservation fd of a RequestLine with edge detection.
type LineEvent struct {
	// The time the event was detected.
	Timestamp uint64

	// The edge detected.
	ID LineEventID

	// The line that triggered the event.
	Offset uint32

	// The sequence number of this event in all events on the request.
	Seqno uint32

	// The sequence number of this event in all events on this line.
	LineSeqno uint32

	// reserved for future use.
	Padding [lineEventPadSize]uint32
}

// LineEventSize is the encoded size of one LineEvent record.
var LineEventSize = int(unsafe.Sizeof(LineEvent{}))

// GetLineInfoV2 returns the v2 LineInfoV2 for one line of a chip.
func GetLineInfoV2(fd uintptr, offset int) (LineInfoV2, error) {
	li := LineInfoV2{Offset: uint32(offset)}
	err := ioctlPtr(fd, getLineInfoV2Ioctl, unsafe.Pointer(&li))
	if err != nil {
		return LineInfoV2{}, err
	}
	return li, nil
}

// RequestLine reserves a set of lines using the v2 protocol.
//
// The fd is an open GPIO character device.
// On success the kernel returns the reservation fd in lr.Fd.
func RequestLine(fd uintptr, lr *LineRequest) error {
	return ioctlPtr(fd, getLineIoctl, unsafe.Pointer(lr))
}

// GetLineValues reads the values of a subset of the lines in a v2
// reservation, as selected by lv.Mask.
func GetLineValues(fd uintptr, lv *LineValues) error {
	return ioctlPtr(fd, getLineValuesIoctl, unsafe.Pointer(lv))
}

// SetLineValues writes the values of a subset of the lines in a v2
// reservation, as selected by lv.Mask.  Lines outside the mask retain
// their values.
func SetLineValues(fd uintptr, lv LineValues) error {
	return ioctlPtr(fd, setLineValuesIoctl, unsafe.Pointer(&lv))
}

// SetLineConfig applies a new configuration to an existing v2 reservation
// without dropping it.
func SetLineConfig(fd uintptr, config *LineConfig) error {
	return ioctlPtr(fd, setLineConfigIoctl, unsafe.Pointer(config))
}

// WatchLineInfoV2 sets a watch on the line identified by info.Offset.
//
// On success the current line info is returned in info.
func WatchLineInfoV2(fd uintptr, info *LineInfoV2) error {
	return ioctlPtr(fd, watchLineInfoV2Ioctl, unsafe.Pointer(info))
}

// ReadLineEvent reads a single v2 edge event from a reservation fd.
//
// Blocks until an event is available, so should only be called when the fd
// is known to be readable.
func ReadLineEvent(fd uintptr) (LineEvent, error) {
	var le LineEvent
	err := binary.Read(fdReader(fd), nativeEndian, &le)
	return le, err
}

// UnpackLineEvents decodes a buffer read from a v2 reservation fd into
// edge events.
//
// A single read may return several records packed contiguously.  A buffer
// that is not a whole number of records fails with ErrProtocol.
func UnpackLineEvents(buf []byte) ([]LineEvent, error) {
	if len(buf)%LineEventSize != 0 {
		return nil, ErrProtocol
	}
	ee := make([]LineEvent, 0, len(buf)/LineEventSize)
	r := bytes.NewReader(buf)
	for r.Len() > 0 {
		var le LineEvent
		if err := binary.Read(r, nativeEndian, &le); err != nil {
			return nil, ErrProtocol
		}
		ee = append(ee, le)
	}
	return ee, nil
}

// ReadLineInfoChangedV2 reads a v2 line info change event from a chip fd.
//
// Blocks until an event is available, so should only be called when the fd
// is known to be readable.
func ReadLineInfoChangedV2(fd uintptr) (LineInfoChangedV2, error) {
	var lic LineInfoChangedV2
	err := binary.Read(fdReader(fd), nativeEndian, &lic)
	return lic, err
}
