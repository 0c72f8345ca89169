// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"sync"
	"time"

	"github.com/halwell/gpioline/kapi"
	"golang.org/x/sys/unix"
)

// Request is a reservation of a set of lines on one chip.
//
// The reservation is held until the Request is closed, independently of
// the Chip it was made from.
type Request struct {
	// The path of the chip the lines reside on.
	chip string

	// The requested offsets, in request order.
	offsets []int

	// offset to position in offsets.
	index map[int]int

	// The uAPI version the request was made with.
	abi int

	// The reservation fd.  Unused for v1 event requests, which hold one
	// fd per line in evtfds instead.
	fd int

	isEvent bool

	// v1 event reservation fds, keyed by offset.
	evtfds map[int]int

	// mu covers the mutable state below.
	mu sync.Mutex

	// The request default configuration, as of the last (re)configure.
	defCfg LineConfig

	// Explicit per-line overrides, keyed by offset.
	overrides map[int]LineConfig

	// The effective configuration of each line.
	cfg map[int]LineConfig

	// The last logical value applied to each output line.
	lastOut map[int]Value

	stream *eventStream

	closed bool
}

// RequestLines requests control of a set of lines on the chip.
//
// The config options are applied to all lines, except where overridden
// with WithLines.  The returned Request remains valid after the chip is
// closed.
func (c *Chip) RequestLines(offsets []int, options ...LineReqOption) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if len(offsets) == 0 {
		return nil, ErrEmptyRequest
	}
	if len(offsets) > kapi.LinesMax {
		return nil, ErrTooManyLines
	}
	index := make(map[int]int, len(offsets))
	for i, o := range offsets {
		if o < 0 || o >= c.lines {
			return nil, ErrInvalidOffset
		}
		if _, ok := index[o]; ok {
			return nil, ErrRepeatedOffset
		}
		index[o] = i
	}
	lro := lineReqOptions{
		lineConfigOptions: lineConfigOptions{
			offsets: offsets,
			defCfg:  LineConfig{Direction: DirectionInput},
			lineCfg: map[int]LineConfig{},
			outVals: map[int]Value{},
		},
		consumer: c.consumer,
		abi:      c.abi,
	}
	for _, option := range options {
		option.applyLineReqOption(&lro)
	}
	r := Request{
		chip:      c.Path,
		offsets:   append([]int(nil), offsets...),
		index:     index,
		abi:       lro.abi,
		defCfg:    lro.defCfg,
		overrides: lro.lineCfg,
		cfg:       map[int]LineConfig{},
		lastOut:   map[int]Value{},
	}
	for _, o := range offsets {
		cfg := lro.effective(o)
		r.cfg[o] = cfg
		if cfg.Direction == DirectionOutput {
			r.lastOut[o] = lro.outVals[o]
		}
	}
	var err error
	if r.abi == 1 {
		err = r.requestV1(c.f.Fd(), &lro)
	} else {
		err = r.requestV2(c.f.Fd(), &lro)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Request) requestV2(fd uintptr, lro *lineReqOptions) error {
	lr := kapi.LineRequest{
		Lines:           uint32(len(r.offsets)),
		EventBufferSize: uint32(lro.eventBufferSize),
	}
	for i, o := range r.offsets {
		lr.Offsets[i] = uint32(o)
	}
	lr.SetConsumer(lro.consumer)
	lc, err := buildConfigV2(r.offsets, r.index, r.cfg, r.lastOut)
	if err != nil {
		return err
	}
	lr.Config = lc
	if err = kapi.RequestLine(fd, &lr); err != nil {
		return err
	}
	r.fd = int(lr.Fd)
	return nil
}

// buildConfigV2 maps the effective line configurations to a v2 kernel
// config - default flags plus attribute overrides for lines that differ.
//
// Output values are passed physically, with active-low applied here, so
// the kernel never sees the active-low flag.
func buildConfigV2(offsets []int, index map[int]int, cfgs map[int]LineConfig, outVals map[int]Value) (kapi.LineConfig, error) {
	var lc kapi.LineConfig
	def := cfgs[offsets[0]]
	lc.Flags = def.flagsV2()

	// group lines whose flags differ from the default into one attribute
	// per distinct flag set, in request order.
	var distinct []kapi.FlagV2
	masks := map[kapi.FlagV2]kapi.LineBitmap{}
	for _, o := range offsets {
		flags := cfgs[o].flagsV2()
		if flags == lc.Flags {
			continue
		}
		if _, ok := masks[flags]; !ok {
			distinct = append(distinct, flags)
		}
		masks[flags] = masks[flags].Set(index[o], 1)
	}
	for _, flags := range distinct {
		var attr kapi.LineAttribute
		attr.Encode64(kapi.LineAttrFlags, uint64(flags))
		if !lc.AddAttribute(kapi.ConfigAttr{Attr: attr, Mask: masks[flags]}) {
			return lc, ErrConfigOverflow
		}
	}

	// one attribute per distinct debounce period.
	var periods []time.Duration
	pmasks := map[time.Duration]kapi.LineBitmap{}
	for _, o := range offsets {
		cfg := cfgs[o]
		if !cfg.Debounced {
			continue
		}
		if _, ok := pmasks[cfg.DebouncePeriod]; !ok {
			periods = append(periods, cfg.DebouncePeriod)
		}
		pmasks[cfg.DebouncePeriod] = pmasks[cfg.DebouncePeriod].Set(index[o], 1)
	}
	for _, p := range periods {
		attr := kapi.DebouncePeriod(p).Encode()
		if !lc.AddAttribute(kapi.ConfigAttr{Attr: attr, Mask: pmasks[p]}) {
			return lc, ErrConfigOverflow
		}
	}

	var ovMask, ovBits kapi.LineBitmap
	for _, o := range offsets {
		cfg := cfgs[o]
		if cfg.Direction != DirectionOutput {
			continue
		}
		i := index[o]
		ovMask = ovMask.Set(i, 1)
		ovBits = ovBits.Set(i, physical(outVals[o], cfg.ActiveLow))
	}
	if ovMask != 0 {
		attr := kapi.OutputValues(ovBits).Encode()
		if !lc.AddAttribute(kapi.ConfigAttr{Attr: attr, Mask: ovMask}) {
			return lc, ErrConfigOverflow
		}
	}
	return lc, nil
}

func (r *Request) requestV1(fd uintptr, lro *lineReqOptions) error {
	first := r.cfg[r.offsets[0]]
	for _, o := range r.offsets {
		cfg := r.cfg[o]
		if err := cfg.v1Supported(); err != nil {
			return err
		}
		if !cfg.v1Uniform(first) {
			return ABISupportError{"per-line configuration", 1}
		}
	}
	if first.Edge != EdgeNone {
		// v1 delivers events on a dedicated fd per line.
		r.isEvent = true
		r.evtfds = map[int]int{}
		for _, o := range r.offsets {
			cfg := r.cfg[o]
			er := kapi.EventRequest{
				Offset:      uint32(o),
				HandleFlags: cfg.handleFlags(),
				EventFlags:  cfg.eventFlags(),
			}
			er.SetConsumer(lro.consumer)
			if err := kapi.RequestEvent(fd, &er); err != nil {
				for _, efd := range r.evtfds {
					unix.Close(efd)
				}
				return err
			}
			r.evtfds[o] = int(er.Fd)
		}
		fds := make(map[int]int, len(r.evtfds))
		sense := map[int]bool{}
		for o, efd := range r.evtfds {
			fds[efd] = o
			sense[o] = r.cfg[o].ActiveLow
		}
		s, err := newEventStream(fds, 1, sense)
		if err != nil {
			for _, efd := range r.evtfds {
				unix.Close(efd)
			}
			return err
		}
		r.stream = s
		return nil
	}
	hr := kapi.HandleRequest{
		Lines: uint32(len(r.offsets)),
		Flags: first.handleFlags(),
	}
	for i, o := range r.offsets {
		hr.Offsets[i] = uint32(o)
		cfg := r.cfg[o]
		if cfg.Direction == DirectionOutput {
			hr.DefaultValues[i] = uint8(physical(r.lastOut[o], cfg.ActiveLow))
		}
	}
	hr.SetConsumer(lro.consumer)
	if err := kapi.RequestHandle(fd, &hr); err != nil {
		return err
	}
	r.fd = int(hr.Fd)
	return nil
}

// physical maps a logical value to the wire level.
func physical(v Value, activeLow bool) int {
	p := 0
	if v != Inactive {
		p = 1
	}
	if activeLow {
		p ^= 1
	}
	return p
}

// logical maps a wire level to the logical value.
func logical(raw int, activeLow bool) Value {
	if activeLow {
		raw ^= 1
	}
	if raw == 0 {
		return Inactive
	}
	return Active
}

// Offsets returns the requested offsets, in request order.
func (r *Request) Offsets() []int {
	return append([]int(nil), r.offsets...)
}

// Chip returns the path of the chip the requested lines reside on.
func (r *Request) Chip() string {
	return r.chip
}

// ABIVersion returns the uAPI version the request was made with.
func (r *Request) ABIVersion() int {
	return r.abi
}

// Values returns the logical values of a subset of the requested lines,
// in the order given.  With no arguments it returns the values of all the
// requested lines, in request order.
func (r *Request) Values(offsets ...int) ([]Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if len(offsets) == 0 {
		offsets = r.offsets
	}
	for _, o := range offsets {
		if _, ok := r.index[o]; !ok {
			return nil, ErrInvalidOffset
		}
	}
	vv := make([]Value, len(offsets))
	switch {
	case r.abi == 2:
		var mask kapi.LineBitmap
		for _, o := range offsets {
			mask = mask.Set(r.index[o], 1)
		}
		lv := kapi.LineValues{Mask: mask}
		if err := kapi.GetLineValues(uintptr(r.fd), &lv); err != nil {
			return nil, err
		}
		for i, o := range offsets {
			vv[i] = logical(lv.Get(r.index[o]), r.cfg[o].ActiveLow)
		}
	case r.isEvent:
		// v1 event reservations answer value queries on the line fd.
		for i, o := range offsets {
			var hd kapi.HandleData
			if err := kapi.GetHandleValues(uintptr(r.evtfds[o]), &hd); err != nil {
				return nil, err
			}
			vv[i] = logical(int(hd[0]), r.cfg[o].ActiveLow)
		}
	default:
		var hd kapi.HandleData
		if err := kapi.GetHandleValues(uintptr(r.fd), &hd); err != nil {
			return nil, err
		}
		for i, o := range offsets {
			vv[i] = logical(int(hd[r.index[o]]), r.cfg[o].ActiveLow)
		}
	}
	return vv, nil
}

// Value returns the logical value of one requested line.
func (r *Request) Value(offset int) (Value, error) {
	vv, err := r.Values(offset)
	if err != nil {
		return Inactive, err
	}
	return vv[0], nil
}

// SetValues sets the logical values of a subset of the requested lines.
//
// All the named lines must be requested outputs, else the call fails with
// ErrPermissionDenied and no values change.
func (r *Request) SetValues(values map[int]Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	for o := range values {
		if _, ok := r.index[o]; !ok {
			return ErrInvalidOffset
		}
		if r.cfg[o].Direction != DirectionOutput {
			return ErrPermissionDenied
		}
	}
	if r.abi == 2 {
		var mask, bits kapi.LineBitmap
		for o, v := range values {
			i := r.index[o]
			mask = mask.Set(i, 1)
			bits = bits.Set(i, physical(v, r.cfg[o].ActiveLow))
		}
		if err := kapi.SetLineValues(uintptr(r.fd), kapi.LineValues{Bits: bits, Mask: mask}); err != nil {
			return err
		}
	} else {
		// v1 sets all lines at once, so carry the last set values for
		// outputs not named in this call.
		var hd kapi.HandleData
		for i, o := range r.offsets {
			cfg := r.cfg[o]
			if cfg.Direction != DirectionOutput {
				continue
			}
			v := r.lastOut[o]
			if nv, ok := values[o]; ok {
				v = nv
			}
			hd[i] = uint8(physical(v, cfg.ActiveLow))
		}
		if err := kapi.SetHandleValues(uintptr(r.fd), hd); err != nil {
			return err
		}
	}
	for o, v := range values {
		r.lastOut[o] = v
	}
	return nil
}

// SetValue sets the logical value of one requested line.
func (r *Request) SetValue(offset int, value Value) error {
	return r.SetValues(map[int]Value{offset: value})
}

// Reconfigure atomically updates the configuration of the requested
// lines.
//
// The options are applied on top of the configuration as last applied,
// at request time or by an earlier Reconfigure.  Requires uAPI v2 - on
// v1 the call fails with an ABISupportError and the configuration is
// unchanged.
func (r *Request) Reconfigure(options ...LineConfigOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.abi == 1 {
		return ABISupportError{"reconfigure", 1}
	}
	if len(options) == 0 {
		return nil
	}
	lco := lineConfigOptions{
		offsets: r.offsets,
		defCfg:  r.defCfg,
		lineCfg: make(map[int]LineConfig, len(r.overrides)),
		outVals: map[int]Value{},
	}
	for o, cfg := range r.overrides {
		lco.lineCfg[o] = cfg
	}
	for _, option := range options {
		option.applyLineConfigOption(&lco)
	}
	cfgs := make(map[int]LineConfig, len(r.offsets))
	outVals := make(map[int]Value, len(r.lastOut))
	for _, o := range r.offsets {
		cfg := lco.effective(o)
		cfgs[o] = cfg
		if cfg.Direction != DirectionOutput {
			continue
		}
		if v, ok := lco.outVals[o]; ok {
			outVals[o] = v
		} else {
			outVals[o] = r.lastOut[o]
		}
	}
	lc, err := buildConfigV2(r.offsets, r.index, cfgs, outVals)
	if err != nil {
		return err
	}
	if err = kapi.SetLineConfig(uintptr(r.fd), &lc); err != nil {
		return err
	}
	r.defCfg = lco.defCfg
	r.overrides = lco.lineCfg
	r.cfg = cfgs
	r.lastOut = outVals
	if r.stream != nil {
		sense := map[int]bool{}
		for o, cfg := range cfgs {
			sense[o] = cfg.ActiveLow
		}
		r.stream.setSense(sense)
	}
	return nil
}

// ReadEvent returns the next edge event for the request.
//
// A zero timeout polls for an already pending event, a negative timeout
// blocks until an event arrives or the request is closed.  Expiry fails
// with ErrEventReadTimeout.  Multiple goroutines may read concurrently,
// each event being delivered to only one of them.
func (r *Request) ReadEvent(timeout time.Duration) (EdgeEvent, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return EdgeEvent{}, ErrClosed
	}
	s := r.stream
	if s == nil {
		edges := false
		for _, cfg := range r.cfg {
			if cfg.Edge != EdgeNone {
				edges = true
				break
			}
		}
		if !edges {
			r.mu.Unlock()
			return EdgeEvent{}, ErrNoEdgeDetection
		}
		// v2 delivers events on the reservation fd itself, so the
		// stream can be set up on first read.
		sense := map[int]bool{}
		for o, cfg := range r.cfg {
			sense[o] = cfg.ActiveLow
		}
		var err error
		s, err = newEventStream(map[int]int{r.fd: -1}, r.abi, sense)
		if err != nil {
			r.mu.Unlock()
			return EdgeEvent{}, err
		}
		r.stream = s
	}
	r.mu.Unlock()
	return s.readEvent(timeout)
}

// Close releases the reservation.
//
// Blocked event readers are woken with ErrClosed.  All subsequent
// operations on the request fail with ErrClosed.
func (r *Request) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	s := r.stream
	r.mu.Unlock()
	if s != nil {
		// the stream owns the reservation fds.
		s.close()
		return nil
	}
	if r.isEvent {
		for _, efd := range r.evtfds {
			unix.Close(efd)
		}
		return nil
	}
	return unix.Close(r.fd)
}
