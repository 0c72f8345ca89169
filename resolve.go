// SPDX-License-Identifier: MIT

//go:build linux

package gpioline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ResolvedLine locates one line identifier on a specific chip.
type ResolvedLine struct {
	// The identifier as given.
	Ident string

	// The path of the chip the line resides on.
	Chip string

	// The offset of the line within the chip.
	Offset int
}

// Plan is the result of resolving a set of line identifiers, in the order
// the identifiers were given.
type Plan struct {
	Lines []ResolvedLine
}

// ChipGroup is the subset of a plan residing on one chip.
type ChipGroup struct {
	// The path of the chip.
	Chip string

	// The offsets of the plan lines on the chip, in plan order.
	Offsets []int
}

// ChipGroups partitions the plan by chip, in order of first appearance.
func (p *Plan) ChipGroups() []ChipGroup {
	var gg []ChipGroup
	idx := map[string]int{}
	for _, l := range p.Lines {
		i, ok := idx[l.Chip]
		if !ok {
			i = len(gg)
			idx[l.Chip] = i
			gg = append(gg, ChipGroup{Chip: l.Chip})
		}
		gg[i].Offsets = append(gg[i].Offsets, l.Offset)
	}
	return gg
}

// ResolveOption is an option that applies to resolving line identifiers.
type ResolveOption interface {
	applyResolveOption(*resolveOptions)
}

type resolveOptions struct {
	chips  []string
	strict bool
}

// ChipScopeOption limits resolution to particular chips.
type ChipScopeOption []string

// ResolveOnChip limits resolution to the given chip.  May be repeated to
// widen the scope.
func ResolveOnChip(chip string) ChipScopeOption {
	return ChipScopeOption{chipPath(chip)}
}

func (o ChipScopeOption) applyResolveOption(r *resolveOptions) {
	r.chips = append(r.chips, o...)
}

// StrictResolveOption requires identifiers to be unique across the scope.
type StrictResolveOption struct{}

// ResolveStrict fails resolution of any name found on more than one chip,
// rather than taking the first match.
var ResolveStrict = StrictResolveOption{}

func (o StrictResolveOption) applyResolveOption(r *resolveOptions) {
	r.strict = true
}

// ResolutionError aggregates the failures from resolving a set of
// identifiers.  Identifiers that did resolve are not reported.
type ResolutionError struct {
	// one failure per unresolved identifier, in the order given.
	Failures []error
}

func (e ResolutionError) Error() string {
	mm := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		mm[i] = f.Error()
	}
	return strings.Join(mm, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e ResolutionError) Unwrap() []error {
	return e.Failures
}

// chipLines is the name table for one chip in the resolution scope.
type chipLines struct {
	path  string
	lines int

	// name to offsets with that name, in offset order.
	names map[string][]int
}

// Resolve maps a set of line identifiers to chips and offsets.
//
// An identifier is either a line name or a decimal offset.  Offsets are
// accepted only when the scope holds exactly one chip, as an offset alone
// does not identify a chip.  Names are matched across the scope - the
// scope given with ResolveOnChip, or all chips in the system.  A name
// found on several chips resolves to the lexicographically first chip,
// unless ResolveStrict is given.
//
// All identifiers are checked even after one fails, so the returned
// ResolutionError reports every failure in one pass.
func Resolve(idents []string, options ...ResolveOption) (*Plan, error) {
	ro := resolveOptions{}
	for _, option := range options {
		option.applyResolveOption(&ro)
	}
	paths := ro.chips
	if len(paths) == 0 {
		paths = Chips()
	}
	sort.Strings(paths)
	scope := make([]chipLines, 0, len(paths))
	for _, path := range paths {
		cl, err := scanChip(path)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s", path)
		}
		scope = append(scope, cl)
	}
	plan := Plan{Lines: make([]ResolvedLine, 0, len(idents))}
	var failures []error
	for _, ident := range idents {
		rl, err := resolveIdent(ident, scope, ro.strict)
		if err != nil {
			failures = append(failures, errors.Wrapf(err, "resolving %q", ident))
			continue
		}
		plan.Lines = append(plan.Lines, rl)
	}
	if len(failures) != 0 {
		return nil, ResolutionError{Failures: failures}
	}
	return &plan, nil
}

func scanChip(path string) (chipLines, error) {
	c, err := OpenChip(path)
	if err != nil {
		return chipLines{}, err
	}
	defer c.Close()
	cl := chipLines{
		path:  c.Path,
		lines: c.Lines(),
		names: map[string][]int{},
	}
	for o := 0; o < c.Lines(); o++ {
		inf, err := c.LineInfo(o)
		if err != nil {
			return chipLines{}, err
		}
		if len(inf.Name) != 0 {
			cl.names[inf.Name] = append(cl.names[inf.Name], o)
		}
	}
	return cl, nil
}

func resolveIdent(ident string, scope []chipLines, strict bool) (ResolvedLine, error) {
	if offset, err := strconv.Atoi(ident); err == nil {
		if len(scope) != 1 {
			return ResolvedLine{}, ErrAmbiguousIdentifier
		}
		if offset < 0 || offset >= scope[0].lines {
			return ResolvedLine{}, ErrLineNotFound
		}
		return ResolvedLine{Ident: ident, Chip: scope[0].path, Offset: offset}, nil
	}
	var matches []ResolvedLine
	for _, cl := range scope {
		oo := cl.names[ident]
		if len(oo) == 0 {
			continue
		}
		if len(oo) > 1 {
			// a name repeated within one chip can never be resolved.
			return ResolvedLine{}, errors.Wrapf(ErrAmbiguousIdentifier,
				"repeated on %s", cl.path)
		}
		matches = append(matches, ResolvedLine{Ident: ident, Chip: cl.path, Offset: oo[0]})
	}
	switch {
	case len(matches) == 0:
		return ResolvedLine{}, ErrLineNotFound
	case len(matches) == 1:
		return matches[0], nil
	case strict:
		cc := make([]string, len(matches))
		for i, m := range matches {
			cc[i] = m.Chip
		}
		return ResolvedLine{}, errors.Wrapf(ErrAmbiguousIdentifier,
			"found on %s", strings.Join(cc, ", "))
	default:
		// scope is sorted, so the first match is the lexicographically
		// first chip.
		return matches[0], nil
	}
}

// RequestSet holds the requests acquired for a resolution plan spanning
// one or more chips.
type RequestSet struct {
	plan *Plan

	// one request per plan chip, in plan group order.
	requests []*Request

	// request index and offset for each plan line.
	slots []slot
}

type slot struct {
	req    int
	offset int
}

// RequestPlan requests all the lines of a resolution plan, grouped into
// one request per chip.
//
// The requests are acquired in plan group order.  Lines on separate
// chips cannot be acquired atomically, so on failure the requests
// already acquired remain held - the returned set holds them and must
// still be closed - and the error identifies the failing chip.
func RequestPlan(plan *Plan, options ...LineReqOption) (*RequestSet, error) {
	gg := plan.ChipGroups()
	rs := RequestSet{
		plan:     plan,
		requests: make([]*Request, 0, len(gg)),
	}
	ri := map[string]int{}
	for _, g := range gg {
		req, err := RequestLines(g.Chip, g.Offsets, options...)
		if err != nil {
			return &rs, errors.Wrapf(err, "requesting lines on %s", g.Chip)
		}
		ri[g.Chip] = len(rs.requests)
		rs.requests = append(rs.requests, req)
	}
	rs.slots = make([]slot, len(plan.Lines))
	for i, l := range plan.Lines {
		rs.slots[i] = slot{req: ri[l.Chip], offset: l.Offset}
	}
	return &rs, nil
}

// Plan returns the resolution plan the set was requested from.
func (rs *RequestSet) Plan() *Plan {
	return rs.plan
}

// Requests returns the underlying requests, one per chip, in plan group
// order.
func (rs *RequestSet) Requests() []*Request {
	return append([]*Request(nil), rs.requests...)
}

// Values returns the logical values of all the plan lines, in plan order.
func (rs *RequestSet) Values() ([]Value, error) {
	vv := make([]Value, len(rs.slots))
	for i, s := range rs.slots {
		v, err := rs.requests[s.req].Value(s.offset)
		if err != nil {
			return nil, err
		}
		vv[i] = v
	}
	return vv, nil
}

// SetValues sets the logical values of the plan lines, keyed by position
// in the plan.
//
// Values are applied chip by chip, so a failure part way leaves earlier
// chips set.
func (rs *RequestSet) SetValues(values map[int]Value) error {
	grouped := make([]map[int]Value, len(rs.requests))
	for i, v := range values {
		if i < 0 || i >= len(rs.slots) {
			return ErrInvalidOffset
		}
		s := rs.slots[i]
		if grouped[s.req] == nil {
			grouped[s.req] = map[int]Value{}
		}
		grouped[s.req][s.offset] = v
	}
	for i, g := range grouped {
		if g == nil {
			continue
		}
		if err := rs.requests[i].SetValues(g); err != nil {
			return err
		}
	}
	return nil
}

// Close releases all the requests in the set.
//
// Best effort - all requests are closed even if some fail, with the first
// failure returned.
func (rs *RequestSet) Close() error {
	var firstErr error
	for _, req := range rs.requests {
		if err := req.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
