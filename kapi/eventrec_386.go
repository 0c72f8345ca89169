// SPDX-License-Identifier: MIT

//go:build linux && 386

package kapi

// EventData is a single v1 edge event record.
//
// On 386 the kernel struct has no trailing padding.
type EventData struct {
	// The time the event was detected.
	Timestamp uint64

	// The edge detected, EventRising or EventFalling.
	ID uint32
}
