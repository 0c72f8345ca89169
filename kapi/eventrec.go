// SPDX-License-Identifier: MIT

//go:build linux && !386

package kapi

// EventData is a single v1 edge event record.
//
// Read from the reservation fd of a RequestEvent.
type EventData struct {
	// The time the event was detected.
	Timestamp uint64

	// The edge detected, EventRising or EventFalling.
	ID uint32

	// pad to match 64-bit kernel struct alignment.
	_ uint32
}
